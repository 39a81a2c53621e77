// Tests for authentication

package main

import (
	"net/http"
	"testing"
)

func TestSignFunctions(t *testing.T) {
	secret := "test-secret"
	channelName := "lesson-42"

	token, err := signAuthToken(secret, AUTH_ACTION_ISSUE, channelName)
	if err != nil {
		t.Error(err)
	}
	if !validateAuthToken(token, secret, AUTH_ACTION_ISSUE, channelName) {
		t.Errorf("Token does not pass validation: %v", token)
	}

	// Invalid tokens should not pass validation

	if validateAuthToken("invalid-token", secret, AUTH_ACTION_ISSUE, channelName) {
		t.Errorf("Invalid token passed validation: %v", "invalid-token")
	}

	if validateAuthToken(token, secret, AUTH_ACTION_ISSUE, "lesson-43") {
		t.Errorf("Token for other channel passed validation: %v", token)
	}

	if validateAuthToken(token, secret, "OTHER", channelName) {
		t.Errorf("Token for other action passed validation: %v", token)
	}

	invalidTokenOther, err := signAuthToken("other-secret", AUTH_ACTION_ISSUE, channelName)
	if err != nil {
		t.Error(err)
	}
	if validateAuthToken(invalidTokenOther, secret, AUTH_ACTION_ISSUE, channelName) {
		t.Errorf("Invalid token passed validation: %v", invalidTokenOther)
	}
}

func TestAuthController(t *testing.T) {
	channelName := "lesson-42"

	authController := NewAuthController(AuthConfiguration{
		IssueSecret: TEST_JWT_SECRET,
	})

	if !authController.IsAuthRequired() {
		t.Errorf("Auth should be required")
	}

	token, err := signAuthToken(TEST_JWT_SECRET, AUTH_ACTION_ISSUE, channelName)
	if err != nil {
		t.Error(err)
	}
	if !authController.ValidateIssueToken(token, channelName) {
		t.Errorf("Token does not pass validation: %v", token)
	}
	if authController.ValidateIssueToken(token, " "+channelName+" ") {
		t.Errorf("Token passed validation for a different channel name")
	}
	if authController.ValidateIssueToken("", channelName) {
		t.Errorf("Empty token passed validation")
	}

	// No secret: no auth

	openController := NewAuthController(AuthConfiguration{})

	if openController.IsAuthRequired() {
		t.Errorf("Auth should not be required")
	}

	if !openController.ValidateIssueToken("", channelName) {
		t.Errorf("Requests should be accepted without a secret")
	}
}

func TestGetBearerToken(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/token", nil)
	if err != nil {
		t.Fatal(err)
	}

	if getBearerToken(req) != "" {
		t.Errorf("Expected empty token")
	}

	req.Header.Set("Authorization", "bearer abc.def")

	if getBearerToken(req) != "abc.def" {
		t.Errorf("Expected abc.def, but found %v", getBearerToken(req))
	}

	req.Header.Set("Authorization", "Basic abc")

	if getBearerToken(req) != "" {
		t.Errorf("Expected empty token for basic auth")
	}
}

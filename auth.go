// Caller authentication

package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Action signed in the caller tokens
const AUTH_ACTION_ISSUE = "ISSUE"

// Signs a caller auth token
func signAuthToken(secret string, action string, channelName string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": action + ":" + channelName,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})

	return token.SignedString([]byte(secret))
}

// Validates caller auth token
func validateAuthToken(tokenString string, secret string, action string, channelName string) bool {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return []byte(secret), nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)

	if !ok {
		return false
	}

	sub, err := claims.GetSubject()

	if err != nil {
		return false
	}

	return sub == action+":"+channelName
}

// Gets the bearer token from the Authorization header
func getBearerToken(req *http.Request) string {
	auth := req.Header.Get("Authorization")

	if len(auth) > 7 && strings.EqualFold(auth[0:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}

	return ""
}

// Auth configuration
type AuthConfiguration struct {
	// Secret for caller tokens
	// If empty, callers are not authenticated
	IssueSecret string
}

// Creates new instance of AuthController
func NewAuthController(config AuthConfiguration) *AuthController {
	return &AuthController{
		config: config,
	}
}

// Auth controller
type AuthController struct {
	config AuthConfiguration
}

// Checks if callers must present a token
func (ac *AuthController) IsAuthRequired() bool {
	return ac.config.IssueSecret != ""
}

// Validates the caller token to issue tokens for a channel
func (ac *AuthController) ValidateIssueToken(token string, channelName string) bool {
	if !ac.IsAuthRequired() {
		return true
	}

	if token == "" {
		return false
	}

	return validateAuthToken(token, ac.config.IssueSecret, AUTH_ACTION_ISSUE, channelName)
}

// HTTP server test tools

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/AgustinSRG/channel-token-issuer/accesstoken"
)

// Runs a test server on a random port
// Returns the URL of the server + the listener to close it
func (server *HttpServer) RunTestServer() (string, net.Listener) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}

	go http.Serve(listener, server)

	port := listener.Addr().(*net.TCPAddr).Port

	server.logger.Debugf("Using port for test server: %v", port)

	return "127.0.0.1:" + fmt.Sprint(port), listener
}

// Options for the test server
type testServerOptions struct {
	// Issuer config
	issuer IssuerConfig

	// Caller auth secret
	authSecret string

	// Rate limiter config
	rateLimit RateLimiterConfig

	// Registry
	registry IssuanceRegistry
}

// Creates a test server with the default test credentials
func createTestServer(options testServerOptions) *HttpServer {
	return CreateHttpServer(HttpServerConfig{
		HttpEnabled:     true,
		IssuePath:       "/token",
		WebsocketPrefix: "/ws",
		MetricsEnabled:  true,
		MetricsPath:     "/metrics",
		LogRequests:     true,
	}, testLogger(), NewIssuer(options.issuer), NewAuthController(AuthConfiguration{
		IssueSecret: options.authSecret,
	}), NewRateLimiter(options.rateLimit, testLogger()), options.registry, NewIssuerMetrics())
}

// Posts a token request to the test server
func postTokenRequest(t *testing.T, addr string, body string, authToken string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, "http://"+addr+"/token", strings.NewReader(body))

	if err != nil {
		t.Fatal(err)
	}

	req.Header.Set("Content-Type", "application/json")

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	res, err := http.DefaultClient.Do(req)

	if err != nil {
		t.Fatal(err)
	}

	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)

	if err != nil {
		t.Fatal(err)
	}

	return res.StatusCode, data
}

func TestHttpIssueTokens(t *testing.T) {
	registry := NewMockIssuanceRegistry()

	server := createTestServer(testServerOptions{
		issuer:   testIssuerConfig(),
		registry: registry,
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	expireTime := time.Now().Unix() + 3600

	status, body := postTokenRequest(t, addr, fmt.Sprintf(`{"channelName":"lesson-42","uid":100007,"userRole":"tutor","expireTime":%d}`, expireTime), "")

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, but found %v. Body: %v", status, string(body))
	}

	var res IssueResponse

	err := json.Unmarshal(body, &res)

	if err != nil {
		t.Fatal(err)
	}

	if !res.Success || res.Role != ROLE_PUBLISHER || res.Uid != 100007 || res.ChannelName != "lesson-42" {
		t.Errorf("Unexpected response: %v", string(body))
	}

	if res.AppId != TEST_APP_ID {
		t.Errorf("Expected app ID %v, but found %v", TEST_APP_ID, res.AppId)
	}

	if int64(res.ExpireTime) != expireTime {
		t.Errorf("Expected expire time %v, but found %v", expireTime, res.ExpireTime)
	}

	if !strings.HasPrefix(res.RtcToken, accesstoken.Version) || !strings.HasPrefix(res.RtmToken, accesstoken.Version) {
		t.Errorf("Tokens must start with the version prefix")
	}

	rtcToken, err := accesstoken.Parse(res.RtcToken)

	if err != nil {
		t.Fatal(err)
	}

	rtc, ok := rtcToken.GetService(accesstoken.ServiceTypeRtc).(*accesstoken.ServiceRtc)

	if !ok {
		t.Fatalf("RTC token does not contain the RTC service")
	}

	if rtc.ChannelName != "lesson-42" || rtc.Uid != "100007" {
		t.Errorf("Unexpected RTC service. Channel: %v, Uid: %v", rtc.ChannelName, rtc.Uid)
	}

	if len(rtc.Privileges()) != 4 {
		t.Errorf("Expected 4 privileges for a publisher, but found %v", len(rtc.Privileges()))
	}

	if !rtcToken.VerifySignature(TEST_APP_CERTIFICATE) {
		t.Errorf("RTC token signature does not verify")
	}

	records := registry.Records()

	if len(records) != 1 || records[0].ChannelName != "lesson-42" || records[0].Uid != 100007 {
		t.Errorf("Unexpected issuance records: %v", records)
	}
}

func TestHttpIssueTokensInvalidRequest(t *testing.T) {
	server := createTestServer(testServerOptions{
		issuer: testIssuerConfig(),
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	bodies := []string{
		`{"uid":1,"userRole":"student"}`,
		`{"channelName":"   ","uid":1}`,
		`{"channelName":" lesson-42 ","uid":1}`,
		`{"channelName":"lesson-42","userRole":"student"}`,
		`{"channelName":"lesson-42","uid":-1}`,
		`{"channelName":"lesson-42","uid":1,"expireTime":1}`,
		`not-json`,
	}

	for _, body := range bodies {
		status, resBody := postTokenRequest(t, addr, body, "")

		if status != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %v, but found %v", body, status)
		}

		var res ErrorResponse

		err := json.Unmarshal(resBody, &res)

		if err != nil {
			t.Errorf("Invalid error response: %v", string(resBody))
			continue
		}

		if res.Success || res.Error == "" {
			t.Errorf("Unexpected error response: %v", string(resBody))
		}
	}
}

func TestHttpIssueTokensNotConfigured(t *testing.T) {
	server := createTestServer(testServerOptions{
		issuer: IssuerConfig{},
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	status, body := postTokenRequest(t, addr, `{"channelName":"lesson-42","uid":1}`, "")

	if status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, but found %v", status)
	}

	if bytes.Contains(body, []byte("certificate")) {
		t.Errorf("Configuration details leaked: %v", string(body))
	}
}

func TestHttpCorsAndMethods(t *testing.T) {
	server := createTestServer(testServerOptions{
		issuer: testIssuerConfig(),
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	req, err := http.NewRequest(http.MethodOptions, "http://"+addr+"/token", nil)

	if err != nil {
		t.Fatal(err)
	}

	res, err := http.DefaultClient.Do(req)

	if err != nil {
		t.Fatal(err)
	}

	res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, but found %v", res.StatusCode)
	}

	if res.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Missing CORS header")
	}

	res, err = http.Get("http://" + addr + "/token")

	if err != nil {
		t.Fatal(err)
	}

	res.Body.Close()

	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, but found %v", res.StatusCode)
	}

	res, err = http.Get("http://" + addr + "/")

	if err != nil {
		t.Fatal(err)
	}

	data, _ := io.ReadAll(res.Body)
	res.Body.Close()

	if res.StatusCode != http.StatusOK || string(data) != DEFAULT_HTTP_RESPONSE {
		t.Errorf("Unexpected default response: %v %v", res.StatusCode, string(data))
	}
}

func TestHttpIssueTokensAuth(t *testing.T) {
	server := createTestServer(testServerOptions{
		issuer:     testIssuerConfig(),
		authSecret: TEST_JWT_SECRET,
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	body := `{"channelName":"lesson-42","uid":100007,"userRole":"student"}`

	status, _ := postTokenRequest(t, addr, body, "")

	if status != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, but found %v", status)
	}

	otherChannelToken, err := signAuthToken(TEST_JWT_SECRET, AUTH_ACTION_ISSUE, "lesson-43")

	if err != nil {
		t.Fatal(err)
	}

	status, _ = postTokenRequest(t, addr, body, otherChannelToken)

	if status != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with a token for another channel, but found %v", status)
	}

	authToken, err := signAuthToken(TEST_JWT_SECRET, AUTH_ACTION_ISSUE, "lesson-42")

	if err != nil {
		t.Fatal(err)
	}

	status, resBody := postTokenRequest(t, addr, body, authToken)

	if status != http.StatusOK {
		t.Errorf("Expected status 200 with a valid token, but found %v. Body: %v", status, string(resBody))
	}
}

func TestHttpIssueTokensInvalidRequestWithAuth(t *testing.T) {
	server := createTestServer(testServerOptions{
		issuer:     testIssuerConfig(),
		authSecret: TEST_JWT_SECRET,
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	status, resBody := postTokenRequest(t, addr, `{"uid":100007,"userRole":"tutor"}`, "")

	if status != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a missing channel, but found %v", status)
	}

	var res ErrorResponse

	err := json.Unmarshal(resBody, &res)

	if err != nil {
		t.Fatalf("Invalid error response: %v", string(resBody))
	}

	if !strings.Contains(res.Error, "channelName is required") {
		t.Errorf("Unexpected error message: %v", res.Error)
	}

	authToken, err := signAuthToken(TEST_JWT_SECRET, AUTH_ACTION_ISSUE, " lesson-42 ")

	if err != nil {
		t.Fatal(err)
	}

	status, _ = postTokenRequest(t, addr, `{"channelName":" lesson-42 ","uid":100007}`, authToken)

	if status != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a padded channel name, but found %v", status)
	}
}

func TestHttpIssueTokensRateLimit(t *testing.T) {
	server := createTestServer(testServerOptions{
		issuer: testIssuerConfig(),
		rateLimit: RateLimiterConfig{
			Enabled:                true,
			MaxRequestsPerSecond:   1,
			RequestBurst:           2,
			CleanupIntervalSeconds: 60,
		},
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	body := `{"channelName":"lesson-42","uid":1}`

	limited := false

	for i := 0; i < 5; i++ {
		status, _ := postTokenRequest(t, addr, body, "")

		if status == http.StatusTooManyRequests {
			limited = true
			break
		}
	}

	if !limited {
		t.Errorf("Expected requests to be rate limited")
	}
}

func TestHttpRequestBodyTooLarge(t *testing.T) {
	server := createTestServer(testServerOptions{
		issuer: testIssuerConfig(),
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	body := `{"channelName":"` + strings.Repeat("a", MAX_REQUEST_BODY_SIZE) + `","uid":1}`

	status, _ := postTokenRequest(t, addr, body, "")

	if status != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, but found %v", status)
	}
}

func TestHttpMetrics(t *testing.T) {
	server := createTestServer(testServerOptions{
		issuer: testIssuerConfig(),
	})

	addr, listener := server.RunTestServer()
	defer listener.Close()

	postTokenRequest(t, addr, `{"channelName":"lesson-42","uid":1,"userRole":"tutor"}`, "")
	postTokenRequest(t, addr, `{"uid":1}`, "")

	res, err := http.Get("http://" + addr + "/metrics")

	if err != nil {
		t.Fatal(err)
	}

	data, err := io.ReadAll(res.Body)
	res.Body.Close()

	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Contains(data, []byte(`channel_tokens_issued_total{role="publisher",service="rtc"} 1`)) {
		t.Errorf("Missing issued tokens metric: %v", string(data))
	}

	if !bytes.Contains(data, []byte(`channel_token_requests_rejected_total{code="INVALID_REQUEST"} 1`)) {
		t.Errorf("Missing rejected requests metric: %v", string(data))
	}
}

// Token issuer client

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Max size of the responses read from the issuer
const maxResponseSize = 64 * 1024

// Request to issue tokens
type TokenRequest struct {
	// Channel name
	ChannelName string `json:"channelName"`

	// User ID. 0 lets the media server assign one
	Uid uint32 `json:"uid"`

	// User role
	UserRole string `json:"userRole,omitempty"`

	// Custom expiration (Unix seconds). 0 for the issuer default
	ExpireTime uint32 `json:"expireTime,omitempty"`
}

// Tokens issued for a channel
type Tokens struct {
	// Token for the RTC service
	RtcToken string `json:"rtcToken"`

	// Token for the RTM service
	RtmToken string `json:"rtmToken"`

	// Channel name
	ChannelName string `json:"channelName"`

	// User ID
	Uid uint32 `json:"uid"`

	// App ID
	AppId string `json:"appId"`

	// Expiration (Unix seconds)
	ExpireTime uint32 `json:"expireTime"`

	// Resolved role
	Role string `json:"role"`
}

// Error returned by the issuer
type IssuerError struct {
	// HTTP status, or 0 for websocket errors
	Status int

	// Error code (websocket only)
	Code string

	// Error message
	Message string
}

func (e *IssuerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("issuer error %v: %v", e.Code, e.Message)
	}

	return fmt.Sprintf("issuer error (status %d): %v", e.Status, e.Message)
}

// Response of the token endpoint
type issueResponse struct {
	Tokens

	// True on success
	Success bool `json:"success"`

	// Error message
	Error string `json:"error"`
}

// Client for the token issuer
type TokenIssuerClient struct {
	// Configuration
	Config TokenIssuerClientConfiguration
}

// Creates a new instance of TokenIssuerClient
func NewTokenIssuerClient(config TokenIssuerClientConfiguration) *TokenIssuerClient {
	return &TokenIssuerClient{
		Config: config,
	}
}

// Gets the URL of the token endpoint
func (c *TokenIssuerClient) getIssueUrl() string {
	path := c.Config.IssuePath

	if path == "" {
		path = "/token"
	}

	return strings.TrimSuffix(c.Config.ServerUrl, "/") + path
}

// Gets the HTTP client
func (c *TokenIssuerClient) getHttpClient() *http.Client {
	if c.Config.HttpClient != nil {
		return c.Config.HttpClient
	}

	return http.DefaultClient
}

// Requests a pair of tokens over HTTP
func (c *TokenIssuerClient) IssueTokens(ctx context.Context, req TokenRequest) (*Tokens, error) {
	body, err := json.Marshal(req)

	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.getIssueUrl(), bytes.NewReader(body))

	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if c.Config.AuthSecret != "" {
		authToken, err := signAuthToken(c.Config.AuthSecret, authActionIssue, req.ChannelName)

		if err != nil {
			return nil, fmt.Errorf("could not sign the authentication token: %w", err)
		}

		httpReq.Header.Set("Authorization", "Bearer "+authToken)
	}

	res, err := c.getHttpClient().Do(httpReq)

	if err != nil {
		return nil, err
	}

	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))

	if err != nil {
		return nil, err
	}

	var parsed issueResponse

	err = json.Unmarshal(data, &parsed)

	if err != nil {
		if res.StatusCode != http.StatusOK {
			return nil, &IssuerError{Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
		}

		return nil, fmt.Errorf("invalid response from the issuer: %w", err)
	}

	if res.StatusCode != http.StatusOK || !parsed.Success {
		return nil, &IssuerError{Status: res.StatusCode, Message: parsed.Error}
	}

	return &parsed.Tokens, nil
}

// Checks if an error was returned by the issuer with the given HTTP status
func IsIssuerStatus(err error, status int) bool {
	var issuerErr *IssuerError

	if !errors.As(err, &issuerErr) {
		return false
	}

	return issuerErr.Status == status
}

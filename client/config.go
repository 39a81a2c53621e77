// Client configuration

package client

import (
	"net/http"
	"time"
)

// Configuration for the token issuer client
type TokenIssuerClientConfiguration struct {
	// Base URL of the issuer (http or https)
	ServerUrl string

	// Path of the token endpoint
	// Default: /token
	IssuePath string

	// Path of the websocket endpoint
	// Default: /ws
	WebsocketPath string

	// Secret to generate authentication tokens
	// Leave empty if the issuer does not authenticate callers
	AuthSecret string

	// HTTP client to use
	// Default: http.DefaultClient
	HttpClient *http.Client

	// Timeout for requests made through a websocket session
	// Default: 10 seconds
	RequestTimeout time.Duration
}

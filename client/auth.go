// Authentication tokens

package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Action signed in the caller tokens
const authActionIssue = "ISSUE"

// Signs an authentication token
func signAuthToken(secret string, action string, channelName string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": action + ":" + channelName,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})

	return token.SignedString([]byte(secret))
}

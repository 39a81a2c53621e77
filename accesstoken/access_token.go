// Signed access tokens

package accesstoken

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
)

// Token format version, prefixed to every token
const Version = "007"

// Max value for the random salt
const MaxSalt = 99999999

// Max size of a decompressed token accepted by Parse
const maxContentSize = 64 * 1024

// Errors returned when building or parsing tokens
var (
	ErrInvalidAppId          = errors.New("accesstoken: app id must be a 32 character hex string")
	ErrInvalidAppCertificate = errors.New("accesstoken: app certificate must be a 32 character hex string")
	ErrNoServices            = errors.New("accesstoken: token has no services")
	ErrEmptyPrivileges       = errors.New("accesstoken: service has no privileges")
	ErrUnknownService        = errors.New("accesstoken: unknown service type")
	ErrTrailingData          = errors.New("accesstoken: unexpected data after the last field")
	ErrInvalidVersion        = errors.New("accesstoken: unsupported token version")
	ErrMalformedToken        = errors.New("accesstoken: malformed token")
	ErrContentTooLarge       = errors.New("accesstoken: token content too large")
)

// Access token (envelope).
// Carries one service per type, signed with the app certificate.
type AccessToken struct {
	// App ID (32 hex characters)
	AppId string

	// App certificate (32 hex characters). Signing secret, never serialized
	AppCertificate string

	// Issue timestamp (Unix seconds)
	IssueTs uint32

	// Expiration (Unix seconds)
	Expire uint32

	// Random salt, 1..MaxSalt
	Salt uint32

	// Signature, only set for parsed tokens
	Signature []byte

	// Services, in insertion order
	services []Service
}

// Creates new instance of AccessToken, issued now with a random salt
func NewAccessToken(appId string, appCertificate string, expire uint32) *AccessToken {
	return NewAccessTokenAt(appId, appCertificate, expire, time.Now())
}

// Creates new instance of AccessToken, issued at a given time with a random salt
func NewAccessTokenAt(appId string, appCertificate string, expire uint32, issuedAt time.Time) *AccessToken {
	return &AccessToken{
		AppId:          appId,
		AppCertificate: appCertificate,
		IssueTs:        uint32(issuedAt.Unix()),
		Expire:         expire,
		Salt:           GenerateSalt(),
		services:       make([]Service, 0, 1),
	}
}

// Generates a random salt
func GenerateSalt() uint32 {
	return rand.Uint32N(MaxSalt) + 1
}

// Adds a service to the token.
// A service of the same type added before is replaced, keeping its position.
func (token *AccessToken) AddService(service Service) {
	for i, s := range token.services {
		if s.Type() == service.Type() {
			token.services[i] = service
			return
		}
	}

	token.services = append(token.services, service)
}

// Gets the services of the token, in insertion order
func (token *AccessToken) Services() []Service {
	return token.services
}

// Finds a service by type. Returns nil if not present
func (token *AccessToken) GetService(serviceType uint16) Service {
	for _, s := range token.services {
		if s.Type() == serviceType {
			return s
		}
	}

	return nil
}

// Builds the token string.
// Fails if the credentials are malformed or if there is nothing to grant.
func (token *AccessToken) Build() (string, error) {
	err := token.validate()

	if err != nil {
		return "", err
	}

	signingInfo := token.signingInfo()
	signature := sign(signingKey(token.AppCertificate, token.IssueTs, token.Salt), signingInfo)

	content := NewByteBuffer().PutBytes(signature).PutRaw(signingInfo).Pack()

	compressed, err := compress(content)

	if err != nil {
		return "", err
	}

	return Version + base64.StdEncoding.EncodeToString(compressed), nil
}

// Checks the signature of a token against an app certificate
func (token *AccessToken) VerifySignature(appCertificate string) bool {
	if !IsValidCredential(appCertificate) || len(token.Signature) == 0 {
		return false
	}

	expected := sign(signingKey(appCertificate, token.IssueTs, token.Salt), token.signingInfo())

	return hmac.Equal(expected, token.Signature)
}

func (token *AccessToken) validate() error {
	if !IsValidCredential(token.AppId) {
		return ErrInvalidAppId
	}

	if !IsValidCredential(token.AppCertificate) {
		return ErrInvalidAppCertificate
	}

	if len(token.services) == 0 {
		return ErrNoServices
	}

	for _, s := range token.services {
		if len(s.Privileges()) == 0 {
			return fmt.Errorf("%w: service type %d", ErrEmptyPrivileges, s.Type())
		}
	}

	return nil
}

// Serializes the metadata and the services.
// These are the signed bytes.
func (token *AccessToken) signingInfo() []byte {
	buf := NewByteBuffer()

	buf.PutString(token.AppId).
		PutUint32(token.IssueTs).
		PutUint32(token.Expire).
		PutUint32(token.Salt).
		PutUint16(uint16(len(token.services)))

	for _, s := range token.services {
		buf.PutRaw(s.Pack())
	}

	return buf.Pack()
}

// Derives the signing key from the certificate.
// The timestamp and the salt are used as HMAC keys, and the certificate as the message.
func signingKey(appCertificate string, issueTs uint32, salt uint32) []byte {
	h := hmac.New(sha256.New, NewByteBuffer().PutUint32(issueTs).Pack())
	h.Write([]byte(appCertificate))
	step := h.Sum(nil)

	h = hmac.New(sha256.New, NewByteBuffer().PutUint32(salt).Pack())
	h.Write(step)

	return h.Sum(nil)
}

func sign(key []byte, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func compress(data []byte) ([]byte, error) {
	var b bytes.Buffer

	w := zlib.NewWriter(&b)

	_, err := w.Write(data)

	if err != nil {
		return nil, err
	}

	err = w.Close()

	if err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))

	if err != nil {
		return nil, err
	}

	defer r.Close()

	content, err := io.ReadAll(io.LimitReader(r, maxContentSize+1))

	if err != nil {
		return nil, err
	}

	if len(content) > maxContentSize {
		return nil, ErrContentTooLarge
	}

	return content, nil
}

// Checks an app ID or certificate is 32 hex characters (16 bytes)
func IsValidCredential(s string) bool {
	if len(s) != 32 {
		return false
	}

	_, err := hex.DecodeString(s)

	return err == nil
}

// Parses a token string.
// The signature is not checked, call VerifySignature for that.
func Parse(tokenString string) (*AccessToken, error) {
	if !strings.HasPrefix(tokenString, Version) {
		return nil, ErrInvalidVersion
	}

	compressed, err := base64.StdEncoding.DecodeString(tokenString[len(Version):])

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	content, err := decompress(compressed)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	token, err := parseContent(content)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	return token, nil
}

// Reads the signature, the envelope fields and the services
func parseContent(content []byte) (*AccessToken, error) {
	r := NewByteReader(content)

	token := &AccessToken{}

	var err error

	token.Signature, err = r.GetBytes()

	if err != nil {
		return nil, err
	}

	token.AppId, err = r.GetString()

	if err != nil {
		return nil, err
	}

	token.IssueTs, err = r.GetUint32()

	if err != nil {
		return nil, err
	}

	token.Expire, err = r.GetUint32()

	if err != nil {
		return nil, err
	}

	token.Salt, err = r.GetUint32()

	if err != nil {
		return nil, err
	}

	count, err := r.GetUint16()

	if err != nil {
		return nil, err
	}

	token.services = make([]Service, 0, count)

	for i := 0; i < int(count); i++ {
		s, err := readService(r)

		if err != nil {
			return nil, err
		}

		token.services = append(token.services, s)
	}

	if r.Remaining() > 0 {
		return nil, ErrTrailingData
	}

	return token, nil
}

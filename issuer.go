// Channel token issuer

package main

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AgustinSRG/channel-token-issuer/accesstoken"
)

// Role with publishing rights
const ROLE_PUBLISHER = "publisher"

// Role with subscribe-only rights
const ROLE_SUBSCRIBER = "subscriber"

// Default validity of the tokens (seconds)
const DEFAULT_TOKEN_EXPIRE_SECONDS = 24 * 60 * 60

// Max length (bytes) of a channel name
const MAX_CHANNEL_NAME_LENGTH = 64

var (
	// The request is missing parameters or has invalid ones
	ErrInvalidRequest = errors.New("invalid request")

	// The issuer credentials are missing or malformed
	ErrIssuerNotConfigured = errors.New("token issuer is not configured")
)

// Issuer configuration
type IssuerConfig struct {
	// App ID (32 hex characters)
	AppId string

	// App certificate (32 hex characters)
	// This is the signing secret. Never log it.
	AppCertificate string

	// Validity of the tokens (seconds) when the request sets no expiration
	DefaultExpireSeconds uint32

	// User roles with publishing rights
	PublisherRoles []string
}

// Request to issue tokens
type IssueRequest struct {
	// Channel name
	ChannelName string `json:"channelName"`

	// User ID. 0 lets the media server assign one
	Uid *int64 `json:"uid"`

	// User role
	UserRole string `json:"userRole"`

	// Custom expiration (Unix seconds)
	ExpireTime *int64 `json:"expireTime,omitempty"`
}

// Issued tokens
type IssueResponse struct {
	// Always true
	Success bool `json:"success"`

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

	// Resolved role (publisher or subscriber)
	Role string `json:"role"`
}

// Channel token issuer
type Issuer struct {
	// Configuration
	config IssuerConfig

	// Roles with publishing rights (lower case)
	publisherRoles map[string]bool
}

// Creates new instance of Issuer
func NewIssuer(config IssuerConfig) *Issuer {
	if config.DefaultExpireSeconds == 0 {
		config.DefaultExpireSeconds = DEFAULT_TOKEN_EXPIRE_SECONDS
	}

	publisherRoles := make(map[string]bool)

	for _, r := range config.PublisherRoles {
		r = strings.ToLower(strings.TrimSpace(r))

		if r != "" {
			publisherRoles[r] = true
		}
	}

	return &Issuer{
		config:         config,
		publisherRoles: publisherRoles,
	}
}

// Gets the app ID
func (issuer *Issuer) AppId() string {
	return issuer.config.AppId
}

// Checks the credentials are present and well formed
func (issuer *Issuer) CheckConfig() error {
	if issuer.config.AppId == "" || issuer.config.AppCertificate == "" {
		return fmt.Errorf("%w: missing app ID or app certificate", ErrIssuerNotConfigured)
	}

	if !accesstoken.IsValidCredential(issuer.config.AppId) {
		return fmt.Errorf("%w: app ID is not a 32 character hex string", ErrIssuerNotConfigured)
	}

	if !accesstoken.IsValidCredential(issuer.config.AppCertificate) {
		return fmt.Errorf("%w: app certificate is not a 32 character hex string", ErrIssuerNotConfigured)
	}

	return nil
}

// Maps an user role to publisher or subscriber
func (issuer *Issuer) ResolveRole(userRole string) string {
	if issuer.publisherRoles[strings.ToLower(strings.TrimSpace(userRole))] {
		return ROLE_PUBLISHER
	}

	return ROLE_SUBSCRIBER
}

// Issues the RTC and RTM tokens for a request
func (issuer *Issuer) Issue(req *IssueRequest) (*IssueResponse, error) {
	return issuer.IssueAt(req, time.Now())
}

// Issues the RTC and RTM tokens for a request, with a fixed issue time
func (issuer *Issuer) IssueAt(req *IssueRequest, now time.Time) (*IssueResponse, error) {
	params, err := issuer.validateRequest(req, now)

	if err != nil {
		return nil, err
	}

	err = issuer.CheckConfig()

	if err != nil {
		return nil, err
	}

	role := issuer.ResolveRole(req.UserRole)

	// RTC

	rtc := accesstoken.NewServiceRtc(params.channelName, params.uid)

	for _, code := range accesstoken.RtcPrivileges(role == ROLE_PUBLISHER) {
		rtc.AddPrivilege(code, params.expireAt)
	}

	rtcToken, err := issuer.buildToken(rtc, params.expireAt, now)

	if err != nil {
		return nil, err
	}

	// RTM

	rtm := accesstoken.NewServiceRtm(accesstoken.UidToString(params.uid))

	rtm.AddPrivilege(accesstoken.PrivilegeLogin, params.expireAt)

	rtmToken, err := issuer.buildToken(rtm, params.expireAt, now)

	if err != nil {
		return nil, err
	}

	return &IssueResponse{
		Success:     true,
		RtcToken:    rtcToken,
		RtmToken:    rtmToken,
		ChannelName: params.channelName,
		Uid:         params.uid,
		AppId:       issuer.config.AppId,
		ExpireTime:  params.expireAt,
		Role:        role,
	}, nil
}

// Builds a token with a single service
func (issuer *Issuer) buildToken(service accesstoken.Service, expireAt uint32, now time.Time) (string, error) {
	token := accesstoken.NewAccessTokenAt(issuer.config.AppId, issuer.config.AppCertificate, expireAt, now)

	token.AddService(service)

	result, err := token.Build()

	if err != nil {
		return "", fmt.Errorf("could not build token for service %d: %w", service.Type(), err)
	}

	return result, nil
}

// Validated parameters of a token request
type issueParams struct {
	// Channel name
	channelName string

	// User ID
	uid uint32

	// Expiration (Unix seconds)
	expireAt uint32
}

// Checks the caller parameters.
// Runs before any credential check or signing work.
func (issuer *Issuer) ValidateRequest(req *IssueRequest, now time.Time) error {
	_, err := issuer.validateRequest(req, now)
	return err
}

func (issuer *Issuer) validateRequest(req *IssueRequest, now time.Time) (*issueParams, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}

	if strings.TrimSpace(req.ChannelName) == "" {
		return nil, fmt.Errorf("%w: channelName is required", ErrInvalidRequest)
	}

	// The name is signed as given, so it must match the one used to join
	if strings.TrimSpace(req.ChannelName) != req.ChannelName {
		return nil, fmt.Errorf("%w: channelName has leading or trailing spaces", ErrInvalidRequest)
	}

	if len(req.ChannelName) > MAX_CHANNEL_NAME_LENGTH {
		return nil, fmt.Errorf("%w: channelName is too long", ErrInvalidRequest)
	}

	if req.Uid == nil {
		return nil, fmt.Errorf("%w: uid is required", ErrInvalidRequest)
	}

	if *req.Uid < 0 || *req.Uid > math.MaxUint32 {
		return nil, fmt.Errorf("%w: uid out of range", ErrInvalidRequest)
	}

	issueTs := now.Unix()

	expire := issueTs + int64(issuer.config.DefaultExpireSeconds)

	if req.ExpireTime != nil {
		expire = *req.ExpireTime

		if expire <= issueTs {
			return nil, fmt.Errorf("%w: expireTime must be in the future", ErrInvalidRequest)
		}
	}

	if expire > math.MaxUint32 {
		return nil, fmt.Errorf("%w: expireTime out of range", ErrInvalidRequest)
	}

	return &issueParams{
		channelName: req.ChannelName,
		uid:         uint32(*req.Uid),
		expireAt:    uint32(expire),
	}, nil
}

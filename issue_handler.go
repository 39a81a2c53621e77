// Token requests handling, shared by HTTP and websocket

package main

import (
	"errors"
	"net/http"
	"time"
)

// Error codes
const (
	ERROR_CODE_INVALID_REQUEST = "INVALID_REQUEST"
	ERROR_CODE_NOT_CONFIGURED  = "NOT_CONFIGURED"
	ERROR_CODE_INTERNAL        = "INTERNAL_ERROR"
	ERROR_CODE_AUTH            = "AUTH_ERROR"
	ERROR_CODE_RATE_LIMIT      = "RATE_LIMIT"
	ERROR_CODE_PROTOCOL        = "PROTOCOL_ERROR"
)

// Gets the error code for an issuance error
func getIssueErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return ERROR_CODE_INVALID_REQUEST
	case errors.Is(err, ErrIssuerNotConfigured):
		return ERROR_CODE_NOT_CONFIGURED
	default:
		return ERROR_CODE_INTERNAL
	}
}

// Gets the HTTP status for an error code
func getErrorCodeStatus(code string) int {
	switch code {
	case ERROR_CODE_INVALID_REQUEST, ERROR_CODE_PROTOCOL:
		return http.StatusBadRequest
	case ERROR_CODE_AUTH:
		return http.StatusUnauthorized
	case ERROR_CODE_RATE_LIMIT:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Issues tokens for a request, recording metrics and the issuance
// requestId is only used for logging
func (server *HttpServer) IssueTokens(req *IssueRequest, requestId string) (*IssueResponse, error) {
	start := time.Now()

	res, err := server.issuer.IssueAt(req, start)

	if err != nil {
		code := getIssueErrorCode(err)

		server.metrics.ObserveRejected(code)

		switch code {
		case ERROR_CODE_INVALID_REQUEST:
			server.logger.Debugf("[%v] Rejected token request: %v", requestId, err)
		default:
			server.logger.Errorf("[%v] Could not issue tokens: %v", requestId, err)
		}

		return nil, err
	}

	server.metrics.ObserveIssued(res.Role, time.Since(start))

	server.logger.Infof("[%v] Issued tokens. Channel: %v, Uid: %v, Role: %v, Expire: %v", requestId, res.ChannelName, res.Uid, res.Role, res.ExpireTime)

	if server.registry != nil {
		err = server.registry.RecordIssuance(IssuanceRecord{
			ChannelName: res.ChannelName,
			Uid:         res.Uid,
			Role:        res.Role,
			IssuedAt:    start.Unix(),
			ExpireTime:  res.ExpireTime,
		})

		if err != nil {
			server.logger.Warningf("[%v] Could not record the issuance: %v", requestId, err)
		}
	}

	return res, nil
}

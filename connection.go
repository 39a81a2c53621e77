// Websocket connection handler

package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AgustinSRG/glog"
	"github.com/gorilla/websocket"
)

// Period to send HEARTBEAT messages to the client
const HEARTBEAT_MSG_PERIOD_SECONDS = 30

// Max time with no messages from the client to consider the connection dead
const READ_TIMEOUT_SECONDS = 2 * HEARTBEAT_MSG_PERIOD_SECONDS

// Limit (in bytes) for text messages (to prevent DOS attacks)
const TEXT_MSG_READ_LIMIT = 1600

// Connection handler
type ConnectionHandler struct {
	// Connection id
	id uint64

	// Client IP
	ip string

	// Connection
	connection *websocket.Conn

	// HTTP server
	server *HttpServer

	// Logger
	logger *glog.Logger

	// Mutex for the struct
	mu *sync.Mutex

	// Timestamp: Last time a message was sent to the client
	lastSentMessage int64

	// True if closed
	closed bool
}

// Creates connection handler
func CreateConnectionHandler(conn *websocket.Conn, server *HttpServer, ip string) *ConnectionHandler {
	return &ConnectionHandler{
		id:              0,
		ip:              ip,
		connection:      conn,
		server:          server,
		logger:          server.logger,
		mu:              &sync.Mutex{},
		lastSentMessage: time.Now().UnixMilli(),
		closed:          false,
	}
}

// Checks if the connection is closed
func (ch *ConnectionHandler) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.closed
}

// Called after the connection is closed
func (ch *ConnectionHandler) onClose() {
	ch.mu.Lock()

	ch.closed = true

	ch.mu.Unlock()

	ch.server.rateLimiter.EndConnection(ch.ip)
}

// Runs connection handler
func (ch *ConnectionHandler) Run() {
	// Get a connection ID
	ch.id = ch.server.GetConnectionId()
	ch.logger = ch.server.logger.CreateChildLogger("[Connection #" + fmt.Sprint(ch.id) + "] ")

	defer func() {
		if err := recover(); err != nil {
			switch x := err.(type) {
			case string:
				ch.logger.Errorf("Error: %v", x)
			case error:
				ch.logger.Errorf("Connection closed with error: %v", x)
			default:
				ch.logger.Errorf("Connection Crashed!")
			}
		}
		ch.logger.Debug("Connection closed.")
		// Ensure connection is closed
		ch.connection.Close()
		// Release resources
		ch.onClose()
	}()

	ch.logger.Debugf("Connection established. IP: %v", ch.ip)

	go ch.sendHeartbeatMessages() // Start heartbeat sending

	for {
		err := ch.connection.SetReadDeadline(time.Now().Add(READ_TIMEOUT_SECONDS * time.Second))

		if err != nil {
			break
		}

		if !ch.ReadTextMessage() {
			break // Closed
		}
	}
}

// Reads a text message, parses it, and handles it
// Returns false if the connection must be closed
func (ch *ConnectionHandler) ReadTextMessage() bool {
	ch.connection.SetReadLimit(TEXT_MSG_READ_LIMIT)

	mt, message, err := ch.connection.ReadMessage()

	if err != nil {
		return false
	}

	if mt != websocket.TextMessage {
		ch.SendErrorMessage(ERROR_CODE_PROTOCOL, "Expected text message, but received a binary one", "")
		return false
	}

	ch.logger.Trace("<<< " + string(message))

	parsedMessage := ParseWebsocketProtocolMessage(string(message))

	switch parsedMessage.MessageType {
	case MSG_HEARTBEAT:
		// Keeps the connection alive
	case MSG_ISSUE:
		ch.handleIssue(parsedMessage)
	case MSG_ERROR:
		ch.logger.Debugf("Error from client. Code: %v, Message: %v", parsedMessage.GetParameter("code"), parsedMessage.GetParameter("message"))
	case MSG_CLOSE:
		return false
	default:
		ch.SendErrorMessage(ERROR_CODE_PROTOCOL, "Unknown message type: "+parsedMessage.MessageType, "")
	}

	return true
}

// Parses an optional integer parameter
func parseIntegerParameter(msg *WebsocketProtocolMessage, param string) (*int64, error) {
	str := strings.TrimSpace(msg.GetParameter(param))

	if str == "" {
		return nil, nil
	}

	v, err := strconv.ParseInt(str, 10, 64)

	if err != nil {
		return nil, fmt.Errorf("%w: %v must be an integer", ErrInvalidRequest, param)
	}

	return &v, nil
}

// Builds the token request from an ISSUE message
func issueRequestFromMessage(msg *WebsocketProtocolMessage) (*IssueRequest, error) {
	uid, err := parseIntegerParameter(msg, "uid")

	if err != nil {
		return nil, err
	}

	expire, err := parseIntegerParameter(msg, "expire")

	if err != nil {
		return nil, err
	}

	return &IssueRequest{
		ChannelName: msg.GetParameter("channel"),
		Uid:         uid,
		UserRole:    msg.GetParameter("role"),
		ExpireTime:  expire,
	}, nil
}

// Handles ISSUE message
func (ch *ConnectionHandler) handleIssue(msg *WebsocketProtocolMessage) {
	requestId := msg.GetParameter("request_id")

	if !ch.server.rateLimiter.CountRequest(ch.ip) {
		ch.server.metrics.ObserveRejected(ERROR_CODE_RATE_LIMIT)
		ch.SendErrorMessage(ERROR_CODE_RATE_LIMIT, "Too many requests", requestId)
		return
	}

	req, err := issueRequestFromMessage(msg)

	if err != nil {
		ch.SendErrorMessage(ERROR_CODE_INVALID_REQUEST, err.Error(), requestId)
		return
	}

	err = ch.server.issuer.ValidateRequest(req, time.Now())

	if err != nil {
		ch.server.metrics.ObserveRejected(ERROR_CODE_INVALID_REQUEST)
		ch.SendErrorMessage(ERROR_CODE_INVALID_REQUEST, err.Error(), requestId)
		return
	}

	if !ch.server.authController.ValidateIssueToken(msg.GetParameter("auth"), req.ChannelName) {
		ch.server.metrics.ObserveRejected(ERROR_CODE_AUTH)
		ch.SendErrorMessage(ERROR_CODE_AUTH, "Invalid or missing authorization token", requestId)
		return
	}

	res, err := ch.server.IssueTokens(req, "ws-"+fmt.Sprint(ch.id)+"-"+requestId)

	if err != nil {
		code := getIssueErrorCode(err)

		if code == ERROR_CODE_INVALID_REQUEST {
			ch.SendErrorMessage(code, err.Error(), requestId)
		} else {
			ch.SendErrorMessage(code, "Could not issue tokens", requestId)
		}

		return
	}

	tokensMessage := WebsocketProtocolMessage{
		MessageType: MSG_TOKENS,
		Parameters: map[string]string{
			"rtc":     res.RtcToken,
			"rtm":     res.RtmToken,
			"channel": res.ChannelName,
			"uid":     fmt.Sprint(res.Uid),
			"app_id":  res.AppId,
			"expire":  fmt.Sprint(res.ExpireTime),
			"role":    res.Role,
		},
	}

	if requestId != "" {
		tokensMessage.Parameters["request_id"] = requestId
	}

	ch.Send(&tokensMessage)
}

// Checks if a heartbeat message is needed to keep the connection alive
func (ch *ConnectionHandler) checkHeartbeatNeeded() bool {
	now := time.Now().UnixMilli()

	ch.mu.Lock()
	defer ch.mu.Unlock()

	return now-ch.lastSentMessage > (HEARTBEAT_MSG_PERIOD_SECONDS * time.Second).Milliseconds()
}

// Task to send HEARTBEAT periodically
func (ch *ConnectionHandler) sendHeartbeatMessages() {
	for {
		time.Sleep(HEARTBEAT_MSG_PERIOD_SECONDS * time.Second)

		if ch.isClosed() {
			return // Closed
		}

		if !ch.checkHeartbeatNeeded() {
			continue
		}

		ch.Send(&WebsocketProtocolMessage{
			MessageType: MSG_HEARTBEAT,
		})
	}
}

// Sends error message
func (ch *ConnectionHandler) SendErrorMessage(errorCode string, errorMessage string, requestId string) {
	msg := WebsocketProtocolMessage{
		MessageType: MSG_ERROR,
		Parameters: map[string]string{
			"code":    errorCode,
			"message": errorMessage,
		},
	}

	if requestId != "" {
		msg.Parameters["request_id"] = requestId
	}

	ch.Send(&msg)
}

// Sends a message to the websocket client
func (ch *ConnectionHandler) Send(msg *WebsocketProtocolMessage) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return
	}

	serialized := msg.Serialize()

	ch.logger.Trace(">>> " + serialized)

	err := ch.connection.WriteMessage(websocket.TextMessage, []byte(serialized))

	if err != nil {
		ch.logger.Debugf("Error sending message: %v", err)
	}

	ch.lastSentMessage = time.Now().UnixMilli()
}

// Websocket session, to renew tokens over a long lived connection

package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const heartbeat_msg_period_seconds = 30
const text_msg_read_limit = 1600

// The session was closed
var ErrSessionClosed = errors.New("token session closed")

// Websocket session with the token issuer
type TokenSession struct {
	// Mutex for the struct
	mu *sync.Mutex

	// Client
	client *TokenIssuerClient

	// Socket
	socket *websocket.Conn

	// True if closed
	closed bool

	// Pending requests (request ID -> reply channel)
	pending map[string]chan *WebsocketProtocolMessage

	// Channel to interrupt the heartbeat process
	heartbeatInterruptChannel chan bool
}

// Gets the URL of the websocket endpoint
func (c *TokenIssuerClient) getWebsocketUrl() string {
	path := c.Config.WebsocketPath

	if path == "" {
		path = "/ws"
	}

	u := strings.TrimSuffix(c.Config.ServerUrl, "/") + path

	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}

	if strings.HasPrefix(u, "http://") {
		return "ws://" + strings.TrimPrefix(u, "http://")
	}

	return u
}

// Opens a websocket session with the issuer
func (c *TokenIssuerClient) Dial(ctx context.Context) (*TokenSession, error) {
	socket, _, err := websocket.DefaultDialer.DialContext(ctx, c.getWebsocketUrl(), nil)

	if err != nil {
		return nil, err
	}

	session := &TokenSession{
		mu:                        &sync.Mutex{},
		client:                    c,
		socket:                    socket,
		closed:                    false,
		pending:                   make(map[string]chan *WebsocketProtocolMessage),
		heartbeatInterruptChannel: make(chan bool, 1),
	}

	go session.run()
	go session.sendHeartbeatMessages()

	return session, nil
}

// Checks if the session is closed
func (session *TokenSession) IsClosed() bool {
	session.mu.Lock()
	defer session.mu.Unlock()

	return session.closed
}

// Reads incoming messages
func (session *TokenSession) run() {
	defer session.Close()

	for !session.IsClosed() {
		err := session.socket.SetReadDeadline(time.Now().Add(heartbeat_msg_period_seconds * 2 * time.Second))

		if err != nil {
			return
		}

		session.socket.SetReadLimit(text_msg_read_limit)

		mt, message, err := session.socket.ReadMessage()

		if err != nil {
			return
		}

		if mt != websocket.TextMessage {
			continue
		}

		parsedMessage := ParseWebsocketProtocolMessage(string(message))

		switch parsedMessage.MessageType {
		case "TOKENS", "E":
			session.dispatch(parsedMessage)
		}
	}
}

// Delivers a reply to the pending request
func (session *TokenSession) dispatch(msg *WebsocketProtocolMessage) {
	session.mu.Lock()
	defer session.mu.Unlock()

	ch := session.pending[msg.GetParameter("request_id")]

	if ch == nil {
		return
	}

	delete(session.pending, msg.GetParameter("request_id"))

	ch <- msg
}

// Sends heartbeat messages periodically
func (session *TokenSession) sendHeartbeatMessages() {
	heartbeatMessage := WebsocketProtocolMessage{
		MessageType: "H",
	}

	for {
		select {
		case <-time.After(time.Duration(heartbeat_msg_period_seconds) * time.Second):
			session.sendMessage(&heartbeatMessage)
		case <-session.heartbeatInterruptChannel:
			return
		}
	}
}

// Sends a message
func (session *TokenSession) sendMessage(msg *WebsocketProtocolMessage) error {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.closed {
		return ErrSessionClosed
	}

	return session.socket.WriteMessage(websocket.TextMessage, []byte(msg.Serialize()))
}

// Removes a pending request
func (session *TokenSession) cancelRequest(requestId string) {
	session.mu.Lock()
	defer session.mu.Unlock()

	delete(session.pending, requestId)
}

// Requests a pair of tokens through the session
func (session *TokenSession) Issue(ctx context.Context, req TokenRequest) (*Tokens, error) {
	requestId := uuid.NewString()

	params := map[string]string{
		"channel":    req.ChannelName,
		"uid":        fmt.Sprint(req.Uid),
		"request_id": requestId,
	}

	if req.UserRole != "" {
		params["role"] = req.UserRole
	}

	if req.ExpireTime != 0 {
		params["expire"] = fmt.Sprint(req.ExpireTime)
	}

	if session.client.Config.AuthSecret != "" {
		authToken, err := signAuthToken(session.client.Config.AuthSecret, authActionIssue, req.ChannelName)

		if err != nil {
			return nil, fmt.Errorf("could not sign the authentication token: %w", err)
		}

		params["auth"] = authToken
	}

	replyChan := make(chan *WebsocketProtocolMessage, 1)

	session.mu.Lock()

	if session.closed {
		session.mu.Unlock()
		return nil, ErrSessionClosed
	}

	session.pending[requestId] = replyChan

	session.mu.Unlock()

	err := session.sendMessage(&WebsocketProtocolMessage{
		MessageType: "ISSUE",
		Parameters:  params,
	})

	if err != nil {
		session.cancelRequest(requestId)
		return nil, err
	}

	timeout := session.client.Config.RequestTimeout

	if timeout == 0 {
		timeout = 10 * time.Second
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-replyChan:
		if !ok {
			return nil, ErrSessionClosed
		}

		return parseTokensMessage(reply)
	case <-timer.C:
		session.cancelRequest(requestId)
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		session.cancelRequest(requestId)
		return nil, ctx.Err()
	}
}

// Reads the tokens from a reply message
func parseTokensMessage(msg *WebsocketProtocolMessage) (*Tokens, error) {
	if msg.MessageType == "E" {
		return nil, &IssuerError{
			Code:    msg.GetParameter("code"),
			Message: msg.GetParameter("message"),
		}
	}

	uid, err := strconv.ParseUint(msg.GetParameter("uid"), 10, 32)

	if err != nil {
		return nil, fmt.Errorf("invalid uid in the issuer reply: %w", err)
	}

	expire, err := strconv.ParseUint(msg.GetParameter("expire"), 10, 32)

	if err != nil {
		return nil, fmt.Errorf("invalid expire in the issuer reply: %w", err)
	}

	return &Tokens{
		RtcToken:    msg.GetParameter("rtc"),
		RtmToken:    msg.GetParameter("rtm"),
		ChannelName: msg.GetParameter("channel"),
		Uid:         uint32(uid),
		AppId:       msg.GetParameter("app_id"),
		ExpireTime:  uint32(expire),
		Role:        msg.GetParameter("role"),
	}, nil
}

// Ends the session
// This sends the CLOSE message and terminates the connection
func (session *TokenSession) Close() {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.closed {
		return
	}

	closeMessage := WebsocketProtocolMessage{
		MessageType: "CLOSE",
	}

	session.socket.WriteMessage(websocket.TextMessage, []byte(closeMessage.Serialize()))
	session.socket.Close()

	session.closed = true

	for id, ch := range session.pending {
		close(ch)
		delete(session.pending, id)
	}

	// Interrupt heartbeat
	session.heartbeatInterruptChannel <- true
}

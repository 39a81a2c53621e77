// Websocket message logic

package main

import (
	"net/url"
	"sort"
	"strings"
)

// Message types of the websocket protocol
const (
	MSG_HEARTBEAT = "H"
	MSG_ISSUE     = "ISSUE"
	MSG_TOKENS    = "TOKENS"
	MSG_ERROR     = "E"
	MSG_CLOSE     = "CLOSE"
)

// Websocket protocol message
// Text format: TYPE:param1=value1&param2=value2
type WebsocketProtocolMessage struct {
	// Message type
	MessageType string

	// Message parameters
	Parameters map[string]string
}

// Gets the parameter value
func (msg *WebsocketProtocolMessage) GetParameter(param string) string {
	if msg.Parameters == nil {
		return ""
	}

	return msg.Parameters[param]
}

// Checks if the message has a parameter
func (msg *WebsocketProtocolMessage) HasParameter(param string) bool {
	if msg.Parameters == nil {
		return false
	}

	_, ok := msg.Parameters[param]

	return ok
}

// Serializes message to string (to be sent)
// Parameters are sorted by name
func (msg *WebsocketProtocolMessage) Serialize() string {
	if len(msg.Parameters) == 0 {
		return msg.MessageType
	}

	keys := make([]string, 0, len(msg.Parameters))

	for k := range msg.Parameters {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder

	b.WriteString(msg.MessageType)
	b.WriteByte(':')

	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}

		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(msg.Parameters[k]))
	}

	return b.String()
}

// Parses websocket protocol message from string
func ParseWebsocketProtocolMessage(str string) *WebsocketProtocolMessage {
	colonIndex := strings.IndexRune(str, ':')

	if colonIndex < 0 || colonIndex >= len(str)-1 {
		return &WebsocketProtocolMessage{
			MessageType: strings.ToUpper(strings.TrimSuffix(str, ":")),
		}
	}

	msgType := strings.ToUpper(str[0:colonIndex])
	msgParams := str[colonIndex+1:]

	q, err := url.ParseQuery(msgParams)

	if err != nil {
		return &WebsocketProtocolMessage{
			MessageType: msgType,
		}
	}

	params := make(map[string]string)

	for k, v := range q {
		params[k] = strings.Join(v, "")
	}

	return &WebsocketProtocolMessage{
		MessageType: msgType,
		Parameters:  params,
	}
}

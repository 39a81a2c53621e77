// Websocket protocol messages

package client

import (
	"net/url"
	"sort"
	"strings"
)

// Websocket protocol message
type WebsocketProtocolMessage struct {
	// Message type
	MessageType string

	// Message parameters
	Parameters map[string]string
}

// Gets the value of a parameter, or an empty string
func (msg *WebsocketProtocolMessage) GetParameter(param string) string {
	if msg.Parameters == nil {
		return ""
	}

	return msg.Parameters[param]
}

// Serializes message to string
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
	b.WriteString(":")

	for i, k := range keys {
		if i > 0 {
			b.WriteString("&")
		}

		b.WriteString(url.QueryEscape(k))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(msg.Parameters[k]))
	}

	return b.String()
}

// Parses websocket protocol message
func ParseWebsocketProtocolMessage(str string) *WebsocketProtocolMessage {
	msgType, paramsStr, _ := strings.Cut(str, ":")

	msg := WebsocketProtocolMessage{
		MessageType: strings.ToUpper(msgType),
		Parameters:  make(map[string]string),
	}

	values, err := url.ParseQuery(paramsStr)

	if err != nil {
		return &msg
	}

	for k, v := range values {
		if len(v) > 0 {
			msg.Parameters[k] = v[0]
		}
	}

	return &msg
}

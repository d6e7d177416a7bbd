// Package web serves the browser chat page and multiplexes one
// duplex websocket channel per session.
package web

// Inbound envelope types, sent by the client.
const (
	TypeMessage             = "message"
	TypeElicitationResponse = "elicitation_response"
	TypeReset               = "reset"
)

// Outbound envelope types, sent by the server.
const (
	TypeSystem      = "system"
	TypeUser        = "user"
	TypeAssistant   = "assistant"
	TypeThinking    = "thinking"
	TypeElicitation = "elicitation"
	TypeError       = "error"
	TypeToolLog     = "tool_log"
)

// Envelope is the unit of exchange on the channel, in both directions.
type Envelope struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

package gateway

import "encoding/json"

// ProtocolVersion is the only wire protocol this gateway speaks.
const ProtocolVersion = 1

// maxPayload caps a single inbound frame. Uploads arrive base64-encoded, so
// it leaves room for the attachment limit plus encoding overhead.
const maxPayload = 4 << 20

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Events pushed by the server.
const (
	EventConnectChallenge = "connect.challenge"
	EventChatDelta        = "chat.delta"
	EventDispatchProgress = "dispatch.progress"
	EventPersonaChanged   = "persona.changed"
)

var serverEvents = []string{EventConnectChallenge, EventChatDelta, EventDispatchProgress, EventPersonaChanged}

// Error codes carried in ErrorShape.Code.
const (
	CodeProtocol        = "protocol_error"
	CodeUnauthorized    = "unauthorized"
	CodeMethodNotFound  = "method_not_found"
	CodeInvalidParams   = "invalid_params"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeUnavailable     = "unavailable"
	CodeNoActiveAgents  = "no_active_agents"
	CodeAgentError      = "agent_error"
	CodeTooLarge        = "too_large"
	CodeUnsupportedType = "unsupported_type"
	CodeSyncError       = "sync_error"
	CodeInternal        = "internal"
)

// Frame is the envelope of every WebSocket message. Type selects which of
// the remaining fields are meaningful.
type Frame struct {
	Type string `json:"type"`

	// req
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// res
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	// event
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectParams open a session. A client that sets MaxProtocol must include
// ProtocolVersion in [MinProtocol, MaxProtocol].
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol,omitempty"`
	MaxProtocol int          `json:"maxProtocol,omitempty"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

func (p ConnectParams) supportsProtocol() bool {
	if p.MaxProtocol == 0 {
		return true
	}
	return p.MinProtocol <= ProtocolVersion && ProtocolVersion <= p.MaxProtocol
}

// ClientInfo describes the app on the other end: the web UI, a phone, the CLI.
type ClientInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// ConnectAuth carries the shared secret.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol   int           `json:"protocol"`
	Server     ServerInfo    `json:"server"`
	Assistant  AssistantInfo `json:"assistant"`
	Features   Features      `json:"features"`
	MaxPayload int           `json:"maxPayload"`
}

// ServerInfo identifies the gateway build and the session.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// AssistantInfo tells the client who it is talking to, so a voice client
// can listen for the right wake word.
type AssistantInfo struct {
	Name     string `json:"name"`
	WakeWord string `json:"wakeWord,omitempty"`
}

// Features lists the methods that can succeed on this gateway, the events it
// may push, and which backing services are wired.
type Features struct {
	Methods  []string        `json:"methods"`
	Events   []string        `json:"events"`
	Services map[string]bool `json:"services"`
}

// ChatDelta is the payload of a chat.delta event.
type ChatDelta struct {
	RequestID string `json:"requestId"`
	Content   string `json:"content"`
}

// DispatchProgress is the payload of a dispatch.progress event.
type DispatchProgress struct {
	RequestID string `json:"requestId"`
	Percent   int    `json:"percent"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse creates a failed response frame.
func NewErrorResponse(id, code, message string) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &ErrorShape{Code: code, Message: message}}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

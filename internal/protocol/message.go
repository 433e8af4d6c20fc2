package protocol

// Message type tags.
const (
	TypePong        = "pong"
	TypeAuthAck     = "auth_ok"
	TypeAuthReject  = "auth_error"
	TypeErrorNotice = "error"
)

// Message is a decoded server message.
type Message interface {
	// MessageType returns the wire tag the message arrived with.
	MessageType() string
}

// Pong answers a Ping.
type Pong struct {
	Seq uint64 `json:"seq"`
}

func (Pong) MessageType() string { return TypePong }

// AuthAck accepts the session token.
type AuthAck struct {
	SessionID string `json:"session_id,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
}

func (AuthAck) MessageType() string { return TypeAuthAck }

// AuthReject refuses the session token.
type AuthReject struct {
	Reason string `json:"reason,omitempty"`
}

func (AuthReject) MessageType() string { return TypeAuthReject }

// ErrorNotice is a non-fatal error reported by the server.
type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorNotice) MessageType() string { return TypeErrorNotice }

// ServerEvent is any application message the core does not interpret
// (world updates, chat, inventory changes). Type is the wire tag.
type ServerEvent struct {
	Type    string
	Payload map[string]any
}

func (e ServerEvent) MessageType() string { return e.Type }

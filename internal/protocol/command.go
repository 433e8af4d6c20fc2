package protocol

import (
	"errors"
	"fmt"
)

// Command type tags.
const (
	TypeMoveBy     = "move_by"
	TypeMoveTo     = "move_to"
	TypeAct        = "act"
	TypeUseItem    = "use_item"
	TypeDropItem   = "drop_item"
	TypePickUpItem = "pick_up_item"
	TypeCustom     = "custom"
	TypeAuth       = "auth"
	TypePing       = "ping"
)

// ErrInvalidCommand is returned when a command fails validation before encoding.
var ErrInvalidCommand = errors.New("invalid command")

// Command is an outgoing client command.
type Command interface {
	// CommandType returns the wire tag for the command.
	CommandType() string
}

// validator is implemented by commands that check their own fields.
type validator interface {
	Validate() error
}

// MoveBy moves the player by a relative offset.
type MoveBy struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

func (MoveBy) CommandType() string { return TypeMoveBy }

// Validate rejects a zero offset.
func (m MoveBy) Validate() error {
	if m.DX == 0 && m.DY == 0 {
		return fmt.Errorf("%w: move_by with zero offset", ErrInvalidCommand)
	}
	return nil
}

// MoveTo moves the player to an absolute tile position.
type MoveTo struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (MoveTo) CommandType() string { return TypeMoveTo }

// Act performs an action on a target entity (attack, talk, open, ...).
type Act struct {
	TargetID string `json:"target_id"`
	Action   string `json:"action"`
}

func (Act) CommandType() string { return TypeAct }

func (a Act) Validate() error {
	if a.TargetID == "" {
		return fmt.Errorf("%w: act requires target_id", ErrInvalidCommand)
	}
	if a.Action == "" {
		return fmt.Errorf("%w: act requires action", ErrInvalidCommand)
	}
	return nil
}

// UseItem uses an inventory item.
type UseItem struct {
	ItemID string `json:"item_id"`
}

func (UseItem) CommandType() string { return TypeUseItem }

func (u UseItem) Validate() error { return requireItem(TypeUseItem, u.ItemID) }

// DropItem drops an inventory item on the ground.
type DropItem struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity,omitempty"`
}

func (DropItem) CommandType() string { return TypeDropItem }

func (d DropItem) Validate() error {
	if d.Quantity < 0 {
		return fmt.Errorf("%w: drop_item quantity must be >= 0", ErrInvalidCommand)
	}
	return requireItem(TypeDropItem, d.ItemID)
}

// PickUpItem picks up an item lying on the ground.
type PickUpItem struct {
	ItemID string `json:"item_id"`
}

func (PickUpItem) CommandType() string { return TypePickUpItem }

func (p PickUpItem) Validate() error { return requireItem(TypePickUpItem, p.ItemID) }

// Custom carries a free-form payload under an application-defined kind.
type Custom struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (Custom) CommandType() string { return TypeCustom }

func (c Custom) Validate() error {
	if c.Kind == "" {
		return fmt.Errorf("%w: custom requires kind", ErrInvalidCommand)
	}
	return nil
}

// Auth presents a session token to the server.
type Auth struct {
	Token string `json:"token"`
}

func (Auth) CommandType() string { return TypeAuth }

// Ping is a heartbeat probe. The server echoes Seq in a Pong.
type Ping struct {
	Seq    uint64 `json:"seq"`
	SentAt int64  `json:"sent_at"` // Unix milliseconds
}

func (Ping) CommandType() string { return TypePing }

// IsControl reports whether cmd belongs to the connection core rather than
// the application (auth and heartbeat traffic).
func IsControl(cmd Command) bool {
	switch cmd.(type) {
	case Auth, *Auth, Ping, *Ping:
		return true
	}
	return false
}

func requireItem(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s requires item_id", ErrInvalidCommand, kind)
	}
	return nil
}

// Validate checks cmd for missing or out-of-range fields.
func Validate(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if v, ok := cmd.(validator); ok {
		return v.Validate()
	}
	return nil
}

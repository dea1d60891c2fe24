package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/jellydator/validation"

	"keybridge/internal/domain"
)

// Command kinds read from the caller.
const (
	CmdConnect = "connect"
	CmdSend    = "send"
	CmdTrust   = "trust"
	CmdPing    = "ping"
)

// Event kinds written to the caller.
const (
	EventConnected = "connected"
	EventMessage   = "message"
	EventError     = "error"
	EventPong      = "pong"
)

var (
	// ErrMalformedCommand is returned by ParseCommand for lines that are not a JSON object.
	ErrMalformedCommand = fmt.Errorf("%w: invalid command", domain.ErrProtocol)

	// ErrUnknownCommand is returned by Dispatch for an unrecognised cmd value.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", domain.ErrProtocol)

	// ErrMissingField is returned when a command lacks a field its kind requires.
	ErrMissingField = fmt.Errorf("%w: missing field", domain.ErrValidation)
)

// Command is one line from the caller. Only the fields of its kind are set.
type Command struct {
	Cmd      string `json:"cmd"`
	Backup   string `json:"backup,omitempty"`
	Password string `json:"password,omitempty"`
	To       string `json:"to,omitempty"`
	Pubkey   string `json:"pubkey,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Event is one line to the caller.
type Event struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	From  string `json:"from,omitempty"`
	Nick  string `json:"nick,omitempty"`
	Time  string `json:"time,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// ParseCommand decodes a command line. Unknown cmd values are accepted here
// and rejected by the dispatcher.
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return &cmd, nil
}

// Validate checks that the fields required by the command kind are present.
func (c *Command) Validate() error {
	isConnect := c.Cmd == CmdConnect
	isSend := c.Cmd == CmdSend
	isTrust := c.Cmd == CmdTrust

	err := validation.ValidateStruct(c,
		validation.Field(&c.Cmd, validation.Required),
		validation.Field(&c.Backup, validation.When(isConnect, validation.Required)),
		validation.Field(&c.Password, validation.When(isConnect, validation.Required)),
		validation.Field(&c.To, validation.When(isSend || isTrust, validation.Required)),
		validation.Field(&c.Text, validation.When(isSend, validation.Required)),
		validation.Field(&c.Pubkey, validation.When(isTrust, validation.Required)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	return nil
}

func NewConnectedEvent(id string) *Event {
	return &Event{Event: EventConnected, ID: id}
}

// NewMessageEvent formats when as RFC 3339.
func NewMessageEvent(from, nick string, when time.Time, text string) *Event {
	return &Event{
		Event: EventMessage,
		From:  from,
		Nick:  nick,
		Time:  when.Format(time.RFC3339),
		Text:  text,
	}
}

func NewErrorEvent(err error) *Event {
	return &Event{Event: EventError, Error: err.Error()}
}

func NewPongEvent() *Event {
	return &Event{Event: EventPong}
}

// ToJSON serialises the event without a trailing newline.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

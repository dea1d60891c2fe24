package relay

import (
	"fmt"

	"keybridge/internal/domain"
)

// Frame types.
const (
	FrameChallenge = "challenge"
	FrameLogin     = "login"
	FrameReady     = "ready"
	FrameMessage   = "message"
	FrameError     = "error"
)

// ErrBadFrame is returned for frames that are missing fields or carry the
// wrong type for the protocol step.
var ErrBadFrame = fmt.Errorf("%w: bad relay frame", domain.ErrProtocol)

// Frame is one websocket message. Only the fields of its type are set.
type Frame struct {
	Type string `json:"type"`

	ServerKey string `json:"server_key,omitempty"`
	Challenge string `json:"challenge,omitempty"`

	ID        string `json:"id,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
	To        string `json:"to,omitempty"`
	From      string `json:"from,omitempty"`
	Nick      string `json:"nick,omitempty"`
	Time      string `json:"time,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	Box       string `json:"box,omitempty"`

	Reason    string `json:"reason,omitempty"`
	Reconnect bool   `json:"reconnect,omitempty"`
}

// DirectoryEntry is the body of GET /identity/{id}.
type DirectoryEntry struct {
	Identity  string `json:"identity"`
	PublicKey string `json:"publicKey"`
}

func expect(f *Frame, typ string) error {
	if f.Type == FrameError {
		return fmt.Errorf("%w: relay refused: %s", domain.ErrConnectivity, f.Reason)
	}
	if f.Type != typ {
		return fmt.Errorf("%w: want %q, got %q", ErrBadFrame, typ, f.Type)
	}
	return nil
}

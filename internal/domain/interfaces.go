package domain

import (
	"context"
	"time"
)

// Handler receives callbacks from a live network connection. Nil fields are
// skipped. Callbacks may run on the connection's reader goroutine and must not
// block for long.
type Handler struct {
	// Message delivers a decrypted text message from a trusted contact.
	Message func(from, nick string, when time.Time, text string)
	// Spam reports a message from a contact that is not trusted.
	Spam func(from, nick string, when time.Time)
	// Alert reports a server notice or an undecryptable message.
	Alert func(reason string)
	// Error reports a transport error; reconnect hints that a new connection may succeed.
	Error func(reason string, reconnect bool)
	// Closed reports that the connection has gone away.
	Closed func()
}

// Identity is a loaded account: its own id, key pair and trusted contacts.
type Identity interface {
	Self() string
	PublicKey() PublicKey
	SecretKey() SecretKey
	// Trust records pubkey (hex or base64) for id. It returns ErrAlreadyTrusted
	// when the same key is already recorded.
	Trust(id, pubkey string) error
	Contact(id string) (PublicKey, bool)
}

// Conn is a live connection to the messaging network.
type Conn interface {
	SendText(ctx context.Context, to, text string) error
	Close() error
}

// Network opens connections for identities restored from a secure backup.
type Network interface {
	Identify(backup, password string) (Identity, error)
	Connect(ctx context.Context, id Identity, h *Handler) (Conn, error)
}

// ContactStore persists an identity's trusted contacts.
type ContactStore interface {
	SaveContacts(id, password string, contacts map[string]PublicKey) error
	LoadContacts(id, password string) (map[string]PublicKey, error)
}

// PublicKeyResolver looks up a peer's public key.
type PublicKeyResolver interface {
	LookupPublicKey(ctx context.Context, id string) (PublicKey, error)
}

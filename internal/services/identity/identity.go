package identity

import (
	"encoding/base64"
	"fmt"
	"maps"
	"strings"
	"sync"

	"keybridge/internal/codec"
	"keybridge/internal/crypto"
	"keybridge/internal/domain"
)

var (
	// ErrKeyMismatch is returned by Trust when the contact is already trusted
	// with a different key.
	ErrKeyMismatch = fmt.Errorf("%w: contact already trusted with a different key", domain.ErrValidation)

	// ErrInvalidPublicKey is returned when a trusted key is neither 64 hex
	// characters nor base64 of 32 bytes.
	ErrInvalidPublicKey = fmt.Errorf("%w: invalid public key", domain.ErrValidation)
)

// Identity is a restored account and its trusted contacts.
type Identity struct {
	id   string
	keys domain.KeyPair

	mu       sync.RWMutex
	contacts map[string]domain.PublicKey

	store    domain.ContactStore
	password string
}

// newIdentity derives the public key and starts with an empty contact list.
func newIdentity(id string, secret domain.SecretKey) *Identity {
	return &Identity{
		id:       id,
		keys:     domain.KeyPair{Public: crypto.DerivePublicKey(secret), Secret: secret},
		contacts: make(map[string]domain.PublicKey),
	}
}

func (i *Identity) Self() string                { return i.id }
func (i *Identity) PublicKey() domain.PublicKey { return i.keys.Public }
func (i *Identity) SecretKey() domain.SecretKey { return i.keys.Secret }

// Contact returns the trusted key for id.
func (i *Identity) Contact(id string) (domain.PublicKey, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	k, ok := i.contacts[strings.ToUpper(strings.TrimSpace(id))]
	return k, ok
}

// Contacts returns a copy of the trust list.
func (i *Identity) Contacts() map[string]domain.PublicKey {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return maps.Clone(i.contacts)
}

// Trust records pubkey for id and persists the list when a store is attached.
func (i *Identity) Trust(id, pubkey string) error {
	id, err := NormalizeID(id)
	if err != nil {
		return err
	}
	key, err := ParsePublicKey(pubkey)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if existing, ok := i.contacts[id]; ok {
		if existing == key {
			return domain.ErrAlreadyTrusted
		}
		return fmt.Errorf("%w: %s", ErrKeyMismatch, id)
	}
	i.contacts[id] = key
	if i.store == nil {
		return nil
	}
	if err := i.store.SaveContacts(i.id, i.password, i.contacts); err != nil {
		delete(i.contacts, id)
		return fmt.Errorf("save contacts: %w", err)
	}
	return nil
}

// ParsePublicKey accepts a key as 64 hex characters or standard base64.
func ParsePublicKey(s string) (domain.PublicKey, error) {
	s = strings.TrimSpace(s)
	if len(s) == 2*domain.KeySize {
		b, err := codec.DecodeHexFixed(s, domain.KeySize)
		if err != nil {
			return domain.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return domain.MustPublicKey(b), nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != domain.KeySize {
		return domain.PublicKey{}, ErrInvalidPublicKey
	}
	return domain.MustPublicKey(b), nil
}

// Compile-time assertion that Identity implements domain.Identity.
var _ domain.Identity = (*Identity)(nil)

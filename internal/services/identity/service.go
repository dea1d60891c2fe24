package identity

import (
	"fmt"

	"keybridge/internal/crypto"
	"keybridge/internal/domain"
)

// Service restores and creates identities, attaching the contact store.
type Service struct {
	store domain.ContactStore
}

// New returns an identity service. A nil store keeps contacts in memory only.
func New(s domain.ContactStore) *Service { return &Service{store: s} }

// Restore opens backup with password and loads the identity's saved contacts.
func (s *Service) Restore(backup, password string) (*Identity, error) {
	id, secret, err := Decode(backup, password)
	if err != nil {
		return nil, err
	}
	ident := s.attach(newIdentity(id, secret), password)
	if s.store == nil {
		return ident, nil
	}
	contacts, err := s.store.LoadContacts(id, password)
	if err != nil {
		return nil, fmt.Errorf("load contacts for %s: %w", id, err)
	}
	for k, v := range contacts {
		ident.contacts[k] = v
	}
	return ident, nil
}

// Generate creates a fresh identity and returns it with its backup string.
func (s *Service) Generate(password string) (*Identity, string, error) {
	if len(password) < minPasswordLength {
		return nil, "", ErrWeakPassword
	}
	id, err := NewID()
	if err != nil {
		return nil, "", err
	}
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, "", err
	}
	backup, err := Encode(id, kp.Secret, password)
	if err != nil {
		return nil, "", err
	}
	return s.attach(newIdentity(id, kp.Secret), password), backup, nil
}

func (s *Service) attach(ident *Identity, password string) *Identity {
	if s.store != nil {
		ident.store = s.store
		ident.password = password
	}
	return ident
}

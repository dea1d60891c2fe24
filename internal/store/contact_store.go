package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"keybridge/internal/codec"
	"keybridge/internal/crypto"
	"keybridge/internal/domain"
)

// ContactFileStore keeps trusted contacts in <dir>/contacts-<ID>.enc.
type ContactFileStore struct {
	dir string
	kdf scryptParams
	mu  sync.Mutex
}

// NewContactFileStore returns a store rooted at dir.
func NewContactFileStore(dir string) *ContactFileStore {
	return &ContactFileStore{dir: dir, kdf: defaultScrypt()}
}

// contactsFile is the plaintext sealed inside the envelope.
type contactsFile struct {
	Identity string            `json:"identity"`
	Contacts map[string]string `json:"contacts"` // id -> hex public key
}

func (s *ContactFileStore) path(id string) string {
	return filepath.Join(s.dir, "contacts-"+strings.ToUpper(id)+".enc")
}

// SaveContacts replaces the stored contact list for id.
func (s *ContactFileStore) SaveContacts(id, password string, contacts map[string]domain.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := contactsFile{Identity: strings.ToUpper(id), Contacts: make(map[string]string, len(contacts))}
	for peer, key := range contacts {
		f.Contacts[peer] = codec.EncodeHex(key[:])
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	defer crypto.Wipe(raw)
	sealed, err := seal(password, raw, s.kdf)
	if err != nil {
		return fmt.Errorf("seal contacts: %w", err)
	}
	return writeFile(s.path(id), sealed, 0o600)
}

// LoadContacts returns the stored contacts for id, or an empty map when none
// have been saved yet.
func (s *ContactFileStore) LoadContacts(id, password string) (map[string]domain.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.PublicKey)
	b, err := readFile(s.path(id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return out, nil
	}
	raw, err := open(password, b)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(raw)

	var f contactsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: contacts file: %v", domain.ErrValidation, err)
	}
	if !strings.EqualFold(f.Identity, id) {
		return nil, fmt.Errorf("%w: contacts file belongs to %s", domain.ErrValidation, f.Identity)
	}
	for peer, hexKey := range f.Contacts {
		kb, err := codec.DecodeHexFixed(hexKey, domain.KeySize)
		if err != nil {
			return nil, fmt.Errorf("contact %s: %w", peer, err)
		}
		out[peer] = domain.MustPublicKey(kb)
	}
	return out, nil
}

// Compile-time assertion that ContactFileStore implements domain.ContactStore.
var _ domain.ContactStore = (*ContactFileStore)(nil)

package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"keybridge/internal/domain"
)

// fastStore uses cheap scrypt parameters so tests stay quick.
func fastStore(t *testing.T) *ContactFileStore {
	t.Helper()
	s := NewContactFileStore(t.TempDir())
	s.kdf = scryptParams{N: 1 << 10, R: 8, P: 1}
	return s
}

func TestContacts_SaveLoad_OK(t *testing.T) {
	s := fastStore(t)
	in := map[string]domain.PublicKey{
		"ALICE123": {1, 2, 3},
		"BOB45678": {9},
	}
	if err := s.SaveContacts("me000001", "pass", in); err != nil {
		t.Fatalf("save contacts: %v", err)
	}
	got, err := s.LoadContacts("ME000001", "pass")
	if err != nil {
		t.Fatalf("load contacts: %v", err)
	}
	if len(got) != 2 || got["ALICE123"] != in["ALICE123"] || got["BOB45678"] != in["BOB45678"] {
		t.Fatalf("mismatch after load: %v", got)
	}

	info, err := os.Stat(filepath.Join(s.dir, "contacts-ME000001.enc"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestContacts_Missing_IsEmpty(t *testing.T) {
	got, err := fastStore(t).LoadContacts("NOBODY00", "pass")
	if err != nil {
		t.Fatalf("load contacts: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty contacts, got %v", got)
	}
}

func TestContacts_WrongPassword_Fails(t *testing.T) {
	s := fastStore(t)
	if err := s.SaveContacts("ME000001", "correct", map[string]domain.PublicKey{"X0000001": {1}}); err != nil {
		t.Fatalf("save contacts: %v", err)
	}
	_, err := s.LoadContacts("ME000001", "wrong")
	if !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
}

func TestContacts_Tampered_Fails(t *testing.T) {
	s := fastStore(t)
	if err := s.SaveContacts("ME000001", "pw", map[string]domain.PublicKey{"X0000001": {1}}); err != nil {
		t.Fatalf("save contacts: %v", err)
	}
	path := s.path("ME000001")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(path, b[:len(b)/2], 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.LoadContacts("ME000001", "pw"); err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestContacts_Overwrite_LeavesNoTempFiles(t *testing.T) {
	s := fastStore(t)
	for i := 0; i < 3; i++ {
		c := map[string]domain.PublicKey{"X0000001": {byte(i)}}
		if err := s.SaveContacts("ME000001", "pw", c); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single contacts file, found %d entries", len(entries))
	}
	got, _ := s.LoadContacts("ME000001", "pw")
	if got["X0000001"] != (domain.PublicKey{2}) {
		t.Fatalf("last write did not win: %v", got["X0000001"])
	}
}

func TestEnvelope_RejectsNewerVersion(t *testing.T) {
	if _, err := open("pw", []byte(`{"v":99}`)); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

package identity

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/salsa20"

	"keybridge/internal/crypto"
	"keybridge/internal/domain"
)

const (
	// IDLength is the length of an identity string.
	IDLength = 8

	backupChars      = 80
	backupGroup      = 4
	saltSize         = 8
	checkSize        = 2
	pbkdf2Iterations = 100000
	plainSize        = IDLength + domain.KeySize + checkSize
	rawSize          = saltSize + plainSize

	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// minPasswordLength applies to backups created here; restoring accepts any
	// non-empty password.
	minPasswordLength = 8
)

var (
	// ErrBadBackup is returned when a backup string is not 80 base32 characters.
	ErrBadBackup = fmt.Errorf("%w: malformed identity backup", domain.ErrConfiguration)

	// ErrBadPassword is returned when the checksum of the decrypted backup fails.
	ErrBadPassword = fmt.Errorf("%w: wrong backup password", domain.ErrConfiguration)

	// ErrWeakPassword is returned by Encode and Generate for short passwords.
	ErrWeakPassword = fmt.Errorf(
		"%w: password must be at least %d characters", domain.ErrConfiguration, minPasswordLength,
	)

	// ErrInvalidID is returned for identity strings that are not 8 characters of A-Z, 0-9 or '*'.
	ErrInvalidID = fmt.Errorf("%w: invalid identity", domain.ErrValidation)
)

var zeroNonce [24]byte

// NormalizeID upper-cases and trims id and checks its shape.
func NormalizeID(id string) (string, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if len(id) != IDLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, r := range id {
		if r != '*' && !strings.ContainsRune(idAlphabet, r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return id, nil
}

// Decode opens a backup and returns the identity string and secret key.
func Decode(backup, password string) (string, domain.SecretKey, error) {
	if password == "" {
		return "", domain.SecretKey{}, ErrBadPassword
	}
	clean := strings.ToUpper(strings.NewReplacer("-", "", " ", "", "\n", "").Replace(backup))
	if len(clean) != backupChars {
		return "", domain.SecretKey{}, ErrBadBackup
	}
	raw, err := base32.StdEncoding.DecodeString(clean)
	if err != nil || len(raw) != rawSize {
		return "", domain.SecretKey{}, ErrBadBackup
	}

	key := deriveKey(password, raw[:saltSize])
	defer crypto.Wipe(key[:])

	plain := make([]byte, plainSize)
	defer crypto.Wipe(plain)
	salsa20.XORKeyStream(plain, raw[saltSize:], zeroNonce[:], &key)

	sum := sha256.Sum256(plain[:IDLength+domain.KeySize])
	if !bytes.Equal(sum[:checkSize], plain[IDLength+domain.KeySize:]) {
		return "", domain.SecretKey{}, ErrBadPassword
	}
	id, err := NormalizeID(string(plain[:IDLength]))
	if err != nil {
		return "", domain.SecretKey{}, ErrBadPassword
	}
	return id, domain.MustSecretKey(plain[IDLength : IDLength+domain.KeySize]), nil
}

// Encode produces a backup of id and secret under password.
func Encode(id string, secret domain.SecretKey, password string) (string, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return "", err
	}
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}

	raw := make([]byte, rawSize)
	if _, err := rand.Read(raw[:saltSize]); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	plain := make([]byte, 0, plainSize)
	plain = append(plain, id...)
	plain = append(plain, secret[:]...)
	sum := sha256.Sum256(plain)
	plain = append(plain, sum[:checkSize]...)
	defer crypto.Wipe(plain)

	key := deriveKey(password, raw[:saltSize])
	defer crypto.Wipe(key[:])
	salsa20.XORKeyStream(raw[saltSize:], plain, zeroNonce[:], &key)

	return group(base32.StdEncoding.EncodeToString(raw)), nil
}

// NewID returns a random identity string.
func NewID() (string, error) {
	return newID(rand.Reader)
}

// newID draws uniformly from idAlphabet, rejecting bytes at or above the
// largest multiple of its length.
func newID(r io.Reader) (string, error) {
	const limit = 256 - 256%len(idAlphabet)
	id := make([]byte, 0, IDLength)
	buf := make([]byte, IDLength)
	for len(id) < IDLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		for _, b := range buf {
			if int(b) < limit && len(id) < IDLength {
				id = append(id, idAlphabet[int(b)%len(idAlphabet)])
			}
		}
	}
	return string(id), nil
}

func deriveKey(password string, salt []byte) [32]byte {
	var key [32]byte
	copy(key[:], pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, len(key), sha256.New))
	return key
}

func group(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i += backupGroup {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(s[i : i+backupGroup])
	}
	return b.String()
}

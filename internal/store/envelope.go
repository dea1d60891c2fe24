package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"keybridge/internal/crypto"
	"keybridge/internal/domain"
)

// sealedFormatVersion is the newest on-disk envelope version this build reads.
const sealedFormatVersion = 1

// ErrWrongPassword is returned when the password is incorrect or the file has
// been modified.
var ErrWrongPassword = fmt.Errorf("%w: wrong password or corrupted contacts file", domain.ErrAuthentication)

// envelope is the on-disk JSON structure holding the ciphertext and KDF parameters.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

type scryptParams struct{ N, R, P int }

// maxScryptN bounds the work a file can ask of open.
const maxScryptN = 1 << 20

func defaultScrypt() scryptParams { return scryptParams{N: 1 << 15, R: 8, P: 1} }

// seal derives a key from password and seals raw into a JSON envelope. The
// salt is bound as associated data.
func seal(password string, raw []byte, kdf scryptParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(password), salt[:], kdf.N, kdf.R, kdf.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	// A fresh salt gives a fresh key, so the zero nonce is never reused under one key.
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(envelope{
		V:      sealedFormatVersion,
		Salt:   salt[:],
		N:      kdf.N,
		R:      kdf.R,
		P:      kdf.P,
		Cipher: ct,
	})
}

// open decrypts an envelope produced by seal.
func open(password string, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongPassword, err)
	}
	if env.V > sealedFormatVersion {
		return nil, fmt.Errorf("%w: unsupported contacts file version %d", domain.ErrConfiguration, env.V)
	}
	if env.N > maxScryptN || env.R*env.P > 1<<10 {
		return nil, fmt.Errorf("%w: scrypt parameters out of range", ErrWrongPassword)
	}

	key, err := scrypt.Key([]byte(password), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongPassword, err)
	}
	defer crypto.Wipe(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], env.Cipher, env.Salt)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return pt, nil
}

package crypto

import (
	"crypto/rand"
	"fmt"
	"runtime"

	"golang.org/x/crypto/curve25519"

	"keybridge/internal/domain"
)

// GenerateKeyPair returns a fresh Curve25519 key pair.
// The secret key is clamped per RFC 7748.
func GenerateKeyPair() (domain.KeyPair, error) {
	var kp domain.KeyPair
	if _, err := rand.Read(kp.Secret[:]); err != nil {
		return domain.KeyPair{}, fmt.Errorf("generate secret key: %w", err)
	}
	clamp(&kp.Secret)
	kp.Public = DerivePublicKey(kp.Secret)
	return kp, nil
}

// DerivePublicKey computes the public key belonging to sk.
func DerivePublicKey(sk domain.SecretKey) domain.PublicKey {
	var pub [32]byte
	s := [32]byte(sk)
	curve25519.ScalarBaseMult(&pub, &s)
	Wipe(s[:])
	return domain.PublicKey(pub)
}

// NewNonce returns 24 random bytes. Nonces are never derived from counters.
func NewNonce() (domain.Nonce, error) {
	var n domain.Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return domain.Nonce{}, fmt.Errorf("generate nonce: %w", err)
	}
	return n, nil
}

func clamp(k *domain.SecretKey) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}

// Wipe zeroes key material once it is no longer needed. Best effort: copies
// made by the runtime or callers are not reached.
//
//go:noinline
func Wipe(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

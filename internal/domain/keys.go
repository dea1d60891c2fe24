package domain

import (
	"encoding/hex"
	"fmt"
)

// Key and nonce sizes of the NaCl box construction.
const (
	KeySize   = 32
	NonceSize = 24
	TagSize   = 16
)

// ------------- Curve25519 -------------

// PublicKey is a Curve25519 public key.
type PublicKey [KeySize]byte

// SecretKey is a Curve25519 secret key. It never prints or serialises its bytes.
type SecretKey [KeySize]byte

func (k PublicKey) Slice() []byte { return k[:] }
func (k SecretKey) Slice() []byte { return k[:] }

// String returns the lowercase hex form of the key.
func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

// String hides the key material from fmt and loggers.
func (k SecretKey) String() string { return "[redacted]" }

// GoString hides the key material from %#v.
func (k SecretKey) GoString() string { return "domain.SecretKey{[redacted]}" }

// MarshalJSON refuses to emit secret key bytes.
func (k SecretKey) MarshalJSON() ([]byte, error) { return []byte(`"[redacted]"`), nil }

// MarshalText refuses to emit secret key bytes.
func (k SecretKey) MarshalText() ([]byte, error) { return []byte("[redacted]"), nil }

// KeyPair is a Curve25519 key pair.
type KeyPair struct {
	Public PublicKey
	Secret SecretKey
}

// Nonce is the 24-byte XSalsa20 nonce used once per box.
type Nonce [NonceSize]byte

func (n Nonce) Slice() []byte { return n[:] }

func MustPublicKey(b []byte) PublicKey {
	if len(b) != KeySize {
		panic(fmt.Errorf("public key: want %d bytes, got %d", KeySize, len(b)))
	}
	var out PublicKey
	copy(out[:], b)
	return out
}

func MustSecretKey(b []byte) SecretKey {
	if len(b) != KeySize {
		panic(fmt.Errorf("secret key: want %d bytes, got %d", KeySize, len(b)))
	}
	var out SecretKey
	copy(out[:], b)
	return out
}

// PublicKeyFromBytes copies b into a PublicKey, rejecting the wrong length.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != KeySize {
		return PublicKey{}, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrValidation, KeySize, len(b))
	}
	return MustPublicKey(b), nil
}

// SecretKeyFromBytes copies b into a SecretKey, rejecting the wrong length.
func SecretKeyFromBytes(b []byte) (SecretKey, error) {
	if len(b) != KeySize {
		return SecretKey{}, fmt.Errorf("%w: secret key must be %d bytes, got %d", ErrConfiguration, KeySize, len(b))
	}
	return MustSecretKey(b), nil
}

// NonceFromBytes copies b into a Nonce, rejecting the wrong length.
func NonceFromBytes(b []byte) (Nonce, error) {
	if len(b) != NonceSize {
		return Nonce{}, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrValidation, NonceSize, len(b))
	}
	var out Nonce
	copy(out[:], b)
	return out, nil
}

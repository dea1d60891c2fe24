package crypto_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"keybridge/internal/crypto"
	"keybridge/internal/domain"
)

func mustKeyPair(t *testing.T) domain.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func TestDerivePublicKey_MatchesGenerated(t *testing.T) {
	for i := 0; i < 16; i++ {
		kp := mustKeyPair(t)
		if got := crypto.DerivePublicKey(kp.Secret); got != kp.Public {
			t.Fatalf("DerivePublicKey = %x, want %x", got, kp.Public)
		}
	}
}

func TestNewNonce_Fresh(t *testing.T) {
	a, err := crypto.NewNonce()
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	b, err := crypto.NewNonce()
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	if a == b {
		t.Fatal("two nonces are equal")
	}
}

func TestEncryptDecrypt_Scenario(t *testing.T) {
	alice := mustKeyPair(t)
	bob := mustKeyPair(t)
	carol := mustKeyPair(t)

	env, err := crypto.EncryptText("Secret message", bob.Public, alice.Secret)
	if err != nil {
		t.Fatalf("EncryptText: %v", err)
	}
	if len(env.Box) != 32+domain.TagSize {
		t.Fatalf("box length = %d, want %d", len(env.Box), 32+domain.TagSize)
	}

	msg := crypto.Decrypt(env.Box, env.Nonce, alice.Public, bob.Secret)
	if msg == nil {
		t.Fatal("Decrypt returned nil for the intended recipient")
	}
	if msg.Type != domain.MessageTypeText || msg.Text != "Secret message" {
		t.Fatalf("got type %d text %q", msg.Type, msg.Text)
	}
	if string(msg.Raw) != "Secret message" {
		t.Fatalf("raw = %q", msg.Raw)
	}

	if crypto.Decrypt(env.Box, env.Nonce, alice.Public, carol.Secret) != nil {
		t.Fatal("Decrypt with an unrelated key must return nil")
	}

	tampered := append([]byte(nil), env.Box...)
	tampered[5] ^= 0xff
	if crypto.Decrypt(tampered, env.Nonce, alice.Public, bob.Secret) != nil {
		t.Fatal("Decrypt of a tampered box must return nil")
	}
}

func TestDecrypt_EveryBitFlipFails(t *testing.T) {
	alice := mustKeyPair(t)
	bob := mustKeyPair(t)
	env, err := crypto.EncryptText("hi", bob.Public, alice.Secret)
	if err != nil {
		t.Fatalf("EncryptText: %v", err)
	}
	for i := 0; i < len(env.Box)*8; i++ {
		flipped := append([]byte(nil), env.Box...)
		flipped[i/8] ^= 1 << (i % 8)
		if crypto.Decrypt(flipped, env.Nonce, alice.Public, bob.Secret) != nil {
			t.Fatalf("bit %d flip was accepted", i)
		}
	}
}

func TestEncryptText_RoundTripSizes(t *testing.T) {
	alice := mustKeyPair(t)
	bob := mustKeyPair(t)
	for _, n := range []int{0, 1, 30, 31, 254, 255, 256, 1000, crypto.MaxTextBytes} {
		text := strings.Repeat("x", n)
		env, err := crypto.EncryptText(text, bob.Public, alice.Secret)
		if err != nil {
			t.Fatalf("EncryptText(%d): %v", n, err)
		}
		if want := len(crypto.Pad(append([]byte{1}, text...))) + domain.TagSize; len(env.Box) != want {
			t.Fatalf("box length for %d = %d, want %d", n, len(env.Box), want)
		}
		msg := crypto.Decrypt(env.Box, env.Nonce, alice.Public, bob.Secret)
		if msg == nil || msg.Text != text {
			t.Fatalf("round trip failed for %d bytes", n)
		}
	}
}

func TestEncryptText_TooLarge(t *testing.T) {
	alice := mustKeyPair(t)
	bob := mustKeyPair(t)
	// Multi-byte runes count by their UTF-8 length.
	text := strings.Repeat("é", crypto.MaxTextBytes/2+1)
	_, err := crypto.EncryptText(text, bob.Public, alice.Secret)
	if !errors.Is(err, crypto.ErrMessageTooLarge) {
		t.Fatalf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestEncrypt_NonTextKeepsRaw(t *testing.T) {
	alice := mustKeyPair(t)
	bob := mustKeyPair(t)
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	env, err := crypto.Encrypt(0x80, payload, bob.Public, alice.Secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	msg := crypto.Decrypt(env.Box, env.Nonce, alice.Public, bob.Secret)
	if msg == nil {
		t.Fatal("Decrypt returned nil")
	}
	if msg.Type != 0x80 || msg.Text != "" || !bytes.Equal(msg.Raw, payload) {
		t.Fatalf("got %+v", msg)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	alice := mustKeyPair(t)
	bob := mustKeyPair(t)
	a, _ := crypto.EncryptText("same", bob.Public, alice.Secret)
	b, _ := crypto.EncryptText("same", bob.Public, alice.Secret)
	if a.Nonce == b.Nonce || bytes.Equal(a.Box, b.Box) {
		t.Fatal("two encryptions share a nonce or ciphertext")
	}
}

func TestSecretKey_NeverPrinted(t *testing.T) {
	kp := mustKeyPair(t)
	for _, s := range []string{kp.Secret.String(), kp.Secret.GoString()} {
		if !strings.Contains(s, "redacted") {
			t.Fatalf("secret key rendered as %q", s)
		}
	}
}

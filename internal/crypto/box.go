package crypto

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/nacl/box"

	"keybridge/internal/domain"
)

// MaxTextBytes is the largest UTF-8 text EncryptText accepts.
const MaxTextBytes = 3500

// ErrMessageTooLarge is returned when a text exceeds MaxTextBytes.
var ErrMessageTooLarge = fmt.Errorf("%w: message too large", domain.ErrValidation)

// EncryptText pads and seals a text message from sender to recipient.
// The box is the padded length plus the 16-byte authentication tag.
func EncryptText(text string, recipient domain.PublicKey, sender domain.SecretKey) (domain.Envelope, error) {
	if len(text) > MaxTextBytes {
		return domain.Envelope{}, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(text), MaxTextBytes)
	}
	return Encrypt(domain.MessageTypeText, []byte(text), recipient, sender)
}

// Encrypt seals [msgType][payload] with a fresh nonce.
func Encrypt(msgType byte, payload []byte, recipient domain.PublicKey, sender domain.SecretKey) (domain.Envelope, error) {
	nonce, err := NewNonce()
	if err != nil {
		return domain.Envelope{}, err
	}
	plain := make([]byte, 0, 1+len(payload))
	plain = append(plain, msgType)
	plain = append(plain, payload...)
	padded := Pad(plain)
	Wipe(plain)

	n := [24]byte(nonce)
	pub := [32]byte(recipient)
	sec := [32]byte(sender)
	sealed := box.Seal(nil, padded, &n, &pub, &sec)
	Wipe(sec[:])
	Wipe(padded)

	return domain.Envelope{Nonce: nonce, Box: sealed}, nil
}

// Decrypt opens a box from sender addressed to recipient. It returns nil when
// authentication fails, the padding is malformed or the payload is empty.
func Decrypt(sealed []byte, nonce domain.Nonce, sender domain.PublicKey, recipient domain.SecretKey) *domain.DecryptedMessage {
	n := [24]byte(nonce)
	pub := [32]byte(sender)
	sec := [32]byte(recipient)
	padded, ok := box.Open(nil, sealed, &n, &pub, &sec)
	Wipe(sec[:])
	if !ok {
		return nil
	}
	plain, err := Unpad(padded)
	if err != nil || len(plain) == 0 {
		return nil
	}

	msg := &domain.DecryptedMessage{Type: plain[0], Raw: plain[1:]}
	if msg.Type == domain.MessageTypeText {
		// Invalid sequences are kept in Raw; Text carries them replaced.
		if utf8.Valid(msg.Raw) {
			msg.Text = string(msg.Raw)
		} else {
			msg.Text = string([]rune(string(msg.Raw)))
		}
	}
	return msg
}

// Package codec holds the byte-level conversions shared by the wire formats:
// lowercase hex in both directions and strict UTF-8.
package codec

import (
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"keybridge/internal/domain"
)

var (
	// ErrInvalidHex is returned for odd-length input or non-hex characters.
	ErrInvalidHex = fmt.Errorf("%w: invalid hex", domain.ErrValidation)

	// ErrInvalidUTF8 is returned when bytes are not valid UTF-8.
	ErrInvalidUTF8 = fmt.Errorf("%w: invalid utf-8", domain.ErrValidation)
)

// EncodeHex returns the lowercase hex encoding of b.
func EncodeHex(b []byte) string { return hex.EncodeToString(b) }

// DecodeHex decodes s in either case.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return b, nil
}

// DecodeHexFixed decodes s and requires exactly n bytes.
func DecodeHexFixed(s string, n int) ([]byte, error) {
	if len(s) != 2*n {
		return nil, fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidHex, 2*n, len(s))
	}
	return DecodeHex(s)
}

// EncodeUTF8 returns the UTF-8 bytes of s.
func EncodeUTF8(s string) []byte { return []byte(s) }

// DecodeUTF8 returns b as a string, rejecting invalid sequences.
func DecodeUTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

package crypto

import (
	"crypto/subtle"
	"fmt"

	"keybridge/internal/domain"
)

const (
	// MinPaddedSize is the smallest padded message.
	MinPaddedSize = 32
	// PaddingBlockSize is the boundary padded messages of MinPaddedSize or more end on.
	PaddingBlockSize = 256
	// maxPadding is the largest padding length a single trailer byte can describe.
	maxPadding = 255
)

// ErrPadding is returned by Unpad for any malformed trailer.
var ErrPadding = fmt.Errorf("%w: invalid padding", domain.ErrValidation)

// Pad appends a trailer so the result is at least MinPaddedSize bytes long
// and, for inputs of MinPaddedSize or more, ends on a PaddingBlockSize
// boundary. Every trailer byte holds the trailer length, which is never zero.
//
// An input that is already an exact block multiple would need a 256-byte
// trailer; that length does not fit the trailer byte, so it is capped at 255
// and the result ends one byte short of the next boundary.
func Pad(msg []byte) []byte {
	return padTo(msg, MinPaddedSize, PaddingBlockSize)
}

func padTo(msg []byte, minSize, block int) []byte {
	var n int
	if len(msg) < minSize {
		n = minSize - len(msg)
	} else {
		n = block - len(msg)%block
	}
	if n > maxPadding {
		n = maxPadding
	}
	out := make([]byte, len(msg)+n)
	copy(out, msg)
	for i := len(msg); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// Unpad strips the trailer added by Pad.
func Unpad(padded []byte) ([]byte, error) {
	if len(padded) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrPadding)
	}
	n := int(padded[len(padded)-1])
	if n == 0 || n > len(padded) {
		return nil, fmt.Errorf("%w: trailer length %d for %d bytes", ErrPadding, n, len(padded))
	}
	var bad byte
	for _, b := range padded[len(padded)-n:] {
		bad |= b ^ byte(n)
	}
	if subtle.ConstantTimeByteEq(bad, 0) != 1 {
		return nil, fmt.Errorf("%w: inconsistent trailer", ErrPadding)
	}
	out := make([]byte, len(padded)-n)
	copy(out, padded)
	return out, nil
}

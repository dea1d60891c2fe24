package identity

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestNewIDRejectsBiasedBytes(t *testing.T) {
	src := bytes.NewReader([]byte{
		255, 252, 0, 35, 36, 71, 1, 251,
		253, 254, 2, 3, 9, 9, 9, 9,
	})
	id, err := newID(src)
	if err != nil {
		t.Fatalf("newID: %v", err)
	}
	if id != "A9A9B9CD" {
		t.Fatalf("got %q, want %q", id, "A9A9B9CD")
	}
	if _, err := NormalizeID(id); err != nil {
		t.Fatalf("generated id rejected: %v", err)
	}
}

func TestNewIDShortRead(t *testing.T) {
	_, err := newID(bytes.NewReader([]byte{252, 253, 254, 255, 0, 1, 2, 3}))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want EOF", err)
	}
}

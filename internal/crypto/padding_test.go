package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestPad_UnpadRoundTrip(t *testing.T) {
	for n := 0; n <= 3*PaddingBlockSize+1; n++ {
		msg := bytes.Repeat([]byte{0xa5}, n)
		padded := Pad(msg)
		if len(padded) < MinPaddedSize {
			t.Fatalf("len(Pad(%d bytes)) = %d, want >= %d", n, len(padded), MinPaddedSize)
		}
		got, err := Unpad(padded)
		if err != nil {
			t.Fatalf("Unpad(Pad(%d bytes)): %v", n, err)
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("round trip mismatch for %d bytes", n)
		}
	}
}

func TestPad_Sizes(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 32},
		{1, 32},
		{31, 32},
		{32, 256},
		{100, 256},
		{255, 256},
		{257, 512},
		{3501, 3584},
	}
	for _, c := range cases {
		if got := len(Pad(make([]byte, c.in))); got != c.want {
			t.Errorf("len(Pad(%d)) = %d, want %d", c.in, got, c.want)
		}
	}
	for n := MinPaddedSize; n < 4*PaddingBlockSize; n++ {
		if n%PaddingBlockSize == 0 {
			continue
		}
		if got := len(Pad(make([]byte, n))); got%PaddingBlockSize != 0 {
			t.Fatalf("len(Pad(%d)) = %d, not a block multiple", n, got)
		}
	}
}

func TestPad_TrailerIsSelfDescribing(t *testing.T) {
	padded := Pad([]byte("hello"))
	n := int(padded[len(padded)-1])
	if n != 27 {
		t.Fatalf("trailer length = %d, want 27", n)
	}
	for _, b := range padded[len(padded)-n:] {
		if int(b) != n {
			t.Fatalf("trailer byte %d, want %d", b, n)
		}
	}
}

func TestPad_ExactBlockMultipleIsCapped(t *testing.T) {
	// A full 256-byte trailer cannot be described by one byte.
	msg := bytes.Repeat([]byte{1}, PaddingBlockSize)
	padded := Pad(msg)
	if len(padded) != PaddingBlockSize+maxPadding {
		t.Fatalf("len = %d, want %d", len(padded), PaddingBlockSize+maxPadding)
	}
	if padded[len(padded)-1] != maxPadding {
		t.Fatalf("trailer = %d, want %d", padded[len(padded)-1], maxPadding)
	}
	got, err := Unpad(padded)
	if err != nil || !bytes.Equal(got, msg) {
		t.Fatalf("Unpad: %v", err)
	}
}

func TestPadTo_LargeBlockNeverOverflowsTrailer(t *testing.T) {
	// With a 1024-byte block the gap regularly exceeds one byte.
	for _, n := range []int{40, 500, 1023, 1024} {
		padded := padTo(make([]byte, n), MinPaddedSize, 1024)
		trailer := int(padded[len(padded)-1])
		if trailer == 0 || trailer > maxPadding {
			t.Fatalf("padTo(%d) trailer = %d", n, trailer)
		}
		if _, err := Unpad(padded); err != nil {
			t.Fatalf("Unpad(padTo(%d)): %v", n, err)
		}
	}
}

func TestUnpad_Rejects(t *testing.T) {
	good := Pad([]byte("payload"))

	zero := append([]byte(nil), good...)
	zero[len(zero)-1] = 0

	tooLong := []byte{1, 2, 9}

	inconsistent := append([]byte(nil), good...)
	inconsistent[len(inconsistent)-2] ^= 0x01

	cases := map[string][]byte{
		"empty":             nil,
		"zero length":       zero,
		"length > total":    tooLong,
		"inconsistent byte": inconsistent,
	}
	for name, in := range cases {
		if _, err := Unpad(in); !errors.Is(err, ErrPadding) {
			t.Errorf("%s: err = %v, want ErrPadding", name, err)
		}
	}
}

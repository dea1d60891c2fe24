package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeMAC returns the lowercase hex HMAC-SHA256 of the callback fields,
// keyed by the gateway secret. The fields are concatenated without
// delimiters; the upstream API defines the MAC this way.
func ComputeMAC(secret, from, to, messageID, date, nonce, box string) string {
	m := hmac.New(sha256.New, []byte(secret))
	for _, field := range []string{from, to, messageID, date, nonce, box} {
		m.Write([]byte(field))
	}
	return hex.EncodeToString(m.Sum(nil))
}

// VerifyMAC recomputes the MAC and compares it to mac ignoring case.
// A length mismatch is rejected immediately; equal lengths are compared in
// constant time.
func VerifyMAC(secret, from, to, messageID, date, nonce, box, mac string) bool {
	expected := ComputeMAC(secret, from, to, messageID, date, nonce, box)
	provided := strings.ToLower(mac)
	if len(provided) != len(expected) {
		return false
	}
	var diff byte
	for i := 0; i < len(expected); i++ {
		diff |= expected[i] ^ provided[i]
	}
	return diff == 0
}

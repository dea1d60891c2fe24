// Package crypto implements the end-to-end message protocol used by keybridge.
//
// Contents
//
//   - Curve25519 key generation and public key derivation (GenerateKeyPair,
//     DerivePublicKey) and fresh nonces (NewNonce)
//   - Deterministic padding with a self-describing trailer (Pad, Unpad)
//   - NaCl box encryption of typed payloads (EncryptText, Encrypt, Decrypt)
//   - Webhook MACs over the callback fields (ComputeMAC, VerifyMAC)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//
// # Notes
//
// Every function here is pure apart from reading crypto/rand: nothing is
// shared between calls and no locking is required. Decrypt never returns an
// error; a nil result covers wrong keys, tampered boxes and malformed padding
// alike so callers cannot tell the cases apart.
package crypto

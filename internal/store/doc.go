// Package store provides file-based persistence for keybridge.
//
// Each identity's trusted contacts live in one file under the configured home
// directory, sealed with ChaCha20-Poly1305 under a scrypt key derived from the
// identity's backup password. Writes go through a temp file and rename.
package store

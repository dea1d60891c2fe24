// Package message sends and receives end-to-end encrypted gateway messages.
//
// Send resolves the recipient's public key (through the key cache, then the
// gateway), encrypts the text with the account's secret key and posts the box.
// Receive verifies a webhook's MAC, resolves the sender's key and decrypts the
// box. A box that fails to open under a cached key is retried once with a
// freshly fetched key, which covers peers that rotated their keys.
package message

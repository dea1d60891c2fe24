// Package identity restores identities from password-protected backups and
// keeps each identity's list of trusted contacts.
//
// Backups use the 80-character ID export format: PBKDF2-SHA256 derives a
// key from the password, XSalsa20 decrypts the identity and secret key, and a
// two-byte SHA-256 check detects a wrong password. Contacts are optionally
// persisted through a domain.ContactStore.
package identity

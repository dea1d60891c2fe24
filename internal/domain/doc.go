// Package domain defines core data models and interfaces shared across keybridge.
// It contains plain types (keys, envelopes, webhook payloads), the contracts
// the bridge depends on (Network, Identity, Conn) and the error kinds every
// other package wraps.
package domain

package domain

import "errors"

// Error kinds. Package-level errors wrap one of these so callers can classify
// a failure with errors.Is without knowing the concrete sentinel.
var (
	// ErrValidation marks malformed input: bad hex, bad padding, missing fields.
	ErrValidation = errors.New("validation error")

	// ErrAuthentication marks MAC mismatches and box authentication failures.
	ErrAuthentication = errors.New("authentication failure")

	// ErrConnectivity marks closed transports and failed connects.
	ErrConnectivity = errors.New("connectivity error")

	// ErrConfiguration marks missing credentials and invalid key material.
	ErrConfiguration = errors.New("configuration error")

	// ErrProtocol marks unparseable commands, events and frames.
	ErrProtocol = errors.New("protocol error")
)

// ErrAlreadyTrusted is returned by Identity.Trust when the contact is already
// trusted with the same key. Callers treat it as success.
var ErrAlreadyTrusted = errors.New("contact already exists")

// Package main runs the keybridge relay: an in-memory websocket relay and
// public key directory for relay identities.
//
// HTTP API
//
//	GET /ws
//	    Websocket endpoint. The relay sends a challenge sealed to its
//	    per-process key; the client logs in by sealing it back under its
//	    identity key. The first login pins an id's public key.
//
//	GET /identity/{id}
//	    Return {"identity":..,"publicKey":..} for an id that has logged in.
//
//	GET /healthz
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Messages for offline recipients are queued up to --queue-limit frames,
//     dropping the oldest.
//   - A second login for the same id replaces the first session.
//   - The default listen address is :8080.
//
// The relay never sees plaintext or secret keys; it only routes boxes and
// public keys.
package main

// Package bridge runs the long-lived messaging bridge.
//
// A caller drives the bridge with newline-delimited JSON commands and reads
// newline-delimited JSON events back. The Supervisor owns the live network
// connection: it serialises commands, reconnects with a fixed backoff table
// when the transport drops, and emits events through a bounded queue that
// never blocks command handling.
package bridge

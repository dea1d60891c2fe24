// Package commands defines the keybridge CLI and wires dependencies for subcommands.
//
// Commands
//
//   - bridge         Run the line-delimited JSON bridge on stdin/stdout
//   - webhook        Serve gateway callbacks and print messages as bridge events
//   - send           Encrypt and send a text through the gateway
//   - lookup         Fetch a peer's public key from the gateway or the relay
//   - keygen         Generate a gateway key pair
//   - identity new   Create a relay identity and print its backup
//   - identity show  Restore an identity from its backup and describe it
//
// # Implementation
//
// The root command loads and validates the configuration, builds the root
// logger and the dependency graph (stores, clients, services) before any
// subcommand runs. Logs go to stderr; stdout is reserved for command output
// and the bridge protocol.
package commands

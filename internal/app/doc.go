// Package app loads configuration and wires dependencies for the CLI.
//
// Load reads an optional YAML file over Default, then a .env file and
// KEYBRIDGE_* environment variables. NewWire builds the stores, clients and
// services from a validated Config and exposes them through the Wire struct.
package app

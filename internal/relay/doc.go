// Package relay implements the keybridge network over websockets.
//
// Client satisfies domain.Network: it restores identities from their backups,
// logs in to a relay with a challenge sealed under the identity's key, and
// exchanges end-to-end encrypted text messages. Server is the matching relay:
// it pins each identity's public key on first login, forwards message frames
// to connected recipients and queues them in memory for offline ones, and
// serves a public key directory.
//
// Frames are JSON text messages. Keys, nonces and boxes are lowercase hex;
// the directory returns keys as standard base64.
//
//	server -> client  {"type":"challenge","server_key":..,"challenge":..}
//	client -> server  {"type":"login","id":..,"public_key":..,"nonce":..,"box":..}
//	server -> client  {"type":"ready"}
//	client -> server  {"type":"message","id":..,"to":..,"nick":..,"nonce":..,"box":..}
//	server -> client  {"type":"message","id":..,"from":..,"nick":..,"time":..,"nonce":..,"box":..}
//	server -> client  {"type":"error","reason":..,"reconnect":..}
//
//	GET /identity/{id}  -> {"identity":..,"publicKey":..}
//	GET /ws             websocket endpoint
//	GET /healthz
package relay

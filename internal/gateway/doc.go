// Package gateway talks to an HTTP message gateway in end-to-end mode.
//
// Client posts pre-encrypted boxes to POST /send_e2e and fetches peer public
// keys from GET /pubkeys/{id}, authenticating every call with the account's
// id and API secret. Calls share a token-bucket rate limiter.
//
// WebhookHandler receives the gateway's inbound callbacks. It validates the
// form, hands the payload to a Receiver that checks the MAC and decrypts it,
// and always answers 200 so the gateway never retries.
package gateway

package domain

import "time"

// MessageTypeText tags a padded payload carrying UTF-8 text.
const MessageTypeText byte = 0x01

// Envelope is a sealed message: the nonce plus box output (ciphertext and tag).
type Envelope struct {
	Nonce Nonce
	Box   []byte
}

// DecryptedMessage is what crypto.Decrypt returns for an authentic envelope.
// Raw always holds the payload after the type tag; Text is set for text messages.
type DecryptedMessage struct {
	Type byte
	Text string
	Raw  []byte
}

// WebhookPayload is the form body of an inbound gateway callback.
type WebhookPayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	MessageID string `json:"messageId"`
	Date      string `json:"date"`
	Nonce     string `json:"nonce"`
	Box       string `json:"box"`
	MAC       string `json:"mac"`
}

// InboundMessage is a decrypted text message delivered to the caller.
type InboundMessage struct {
	From      string
	To        string
	MessageID string
	Nick      string
	Date      time.Time
	Text      string
}

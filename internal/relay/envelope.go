package relay

import (
	"keybridge/internal/codec"
	"keybridge/internal/domain"
)

// challengeType tags the login challenge so it can never be mistaken for a
// message payload.
const challengeType byte = 0x7f

const challengeSize = 32

func putEnvelope(f *Frame, env domain.Envelope) {
	f.Nonce = codec.EncodeHex(env.Nonce[:])
	f.Box = codec.EncodeHex(env.Box)
}

func envelopeOf(f *Frame) (domain.Envelope, error) {
	nb, err := codec.DecodeHexFixed(f.Nonce, domain.NonceSize)
	if err != nil {
		return domain.Envelope{}, err
	}
	nonce, err := domain.NonceFromBytes(nb)
	if err != nil {
		return domain.Envelope{}, err
	}
	box, err := codec.DecodeHex(f.Box)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{Nonce: nonce, Box: box}, nil
}

func publicKeyOf(s string) (domain.PublicKey, error) {
	b, err := codec.DecodeHexFixed(s, domain.KeySize)
	if err != nil {
		return domain.PublicKey{}, err
	}
	return domain.PublicKeyFromBytes(b)
}

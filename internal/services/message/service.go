package message

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"keybridge/internal/codec"
	"keybridge/internal/crypto"
	"keybridge/internal/domain"
	"keybridge/internal/gateway"
	"keybridge/internal/keycache"
	"keybridge/internal/metrics"
)

var (
	// ErrTooLarge is returned for texts over crypto.MaxTextBytes.
	ErrTooLarge = fmt.Errorf("%w: message too large", domain.ErrValidation)

	// ErrNotConnected is returned for unknown accounts and unreachable gateways.
	ErrNotConnected = fmt.Errorf("%w: gateway not connected", domain.ErrConnectivity)

	// ErrPublicKeyUnavailable is returned when the recipient's key cannot be fetched.
	ErrPublicKeyUnavailable = fmt.Errorf("%w: public key unavailable", domain.ErrConnectivity)

	// ErrBadMAC is returned for webhooks whose MAC does not verify.
	ErrBadMAC = fmt.Errorf("%w: webhook mac mismatch", domain.ErrAuthentication)

	// ErrDecrypt is returned for boxes that do not open.
	ErrDecrypt = fmt.Errorf("%w: message did not decrypt", domain.ErrAuthentication)

	// ErrUnknownAccount is returned for webhooks addressed to an unconfigured account.
	ErrUnknownAccount = fmt.Errorf("%w: unknown account", domain.ErrConfiguration)
)

// Account is a gateway identity this process sends and receives as.
type Account struct {
	Name       string
	ID         string
	Secret     string
	PrivateKey domain.SecretKey
}

func (a Account) credentials() gateway.Credentials {
	return gateway.Credentials{ID: a.ID, Secret: a.Secret}
}

// Gateway is the transport the service uses.
type Gateway interface {
	SendE2E(ctx context.Context, from gateway.Credentials, to string, env domain.Envelope) (string, error)
	FetchPublicKey(ctx context.Context, as gateway.Credentials, id string) (domain.PublicKey, error)
}

// Service sends and receives messages for a fixed set of accounts.
type Service struct {
	gw       Gateway
	keys     *keycache.Cache
	accounts map[string]Account // by name and by upper-cased id
	fallback string             // account used when the caller names none
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// New returns a service for accounts. The first account is the default.
func New(gw Gateway, keys *keycache.Cache, accounts []Account, opts ...Option) *Service {
	s := &Service{
		gw:       gw,
		keys:     keys,
		accounts: make(map[string]Account, 2*len(accounts)),
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for i, a := range accounts {
		a.ID = strings.ToUpper(a.ID)
		if i == 0 {
			s.fallback = a.ID
		}
		s.accounts[a.ID] = a
		if a.Name != "" {
			s.accounts[a.Name] = a
		}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) account(name string) (Account, bool) {
	if name == "" {
		name = s.fallback
	}
	if a, ok := s.accounts[name]; ok {
		return a, true
	}
	a, ok := s.accounts[strings.ToUpper(name)]
	return a, ok
}

// SendText encrypts text for to and sends it as account. It returns the
// gateway message id.
func (s *Service) SendText(ctx context.Context, to, text, account string) (string, error) {
	id, err := s.sendText(ctx, to, text, account)
	if err != nil {
		s.metrics.GatewaySend(metrics.ResultError)
		return "", err
	}
	s.metrics.GatewaySend(metrics.ResultSuccess)
	return id, nil
}

func (s *Service) sendText(ctx context.Context, to, text, account string) (string, error) {
	acct, ok := s.account(account)
	if !ok {
		return "", fmt.Errorf("%w: no account %q", ErrNotConnected, account)
	}
	if len(text) > crypto.MaxTextBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(text), crypto.MaxTextBytes)
	}
	if _, err := codec.DecodeUTF8([]byte(text)); err != nil {
		return "", err
	}
	to = strings.ToUpper(strings.TrimSpace(to))

	key, err := s.lookup(ctx, acct, to)
	if err != nil {
		return "", err
	}
	env, err := crypto.EncryptText(text, key, acct.PrivateKey)
	if err != nil {
		return "", err
	}
	msgID, err := s.gw.SendE2E(ctx, acct.credentials(), to, env)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrTooLarge):
		return "", fmt.Errorf("%w: %v", ErrTooLarge, err)
	default:
		return "", fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	s.log.Debug().Str("from", acct.ID).Str("to", to).Str("message_id", msgID).Msg("Message sent")
	return msgID, nil
}

// LookupPublicKey returns the public key of id as seen by account.
func (s *Service) LookupPublicKey(ctx context.Context, id, account string) (domain.PublicKey, error) {
	acct, ok := s.account(account)
	if !ok {
		return domain.PublicKey{}, fmt.Errorf("%w: no account %q", ErrNotConnected, account)
	}
	return s.lookup(ctx, acct, strings.ToUpper(strings.TrimSpace(id)))
}

// InvalidateKey drops a cached key, for example after the peer rotated it.
func (s *Service) InvalidateKey(id string) bool { return s.keys.Evict(id) }

func (s *Service) lookup(ctx context.Context, acct Account, id string) (domain.PublicKey, error) {
	if key, ok := s.keys.Get(id); ok {
		return key, nil
	}
	key, err := s.gw.FetchPublicKey(ctx, acct.credentials(), id)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: %s: %v", ErrPublicKeyUnavailable, id, err)
	}
	s.keys.Put(id, key)
	s.log.Debug().Str("id", id).Str("fingerprint", crypto.Fingerprint(key)).Msg("Fetched public key")
	return key, nil
}

// Receive authenticates and decrypts a webhook payload. It returns nil, nil
// for authentic messages that carry no text.
func (s *Service) Receive(ctx context.Context, p domain.WebhookPayload) (*domain.InboundMessage, error) {
	acct, ok := s.account(p.To)
	if !ok || acct.ID != strings.ToUpper(p.To) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, p.To)
	}
	if !crypto.VerifyMAC(acct.Secret, p.From, p.To, p.MessageID, p.Date, p.Nonce, p.Box, p.MAC) {
		return nil, ErrBadMAC
	}

	nb, err := codec.DecodeHexFixed(p.Nonce, domain.NonceSize)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	nonce, err := domain.NonceFromBytes(nb)
	if err != nil {
		return nil, err
	}
	box, err := codec.DecodeHex(p.Box)
	if err != nil {
		return nil, fmt.Errorf("box: %w", err)
	}

	from := strings.ToUpper(p.From)
	_, cached := s.keys.Get(from)
	key, err := s.lookup(ctx, acct, from)
	if err != nil {
		return nil, err
	}
	msg := crypto.Decrypt(box, nonce, key, acct.PrivateKey)
	if msg == nil && cached {
		// The peer may have rotated its key since it was cached.
		s.keys.Evict(from)
		if key, err = s.lookup(ctx, acct, from); err != nil {
			return nil, err
		}
		msg = crypto.Decrypt(box, nonce, key, acct.PrivateKey)
	}
	if msg == nil {
		return nil, ErrDecrypt
	}
	if msg.Type != domain.MessageTypeText {
		s.log.Debug().Str("from", from).Uint8("type", msg.Type).Msg("Ignoring non-text message")
		return nil, nil
	}

	return &domain.InboundMessage{
		From:      from,
		To:        acct.ID,
		MessageID: p.MessageID,
		Date:      parseDate(p.Date, s.now),
		Text:      msg.Text,
	}, nil
}

// parseDate reads a Unix timestamp in seconds, falling back to now.
func parseDate(s string, now func() time.Time) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

// Compile-time assertion that Service implements gateway.Receiver.
var _ gateway.Receiver = (*Service)(nil)

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"keybridge/internal/codec"
	"keybridge/internal/domain"
)

var (
	// ErrUnauthorized is returned when the gateway rejects the account credentials.
	ErrUnauthorized = fmt.Errorf("%w: gateway rejected credentials", domain.ErrConfiguration)

	// ErrNotFound is returned when the gateway has no such identity.
	ErrNotFound = fmt.Errorf("%w: identity not found", domain.ErrValidation)

	// ErrTooLarge is returned when the gateway rejects a box as too large.
	ErrTooLarge = fmt.Errorf("%w: message too large", domain.ErrValidation)

	// ErrUnavailable is returned for transport failures and unexpected statuses.
	ErrUnavailable = fmt.Errorf("%w: gateway unavailable", domain.ErrConnectivity)
)

// Credentials identify a gateway account.
type Credentials struct {
	ID     string
	Secret string
}

// Client is an HTTP client for the gateway API.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// WithRateLimit allows perSecond calls with the given burst. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// NewClient returns a client for the gateway at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: gateway url %q", domain.ErrConfiguration, baseURL)
	}
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 0),
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SendE2E posts an encrypted box to to and returns the gateway message id.
func (c *Client) SendE2E(ctx context.Context, from Credentials, to string, env domain.Envelope) (string, error) {
	form := url.Values{
		"from":   {from.ID},
		"to":     {to},
		"nonce":  {codec.EncodeHex(env.Nonce[:])},
		"box":    {codec.EncodeHex(env.Box)},
		"secret": {from.Secret},
	}
	body, err := c.do(ctx, http.MethodPost, "/send_e2e", form)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(body))
	if id == "" {
		return "", fmt.Errorf("%w: empty message id", ErrUnavailable)
	}
	return id, nil
}

// FetchPublicKey returns the public key of id.
func (c *Client) FetchPublicKey(ctx context.Context, as Credentials, id string) (domain.PublicKey, error) {
	q := url.Values{"from": {as.ID}, "secret": {as.Secret}}
	body, err := c.do(ctx, http.MethodGet, "/pubkeys/"+url.PathEscape(id)+"?"+q.Encode(), nil)
	if err != nil {
		return domain.PublicKey{}, err
	}
	b, err := codec.DecodeHexFixed(strings.TrimSpace(string(body)), domain.KeySize)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: public key for %s: %v", domain.ErrProtocol, id, err)
	}
	return domain.MustPublicKey(b), nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		// The parse error would quote the URL and its secret.
		return nil, fmt.Errorf("%w: bad request for %s", domain.ErrValidation, redact(path))
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, secret included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, redact(path), err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", redact(path)).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Gateway request")

	switch resp.StatusCode {
	case http.StatusOK:
		return out, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusRequestEntityTooLarge:
		return nil, ErrTooLarge
	default:
		return nil, fmt.Errorf("%w: %s %s: %s", ErrUnavailable, method, redact(path), resp.Status)
	}
}

// redact drops the query string, which carries the API secret.
func redact(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

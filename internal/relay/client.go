package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"keybridge/internal/codec"
	"keybridge/internal/crypto"
	"keybridge/internal/domain"
	"keybridge/internal/services/identity"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	maxFrameSize     = 64 * 1024
)

var (
	// ErrUnknownContact is returned by SendText for recipients that are not trusted.
	ErrUnknownContact = fmt.Errorf("%w: recipient is not a trusted contact", domain.ErrValidation)

	// ErrClosed is returned by SendText after the connection has gone away.
	ErrClosed = fmt.Errorf("%w: connection closed", domain.ErrConnectivity)

	// ErrNotFound is returned by LookupPublicKey for unknown identities.
	ErrNotFound = fmt.Errorf("%w: identity not found", domain.ErrValidation)
)

// Client connects identities to a relay.
type Client struct {
	base       *url.URL
	identities *identity.Service
	http       *http.Client
	dialer     *websocket.Dialer
	log        zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.http = h } }

func WithClientLogger(l zerolog.Logger) ClientOption { return func(c *Client) { c.log = l } }

// NewClient returns a client for the relay at baseURL (http or https).
// Identities are restored through ids.
func NewClient(baseURL string, ids *identity.Service, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: relay url: %v", domain.ErrConfiguration, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: relay url must be http or https, got %q", domain.ErrConfiguration, baseURL)
	}
	c := &Client{
		base:       u,
		identities: ids,
		http:       &http.Client{Timeout: 15 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Identify restores an identity from its backup.
func (c *Client) Identify(backup, password string) (domain.Identity, error) {
	id, err := c.identities.Restore(backup, password)
	if err != nil {
		return nil, err
	}
	return id, nil
}

// LookupPublicKey fetches the public key the relay has pinned for id.
func (c *Client) LookupPublicKey(ctx context.Context, id string) (domain.PublicKey, error) {
	id, err := identity.NormalizeID(id)
	if err != nil {
		return domain.PublicKey{}, err
	}
	u := c.base.JoinPath("identity", id).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PublicKey{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: lookup %s: %v", domain.ErrConnectivity, id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.PublicKey{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case resp.StatusCode/100 != 2:
		return domain.PublicKey{}, fmt.Errorf("%w: lookup %s: %s", domain.ErrConnectivity, id, resp.Status)
	}

	var entry DirectoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: lookup response: %v", domain.ErrProtocol, err)
	}
	b, err := base64.StdEncoding.DecodeString(entry.PublicKey)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: lookup response key: %v", domain.ErrProtocol, err)
	}
	return domain.PublicKeyFromBytes(b)
}

func (c *Client) wsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.JoinPath("ws").String()
}

// Connect logs id in and starts delivering inbound messages to h.
func (c *Client) Connect(ctx context.Context, id domain.Identity, h *domain.Handler) (domain.Conn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial relay: %v", domain.ErrConnectivity, err)
	}
	ws.SetReadLimit(maxFrameSize)

	if err := c.login(ctx, ws, id); err != nil {
		_ = ws.Close()
		return nil, err
	}

	conn := &Conn{
		ws:   ws,
		id:   id,
		h:    h,
		log:  c.log.With().Str("id", id.Self()).Logger(),
		done: make(chan struct{}),
	}
	go conn.readLoop()
	c.log.Debug().Str("id", id.Self()).Str("fingerprint", crypto.Fingerprint(id.PublicKey())).Msg("Logged in to relay")
	return conn, nil
}

func (c *Client) login(ctx context.Context, ws *websocket.Conn, id domain.Identity) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	_ = ws.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = ws.SetReadDeadline(time.Now()) })
	defer stop()

	var challenge Frame
	if err := ws.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("%w: read challenge: %v", domain.ErrConnectivity, err)
	}
	if err := expect(&challenge, FrameChallenge); err != nil {
		return err
	}
	serverKey, err := publicKeyOf(challenge.ServerKey)
	if err != nil {
		return fmt.Errorf("%w: server key: %v", ErrBadFrame, err)
	}
	nonce, err := codec.DecodeHexFixed(challenge.Challenge, challengeSize)
	if err != nil {
		return fmt.Errorf("%w: challenge: %v", ErrBadFrame, err)
	}

	env, err := crypto.Encrypt(challengeType, nonce, serverKey, id.SecretKey())
	if err != nil {
		return err
	}
	login := Frame{Type: FrameLogin, ID: id.Self(), PublicKey: id.PublicKey().String()}
	putEnvelope(&login, env)
	if err := ws.WriteJSON(login); err != nil {
		return fmt.Errorf("%w: send login: %v", domain.ErrConnectivity, err)
	}

	var ready Frame
	if err := ws.ReadJSON(&ready); err != nil {
		return fmt.Errorf("%w: read login reply: %v", domain.ErrConnectivity, err)
	}
	if err := expect(&ready, FrameReady); err != nil {
		return err
	}
	_ = ws.SetReadDeadline(time.Time{})
	_ = ws.SetWriteDeadline(time.Time{})
	return nil
}

// Conn is a logged-in relay connection.
type Conn struct {
	ws  *websocket.Conn
	id  domain.Identity
	h   *domain.Handler
	log zerolog.Logger

	writeMu sync.Mutex
	done    chan struct{}
}

// SendText encrypts text for a trusted contact and hands it to the relay.
func (c *Conn) SendText(ctx context.Context, to, text string) error {
	to, err := identity.NormalizeID(to)
	if err != nil {
		return err
	}
	key, ok := c.id.Contact(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, to)
	}
	env, err := crypto.EncryptText(text, key, c.id.SecretKey())
	if err != nil {
		return err
	}
	f := Frame{Type: FrameMessage, ID: uuid.NewString(), To: to, Nick: c.id.Self()}
	putEnvelope(&f, env)
	return c.write(ctx, f)
}

func (c *Conn) write(ctx context.Context, f Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Close closes the socket and waits for the reader to stop. Closed is
// reported to the handler once.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) readLoop() {
	defer func() {
		close(c.done)
		if c.h.Closed != nil {
			c.h.Closed()
		}
	}()

	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("Relay read ended")
			}
			return
		}
		switch f.Type {
		case FrameMessage:
			c.deliver(&f)
		case FrameError:
			if c.h.Error != nil {
				c.h.Error(f.Reason, f.Reconnect)
			}
		default:
			c.log.Warn().Str("type", f.Type).Msg("Ignoring unexpected relay frame")
		}
	}
}

func (c *Conn) deliver(f *Frame) {
	when, err := time.Parse(time.RFC3339, f.Time)
	if err != nil {
		when = time.Now()
	}
	from := strings.ToUpper(f.From)

	key, trusted := c.id.Contact(from)
	if !trusted {
		if c.h.Spam != nil {
			c.h.Spam(from, f.Nick, when)
		}
		return
	}
	env, err := envelopeOf(f)
	if err != nil {
		c.alert(fmt.Sprintf("malformed message %s from %s", f.ID, from))
		return
	}
	msg := crypto.Decrypt(env.Box, env.Nonce, key, c.id.SecretKey())
	if msg == nil {
		c.alert(fmt.Sprintf("undecryptable message %s from %s", f.ID, from))
		return
	}
	if msg.Type != domain.MessageTypeText {
		c.log.Debug().Str("from", from).Uint8("type", msg.Type).Msg("Skipping non-text message")
		return
	}
	if c.h.Message != nil {
		c.h.Message(from, f.Nick, when, msg.Text)
	}
}

func (c *Conn) alert(reason string) {
	if c.h.Alert != nil {
		c.h.Alert(reason)
	}
}

var (
	_ domain.Network           = (*Client)(nil)
	_ domain.PublicKeyResolver = (*Client)(nil)
	_ domain.Conn              = (*Conn)(nil)
)

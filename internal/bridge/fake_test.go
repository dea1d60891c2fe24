package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"keybridge/internal/domain"
)

type fakeIdentity struct {
	self string

	mu       sync.Mutex
	contacts map[string]string
}

func (f *fakeIdentity) Self() string                { return f.self }
func (f *fakeIdentity) PublicKey() domain.PublicKey { return domain.PublicKey{1} }
func (f *fakeIdentity) SecretKey() domain.SecretKey { return domain.SecretKey{2} }

func (f *fakeIdentity) Trust(id, pubkey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.contacts[id]; ok {
		if existing == pubkey {
			return domain.ErrAlreadyTrusted
		}
		return errors.New("key mismatch")
	}
	f.contacts[id] = pubkey
	return nil
}

func (f *fakeIdentity) Contact(id string) (domain.PublicKey, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.contacts[id]
	return domain.PublicKey{}, ok
}

type fakeConn struct {
	h *domain.Handler

	mu      sync.Mutex
	sent    []string
	closed  bool
	sendErr error
}

func (c *fakeConn) SendText(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, to+":"+text)
	return nil
}

// Close reports closure through the handler like a real transport does.
func (c *fakeConn) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already && c.h.Closed != nil {
		c.h.Closed()
	}
	return nil
}

// drop simulates the remote side going away.
func (c *fakeConn) drop() { _ = c.Close() }

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeNetwork struct {
	mu          sync.Mutex
	ident       *fakeIdentity
	identifyErr error
	connectErrs []error
	conns       []*fakeConn
	identifies  int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{ident: &fakeIdentity{self: "ECHOECHO", contacts: map[string]string{}}}
}

func (n *fakeNetwork) Identify(backup, password string) (domain.Identity, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.identifies++
	if n.identifyErr != nil {
		return nil, n.identifyErr
	}
	if backup == "" || password == "wrong" {
		return nil, errors.New("bad backup or password")
	}
	return n.ident, nil
}

func (n *fakeNetwork) Connect(_ context.Context, _ domain.Identity, h *domain.Handler) (domain.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.connectErrs) > 0 {
		err := n.connectErrs[0]
		n.connectErrs = n.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	c := &fakeConn{h: h}
	n.conns = append(n.conns, c)
	return c, nil
}

func (n *fakeNetwork) failNext(errs ...error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectErrs = append(n.connectErrs, errs...)
}

func (n *fakeNetwork) connCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.conns)
}

func (n *fakeNetwork) conn(i int) *fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[i]
}

// recordingAfter fires immediately and records every requested delay.
type recordingAfter struct {
	mu      sync.Mutex
	delays  []time.Duration
	block   bool
	pending []chan time.Time
}

func (r *recordingAfter) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	c := make(chan time.Time, 1)
	if r.block {
		r.pending = append(r.pending, c)
	} else {
		c <- time.Time{}
	}
	return c
}

// fire releases every blocked delay.
func (r *recordingAfter) fire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.pending {
		c <- time.Time{}
	}
	r.pending = nil
}

func (r *recordingAfter) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

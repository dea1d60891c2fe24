package relay

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"keybridge/internal/codec"
	"keybridge/internal/crypto"
	"keybridge/internal/domain"
	"keybridge/internal/services/identity"
)

// DefaultQueueLimit bounds the frames held for one offline recipient.
const DefaultQueueLimit = 1000

// Server is an in-memory relay. It never sees plaintext or secret keys.
type Server struct {
	log        zerolog.Logger
	keys       domain.KeyPair
	upgrader   websocket.Upgrader
	router     *mux.Router
	now        func() time.Time
	queueLimit int

	mu        sync.Mutex
	directory map[string]domain.PublicKey
	sessions  map[string]*session
	queues    map[string][]Frame
}

// ServerOption configures a Server.
type ServerOption func(*Server)

func WithServerLogger(l zerolog.Logger) ServerOption { return func(s *Server) { s.log = l } }

func WithQueueLimit(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.queueLimit = n
		}
	}
}

func WithClock(now func() time.Time) ServerOption { return func(s *Server) { s.now = now } }

// NewServer creates a relay with a fresh challenge key pair.
func NewServer(opts ...ServerOption) (*Server, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	s := &Server{
		log:        zerolog.Nop(),
		keys:       kp,
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		now:        time.Now,
		queueLimit: DefaultQueueLimit,
		directory:  make(map[string]domain.PublicKey),
		sessions:   make(map[string]*session),
		queues:     make(map[string][]Frame),
	}
	for _, o := range opts {
		o(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/identity/{id}", s.handleLookup).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Close disconnects every session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		_ = sess.ws.Close()
	}
}

// Queued returns the number of frames waiting for id.
func (s *Server) Queued(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[id])
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	id, err := identity.NormalizeID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid identity", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	key, ok := s.directory[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(DirectoryEntry{
		Identity:  id,
		PublicKey: base64.StdEncoding.EncodeToString(key[:]),
	})
}

type session struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (sess *session) send(f Frame) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.write(f)
}

// write sends f; the caller holds writeMu.
func (sess *session) write(f Frame) error {
	_ = sess.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sess.ws.WriteJSON(f)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxFrameSize)

	sess, err := s.handshake(ws)
	if err != nil {
		s.log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("Login rejected")
		return
	}
	log := s.log.With().Str("id", sess.id).Logger()
	log.Info().Msg("Client logged in")
	defer s.logout(sess)

	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			log.Debug().Err(err).Msg("Client disconnected")
			return
		}
		if f.Type != FrameMessage {
			_ = sess.send(Frame{Type: FrameError, Reason: "unexpected frame " + f.Type})
			continue
		}
		if err := s.route(sess, f); err != nil {
			log.Debug().Err(err).Msg("Message rejected")
			_ = sess.send(Frame{Type: FrameError, Reason: err.Error()})
		}
	}
}

func (s *Server) handshake(ws *websocket.Conn) (*session, error) {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	challenge := make([]byte, challengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}
	sess := &session{ws: ws}
	if err := sess.send(Frame{
		Type:      FrameChallenge,
		ServerKey: s.keys.Public.String(),
		Challenge: codec.EncodeHex(challenge),
	}); err != nil {
		return nil, err
	}

	var login Frame
	if err := ws.ReadJSON(&login); err != nil {
		return nil, err
	}
	if err := expect(&login, FrameLogin); err != nil {
		return nil, err
	}
	reject := func(reason string) (*session, error) {
		_ = sess.send(Frame{Type: FrameError, Reason: reason})
		return nil, errors.New(reason)
	}

	id, err := identity.NormalizeID(login.ID)
	if err != nil {
		return reject("invalid identity")
	}
	pub, err := publicKeyOf(login.PublicKey)
	if err != nil {
		return reject("invalid public key")
	}
	env, err := envelopeOf(&login)
	if err != nil {
		return reject("invalid login box")
	}
	msg := crypto.Decrypt(env.Box, env.Nonce, pub, s.keys.Secret)
	if msg == nil || msg.Type != challengeType || !bytes.Equal(msg.Raw, challenge) {
		return reject("challenge failed")
	}

	s.mu.Lock()
	if pinned, ok := s.directory[id]; ok && pinned != pub {
		s.mu.Unlock()
		return reject("identity key mismatch")
	}
	// Routed frames wait on writeMu until ready and the backlog are written.
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	s.directory[id] = pub
	old := s.sessions[id]
	sess.id = id
	s.sessions[id] = sess
	queued := s.queues[id]
	delete(s.queues, id)
	s.mu.Unlock()

	if old != nil {
		_ = old.send(Frame{Type: FrameError, Reason: "logged in from another connection"})
		_ = old.ws.Close()
	}
	if err := sess.write(Frame{Type: FrameReady}); err != nil {
		s.logout(sess)
		s.requeue(id, queued)
		return nil, err
	}
	for i, f := range queued {
		if err := sess.write(f); err != nil {
			s.logout(sess)
			s.requeue(id, queued[i:])
			return nil, err
		}
	}
	return sess, nil
}

func (s *Server) logout(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
}

// route forwards f from sess to its recipient or queues it.
func (s *Server) route(sess *session, f Frame) error {
	to, err := identity.NormalizeID(f.To)
	if err != nil {
		return err
	}
	if _, err := envelopeOf(&f); err != nil {
		return err
	}
	out := Frame{
		Type:  FrameMessage,
		ID:    f.ID,
		From:  sess.id,
		Nick:  f.Nick,
		Time:  s.now().UTC().Format(time.RFC3339),
		Nonce: f.Nonce,
		Box:   f.Box,
	}

	s.mu.Lock()
	peer := s.sessions[to]
	s.mu.Unlock()
	if peer != nil && peer.send(out) == nil {
		return nil
	}
	s.enqueue(to, out)
	return nil
}

// enqueue appends f to the queue for id.
func (s *Server) enqueue(id string, f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(id, append(s.queues[id], f))
}

// requeue puts undelivered frames back in front of anything queued since.
func (s *Server) requeue(id string, frames []Frame) {
	if len(frames) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(id, append(slices.Clone(frames), s.queues[id]...))
}

// storeLocked saves q for id, dropping the oldest frames beyond the limit.
func (s *Server) storeLocked(id string, q []Frame) {
	if over := len(q) - s.queueLimit; over > 0 {
		s.log.Warn().Str("id", id).Int("dropped", over).Msg("Queue full, dropping oldest frames")
		q = q[over:]
	}
	s.queues[id] = q
}

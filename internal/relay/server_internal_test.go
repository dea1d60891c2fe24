package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/codec"
	"keybridge/internal/domain"
)

// wsPair returns the server and client ends of one websocket connection.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	var up websocket.Upgrader
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(hs.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	require.NoError(t, err)
	server := <-conns
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return server, client
}

func queuedIDs(s *Server, id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, f := range s.queues[id] {
		ids = append(ids, f.ID)
	}
	return ids
}

func TestServer_RouteWaitsForLoginWrites(t *testing.T) {
	srv, err := NewServer()
	require.NoError(t, err)
	server, client := wsPair(t)

	// A session mid-login: published, with ready not yet written.
	sess := &session{id: "ALICE123", ws: server}
	sess.writeMu.Lock()
	srv.mu.Lock()
	srv.sessions[sess.id] = sess
	srv.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- srv.route(&session{id: "BOBBOB12"}, Frame{
			Type:  FrameMessage,
			ID:    "m1",
			To:    "ALICE123",
			Nonce: codec.EncodeHex(make([]byte, domain.NonceSize)),
			Box:   "00",
		})
	}()
	select {
	case err := <-done:
		t.Fatalf("route finished before ready was written: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, sess.write(Frame{Type: FrameReady}))
	sess.writeMu.Unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("route did not finish")
	}

	var f Frame
	require.NoError(t, client.ReadJSON(&f))
	assert.Equal(t, FrameReady, f.Type)
	require.NoError(t, client.ReadJSON(&f))
	assert.Equal(t, FrameMessage, f.Type)
	assert.Equal(t, "m1", f.ID)
	assert.Equal(t, "BOBBOB12", f.From)
	assert.Equal(t, 0, srv.Queued("ALICE123"))
}

func TestServer_RequeueKeepsDeliveryOrder(t *testing.T) {
	srv, err := NewServer()
	require.NoError(t, err)

	srv.enqueue("ALICE123", Frame{ID: "c"})
	srv.requeue("ALICE123", []Frame{{ID: "a"}, {ID: "b"}})
	srv.enqueue("ALICE123", Frame{ID: "d"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, queuedIDs(srv, "ALICE123"))
}

func TestServer_QueueLimitDropsOldest(t *testing.T) {
	srv, err := NewServer(WithQueueLimit(2))
	require.NoError(t, err)

	srv.enqueue("ALICE123", Frame{ID: "c"})
	srv.requeue("ALICE123", []Frame{{ID: "a"}, {ID: "b"}})
	assert.Equal(t, []string{"b", "c"}, queuedIDs(srv, "ALICE123"))

	srv.enqueue("ALICE123", Frame{ID: "d"})
	assert.Equal(t, []string{"c", "d"}, queuedIDs(srv, "ALICE123"))
}

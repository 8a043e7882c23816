package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"go-groupchat/internal/auth"
	"go-groupchat/internal/models"
	"go-groupchat/internal/store"
)

const (
	testSecret  = "ws-test-secret"
	waitTimeout = 2 * time.Second
	quietPeriod = 200 * time.Millisecond
)

var (
	alice = models.Identity{UserID: "alice", Email: "alice@example.com"}
	bob   = models.Identity{UserID: "bob", Email: "bob@example.com"}
	carol = models.Identity{UserID: "carol", Email: "carol@example.com"}
)

type testEnv struct {
	hub    *Hub
	store  *store.Memory
	issuer *auth.HMACVerifier
	server *httptest.Server
	stop   context.CancelFunc
}

type envOption func(*Options)

func withMembers(m store.MembershipOracle) envOption {
	return func(o *Options) { o.Members = m }
}

func withMessages(m store.MessageStore) envOption {
	return func(o *Options) { o.Messages = m }
}

func withTimeout(d time.Duration) envOption {
	return func(o *Options) { o.OperationTimeout = d }
}

func withOrigins(origins ...string) envOption {
	return func(o *Options) { o.AllowedOrigins = origins }
}

// newTestEnv starts a hub over a memory store where group "g1" has alice
// and bob as active members.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	mem := store.NewMemory()
	mem.CreateGroup("g1")
	mem.SetMember("g1", alice.UserID, models.MemberActive)
	mem.SetMember("g1", bob.UserID, models.MemberActive)

	issuer := auth.NewHMACVerifier(testSecret, "")
	options := Options{
		Verifier:         issuer,
		Members:          mem,
		Messages:         mem,
		OperationTimeout: waitTimeout,
		AllowedOrigins:   []string{"*"},
	}
	for _, opt := range opts {
		opt(&options)
	}

	hub := NewHub(options)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return &testEnv{hub: hub, store: mem, issuer: issuer, server: server, stop: cancel}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
}

func (e *testEnv) token(t *testing.T, id models.Identity) string {
	t.Helper()
	token, err := e.issuer.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan models.Frame
	// Frames read while waiting for something else
	backlog []models.Frame
	ackSeq  uint64
	auth    models.AuthSuccessData
}

// connect dials as id and consumes auth-success.
func (e *testEnv) connect(t *testing.T, id models.Identity) *testClient {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL()+"?token="+e.token(t, id), nil)
	if err != nil {
		t.Fatalf("Failed to connect as %s: %v", id.UserID, err)
	}
	tc := startClient(t, conn)

	f := tc.waitFor(models.EventAuthSuccess)
	if err := json.Unmarshal(f.Data, &tc.auth); err != nil {
		t.Fatalf("Failed to decode auth-success: %v", err)
	}
	return tc
}

func startClient(t *testing.T, conn *websocket.Conn) *testClient {
	tc := &testClient{t: t, conn: conn, frames: make(chan models.Frame, 64)}
	go func() {
		defer close(tc.frames)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f models.Frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			tc.frames <- f
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return tc
}

func (tc *testClient) close() {
	tc.conn.Close()
}

func (tc *testClient) write(event string, ackID *uint64, data interface{}) {
	tc.t.Helper()
	frame := models.OutboundFrame{Event: event, AckID: ackID, Data: data}
	raw, err := json.Marshal(frame)
	if err != nil {
		tc.t.Fatalf("Failed to encode frame: %v", err)
	}
	if err := tc.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		tc.t.Fatalf("Failed to write frame: %v", err)
	}
}

func (tc *testClient) writeRaw(raw string) {
	tc.t.Helper()
	if err := tc.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		tc.t.Fatalf("Failed to write frame: %v", err)
	}
}

// request sends event with a fresh ackId and returns the matching ack.
func (tc *testClient) request(event string, data interface{}) models.Frame {
	tc.t.Helper()
	tc.ackSeq++
	id := tc.ackSeq
	tc.write(event, &id, data)

	f, ok := tc.match(func(f models.Frame) bool {
		return f.Event == models.EventAck && f.AckID != nil && *f.AckID == id
	}, waitTimeout)
	if !ok {
		tc.t.Fatalf("No ack for %s (ackId %d)", event, id)
	}
	return f
}

func (tc *testClient) ack(event string, data interface{}) models.Ack {
	tc.t.Helper()
	var ack models.Ack
	f := tc.request(event, data)
	if err := json.Unmarshal(f.Data, &ack); err != nil {
		tc.t.Fatalf("Failed to decode ack: %v", err)
	}
	return ack
}

func (tc *testClient) mustJoin(groupID string) {
	tc.t.Helper()
	if ack := tc.ack(models.EventJoinGroup, models.GroupPayload{GroupID: groupID}); !ack.Success {
		tc.t.Fatalf("join %s failed: %+v", groupID, ack)
	}
}

func (tc *testClient) waitFor(event string) models.Frame {
	tc.t.Helper()
	f, ok := tc.match(func(f models.Frame) bool { return f.Event == event }, waitTimeout)
	if !ok {
		tc.t.Fatalf("Timed out waiting for %s", event)
	}
	return f
}

func (tc *testClient) match(pred func(models.Frame) bool, timeout time.Duration) (models.Frame, bool) {
	for i, f := range tc.backlog {
		if pred(f) {
			tc.backlog = append(tc.backlog[:i], tc.backlog[i+1:]...)
			return f, true
		}
	}

	deadline := time.After(timeout)
	for {
		select {
		case f, ok := <-tc.frames:
			if !ok {
				return models.Frame{}, false
			}
			if pred(f) {
				return f, true
			}
			tc.backlog = append(tc.backlog, f)
		case <-deadline:
			return models.Frame{}, false
		}
	}
}

// collect returns every frame of event seen within d, consuming them.
func (tc *testClient) collect(event string, d time.Duration) []models.Frame {
	var out []models.Frame
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return out
		}
		f, ok := tc.match(func(f models.Frame) bool { return f.Event == event }, remaining)
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func decodeData[T any](t *testing.T, f models.Frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", f.Event, err)
	}
	return v
}

// typedAck mirrors models.Ack with a concrete payload type.
type typedAck[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    T      `json:"data"`
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met: %s", msg)
}

func dial(t *testing.T, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"go-groupchat/internal/auth"
	"go-groupchat/internal/models"
	"go-groupchat/internal/store"
	"go-groupchat/internal/ws"
)

func newTestServer(t *testing.T) (*httptest.Server, *auth.HMACVerifier) {
	t.Helper()

	mem := store.NewMemory()
	mem.CreateGroup("g1")
	mem.SetMember("g1", "alice", models.MemberActive)

	verifier := auth.NewHMACVerifier("router-test-secret", "")
	hub := ws.NewHub(ws.Options{Verifier: verifier, Members: mem, Messages: mem, AllowedOrigins: []string{"*"}})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(SetupRouter(gin.TestMode, hub))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return server, verifier
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("Expected body OK, got %q", body)
	}
}

func TestStatsReflectConnections(t *testing.T) {
	server, verifier := newTestServer(t)

	token, err := verifier.Issue(models.Identity{UserID: "alice", Email: "alice@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect through the router: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(server.URL + "/stats")
		if err != nil {
			t.Fatalf("Failed to fetch stats: %v", err)
		}
		var stats ws.Stats
		err = json.NewDecoder(resp.Body).Decode(&stats)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("Failed to decode stats: %v", err)
		}
		if stats.Connections == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected one connection in stats, got %+v", stats)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWebsocketRouteRequiresToken(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Expected JSON rejection, got content type %q", ct)
	}
}

func TestCreateServerTimeouts(t *testing.T) {
	srv := CreateServer(":0", http.NewServeMux())
	if srv.ReadTimeout == 0 || srv.WriteTimeout == 0 || srv.IdleTimeout == 0 {
		t.Errorf("Expected production timeouts to be set: %+v", srv)
	}
}

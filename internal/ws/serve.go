package ws

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"go-groupchat/internal/auth"
	"go-groupchat/internal/errs"
	"go-groupchat/internal/models"
)

// ServeWS authenticates the request, upgrades it and starts the connection
// pumps. auth-success is always the first frame the client reads.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	slog.Debug("[WS] New WebSocket connection request", "from", remoteAddr)

	token := auth.ExtractToken(r)
	if token == "" {
		slog.Warn("[WS] No token provided", "from", remoteAddr)
		rejectHandshake(w, errs.New(errs.KindNoAuthToken, "Authentication token is required"))
		return
	}

	identity, err := hub.verifier.Verify(token)
	if err != nil {
		slog.Warn("[WS] Token validation failed", "from", remoteAddr, "error", err)
		rejectHandshake(w, errs.New(errs.KindInvalidToken, "Invalid or expired token"))
		return
	}

	slog.Info("[WS] Token validated successfully", "user", identity.UserID, "email", identity.Email, "from", remoteAddr)

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[WS] Failed to upgrade connection", "user", identity.UserID, "error", err)
		return
	}

	client := newClient(hub, conn, identity)
	client.emit(models.EventAuthSuccess, models.AuthSuccessData{
		UserID:       identity.UserID,
		UserEmail:    identity.Email,
		ConnectionID: client.id,
		Timestamp:    hub.now(),
	})

	if !hub.attach(client) {
		slog.Warn("[WS] Hub stopped, dropping connection", "user", identity.UserID, "conn", client.id)
		conn.Close()
		return
	}

	slog.Debug("[WS] Starting WritePump and ReadPump goroutines", "user", identity.UserID, "conn", client.id)
	go client.WritePump()
	go client.ReadPump()
}

func rejectHandshake(w http.ResponseWriter, e *errs.Error) {
	body, err := json.Marshal(models.Ack{Success: false, Message: e.Message, Error: e.Kind.Code()})
	if err != nil {
		http.Error(w, e.Message, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write(body)
}

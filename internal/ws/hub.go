package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-groupchat/internal/auth"
	"go-groupchat/internal/models"
	"go-groupchat/internal/presence"
	"go-groupchat/internal/store"
)

const defaultOperationTimeout = 5 * time.Second

// Options wires a Hub to its collaborators.
type Options struct {
	Verifier auth.Verifier
	Members  store.MembershipOracle
	Messages store.MessageStore
	// Presence defaults to a fresh tracker.
	Presence *presence.Tracker
	// OperationTimeout bounds every membership lookup and store write.
	OperationTimeout time.Duration
	// AllowedOrigins lists browser origins allowed to connect; "*" allows any.
	AllowedOrigins []string
	ReadLimit      int64
}

// Hub maintains authenticated connections, group rooms and presence, and
// relays events between the connections of a room.
type Hub struct {
	// Room key ("group:<id>") -> set of joined clients
	rooms map[string]map[*Client]struct{}

	clients map[*Client]struct{}

	// Guards rooms, clients and every Client.rooms
	mu sync.RWMutex

	// Serializes membership check and room mutation per (group, user)
	memberLocks keyedMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	verifier  auth.Verifier
	members   store.MembershipOracle
	messages  store.MessageStore
	presence  *presence.Tracker
	upgrader  websocket.Upgrader
	opTimeout time.Duration
	readLimit int64
	handlers  map[string]handlerFunc
	metrics   *metrics
	now       func() time.Time
}

func NewHub(opts Options) *Hub {
	if opts.Presence == nil {
		opts.Presence = presence.NewTracker()
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaultOperationTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = maxMessageSize
	}

	h := &Hub{
		rooms:       make(map[string]map[*Client]struct{}),
		clients:     make(map[*Client]struct{}),
		memberLocks: keyedMutex{locks: make(map[string]*keyedLock)},
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		verifier:    opts.Verifier,
		members:     opts.Members,
		messages:    opts.Messages,
		presence:    opts.Presence,
		opTimeout:   opts.OperationTimeout,
		readLimit:   opts.ReadLimit,
		metrics:     newMetrics(),
		now:         func() time.Time { return time.Now().UTC() },
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newOriginChecker(opts.AllowedOrigins),
		},
	}

	h.handlers = map[string]handlerFunc{
		models.EventJoinGroup:      h.handleJoin,
		models.EventLeaveGroup:     h.handleLeave,
		models.EventGetActiveUsers: h.handleActiveUsers,
		models.EventSendMessage:    h.handleSend,
		models.EventTypingStart:    h.typingHandler(true),
		models.EventTypingStop:     h.typingHandler(false),
		models.EventReadReceipt:    h.handleRead,
	}
	return h
}

func roomKey(groupID string) string {
	return "group:" + groupID
}

// ServeHTTP upgrades authenticated requests to websocket connections.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ServeWS(h, w, r)
}

// Run processes registrations until ctx is done, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	slog.Info("[HUB] Starting hub event loop")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			slog.Info("[HUB] Stopping hub event loop")
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// attach hands a freshly authenticated client to the event loop. It reports
// false once the hub has stopped.
func (h *Hub) attach(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// detach runs disconnect cleanup for client, through the event loop while it
// is running.
func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.unregisterClient(client)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.connectionOpened()
	slog.Info("[HUB] Client registered", "user", client.identity.UserID, "conn", client.id, "clients", count)
}

// unregisterClient removes client from every room it joined and emits one
// presence-inactive per group that stopped being active for its user.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for groupID := range client.rooms {
		h.removeFromRoomLocked(client, groupID)
	}
	emptied := h.presence.RemoveConnection(client.identity.UserID, client.id)
	count := len(h.clients)
	h.mu.Unlock()

	client.closeSend()
	h.metrics.connectionClosed()

	slog.Info("[HUB] Client unregistered", "user", client.identity.UserID, "conn", client.id, "clients", count, "inactiveGroups", len(emptied))

	for _, groupID := range emptied {
		h.broadcastToRoom(groupID, nil, models.EventPresenceInactive, presenceData(client.identity, groupID, models.StatusOffline))
	}
}

// joinRoom adds client to the group's room. It reports whether the group just
// became active for the client's user. Joining twice is a no-op.
func (h *Hub) joinRoom(client *Client, groupID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := client.rooms[groupID]; ok {
		return false
	}

	key := roomKey(groupID)
	if h.rooms[key] == nil {
		slog.Debug("[HUB] Creating room", "room", key)
		h.rooms[key] = make(map[*Client]struct{})
	}
	h.rooms[key][client] = struct{}{}
	client.rooms[groupID] = struct{}{}

	return h.presence.Add(client.identity.UserID, groupID, client.id)
}

// leaveRoom removes client from the group's room. joined is false when the
// client was not in the room; inactive reports whether the group stopped
// being active for the client's user.
func (h *Hub) leaveRoom(client *Client, groupID string) (joined, inactive bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := client.rooms[groupID]; !ok {
		return false, false
	}
	h.removeFromRoomLocked(client, groupID)
	return true, h.presence.Remove(client.identity.UserID, groupID, client.id)
}

func (h *Hub) removeFromRoomLocked(client *Client, groupID string) {
	delete(client.rooms, groupID)

	key := roomKey(groupID)
	if clients, ok := h.rooms[key]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			slog.Debug("[HUB] Room is now empty, removing from hub", "room", key)
			delete(h.rooms, key)
		}
	}
}

// EvictMember removes every connection of userID from the group's room, used
// when a membership is revoked while the user is connected.
func (h *Hub) EvictMember(groupID, userID string) {
	unlock := h.memberLocks.Lock(memberKey(groupID, userID))
	defer unlock()

	h.mu.Lock()
	var evicted []*Client
	for client := range h.rooms[roomKey(groupID)] {
		if client.identity.UserID == userID {
			evicted = append(evicted, client)
		}
	}
	var inactive bool
	var identity models.Identity
	for _, client := range evicted {
		h.removeFromRoomLocked(client, groupID)
		if h.presence.Remove(userID, groupID, client.id) {
			inactive = true
			identity = client.identity
		}
	}
	h.mu.Unlock()

	if len(evicted) == 0 {
		return
	}
	slog.Info("[HUB] Evicted member from room", "group", groupID, "user", userID, "connections", len(evicted))

	if inactive {
		h.broadcastToRoom(groupID, nil, models.EventPresenceInactive, presenceData(identity, groupID, models.StatusOffline))
	}
}

// broadcastToRoom sends one event to every client in the group's room except
// the given one, and returns how many clients it was queued for.
func (h *Hub) broadcastToRoom(groupID string, except *Client, event string, data interface{}) int {
	payload, err := encodeFrame(event, nil, data)
	if err != nil {
		slog.Error("[HUB] Failed to encode broadcast", "event", event, "group", groupID, "error", err)
		return 0
	}

	h.mu.RLock()
	room := h.rooms[roomKey(groupID)]
	targets := make([]*Client, 0, len(room))
	for client := range room {
		if client != except {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range targets {
		if client.trySend(payload) {
			sent++
		}
	}

	slog.Debug("[HUB] Broadcast complete", "event", event, "group", groupID, "sent", sent, "failed", len(targets)-sent)
	h.metrics.broadcast(event, sent)
	return sent
}

// activeUsers lists the distinct identities connected to the group's room.
func (h *Hub) activeUsers(groupID string) []models.ActiveUser {
	h.mu.RLock()
	seen := make(map[string]models.Identity)
	for client := range h.rooms[roomKey(groupID)] {
		seen[client.identity.UserID] = client.identity
	}
	h.mu.RUnlock()

	users := make([]models.ActiveUser, 0, len(seen))
	for _, id := range seen {
		users = append(users, models.ActiveUser{UserID: id.UserID, Email: id.Email, Status: models.StatusOnline})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

func (h *Hub) roomSize(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey(groupID)])
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	Users       int `json:"activeUsers"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections: len(h.clients),
		Rooms:       len(h.rooms),
		Users:       h.presence.Users(),
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.conn != nil {
			client.conn.Close()
		}
	}
	slog.Info("[HUB] Closed client connections", "count", len(clients))
}

func presenceData(id models.Identity, groupID, status string) models.PresenceData {
	return models.PresenceData{
		UserID:  id.UserID,
		Email:   id.Email,
		GroupID: groupID,
		Status:  status,
	}
}

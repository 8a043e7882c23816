package ws

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"

	"go-groupchat/internal/errs"
	"go-groupchat/internal/models"
)

func (h *Hub) handleJoin(ctx context.Context, c *Client, data json.RawMessage) (*models.Ack, error) {
	var p models.GroupPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.GroupID == "" {
		return nil, errs.New(errs.KindInvalidInput, "groupId is required")
	}

	unlock := h.memberLocks.Lock(memberKey(p.GroupID, c.identity.UserID))
	defer unlock()

	if err := h.authorize(ctx, p.GroupID, c.identity.UserID); err != nil {
		return nil, err
	}

	if h.joinRoom(c, p.GroupID) {
		h.broadcastToRoom(p.GroupID, c, models.EventPresenceActive, presenceData(c.identity, p.GroupID, models.StatusOnline))
	}
	slog.Info("[HUB] Client joined group", "group", p.GroupID, "user", c.identity.UserID, "conn", c.id)

	return &models.Ack{Success: true, Message: "Joined group successfully"}, nil
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, data json.RawMessage) (*models.Ack, error) {
	var p models.GroupPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.GroupID == "" {
		return nil, errs.New(errs.KindInvalidInput, "groupId is required")
	}

	joined, inactive := h.leaveRoom(c, p.GroupID)
	if inactive {
		h.broadcastToRoom(p.GroupID, c, models.EventPresenceInactive, presenceData(c.identity, p.GroupID, models.StatusOffline))
	}
	if joined {
		slog.Info("[HUB] Client left group", "group", p.GroupID, "user", c.identity.UserID, "conn", c.id)
	}

	return &models.Ack{Success: true, Message: "Left group successfully"}, nil
}

func (h *Hub) handleActiveUsers(ctx context.Context, c *Client, data json.RawMessage) (*models.Ack, error) {
	var p models.GroupPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.GroupID == "" {
		return nil, errs.New(errs.KindInvalidInput, "groupId is required")
	}
	if err := h.authorize(ctx, p.GroupID, c.identity.UserID); err != nil {
		return nil, err
	}

	return &models.Ack{Success: true, Data: h.activeUsers(p.GroupID)}, nil
}

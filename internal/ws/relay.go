package ws

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"

	"go-groupchat/internal/errs"
	"go-groupchat/internal/models"
	"go-groupchat/internal/store"
)

func (h *Hub) handleSend(ctx context.Context, c *Client, data json.RawMessage) (*models.Ack, error) {
	var p models.SendMessagePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.GroupID == "" || strings.TrimSpace(p.Content) == "" {
		return nil, errs.New(errs.KindInvalidInput, "groupId and content are required")
	}

	unlock := h.memberLocks.Lock(memberKey(p.GroupID, c.identity.UserID))
	defer unlock()

	if err := h.authorize(ctx, p.GroupID, c.identity.UserID); err != nil {
		return nil, err
	}

	msg, err := h.messages.SaveMessage(ctx, models.Message{
		GroupID:     p.GroupID,
		Sender:      c.identity.UserID,
		SenderEmail: c.identity.Email,
		Content:     p.Content,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "failed to persist message", err)
	}

	sent := h.broadcastToRoom(p.GroupID, c, models.EventMessageNew, models.MessageNewData{Success: true, Data: &msg})
	slog.Debug("[HUB] Message relayed", "group", p.GroupID, "message", msg.ID, "user", c.identity.UserID, "recipients", sent)

	return &models.Ack{Success: true, Message: "Message sent successfully", Data: msg}, nil
}

// typingHandler relays typing state to the rest of the room. Typing frames
// are never acknowledged; bad payloads are dropped.
func (h *Hub) typingHandler(typing bool) handlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) (*models.Ack, error) {
		var p models.GroupPayload
		if err := decode(data, &p); err != nil {
			slog.Debug("[CLIENT] Dropping malformed typing frame", "user", c.identity.UserID, "conn", c.id, "error", err)
			return nil, nil
		}
		if p.GroupID == "" {
			return nil, nil
		}

		h.broadcastToRoom(p.GroupID, c, models.EventTypingState, models.TypingData{
			UserID:    c.identity.UserID,
			UserEmail: c.identity.Email,
			GroupID:   p.GroupID,
			Typing:    typing,
		})
		return nil, nil
	}
}

func (h *Hub) handleRead(ctx context.Context, c *Client, data json.RawMessage) (*models.Ack, error) {
	var p models.ReadReceiptPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.MessageID == "" || p.GroupID == "" {
		return nil, errs.New(errs.KindInvalidInput, "messageId and groupId are required")
	}

	at := h.now()
	err := h.messages.MarkRead(ctx, p.GroupID, p.MessageID, c.identity.UserID, at)
	switch {
	case errors.Is(err, store.ErrMessageNotFound):
		return nil, errs.New(errs.KindMessageNotFound, "Message not found")
	case err != nil:
		return nil, errs.Wrap(errs.KindInternal, "failed to record read receipt", err)
	}

	// Every connection in the room is told, the reader's own included.
	h.broadcastToRoom(p.GroupID, nil, models.EventReadNotification, models.ReadNotificationData{
		MessageID: p.MessageID,
		ReadBy: models.ReadBy{
			UserID:    c.identity.UserID,
			Email:     c.identity.Email,
			Timestamp: at,
		},
	})

	return &models.Ack{Success: true}, nil
}

package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/goccy/go-json"

	"go-groupchat/internal/errs"
	"go-groupchat/internal/models"
	"go-groupchat/internal/store"
)

// handlerFunc handles one inbound event. A nil ack with a nil error sends
// nothing back.
type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (*models.Ack, error)

func (c *Client) handleFrame(raw []byte) {
	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		slog.Warn("[CLIENT] Error unmarshaling frame", "user", c.identity.UserID, "conn", c.id, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.hub.opTimeout)
	defer cancel()

	ack, err := c.hub.dispatch(ctx, c, frame)
	c.hub.metrics.event(frame.Event, err)

	if frame.AckID == nil {
		return
	}
	if err != nil {
		ack = errorAck(err)
	}
	if ack != nil {
		c.ack(*frame.AckID, ack)
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, frame models.Frame) (ack *models.Ack, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[HUB] Handler panicked", "event", frame.Event, "user", c.identity.UserID, "conn", c.id, "panic", r, "stack", string(debug.Stack()))
			ack, err = nil, errs.New(errs.KindInternal, fmt.Sprintf("panic in %s handler", frame.Event))
		}
	}()

	handler, ok := h.handlers[frame.Event]
	if !ok {
		err = errs.New(errs.KindInvalidInput, "Unknown event: "+frame.Event)
	} else {
		ack, err = handler(ctx, c, frame.Data)
	}
	if err != nil {
		logFailure(c, frame.Event, err)
	}
	return ack, err
}

// errorAck converts err to the wire ack. Internal details never leave the
// server.
func errorAck(err error) *models.Ack {
	e := errs.As(err)
	message := e.Message
	if e.Kind == errs.KindInternal {
		message = "Internal server error"
	}
	return &models.Ack{Success: false, Message: message, Error: e.Kind.Code()}
}

func logFailure(c *Client, event string, err error) {
	e := errs.As(err)
	attrs := []any{"event", event, "user", c.identity.UserID, "conn", c.id, "code", e.Kind.Code()}

	switch e.Kind {
	case errs.KindInvalidInput:
		slog.Debug("[CLIENT] Rejected invalid input", append(attrs, "reason", e.Message)...)
	case errs.KindGroupNotFound, errs.KindMessageNotFound, errs.KindNotGroupMember:
		slog.Info("[CLIENT] Request denied", append(attrs, "reason", e.Message)...)
	case errs.KindNoAuthToken, errs.KindInvalidToken:
		slog.Warn("[CLIENT] Credential rejected", append(attrs, "reason", e.Message)...)
	default:
		slog.Error("[CLIENT] Handler failed", append(attrs, "error", err)...)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Wrap(errs.KindInvalidInput, "Malformed payload", err)
	}
	return nil
}

// authorize requires userID to be an active member of groupID right now.
func (h *Hub) authorize(ctx context.Context, groupID, userID string) error {
	status, err := h.members.MemberStatus(ctx, groupID, userID)
	switch {
	case errors.Is(err, store.ErrGroupNotFound):
		return errs.New(errs.KindGroupNotFound, "Group not found")
	case err != nil:
		return errs.Wrap(errs.KindInternal, "membership lookup failed", err)
	case status != models.MemberActive:
		return errs.New(errs.KindNotGroupMember, "You are not a member of this group")
	}
	return nil
}

package redis

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"

	"go-groupchat/internal/models"
)

// MembershipChange is published whenever a membership row changes.
type MembershipChange struct {
	GroupID string              `json:"groupId"`
	UserID  string              `json:"userId"`
	Status  models.MemberStatus `json:"status"`
}

// Evictor removes a user's live connections from a group room.
type Evictor interface {
	EvictMember(groupID, userID string)
}

// SubscribeToMembershipChanges evicts users from rooms as soon as their
// membership stops being active. It returns when ctx is done or the
// subscription closes.
func SubscribeToMembershipChanges(ctx context.Context, client *Client, evictor Evictor) {
	slog.Info("[REDIS] Starting membership subscription...")

	pubsub := client.rdb.Subscribe(ctx, membershipChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		slog.Error("[REDIS] Failed to receive subscription confirmation", "error", err)
		return
	}

	slog.Info("[REDIS] Subscribed to membership changes", "channel", membershipChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("[REDIS] Membership subscription stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				slog.Info("[REDIS] Redis pub/sub channel closed")
				return
			}

			var change MembershipChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				slog.Error("[REDIS] Error unmarshaling membership change", "error", err, "payload", msg.Payload)
				continue
			}

			if change.Status == models.MemberActive {
				continue
			}

			slog.Info("[REDIS] Membership revoked", "group", change.GroupID, "user", change.UserID, "status", change.Status)
			evictor.EvictMember(change.GroupID, change.UserID)
		}
	}
}

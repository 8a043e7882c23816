package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"go-groupchat/internal/models"
	"go-groupchat/internal/store"
)

const (
	groupsKey         = "groups"
	membershipChannel = "membership:changed"
	messageKeyPrefix  = "message:"
	groupKeyPrefix    = "group:"
	membersKeySuffix  = ":members"
	messagesKeySuffix = ":messages"
	readsKeySuffix    = ":reads"
)

// Client is a store.Backend over Redis.
//
//	groups                 set of group ids
//	group:<id>:members     hash userId -> status
//	group:<id>:messages    list of message ids, oldest first
//	message:<id>           JSON encoded message
//	message:<id>:reads     hash userId -> unix millis
type Client struct {
	rdb *redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	slog.Info("[REDIS] Connected to Redis", "addr", opt.Addr)

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func membersKey(groupID string) string { return groupKeyPrefix + groupID + membersKeySuffix }
func messagesKey(groupID string) string { return groupKeyPrefix + groupID + messagesKeySuffix }
func messageKey(messageID string) string { return messageKeyPrefix + messageID }
func readsKey(messageID string) string { return messageKeyPrefix + messageID + readsKeySuffix }

func (c *Client) MemberStatus(ctx context.Context, groupID, userID string) (models.MemberStatus, error) {
	exists, err := c.rdb.SIsMember(ctx, groupsKey, groupID).Result()
	if err != nil {
		return models.MemberNone, fmt.Errorf("check group: %w", err)
	}
	if !exists {
		return models.MemberNone, store.ErrGroupNotFound
	}

	status, err := c.rdb.HGet(ctx, membersKey(groupID), userID).Result()
	if err == redis.Nil {
		return models.MemberNone, nil
	}
	if err != nil {
		return models.MemberNone, fmt.Errorf("read membership: %w", err)
	}
	return models.MemberStatus(status), nil
}

func (c *Client) SaveMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, messageKey(msg.ID), payload, 0)
	pipe.RPush(ctx, messagesKey(msg.GroupID), msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("[REDIS] Failed to store message", "group", msg.GroupID, "error", err)
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	return msg, nil
}

func (c *Client) MarkRead(ctx context.Context, groupID, messageID, userID string, at time.Time) error {
	raw, err := c.rdb.Get(ctx, messageKey(messageID)).Bytes()
	if err == redis.Nil {
		return store.ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}

	var msg models.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.GroupID != groupID {
		return store.ErrMessageNotFound
	}

	if err := c.rdb.HSet(ctx, readsKey(messageID), userID, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("store read receipt: %w", err)
	}
	return nil
}

// Messages returns the stored messages of a group, oldest first.
func (c *Client) Messages(ctx context.Context, groupID string) ([]models.Message, error) {
	ids, err := c.rdb.LRange(ctx, messagesKey(groupID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		raw, err := c.rdb.Get(ctx, messageKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load message %s: %w", id, err)
		}
		var msg models.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message %s: %w", id, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Client) CreateGroup(ctx context.Context, groupID string) error {
	return c.rdb.SAdd(ctx, groupsKey, groupID).Err()
}

// SetMember creates the group if needed, stores the membership status and
// announces the change on the membership channel. MemberNone removes the
// membership.
func (c *Client) SetMember(ctx context.Context, groupID, userID string, status models.MemberStatus) error {
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, groupsKey, groupID)
	if status == models.MemberNone {
		pipe.HDel(ctx, membersKey(groupID), userID)
	} else {
		pipe.HSet(ctx, membersKey(groupID), userID, string(status))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store membership: %w", err)
	}
	return c.publishMembershipChange(ctx, MembershipChange{GroupID: groupID, UserID: userID, Status: status})
}

func (c *Client) publishMembershipChange(ctx context.Context, change MembershipChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		slog.Error("[REDIS] Failed to marshal membership change", "group", change.GroupID, "error", err)
		return err
	}

	if err := c.rdb.Publish(ctx, membershipChannel, payload).Err(); err != nil {
		slog.Error("[REDIS] Failed to publish membership change", "group", change.GroupID, "user", change.UserID, "error", err)
		return err
	}
	return nil
}

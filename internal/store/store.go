// Package store holds the persistence collaborators of the realtime gateway:
// the membership oracle consulted before every join and send, and the message
// store that persists sent messages and read receipts.
package store

import (
	"context"
	"errors"
	"time"

	"go-groupchat/internal/models"
)

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrMessageNotFound = errors.New("message not found")
)

// MembershipOracle answers whether a user is an active, pending or banned
// member of a group. A user with no membership record gets MemberNone; an
// unknown group yields ErrGroupNotFound.
type MembershipOracle interface {
	MemberStatus(ctx context.Context, groupID, userID string) (models.MemberStatus, error)
}

// MessageStore persists messages and read receipts.
type MessageStore interface {
	// SaveMessage assigns the id and creation time and returns the stored
	// message.
	SaveMessage(ctx context.Context, msg models.Message) (models.Message, error)
	// MarkRead records that userID read messageID. It returns
	// ErrMessageNotFound if the message does not belong to groupID.
	MarkRead(ctx context.Context, groupID, messageID, userID string, at time.Time) error
}

// Backend is a store that serves as both collaborators.
type Backend interface {
	MembershipOracle
	MessageStore
}

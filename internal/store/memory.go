package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-groupchat/internal/models"
)

// Memory is an in-process Backend. It backs local development and tests.
type Memory struct {
	mu       sync.RWMutex
	groups   map[string]map[string]models.MemberStatus
	messages map[string]models.Message
	reads    map[string]map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		groups:   make(map[string]map[string]models.MemberStatus),
		messages: make(map[string]models.Message),
		reads:    make(map[string]map[string]time.Time),
	}
}

func (m *Memory) CreateGroup(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups[groupID] == nil {
		m.groups[groupID] = make(map[string]models.MemberStatus)
	}
}

// SetMember creates the group if needed and sets userID's status in it.
// MemberNone removes the membership.
func (m *Memory) SetMember(groupID, userID string, status models.MemberStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups[groupID] == nil {
		m.groups[groupID] = make(map[string]models.MemberStatus)
	}
	if status == models.MemberNone {
		delete(m.groups[groupID], userID)
		return
	}
	m.groups[groupID][userID] = status
}

func (m *Memory) MemberStatus(ctx context.Context, groupID, userID string) (models.MemberStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.MemberNone, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.groups[groupID]
	if !ok {
		return models.MemberNone, ErrGroupNotFound
	}
	return members[userID], nil
}

func (m *Memory) SaveMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	m.mu.Lock()
	m.messages[msg.ID] = msg
	m.mu.Unlock()
	return msg, nil
}

func (m *Memory) MarkRead(ctx context.Context, groupID, messageID, userID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok || msg.GroupID != groupID {
		return ErrMessageNotFound
	}
	if m.reads[messageID] == nil {
		m.reads[messageID] = make(map[string]time.Time)
	}
	m.reads[messageID][userID] = at
	return nil
}

// Message returns the message as stored.
func (m *Memory) Message(messageID string) (models.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[messageID]
	return msg, ok
}

// ReadAt reports when userID read messageID.
func (m *Memory) ReadAt(messageID, userID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.reads[messageID][userID]
	return at, ok
}

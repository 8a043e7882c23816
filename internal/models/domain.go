package models

import "time"

// Identity is derived once per connection from a verified credential.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type MemberStatus string

const (
	MemberNone    MemberStatus = ""
	MemberActive  MemberStatus = "active"
	MemberPending MemberStatus = "pending"
	MemberBanned  MemberStatus = "banned"
)

// Message is the canonical, decrypted representation returned to clients.
type Message struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"groupId"`
	Sender      string    `json:"sender"`
	SenderEmail string    `json:"senderEmail"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

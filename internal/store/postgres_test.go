package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"go-groupchat/internal/models"
)

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(p.Close)
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return p
}

func TestPostgresMembershipAndMessages(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	group := "g-" + uuid.NewString()

	if _, err := p.MemberStatus(ctx, group, "alice"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
	if err := p.CreateGroup(ctx, group, "test"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := p.SetMember(ctx, group, "alice", models.MemberActive); err != nil {
		t.Fatalf("SetMember: %v", err)
	}
	if got, err := p.MemberStatus(ctx, group, "alice"); err != nil || got != models.MemberActive {
		t.Fatalf("MemberStatus = %q, %v", got, err)
	}
	if got, err := p.MemberStatus(ctx, group, "bob"); err != nil || got != models.MemberNone {
		t.Fatalf("MemberStatus(bob) = %q, %v", got, err)
	}

	msg, err := p.SaveMessage(ctx, models.Message{GroupID: group, Sender: "alice", SenderEmail: "a@x", Content: "hi"})
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := p.MarkRead(ctx, group, msg.ID, "bob", time.Now()); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := p.MarkRead(ctx, group, msg.ID, "bob", time.Now()); err != nil {
		t.Fatalf("MarkRead twice: %v", err)
	}
	if err := p.MarkRead(ctx, group, "missing", "bob", time.Now()); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

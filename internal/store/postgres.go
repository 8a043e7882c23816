package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-groupchat/internal/models"
)

//go:embed schema.sql
var schema string

// Postgres is a Backend over the groups, group_members, messages and
// message_reads tables.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("[STORE] Connected to Postgres")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate creates missing tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) MemberStatus(ctx context.Context, groupID, userID string) (models.MemberStatus, error) {
	var status string
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(m.status, '')
		FROM groups g
		LEFT JOIN group_members m ON m.group_id = g.id AND m.user_id = $2
		WHERE g.id = $1`, groupID, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MemberNone, ErrGroupNotFound
	}
	if err != nil {
		return models.MemberNone, fmt.Errorf("query membership: %w", err)
	}
	return models.MemberStatus(status), nil
}

func (p *Postgres) SaveMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, group_id, sender_id, sender_email, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.GroupID, msg.Sender, msg.SenderEmail, msg.Content, msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (p *Postgres) MarkRead(ctx context.Context, groupID, messageID, userID string, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT id, $3, $4 FROM messages WHERE id = $1 AND group_id = $2
		ON CONFLICT (message_id, user_id) DO UPDATE SET read_at = EXCLUDED.read_at`,
		messageID, groupID, userID, at)
	if err != nil {
		return fmt.Errorf("insert read receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// CreateGroup inserts a group if it does not exist.
func (p *Postgres) CreateGroup(ctx context.Context, groupID, name string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO groups (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, groupID, name)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// SetMember upserts a membership row. MemberNone deletes it.
func (p *Postgres) SetMember(ctx context.Context, groupID, userID string, status models.MemberStatus) error {
	if status == models.MemberNone {
		if _, err := p.pool.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id, status) VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO UPDATE SET status = EXCLUDED.status`,
		groupID, userID, string(status))
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-message-relay/internal/domain"
	"go-message-relay/internal/port/outbound"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

var _ outbound.MessageRepository = (*MessageRepo)(nil)

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const (
	insertMessageSQL = `INSERT INTO messages (id, text, author, timestamp)
VALUES ($1::uuid, $2, $3, $4)`

	updateMessageTextSQL = `UPDATE messages SET text = $2, timestamp = $3
WHERE id = $1::uuid`

	selectMessageSQL = `SELECT id::text, text, author, timestamp FROM messages`
)

func (r *MessageRepo) Insert(ctx context.Context, msg *domain.Message) (string, error) {
	id := uuid.NewString()

	if _, err := r.pool.Exec(ctx, insertMessageSQL, id, msg.Text, msg.Author, msg.Timestamp); err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

func (r *MessageRepo) UpdateText(ctx context.Context, id, text string, timestamp int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, updateMessageTextSQL, id, text, timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to update message: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepo) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	rows, err := r.pool.Query(ctx, selectMessageSQL+" WHERE id = $1::uuid", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	msg, err := pgx.CollectExactlyOneRow(rows, scanMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (r *MessageRepo) FindAll(ctx context.Context) ([]*domain.Message, error) {
	rows, err := r.pool.Query(ctx, selectMessageSQL+" ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

func scanMessage(row pgx.CollectableRow) (*domain.Message, error) {
	var msg domain.Message
	if err := row.Scan(&msg.ID, &msg.Text, &msg.Author, &msg.Timestamp); err != nil {
		return nil, err
	}
	return &msg, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MessageRepo implements MessageRepository using PostgreSQL.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

const messageSelect = `
SELECT m.id, m.sender_id, u.username, m.receiver_id, m.group_id, m.ciphertext, m.nonce,
       m.status, m.created_at, m.edited_at, m.deleted_for_sender, m.deleted_for_receiver
FROM messages m
JOIN users u ON u.id = m.sender_id`

// Create inserts a message and returns its sequence id via RETURNING.
func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	const q = `
INSERT INTO messages (sender_id, receiver_id, group_id, ciphertext, nonce, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`
	if m.Status == "" {
		m.Status = model.StatusSent
	}
	err := r.db.Pool.QueryRow(ctx, q, m.SenderID, m.ReceiverID, m.GroupID, m.Ciphertext, m.Nonce, string(m.Status)).
		Scan(&m.ID, &m.CreatedAt)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}

// Get selects a message by id.
func (r *MessageRepo) Get(ctx context.Context, id int64) (*model.Message, error) {
	m, err := scanMessage(r.db.Pool.QueryRow(ctx, messageSelect+` WHERE m.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// SetStatus updates delivery status.
func (r *MessageRepo) SetStatus(ctx context.Context, id int64, status model.MessageStatus) error {
	const q = `UPDATE messages SET status=$2 WHERE id=$1`
	return r.exec1(ctx, q, id, string(status))
}

// MarkRead marks the given messages read when they are addressed to receiverID.
func (r *MessageRepo) MarkRead(ctx context.Context, receiverID uuid.UUID, ids []int64) (int64, error) {
	const q = `UPDATE messages SET status='read' WHERE id = ANY($1) AND receiver_id = $2`
	tag, err := r.db.Pool.Exec(ctx, q, ids, receiverID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateContent replaces the ciphertext of an edited message.
func (r *MessageRepo) UpdateContent(ctx context.Context, id int64, ciphertext, nonce string, editedAt time.Time) error {
	const q = `UPDATE messages SET ciphertext=$2, nonce=$3, edited_at=$4 WHERE id=$1`
	return r.exec1(ctx, q, id, ciphertext, nonce, editedAt)
}

// Delete removes a message row.
func (r *MessageRepo) Delete(ctx context.Context, id int64) error {
	return r.exec1(ctx, `DELETE FROM messages WHERE id=$1`, id)
}

// HideFor sets the soft-delete flag of whichever side userID is on.
func (r *MessageRepo) HideFor(ctx context.Context, id int64, userID uuid.UUID) error {
	const q = `
UPDATE messages
SET deleted_for_sender = deleted_for_sender OR sender_id = $2,
    deleted_for_receiver = deleted_for_receiver OR receiver_id = $2
WHERE id = $1 AND (sender_id = $2 OR receiver_id = $2)`
	return r.exec1(ctx, q, id, userID)
}

// History returns one page of a conversation, newest first.
func (r *MessageRepo) History(ctx context.Context, hq model.HistoryQuery) ([]model.Message, error) {
	const private = messageSelect + `
WHERE ((m.sender_id = $1 AND m.receiver_id = $2 AND NOT m.deleted_for_sender)
    OR (m.sender_id = $2 AND m.receiver_id = $1 AND NOT m.deleted_for_receiver))
  AND ($3::bigint = 0 OR m.id < $3::bigint)
ORDER BY m.id DESC
LIMIT $4`
	const group = messageSelect + `
WHERE m.group_id = $1
  AND ($2::bigint = 0 OR m.id < $2::bigint)
ORDER BY m.id DESC
LIMIT $3`

	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case hq.GroupID.Valid:
		rows, err = r.db.Pool.Query(ctx, group, hq.GroupID.UUID, hq.Before, hq.Limit)
	case hq.PeerID.Valid:
		rows, err = r.db.Pool.Query(ctx, private, hq.UserID, hq.PeerID.UUID, hq.Before, hq.Limit)
	default:
		return nil, errs.ErrInvalidArgument
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) exec1(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var (
		m      model.Message
		status string
	)
	err := row.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.ReceiverID, &m.GroupID, &m.Ciphertext, &m.Nonce,
		&status, &m.CreatedAt, &m.EditedAt, &m.DeletedForSender, &m.DeletedForReceiver)
	m.Status = model.MessageStatus(status)
	return m, err
}

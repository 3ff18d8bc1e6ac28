package repository

import (
	"context"
	"time"

	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MessageRepository stores opaque message ciphertexts.
type MessageRepository interface {
	// Create inserts a message and fills its ID and CreatedAt.
	Create(ctx context.Context, m *model.Message) error
	// Get loads a message by sequence id.
	Get(ctx context.Context, id int64) (*model.Message, error)
	// SetStatus updates delivery status.
	SetStatus(ctx context.Context, id int64, status model.MessageStatus) error
	// MarkRead marks private messages addressed to receiverID as read.
	MarkRead(ctx context.Context, receiverID uuid.UUID, ids []int64) (int64, error)
	// UpdateContent replaces ciphertext and nonce and stamps editedAt.
	UpdateContent(ctx context.Context, id int64, ciphertext, nonce string, editedAt time.Time) error
	// Delete removes a message for everyone.
	Delete(ctx context.Context, id int64) error
	// HideFor soft-deletes the message for one side of a private conversation.
	HideFor(ctx context.Context, id int64, userID uuid.UUID) error
	// History returns one page of a private or group conversation, newest first.
	History(ctx context.Context, q model.HistoryQuery) ([]model.Message, error)
}

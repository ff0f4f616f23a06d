// Package conversation persists conversation threads and their ordered
// messages. Message ordering is assigned by the store via an atomic
// increment of the owning conversation's next_sequence_number, never
// computed from a SELECT MAX, so concurrent appends from overlapping
// agent turns can't collide on the same sequence number.
package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/apperr"
	"github.com/codeready-toolchain/eap/pkg/models"
)

// Store is the persistence layer for conversations and their messages.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create starts a new conversation for a user with a given agent.
func (s *Store) Create(ctx context.Context, tenantID, userID uuid.UUID, agentID string) (*models.Conversation, error) {
	c := &models.Conversation{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		UserID:             userID,
		AgentID:            agentID,
		NextSequenceNumber: 0,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, tenant_id, user_id, agent_id, next_sequence_number, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.TenantID, c.UserID, c.AgentID, c.NextSequenceNumber, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// Get fetches a conversation scoped to a tenant and, when ownerID is not
// uuid.Nil, its owning user. Soft-deleted conversations are never
// returned.
func (s *Store) Get(ctx context.Context, conversationID, tenantID, ownerID uuid.UUID) (*models.Conversation, error) {
	query := `SELECT id, tenant_id, user_id, agent_id, next_sequence_number, created_at, updated_at, deleted_at
	          FROM conversations WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`
	args := []any{conversationID, tenantID}
	if ownerID != uuid.Nil {
		query += " AND user_id = $3"
		args = append(args, ownerID)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListForUser returns a user's non-deleted conversations, newest first.
// When ownerID is uuid.Nil, all of the tenant's conversations are
// returned (admin view).
func (s *Store) ListForUser(ctx context.Context, tenantID, ownerID uuid.UUID, limit, offset int) ([]*models.Conversation, error) {
	query := `SELECT id, tenant_id, user_id, agent_id, next_sequence_number, created_at, updated_at, deleted_at
	          FROM conversations WHERE tenant_id = $1 AND deleted_at IS NULL`
	args := []any{tenantID}
	if ownerID != uuid.Nil {
		query += " AND user_id = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4"
		args = append(args, ownerID, limit, offset)
	} else {
		query += " ORDER BY created_at DESC LIMIT $2 OFFSET $3"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// Delete soft-deletes a conversation by setting deleted_at. Returns
// apperr.ErrNotFound if the conversation doesn't exist, is already
// deleted, or isn't owned by ownerID (when given).
func (s *Store) Delete(ctx context.Context, conversationID, tenantID, ownerID uuid.UUID) error {
	query := `UPDATE conversations SET deleted_at = $1 WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL`
	args := []any{time.Now().UTC(), conversationID, tenantID}
	if ownerID != uuid.Nil {
		query += " AND user_id = $4"
		args = append(args, ownerID)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("soft-delete conversation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// AddMessage appends a message to a conversation, assigning it the next
// sequence number atomically. The whole operation runs in a transaction so
// the increment and the insert can't be observed half-done by a
// concurrent reader.
func (s *Store) AddMessage(ctx context.Context, conversationID, tenantID uuid.UUID, role models.MessageRole, content string) (*models.ConversationMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx,
		`UPDATE conversations SET next_sequence_number = next_sequence_number + 1, updated_at = $1
		 WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL
		 RETURNING next_sequence_number - 1`,
		time.Now().UTC(), conversationID, tenantID,
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("increment sequence number: %w", err)
	}

	m := &models.ConversationMessage{
		ID:             uuid.New(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		SequenceNumber: seq,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversation_messages (id, tenant_id, conversation_id, sequence_number, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.TenantID, m.ConversationID, m.SequenceNumber, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation_message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return m, nil
}

// Messages returns a conversation's messages in sequence order.
func (s *Store) Messages(ctx context.Context, conversationID, tenantID uuid.UUID) ([]*models.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, conversation_id, sequence_number, role, content, created_at
		 FROM conversation_messages WHERE conversation_id = $1 AND tenant_id = $2 ORDER BY sequence_number ASC`,
		conversationID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversation_messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ConversationID, &m.SequenceNumber, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation_message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// SearchByContent finds non-deleted conversations with at least one
// message containing query, newest first. When ownerID is uuid.Nil, all
// of the tenant's conversations are searched (admin view).
func (s *Store) SearchByContent(ctx context.Context, tenantID, ownerID uuid.UUID, query string, limit int) ([]*models.Conversation, error) {
	sqlQuery := `SELECT DISTINCT c.id, c.tenant_id, c.user_id, c.agent_id, c.next_sequence_number, c.created_at, c.updated_at, c.deleted_at
	             FROM conversations c
	             JOIN conversation_messages m ON m.conversation_id = c.id
	             WHERE c.tenant_id = $1 AND c.deleted_at IS NULL AND m.content ILIKE $2`
	args := []any{tenantID, "%" + query + "%"}
	if ownerID != uuid.Nil {
		sqlQuery += " AND c.user_id = $3 ORDER BY c.created_at DESC LIMIT $4"
		args = append(args, ownerID, limit)
	} else {
		sqlQuery += " ORDER BY c.created_at DESC LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &c.AgentID, &c.NextSequenceNumber, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt); err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &c, nil
}

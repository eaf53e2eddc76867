package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
)

// EnsureConversation returns the conversation for (listing, renter), creating
// it when absent. The no-op DO UPDATE makes RETURNING yield the existing row
// on conflict instead of nothing.
func (s *PostgresStore) EnsureConversation(ctx context.Context, listingID, renterID, landlordID string) (*domain.Conversation, error) {
	query := `INSERT INTO conversations (listing_id, renter_id, landlord_id)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (listing_id, renter_id)
	          DO UPDATE SET last_message_at = conversations.last_message_at
	          RETURNING id, listing_id, renter_id, landlord_id, created_at, last_message_at`

	var c domain.Conversation
	err := s.db.QueryRowContext(ctx, query, listingID, renterID, landlordID).Scan(
		&c.ID, &c.ListingID, &c.RenterID, &c.LandlordID, &c.CreatedAt, &c.LastMessageAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	return &c, nil
}

// GetConversation retrieves one conversation.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT id, listing_id, renter_id, landlord_id, created_at, last_message_at
	          FROM conversations WHERE id = $1`

	var c domain.Conversation
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.ListingID, &c.RenterID, &c.LandlordID, &c.CreatedAt, &c.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// ConversationsForUser returns conversations the user participates in,
// most recently active first.
func (s *PostgresStore) ConversationsForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	query := `SELECT id, listing_id, renter_id, landlord_id, created_at, last_message_at
	          FROM conversations
	          WHERE renter_id = $1 OR landlord_id = $1
	          ORDER BY last_message_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convos []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.ListingID, &c.RenterID, &c.LandlordID, &c.CreatedAt, &c.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convos = append(convos, c)
	}
	return convos, rows.Err()
}

// CreateMessage appends a message and bumps the conversation's activity time
// in one transaction.
func (s *PostgresStore) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO messages (conversation_id, sender_id, body)
	          VALUES ($1, $2, $3)
	          RETURNING id, conversation_id, sender_id, body, read_at, created_at`

	var (
		created domain.Message
		readAt  sql.NullTime
	)
	err = tx.QueryRowContext(ctx, query, m.ConversationID, m.SenderID, m.Body).Scan(
		&created.ID, &created.ConversationID, &created.SenderID, &created.Body, &readAt, &created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	bump := `UPDATE conversations SET last_message_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, bump, m.ConversationID); err != nil {
		return nil, fmt.Errorf("bump conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return &created, nil
}

// MessagesForConversation returns messages in chronological order.
func (s *PostgresStore) MessagesForConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, conversation_id, sender_id, body, read_at, created_at
	          FROM messages WHERE conversation_id = $1
	          ORDER BY created_at ASC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m      domain.Message
			readAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &readAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessagesRead stamps every unread message addressed to readerID in the
// conversation. Messages the reader sent are left untouched.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, conversationID, readerID string) error {
	query := `UPDATE messages SET read_at = NOW()
	          WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, conversationID, readerID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// UnreadMessageCount counts unread messages addressed to the user across all
// of their conversations.
func (s *PostgresStore) UnreadMessageCount(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*)
	          FROM messages m
	          JOIN conversations c ON c.id = m.conversation_id
	          WHERE (c.renter_id = $1 OR c.landlord_id = $1)
	            AND m.sender_id <> $1 AND m.read_at IS NULL`

	var n int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return n, nil
}

package conversations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/haasonsaas/steward/pkg/models"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB

	// Prepared statements for the hot paths
	stmtCreateConversation *sql.Stmt
	stmtGetConversation    *sql.Stmt
	stmtRecentMessages     *sql.Stmt
	stmtListConversations  *sql.Stmt
	stmtCountConversations *sql.Stmt
}

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns default pool settings.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStore opens a PostgreSQL-backed store from a DSN/URL.
func NewPostgresStore(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

// DB exposes the underlying connection for the migrator.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) prepareStatements() error {
	var err error

	s.stmtCreateConversation, err = s.db.Prepare(`
		INSERT INTO conversations (user_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare create conversation: %w", err)
	}

	s.stmtGetConversation, err = s.db.Prepare(`
		SELECT id, user_id, created_at, updated_at
		FROM conversations WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get conversation: %w", err)
	}

	s.stmtRecentMessages, err = s.db.Prepare(`
		SELECT id, conversation_id, role, content, tool_calls, metadata, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent messages: %w", err)
	}

	s.stmtListConversations, err = s.db.Prepare(`
		SELECT id, user_id, created_at, updated_at
		FROM conversations WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list conversations: %w", err)
	}

	s.stmtCountConversations, err = s.db.Prepare(`
		SELECT count(*) FROM conversations WHERE user_id = $1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare count conversations: %w", err)
	}

	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the prepared statements and the database connection.
func (s *PostgresStore) Close() error {
	var errs []error

	for _, stmt := range []*sql.Stmt{
		s.stmtCreateConversation,
		s.stmtGetConversation,
		s.stmtRecentMessages,
		s.stmtListConversations,
		s.stmtCountConversations,
	} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing store: %v", errs)
	}
	return nil
}

// CreateConversation starts an empty conversation owned by userID.
func (s *PostgresStore) CreateConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	now := time.Now().UTC()
	conv := &models.Conversation{UserID: userID, CreatedAt: now, UpdatedAt: now}

	err := s.stmtCreateConversation.QueryRowContext(ctx, userID, now).Scan(&conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	conv := &models.Conversation{}

	err := s.stmtGetConversation.QueryRowContext(ctx, id).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.NewDomainError(models.KindNotFound,
			fmt.Sprintf("conversation %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// AppendMessage inserts a message and bumps the conversation's updated_at.
// Both writes happen in one transaction so a partially appended message can
// never reorder the listing.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID int64, msg *models.Message) (*models.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is required")
	}
	if !msg.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", msg.Role)
	}

	toolCallsJSON, err := marshalOrNil(msg.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool calls: %w", err)
	}
	metadataJSON, err := marshalOrNil(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Bump first: zero rows means the conversation does not exist, and we
	// learn that before inserting anything.
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`, now, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation timestamp: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, models.NewDomainError(models.KindNotFound,
			fmt.Sprintf("conversation %d not found", conversationID))
	}

	stored := &models.Message{
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		ToolCalls:      msg.ToolCalls,
		Metadata:       msg.Metadata,
		CreatedAt:      now,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, tool_calls, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, conversationID, msg.Role, msg.Content, toolCallsJSON, metadataJSON, now).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit append: %w", err)
	}

	return stored, nil
}

// RecentMessages retrieves the most recent limit messages in chronological order.
func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.stmtRecentMessages.QueryContext(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ListConversations returns a user's conversations, most recently updated
// first, plus the total count.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, int, error) {
	limit, offset = ClampListPage(limit, offset)

	var total int
	if err := s.stmtCountConversations.QueryRowContext(ctx, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := s.stmtListConversations.QueryContext(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conv := &models.Conversation{}
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	var toolCallsJSON, metadataJSON []byte

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Role,
		&msg.Content,
		&toolCallsJSON,
		&metadataJSON,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	if len(toolCallsJSON) > 0 && string(toolCallsJSON) != "null" {
		if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
		}
	}
	if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return msg, nil
}

func marshalOrNil(v any) ([]byte, error) {
	switch value := v.(type) {
	case []models.ToolInvocation:
		if len(value) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(value) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

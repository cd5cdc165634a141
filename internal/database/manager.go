package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "edujam/pkg/database"
	"edujam/pkg/types"
)

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

// Manager is the SQLite-backed chat history store
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pending migrations and starts the
// writer goroutine
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration matters for concurrent
	// history reads while the writer holds the write lock
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewMigrationManager(db)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database schema check failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: A failed write is retried exactly once after RetryDelay
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in %v: %v", m.config.RetryDelay, err)
				time.Sleep(m.config.RetryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-timeout.C:
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// SaveChatMessage appends one message to its conversation. A missing ID or
// timestamp is filled in before the write.
func (m *Manager) SaveChatMessage(ctx context.Context, message *types.ChatMessage) error {
	if message == nil || message.ConversationID == "" {
		return errors.New("chat message requires a conversation id")
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	// TECHNICAL DISCOVERY: Timestamps are stored as text, so they must share a
	// zone for ORDER BY timestamp to be chronological
	stamp := message.Timestamp.UTC()

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO chat_messages
				(id, conversation_id, sender, content, from_user, file_url, file_name, mime_type, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			message.ID,
			message.ConversationID,
			message.Sender,
			message.Content,
			message.FromUser,
			nullable(message.FileURL),
			nullable(message.FileName),
			nullable(message.MimeType),
			stamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}
		return nil
	})
}

// ChatHistory returns a conversation oldest first. Unknown conversations
// yield an empty slice.
func (m *Manager) ChatHistory(ctx context.Context, conversationID string) ([]*types.ChatMessage, error) {
	// ARCHITECTURAL DISCOVERY: Reads bypass writeChannel and use the pool directly
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, content, from_user, file_url, file_name, mime_type, timestamp
		FROM chat_messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.ChatMessage{}
	for rows.Next() {
		var msg types.ChatMessage
		var fileURL, fileName, mimeType sql.NullString

		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Sender,
			&msg.Content,
			&msg.FromUser,
			&fileURL,
			&fileName,
			&mimeType,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		msg.FileURL = fileURL.String
		msg.FileName = fileName.String
		msg.MimeType = mimeType.String

		messages = append(messages, &msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat message rows: %w", err)
	}

	return messages, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_messages LIMIT 1").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// Close shuts down the writer and the connection pool. Calling it twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

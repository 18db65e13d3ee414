// ABOUTME: SQLite persistence collaborator exposing append and read-by-conversation
// ABOUTME: Appends are idempotent by message id; read order is append order

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cohortlabs/cohort/internal/model"
)

// Store persists messages and reactions in SQLite. The core only requires
// the append/read pair; everything else about durability stays behind this
// boundary.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at path, creating parent directories
// and the schema as needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "storage")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("storage initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT,
			message_type TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			parent_message_id TEXT,
			thread_root_id TEXT,
			thread_depth INTEGER NOT NULL DEFAULT 0,
			metadata TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, seq);

		CREATE TABLE IF NOT EXISTS reactions (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			reaction_type TEXT NOT NULL,
			agent_id TEXT,
			feedback TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reactions_message
			ON reactions(message_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendMessage stores a message at the tail of its conversation. The write
// is idempotent: a message id already present leaves the stored row
// untouched, honoring the at-least-once delivery contract.
func (s *Store) AppendMessage(ctx context.Context, msg model.Message) error {
	var metadata []byte
	if len(msg.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
			(id, conversation_id, sender_id, sender_name, message_type,
			 content, timestamp, parent_message_id, thread_root_id,
			 thread_depth, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName,
		string(msg.Type), msg.Content, msg.Timestamp.UTC(),
		nullable(msg.ParentMessageID), nullable(msg.ThreadRootID),
		msg.ThreadDepth, nullableBytes(metadata))
	if err != nil {
		return fmt.Errorf("appending message %s: %w", msg.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("duplicate append ignored",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID)
	}
	return nil
}

// Conversation returns a conversation's messages in append order.
func (s *Store) Conversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_name, message_type,
		       content, timestamp, parent_message_id, thread_root_id,
		       thread_depth, metadata
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("reading conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var (
			msg        model.Message
			msgType    string
			senderName sql.NullString
			parentID   sql.NullString
			rootID     sql.NullString
			metadata   sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID,
			&senderName, &msgType, &msg.Content, &msg.Timestamp,
			&parentID, &rootID, &msg.ThreadDepth, &metadata); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Type = model.MessageType(msgType)
		msg.SenderName = senderName.String
		msg.ParentMessageID = parentID.String
		msg.ThreadRootID = rootID.String
		msg.Status = model.StatusDelivered
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				s.logger.Warn("dropping unreadable metadata",
					"message_id", msg.ID,
					"error", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Reaction is one persisted training-signal reaction.
type Reaction struct {
	ID           string
	MessageID    string
	ReactionType string
	AgentID      string
	Feedback     map[string]string
	CreatedAt    time.Time
}

// SaveReaction persists a reaction. Reactions live outside the message log.
func (s *Store) SaveReaction(ctx context.Context, r Reaction) error {
	var feedback []byte
	if len(r.Feedback) > 0 {
		var err error
		feedback, err = json.Marshal(r.Feedback)
		if err != nil {
			return fmt.Errorf("encoding feedback: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (id, message_id, reaction_type, agent_id, feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.MessageID, r.ReactionType, nullable(r.AgentID),
		nullableBytes(feedback), r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving reaction for %s: %w", r.MessageID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

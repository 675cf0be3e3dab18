package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/haasonsaas/coda/pkg/model"
)

// SQLiteStore implements Store over a pure-Go sqlite driver, so it needs
// no cgo toolchain at build time. It is the durable backend: conversations
// and messages survive a process restart.
type SQLiteStore struct {
	db *sql.DB

	stmtCreateConversation *sql.Stmt
	stmtGetConversation    *sql.Stmt
	stmtTouchConversation  *sql.Stmt
	stmtDeleteConversation *sql.Stmt
	stmtDeleteMessages     *sql.Stmt
	stmtAppendMessage      *sql.Stmt
	stmtGetHistory         *sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	agent_type TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT,
	blocks TEXT,
	tool_calls TEXT,
	tool_results TEXT,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, rowid);
`

// NewSQLiteStore opens (creating if absent) a sqlite database at path and
// migrates its schema. Use ":memory:" for an ephemeral in-process
// database that still exercises the real SQL path in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare sqlite statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error
	if s.stmtCreateConversation, err = s.db.Prepare(
		`INSERT INTO conversations (id, agent_type, created_at, updated_at) VALUES (?, ?, ?, ?)`); err != nil {
		return err
	}
	if s.stmtGetConversation, err = s.db.Prepare(
		`SELECT id, agent_type, created_at, updated_at FROM conversations WHERE id = ?`); err != nil {
		return err
	}
	if s.stmtTouchConversation, err = s.db.Prepare(
		`UPDATE conversations SET updated_at = ? WHERE id = ?`); err != nil {
		return err
	}
	if s.stmtDeleteConversation, err = s.db.Prepare(
		`DELETE FROM conversations WHERE id = ?`); err != nil {
		return err
	}
	if s.stmtDeleteMessages, err = s.db.Prepare(
		`DELETE FROM messages WHERE conversation_id = ?`); err != nil {
		return err
	}
	if s.stmtAppendMessage, err = s.db.Prepare(
		`INSERT INTO messages (id, conversation_id, role, content, blocks, tool_calls, tool_results, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return err
	}
	if s.stmtGetHistory, err = s.db.Prepare(
		`SELECT id, role, content, blocks, tool_calls, tool_results, metadata, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY rowid`); err != nil {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errNilOrEmptyID("conversation")
	}
	now := conv.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := s.stmtCreateConversation.ExecContext(ctx, conv.ID, conv.AgentType, now, now)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	for _, msg := range conv.Messages {
		if err := s.AppendMessage(ctx, conv.ID, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.stmtGetConversation.QueryRowContext(ctx, id)
	conv := &model.Conversation{}
	if err := row.Scan(&conv.ID, &conv.AgentType, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	history, err := s.GetHistory(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	conv.Messages = history
	return conv, nil
}

func (s *SQLiteStore) TouchConversation(ctx context.Context, id string) error {
	res, err := s.stmtTouchConversation.ExecContext(ctx, time.Now(), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.stmtDeleteMessages.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := s.stmtDeleteConversation.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) ListConversations(ctx context.Context, opts ListOptions) ([]*model.Conversation, error) {
	query := `SELECT id, agent_type, created_at, updated_at FROM conversations`
	var args []any
	if opts.AgentType != "" {
		query += ` WHERE agent_type = ?`
		args = append(args, opts.AgentType)
	}
	query += ` ORDER BY updated_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		conv := &model.Conversation{}
		if err := rows.Scan(&conv.ID, &conv.AgentType, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error {
	if msg == nil {
		return errNilOrEmptyID("message")
	}
	blocks, err := json.Marshal(msg.Blocks)
	if err != nil {
		return fmt.Errorf("marshal blocks: %w", err)
	}
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	toolResults, err := json.Marshal(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.stmtAppendMessage.ExecContext(ctx, msg.ID, conversationID, msg.Role,
		msg.Content, string(blocks), string(toolCalls), string(toolResults), string(metadata), createdAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if _, err := s.stmtTouchConversation.ExecContext(ctx, createdAt, conversationID); err != nil {
		return fmt.Errorf("touch conversation on append: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	rows, err := s.stmtGetHistory.QueryContext(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var all []*model.Message
	for rows.Next() {
		msg := &model.Message{ConversationID: conversationID}
		var blocks, toolCalls, toolResults, metadata string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &blocks, &toolCalls, &toolResults, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(blocks), &msg.Blocks); err != nil {
			return nil, fmt.Errorf("unmarshal blocks: %w", err)
		}
		if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshal tool calls: %w", err)
		}
		if err := json.Unmarshal([]byte(toolResults), &msg.ToolResults); err != nil {
			return nil, fmt.Errorf("unmarshal tool results: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		all = append(all, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(all) == 0 {
		var id string
		err := s.stmtGetConversation.QueryRowContext(ctx, conversationID).Scan(&id, new(string), new(time.Time), new(time.Time))
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
	}
	if limit > 0 && limit < len(all) {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/tmc/langchaingo/llms"
)

// maxJournalOutput bounds how much command output is kept per entry.
const maxJournalOutput = 4000

// HistoryStore keeps per-chat conversation history and the journal of
// executed actions in sqlite.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	// A single connection keeps writes serialized and makes ":memory:"
	// databases behave as one database.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			plan_id TEXT,
			kind TEXT,
			action TEXT,
			succeeded INTEGER,
			error_kind TEXT,
			output TEXT,
			duration_ms INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_chat ON journal (chat_id, id);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

func (h *HistoryStore) AddMessage(ctx context.Context, chatID, role, content string) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := h.DB.ExecContext(ctx, query, chatID, role, content)
	return err
}

// GetHistory returns the last limit messages of a chat, oldest first.
func (h *HistoryStore) GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error) {
	query := `SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var msgRole llms.ChatMessageType
		switch role {
		case RoleAI:
			msgRole = llms.ChatMessageTypeAI
		case RoleSystem:
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}
		history = append(history, llms.TextParts(msgRole, content))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(history)
	return history, nil
}

// ClearHistory forgets a chat's conversation. The journal is kept.
func (h *HistoryStore) ClearHistory(ctx context.Context, chatID string) error {
	_, err := h.DB.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	return err
}

// Record appends entries to the journal in one transaction.
func (h *HistoryStore) Record(ctx context.Context, entries ...JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO journal
		(chat_id, plan_id, kind, action, succeeded, error_kind, output, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		output := e.Output
		if len(output) > maxJournalOutput {
			output = output[:maxJournalOutput]
		}
		if _, err := stmt.ExecContext(ctx, e.ChatID, e.PlanID, e.Kind, e.Action, e.Succeeded, e.ErrorKind, output, e.DurationMs); err != nil {
			return fmt.Errorf("journal %q: %w", e.Action, err)
		}
	}
	return tx.Commit()
}

// Journal returns the most recent entries of a chat, newest first.
func (h *HistoryStore) Journal(ctx context.Context, chatID string, limit int) ([]JournalEntry, error) {
	query := `SELECT id, chat_id, plan_id, kind, action, succeeded, error_kind, output, duration_ms, created_at
		FROM journal WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e       JournalEntry
			created any
		)
		if err := rows.Scan(&e.ID, &e.ChatID, &e.PlanID, &e.Kind, &e.Action, &e.Succeeded, &e.ErrorKind, &e.Output, &e.DurationMs, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// parseTime accepts both forms the driver may hand back for a DATETIME.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.DateTime, t); err == nil {
			return ts
		}
	case []byte:
		if ts, err := time.Parse(time.DateTime, string(t)); err == nil {
			return ts
		}
	}
	return time.Time{}
}

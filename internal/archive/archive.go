package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chet-im/chet/internal/model"
)

// UpsertChats records a chat list snapshot and any message windows it
// carries, in one transaction. Messages are immutable: replays are
// ignored by the unique (chat_id, msg_id) constraint.
func (db *DB) UpsertChats(chats []model.Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range chats {
		if _, err := tx.Exec(`
			INSERT INTO chats (id, name, last_message_ts, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				last_message_ts = MAX(chats.last_message_ts, excluded.last_message_ts),
				updated_at = excluded.updated_at`,
			c.ID, c.Name, c.LastMessageTS, now); err != nil {
			return fmt.Errorf("upsert chat %s: %w", c.ID, err)
		}
		for _, m := range c.Messages {
			if err := insertMessage(tx, m); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chats: %w", err)
	}
	return nil
}

// InsertMessages records messages idempotently.
func (db *DB) InsertMessages(msgs []model.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range msgs {
		if err := insertMessage(tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

func insertMessage(tx *sql.Tx, m model.Message) error {
	var creator sql.NullString
	if m.Creator != nil {
		creator = sql.NullString{String: *m.Creator, Valid: true}
	}
	if _, err := tx.Exec(`
		INSERT INTO messages (chat_id, msg_id, creator, content, created_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO NOTHING`,
		m.ChatID, m.ID, creator, m.Content, m.CreatedTS); err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// ListMessages returns up to limit archived messages for a chat older
// than beforeTS (0 means no bound), in ascending timestamp order.
func (db *DB) ListMessages(chatID string, beforeTS int64, limit int) ([]model.Message, error) {
	if beforeTS <= 0 {
		beforeTS = int64(^uint64(0) >> 1)
	}
	rows, err := db.Query(`
		SELECT chat_id, msg_id, creator, content, created_ts
		FROM messages
		WHERE chat_id = ? AND created_ts < ?
		ORDER BY created_ts DESC
		LIMIT ?`, chatID, beforeTS, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Reverse the DESC page into window order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SearchResult is one search hit.
type SearchResult struct {
	Message  model.Message
	ChatName string
}

// Search finds archived messages whose content contains the query,
// newest first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	rows, err := db.Query(`
		SELECT m.chat_id, m.msg_id, m.creator, m.content, m.created_ts, COALESCE(c.name, '')
		FROM messages m
		LEFT JOIN chats c ON c.id = m.chat_id
		WHERE m.content LIKE '%' || ? || '%'
		ORDER BY m.created_ts DESC
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var m model.Message
		var creator sql.NullString
		var chatName string
		if err := rows.Scan(&m.ChatID, &m.ID, &creator, &m.Content, &m.CreatedTS, &chatName); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if creator.Valid {
			v := creator.String
			m.Creator = &v
		}
		results = append(results, SearchResult{Message: m, ChatName: chatName})
	}
	return results, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var creator sql.NullString
		if err := rows.Scan(&m.ChatID, &m.ID, &creator, &m.Content, &m.CreatedTS); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if creator.Valid {
			v := creator.String
			m.Creator = &v
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

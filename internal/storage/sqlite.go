package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dkeye/parley/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        INTEGER NOT NULL,
	ord         INTEGER NOT NULL DEFAULT 0,
	max_clients INTEGER NOT NULL,
	bitrate     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	username   TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at DESC);
`

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadChannels() ([]*domain.Channel, error) {
	rows, err := s.db.Query(`SELECT id, name, type, ord, max_clients, bitrate FROM channels ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	defer rows.Close()
	var out []*domain.Channel
	for rows.Next() {
		ch := &domain.Channel{}
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Type, &ch.Order, &ch.MaxClients, &ch.Bitrate); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadRecentMessages(id domain.ChannelID, limit int) ([]*domain.ChannelMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, channel_id, username, text, created_at FROM messages
		 WHERE channel_id = ? ORDER BY created_at DESC LIMIT ?`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", id, err)
	}
	defer rows.Close()
	var out []*domain.ChannelMessage
	for rows.Next() {
		m := &domain.ChannelMessage{}
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Username, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveMessage(m *domain.ChannelMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (id, channel_id, username, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, string(m.ChannelID), m.Username, m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("save message %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveChannel(ch *domain.Channel) error {
	_, err := s.db.Exec(
		`INSERT INTO channels (id, name, type, ord, max_clients, bitrate) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, ord=excluded.ord,
		 max_clients=excluded.max_clients, bitrate=excluded.bitrate`,
		string(ch.ID), ch.Name, ch.Type, ch.Order, ch.MaxClients, ch.Bitrate)
	if err != nil {
		return fmt.Errorf("save channel %s: %w", ch.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteChannel(id domain.ChannelID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete channel %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE channel_id = ?`, string(id)); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete messages for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM channels WHERE id = ?`, string(id)); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete channel %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

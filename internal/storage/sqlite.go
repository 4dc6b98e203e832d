package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"chat_watcher/internal/model"
	"chat_watcher/migrations"
)

// SQLite implements LogStore backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writes and keeps :memory: databases
	// shared across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// AppendRecord inserts one matched message.
func (s *SQLite) AppendRecord(ctx context.Context, rec model.MessageRecord) error {
	matched, err := encodeList(rec.MatchedKeywords)
	if err != nil {
		return err
	}
	excluded, err := encodeList(rec.ExcludedKeywords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO message_log (timestamp_utc, timestamp_local, rule_label, chat_name, chat_id,
		    message_id, message_link, username, display_name, sender_id, message_text,
		    matched_keywords, excluded_keywords)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TimestampUTC.UTC().Format(time.RFC3339Nano),
		rec.TimestampLocal.Format(time.RFC3339Nano),
		rec.Label, rec.ChatName, rec.ChatID, rec.MessageID, rec.MessageLink,
		rec.Username, rec.DisplayName, rec.SenderID, rec.Text, matched, excluded,
	)
	if err != nil {
		return fmt.Errorf("insert message log: %w", err)
	}
	return nil
}

// ListRecords returns logged messages, newest first.
func (s *SQLite) ListRecords(ctx context.Context, f ListFilter) ([]model.MessageRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.ChatID != 0 {
		where = append(where, "chat_id = ?")
		args = append(args, f.ChatID)
	}
	if f.Label != "" {
		where = append(where, "rule_label = ?")
		args = append(args, f.Label)
	}

	query := `SELECT timestamp_utc, timestamp_local, rule_label, chat_name, chat_id, message_id,
	                 message_link, username, display_name, sender_id, message_text,
	                 matched_keywords, excluded_keywords
	          FROM message_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query message log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.MessageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByRule returns the number of logged messages per rule label.
func (s *SQLite) CountByRule(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_label, COUNT(*) FROM message_log GROUP BY rule_label`)
	if err != nil {
		return nil, fmt.Errorf("count message log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (model.MessageRecord, error) {
	var rec model.MessageRecord
	var utc, local, matched, excluded string
	err := row.Scan(&utc, &local, &rec.Label, &rec.ChatName, &rec.ChatID, &rec.MessageID,
		&rec.MessageLink, &rec.Username, &rec.DisplayName, &rec.SenderID, &rec.Text,
		&matched, &excluded)
	if err != nil {
		return rec, fmt.Errorf("scan message log: %w", err)
	}
	rec.TimestampUTC, _ = time.Parse(time.RFC3339Nano, utc)
	rec.TimestampLocal, _ = time.Parse(time.RFC3339Nano, local)
	if rec.MatchedKeywords, err = decodeList(matched); err != nil {
		return rec, err
	}
	if rec.ExcludedKeywords, err = decodeList(excluded); err != nil {
		return rec, err
	}
	return rec, nil
}

func encodeList(list []string) (string, error) {
	if len(list) == 0 {
		return "", nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode keywords: %w", err)
	}
	return string(data), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	return list, nil
}

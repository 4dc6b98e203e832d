package sink

import (
	"context"

	"chat_watcher/internal/model"
	"chat_watcher/internal/storage"
)

// SQLite appends records to the local message log.
type SQLite struct {
	store storage.LogStore
}

// NewSQLite wraps an open log store.
func NewSQLite(store storage.LogStore) *SQLite {
	return &SQLite{store: store}
}

func (s *SQLite) Append(ctx context.Context, rec model.MessageRecord) error {
	return s.store.AppendRecord(ctx, rec)
}

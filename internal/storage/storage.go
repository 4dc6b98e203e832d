// Package storage defines the local message log and its implementations.
package storage

import (
	"context"

	"chat_watcher/internal/model"
)

// LogStore is the interface for the local copy of matched messages.
type LogStore interface {
	AppendRecord(ctx context.Context, rec model.MessageRecord) error
	ListRecords(ctx context.Context, filter ListFilter) ([]model.MessageRecord, error)
	CountByRule(ctx context.Context) (map[string]int, error)

	Close() error
}

// ListFilter narrows ListRecords. Zero values mean no restriction.
type ListFilter struct {
	ChatID int64
	Label  string
	Limit  int
}

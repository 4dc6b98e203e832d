package rules

import (
	"fmt"
	"log/slog"
	"slices"

	"chat_watcher/internal/model"
)

// Store keeps the active RuleSet in sync with its file. Every mutation is
// written to disk before the in-memory set changes.
type Store struct {
	path string
	set  *RuleSet
	log  *slog.Logger
}

// Open loads the rule file at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	set, err := Load(path)
	if err != nil {
		return nil, err
	}
	log.Info("loaded rules", "path", path, "count", set.Len())
	return &Store{path: path, set: set, log: log}, nil
}

// Path returns the rule file location.
func (s *Store) Path() string {
	return s.path
}

// Set returns the live rule set.
func (s *Store) Set() *RuleSet {
	return s.set
}

// AddRule validates r, persists the extended list, then appends r.
func (s *Store) AddRule(r model.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.Chats = model.NormalizeChats(r.Chats)
	next := append(s.set.Rules(), r)
	if err := Save(s.path, next); err != nil {
		return err
	}
	s.set.Add(r)
	s.log.Info("saved rules", "path", s.path, "count", s.set.Len())
	return nil
}

// Replace persists rules as the full set, then swaps them in.
func (s *Store) Replace(rules []model.Rule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if err := Save(s.path, rules); err != nil {
		return err
	}
	s.set.Replace(rules)
	s.log.Info("saved rules", "path", s.path, "count", s.set.Len())
	return nil
}

// RemoveAt deletes the rule at zero-based index i and persists the result.
func (s *Store) RemoveAt(i int) (model.Rule, error) {
	current := s.set.Rules()
	if i < 0 || i >= len(current) {
		return model.Rule{}, fmt.Errorf("no rule #%d", i+1)
	}
	removed := current[i]
	if err := s.Replace(slices.Delete(current, i, i+1)); err != nil {
		return model.Rule{}, err
	}
	return removed, nil
}

// Reload re-reads the rule file without writing it. On error the current
// rules stay active.
func (s *Store) Reload() error {
	set, err := Load(s.path)
	if err != nil {
		return err
	}
	s.set.Replace(set.Rules())
	s.log.Info("reloaded rules", "path", s.path, "count", s.set.Len())
	return nil
}

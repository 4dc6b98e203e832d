// Package state persists small runtime facts between restarts, such as the id
// of a spreadsheet created on first run.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// State is the content of the state file.
type State struct {
	SpreadsheetID    string `json:"spreadsheet_id,omitempty"`
	WorksheetName    string `json:"worksheet_name,omitempty"`
	SpreadsheetTitle string `json:"spreadsheet_title,omitempty"`
}

// File reads and writes State at a fixed path. Problems are logged and never
// stop the caller.
type File struct {
	path string
	log  *slog.Logger
}

// NewFile returns a state file handle for path.
func NewFile(path string, log *slog.Logger) *File {
	return &File{path: path, log: log}
}

// Load returns the stored state. A missing, empty or corrupt file yields an
// empty State.
func (f *File) Load() State {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.log.Warn("read state file", "path", f.path, "error", err)
		}
		return State{}
	}
	if strings.TrimSpace(string(data)) == "" {
		return State{}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		f.log.Warn("state file is corrupt, starting empty", "path", f.path, "error", err)
		return State{}
	}
	return st
}

// Save writes st. Keys in the file that State does not know about are kept.
// Failures are logged.
func (f *File) Save(st State) {
	if err := f.write(st); err != nil {
		f.log.Warn("write state file", "path", f.path, "error", err)
	}
}

func (f *File) write(st State) error {
	doc := f.existing()
	for key, value := range map[string]string{
		"spreadsheet_id":    st.SpreadsheetID,
		"worksheet_name":    st.WorksheetName,
		"spreadsheet_title": st.SpreadsheetTitle,
	} {
		if value == "" {
			delete(doc, key)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		doc[key] = raw
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	return os.WriteFile(f.path, append(data, '\n'), 0o600)
}

// existing returns the raw keys currently in the file, or an empty map when
// it cannot be read as a JSON object.
func (f *File) existing() map[string]json.RawMessage {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(f.path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return make(map[string]json.RawMessage)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	return doc
}

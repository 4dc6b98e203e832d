package state

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		content  *string
		want     State
		wantWarn bool
	}{
		{name: "missing file", content: nil, want: State{}},
		{name: "empty file", content: ptr("  \n"), want: State{}},
		{name: "corrupt file", content: ptr("{not json"), want: State{}, wantWarn: true},
		{
			name:    "valid file",
			content: ptr(`{"spreadsheet_id": "abc", "worksheet_name": "Sheet1", "spreadsheet_title": "Logs"}`),
			want:    State{SpreadsheetID: "abc", WorksheetName: "Sheet1", SpreadsheetTitle: "Logs"},
		},
		{
			name:    "unknown keys ignored",
			content: ptr(`{"spreadsheet_id": "abc", "other": 1}`),
			want:    State{SpreadsheetID: "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			var buf bytes.Buffer
			f := NewFile(path, slog.New(slog.NewTextHandler(&buf, nil)))

			got := f.Load()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
			if warned := strings.Contains(buf.String(), "level=WARN"); warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v; log:\n%s", warned, tt.wantWarn, buf.String())
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	f := NewFile(path, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	want := State{SpreadsheetID: "sheet-1", WorksheetName: "Matches", SpreadsheetTitle: "Chat Watcher Logs"}
	f.Save(want)

	if diff := cmp.Diff(want, f.Load()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveKeepsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	existing := `{"spreadsheet_id": "old", "spreadsheet_title": "Logs", "session": "abc", "count": 3}`
	if err := os.WriteFile(path, []byte(existing), 0o600); err != nil {
		t.Fatal(err)
	}
	f := NewFile(path, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	f.Save(State{SpreadsheetID: "new", WorksheetName: "Sheet1"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode saved state: %v", err)
	}
	want := map[string]any{
		"spreadsheet_id": "new",
		"worksheet_name": "Sheet1",
		"session":        "abc",
		"count":          float64(3),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("saved keys mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveOverCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	f := NewFile(path, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	want := State{SpreadsheetID: "x"}
	f.Save(want)

	if diff := cmp.Diff(want, f.Load()); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveFailureOnlyWarns(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	f := NewFile(filepath.Join(blocker, "state.json"), slog.New(slog.NewTextHandler(&buf, nil)))

	f.Save(State{SpreadsheetID: "x"})

	if !strings.Contains(buf.String(), "write state file") {
		t.Errorf("expected warning, got:\n%s", buf.String())
	}
}

func ptr(s string) *string { return &s }

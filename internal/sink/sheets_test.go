package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"chat_watcher/internal/model"
)

type fakeSpreadsheet struct {
	nextID     string
	sheets     []sheetInfo
	header     []string
	headerErr  error
	rows       [][]string
	calls      []string
	appendErr  error
	freezeErr  error
	frozenOnID int64
}

func (f *fakeSpreadsheet) Create(_ context.Context, title string) (string, sheetInfo, error) {
	f.calls = append(f.calls, "create "+title)
	f.sheets = []sheetInfo{{ID: 0, Title: "Sheet1"}}
	return f.nextID, f.sheets[0], nil
}

func (f *fakeSpreadsheet) Sheets(_ context.Context, id string) ([]sheetInfo, error) {
	f.calls = append(f.calls, "sheets "+id)
	return f.sheets, nil
}

func (f *fakeSpreadsheet) AddSheet(_ context.Context, _, title string, rows, cols int64) (sheetInfo, error) {
	f.calls = append(f.calls, "add "+title)
	if rows != 2000 || cols != int64(len(model.Headers)) {
		return sheetInfo{}, errors.New("unexpected grid size")
	}
	si := sheetInfo{ID: 99, Title: title}
	f.sheets = append(f.sheets, si)
	return si, nil
}

func (f *fakeSpreadsheet) RenameSheet(_ context.Context, _ string, _ int64, title string) error {
	f.calls = append(f.calls, "rename "+title)
	return nil
}

func (f *fakeSpreadsheet) FirstRow(context.Context, string, string) ([]string, error) {
	return f.header, f.headerErr
}

func (f *fakeSpreadsheet) Clear(context.Context, string, string) error {
	f.calls = append(f.calls, "clear")
	f.rows = nil
	return nil
}

func (f *fakeSpreadsheet) AppendRow(_ context.Context, _, _ string, row []string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeSpreadsheet) FreezeHeader(_ context.Context, _ string, sheetID int64) error {
	f.calls = append(f.calls, "freeze")
	f.frozenOnID = sheetID
	return f.freezeErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenSheets(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		cfg       SheetsConfig
		api       *fakeSpreadsheet
		wantID    string
		wantCalls []string
		wantRows  [][]string
	}{
		{
			name:      "creates spreadsheet and renames first sheet",
			cfg:       SheetsConfig{SpreadsheetTitle: "Chat Watcher Logs", WorksheetName: "Matches"},
			api:       &fakeSpreadsheet{nextID: "new-id"},
			wantID:    "new-id",
			wantCalls: []string{"create Chat Watcher Logs", "rename Matches", "clear", "freeze"},
			wantRows:  [][]string{model.Headers},
		},
		{
			name:      "created sheet keeps default title",
			cfg:       SheetsConfig{SpreadsheetTitle: "Logs", WorksheetName: "Sheet1"},
			api:       &fakeSpreadsheet{nextID: "x"},
			wantID:    "x",
			wantCalls: []string{"create Logs", "clear", "freeze"},
			wantRows:  [][]string{model.Headers},
		},
		{
			name: "existing worksheet with matching header",
			cfg:  SheetsConfig{SpreadsheetID: "abc", WorksheetName: "Sheet1"},
			api: &fakeSpreadsheet{
				sheets: []sheetInfo{{ID: 5, Title: "Sheet1"}},
				header: append([]string{" timestamp_utc "}, model.Headers[1:]...),
			},
			wantID:    "abc",
			wantCalls: []string{"sheets abc"},
		},
		{
			name: "existing worksheet with different header is left alone",
			cfg:  SheetsConfig{SpreadsheetID: "abc", WorksheetName: "Sheet1"},
			api: &fakeSpreadsheet{
				sheets: []sheetInfo{{ID: 5, Title: "Sheet1"}},
				header: []string{"date", "text"},
			},
			wantID:    "abc",
			wantCalls: []string{"sheets abc"},
		},
		{
			name: "existing empty worksheet gets header",
			cfg:  SheetsConfig{SpreadsheetID: "abc", WorksheetName: "Sheet1"},
			api: &fakeSpreadsheet{
				sheets: []sheetInfo{{ID: 5, Title: "Sheet1"}},
			},
			wantID:    "abc",
			wantCalls: []string{"sheets abc", "clear", "freeze"},
			wantRows:  [][]string{model.Headers},
		},
		{
			name: "missing worksheet is added",
			cfg:  SheetsConfig{SpreadsheetID: "abc", WorksheetName: "Matches"},
			api: &fakeSpreadsheet{
				sheets:    []sheetInfo{{ID: 0, Title: "Sheet1"}},
				headerErr: errors.New("range not found"),
			},
			wantID:    "abc",
			wantCalls: []string{"sheets abc", "add Matches", "clear", "freeze"},
			wantRows:  [][]string{model.Headers},
		},
		{
			name: "freeze failure is not fatal",
			cfg:  SheetsConfig{SpreadsheetID: "abc", WorksheetName: "Sheet1"},
			api: &fakeSpreadsheet{
				sheets:    []sheetInfo{{ID: 5, Title: "Sheet1"}},
				freezeErr: errors.New("forbidden"),
			},
			wantID:    "abc",
			wantCalls: []string{"sheets abc", "clear", "freeze"},
			wantRows:  [][]string{model.Headers},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := openSheets(ctx, tt.api, tt.cfg, discardLogger())
			if err != nil {
				t.Fatalf("openSheets: %v", err)
			}
			if diff := cmp.Diff(tt.wantID, s.SpreadsheetID()); diff != "" {
				t.Errorf("spreadsheet id (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.cfg.WorksheetName, s.WorksheetName()); diff != "" {
				t.Errorf("worksheet (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCalls, tt.api.calls); diff != "" {
				t.Errorf("calls (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRows, tt.api.rows); diff != "" {
				t.Errorf("rows (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOpenSheetsHeaderReadFailureKeepsRows(t *testing.T) {
	logged := [][]string{
		model.Headers,
		{"2024-05-01T09:30:00Z", "row one"},
		{"2024-05-01T09:31:00Z", "row two"},
	}
	api := &fakeSpreadsheet{
		sheets:    []sheetInfo{{ID: 5, Title: "Sheet1"}},
		headerErr: errors.New("503 backend unavailable"),
		rows:      logged,
	}

	_, err := openSheets(context.Background(), api, SheetsConfig{SpreadsheetID: "abc", WorksheetName: "Sheet1"}, discardLogger())
	if err == nil {
		t.Fatal("expected error when the header of an existing worksheet cannot be read")
	}
	if diff := cmp.Diff([]string{"sheets abc"}, api.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(logged, api.rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
}

func TestOpenSheetsFreezesAddedWorksheet(t *testing.T) {
	api := &fakeSpreadsheet{sheets: []sheetInfo{{ID: 0, Title: "Sheet1"}}}
	if _, err := openSheets(context.Background(), api, SheetsConfig{SpreadsheetID: "abc", WorksheetName: "Log"}, discardLogger()); err != nil {
		t.Fatalf("openSheets: %v", err)
	}
	if diff := cmp.Diff(int64(99), api.frozenOnID); diff != "" {
		t.Errorf("frozen sheet id (-want +got):\n%s", diff)
	}
}

func TestSheetsAppend(t *testing.T) {
	ctx := context.Background()
	api := &fakeSpreadsheet{sheets: []sheetInfo{{ID: 1, Title: "Sheet1"}}, header: model.Headers}
	s, err := openSheets(ctx, api, SheetsConfig{SpreadsheetID: "abc", WorksheetName: "Sheet1"}, discardLogger())
	if err != nil {
		t.Fatalf("openSheets: %v", err)
	}

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := model.MessageRecord{
		TimestampUTC:    ts,
		TimestampLocal:  ts,
		Label:           "Promo",
		ChatName:        "Deals",
		ChatID:          -1001,
		MessageID:       7,
		Text:            "buy now",
		MatchedKeywords: []string{"buy now"},
	}
	if err := s.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if diff := cmp.Diff([][]string{rec.Row()}, api.rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}

	api.appendErr = errors.New("quota exceeded")
	if err := s.Append(ctx, rec); err == nil {
		t.Fatal("expected append error")
	}
}

func TestA1Range(t *testing.T) {
	tests := []struct {
		sheet, cells, want string
	}{
		{sheet: "Sheet1", cells: "1:1", want: "'Sheet1'!1:1"},
		{sheet: "Bob's log", cells: "A1", want: "'Bob''s log'!A1"},
		{sheet: "Sheet1", cells: "", want: "'Sheet1'"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, a1Range(tt.sheet, tt.cells)); diff != "" {
			t.Errorf("a1Range(%q, %q) (-want +got):\n%s", tt.sheet, tt.cells, diff)
		}
	}
}

package sink

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"chat_watcher/internal/model"
)

const (
	worksheetRows = 2000

	valueInputOption = "USER_ENTERED"
	insertDataOption = "INSERT_ROWS"
)

type sheetInfo struct {
	ID    int64
	Title string
}

// spreadsheetAPI is the subset of the Sheets API the sink relies on.
type spreadsheetAPI interface {
	Create(ctx context.Context, title string) (id string, first sheetInfo, err error)
	Sheets(ctx context.Context, spreadsheetID string) ([]sheetInfo, error)
	AddSheet(ctx context.Context, spreadsheetID, title string, rows, cols int64) (sheetInfo, error)
	RenameSheet(ctx context.Context, spreadsheetID string, sheetID int64, title string) error
	FirstRow(ctx context.Context, spreadsheetID, sheet string) ([]string, error)
	Clear(ctx context.Context, spreadsheetID, sheet string) error
	AppendRow(ctx context.Context, spreadsheetID, sheet string, row []string) error
	FreezeHeader(ctx context.Context, spreadsheetID string, sheetID int64) error
}

// SheetsConfig selects the spreadsheet and worksheet to log into.
type SheetsConfig struct {
	ServiceAccountFile string
	SpreadsheetID      string
	SpreadsheetTitle   string
	WorksheetName      string
}

// Sheets appends records as rows of a Google Sheets worksheet.
type Sheets struct {
	api           spreadsheetAPI
	spreadsheetID string
	worksheet     string
	log           *slog.Logger
}

// OpenSheets authorizes with the service account, then opens or creates the
// spreadsheet and worksheet and makes sure the header row is in place.
func OpenSheets(ctx context.Context, cfg SheetsConfig, log *slog.Logger) (*Sheets, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.ServiceAccountFile),
		option.WithScopes(sheets.SpreadsheetsScope, sheets.DriveFileScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return openSheets(ctx, &googleSheets{svc: svc}, cfg, log)
}

func openSheets(ctx context.Context, api spreadsheetAPI, cfg SheetsConfig, log *slog.Logger) (*Sheets, error) {
	s := &Sheets{api: api, spreadsheetID: cfg.SpreadsheetID, worksheet: cfg.WorksheetName, log: log}

	var (
		sheet   sheetInfo
		created bool
	)
	if s.spreadsheetID == "" {
		log.Info("creating spreadsheet", "title", cfg.SpreadsheetTitle)
		id, first, err := api.Create(ctx, cfg.SpreadsheetTitle)
		if err != nil {
			return nil, fmt.Errorf("create spreadsheet: %w", err)
		}
		s.spreadsheetID = id
		sheet, created = first, true
		if first.Title != s.worksheet {
			if err := api.RenameSheet(ctx, id, first.ID, s.worksheet); err != nil {
				return nil, fmt.Errorf("rename worksheet: %w", err)
			}
		}
	} else {
		log.Info("opening spreadsheet", "spreadsheet_id", s.spreadsheetID)
		list, err := api.Sheets(ctx, s.spreadsheetID)
		if err != nil {
			return nil, fmt.Errorf("open spreadsheet %s: %w", s.spreadsheetID, err)
		}
		i := slices.IndexFunc(list, func(si sheetInfo) bool { return si.Title == s.worksheet })
		if i >= 0 {
			sheet = list[i]
		} else {
			log.Info("creating worksheet", "worksheet", s.worksheet)
			sheet, err = api.AddSheet(ctx, s.spreadsheetID, s.worksheet, worksheetRows, int64(len(model.Headers)))
			if err != nil {
				return nil, fmt.Errorf("add worksheet %q: %w", s.worksheet, err)
			}
			created = true
		}
	}

	if err := s.ensureHeaders(ctx, sheet.ID, created); err != nil {
		return nil, err
	}
	return s, nil
}

// SpreadsheetID returns the id of the spreadsheet in use.
func (s *Sheets) SpreadsheetID() string {
	return s.spreadsheetID
}

// WorksheetName returns the title of the worksheet rows are appended to.
func (s *Sheets) WorksheetName() string {
	return s.worksheet
}

// ensureHeaders writes the header row on a new or empty worksheet. A different
// header on an existing worksheet is kept so its data stays aligned.
func (s *Sheets) ensureHeaders(ctx context.Context, sheetID int64, newSheet bool) error {
	existing, err := s.api.FirstRow(ctx, s.spreadsheetID, s.worksheet)
	if err != nil {
		// An unreadable header on an existing worksheet must never lead to
		// clearing it.
		if !newSheet {
			return fmt.Errorf("read worksheet header: %w", err)
		}
		s.log.Warn("read worksheet header", "worksheet", s.worksheet, "error", err)
		existing = nil
	}

	trimmed := make([]string, len(existing))
	for i, v := range existing {
		trimmed[i] = strings.TrimSpace(v)
	}
	if slices.Equal(trimmed, model.Headers) {
		return nil
	}
	if len(existing) > 0 && !newSheet {
		s.log.Warn("worksheet header differs, leaving first row unchanged", "worksheet", s.worksheet)
		return nil
	}

	s.log.Info("initializing worksheet header", "worksheet", s.worksheet)
	if err := s.api.Clear(ctx, s.spreadsheetID, s.worksheet); err != nil {
		return fmt.Errorf("clear worksheet: %w", err)
	}
	if err := s.api.AppendRow(ctx, s.spreadsheetID, s.worksheet, model.Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := s.api.FreezeHeader(ctx, s.spreadsheetID, sheetID); err != nil {
		s.log.Debug("freeze header row", "worksheet", s.worksheet, "error", err)
	}
	return nil
}

// Append adds rec as a new row.
func (s *Sheets) Append(ctx context.Context, rec model.MessageRecord) error {
	if err := s.api.AppendRow(ctx, s.spreadsheetID, s.worksheet, rec.Row()); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

// googleSheets implements spreadsheetAPI over the Sheets v4 client.
type googleSheets struct {
	svc *sheets.Service
}

func (g *googleSheets) Create(ctx context.Context, title string) (string, sheetInfo, error) {
	resp, err := g.svc.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", sheetInfo{}, err
	}
	var first sheetInfo
	if len(resp.Sheets) > 0 && resp.Sheets[0].Properties != nil {
		first = sheetInfo{ID: resp.Sheets[0].Properties.SheetId, Title: resp.Sheets[0].Properties.Title}
	}
	return resp.SpreadsheetId, first, nil
}

func (g *googleSheets) Sheets(ctx context.Context, spreadsheetID string) ([]sheetInfo, error) {
	resp, err := g.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	list := make([]sheetInfo, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties == nil {
			continue
		}
		list = append(list, sheetInfo{ID: sh.Properties.SheetId, Title: sh.Properties.Title})
	}
	return list, nil
}

func (g *googleSheets) AddSheet(ctx context.Context, spreadsheetID, title string, rows, cols int64) (sheetInfo, error) {
	resp, err := g.batchUpdate(ctx, spreadsheetID, &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{
				Title:          title,
				GridProperties: &sheets.GridProperties{RowCount: rows, ColumnCount: cols},
			},
		},
	})
	if err != nil {
		return sheetInfo{}, err
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return sheetInfo{}, fmt.Errorf("add sheet %q: empty reply", title)
	}
	props := resp.Replies[0].AddSheet.Properties
	return sheetInfo{ID: props.SheetId, Title: props.Title}, nil
}

func (g *googleSheets) RenameSheet(ctx context.Context, spreadsheetID string, sheetID int64, title string) error {
	_, err := g.batchUpdate(ctx, spreadsheetID, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         sheetID,
				Title:           title,
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "title",
		},
	})
	return err
}

func (g *googleSheets) FirstRow(ctx context.Context, spreadsheetID, sheet string) ([]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, a1Range(sheet, "1:1")).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	row := make([]string, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		row[i] = fmt.Sprint(v)
	}
	return row, nil
}

func (g *googleSheets) Clear(ctx context.Context, spreadsheetID, sheet string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(spreadsheetID, a1Range(sheet, ""), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	return err
}

func (g *googleSheets) AppendRow(ctx context.Context, spreadsheetID, sheet string, row []string) error {
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	_, err := g.svc.Spreadsheets.Values.Append(spreadsheetID, a1Range(sheet, "A1"), &sheets.ValueRange{
		Values: [][]any{values},
	}).ValueInputOption(valueInputOption).InsertDataOption(insertDataOption).Context(ctx).Do()
	return err
}

func (g *googleSheets) FreezeHeader(ctx context.Context, spreadsheetID string, sheetID int64) error {
	_, err := g.batchUpdate(ctx, spreadsheetID, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         sheetID,
				GridProperties:  &sheets.GridProperties{FrozenRowCount: 1},
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "gridProperties.frozenRowCount",
		},
	})
	return err
}

func (g *googleSheets) batchUpdate(ctx context.Context, spreadsheetID string, req *sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	return g.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{req},
	}).Context(ctx).Do()
}

// a1Range quotes sheet for A1 notation and appends cells when given.
func a1Range(sheet, cells string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

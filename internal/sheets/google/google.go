// Package google mirrors expense records into a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"roomsplit/internal/core"
	"roomsplit/internal/log"
)

// Header is the first row of the mirror sheet.
var Header = []any{"ID", "Date", "Item", "Amount", "Payer", "Note"}

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *log.Logger

	mu      sync.Mutex
	sheetID *int64
}

// New creates a Sheets client using service account credentials, given
// inline or as a file. GOOGLE_APPLICATION_CREDENTIALS is the last fallback.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Expenses"
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheetName,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

func credentials(cfg Config) ([]byte, error) {
	if j := strings.TrimSpace(cfg.ServiceAccountJSON); j != "" {
		return []byte(j), nil
	}
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func (c *Client) rng(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(c.sheet, "'", "''"), cells)
}

// EnsureHeader writes the header row when the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rng("A1:F1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", c.sheet, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	vr := &gsheet.ValueRange{Values: [][]any{Header}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rng("A1:F1"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", c.sheet, err)
	}
	c.logger.InfoContext(ctx, "Wrote mirror header", "sheet", c.sheet)
	return nil
}

// AppendExpense adds one row for e. A row with the same ID is left alone,
// so redelivered events do not duplicate rows.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	row, err := c.findRow(ctx, e.ID)
	if err != nil {
		return err
	}
	if row >= 0 {
		c.logger.DebugContext(ctx, "Expense already mirrored", log.FieldExpenseID, e.ID)
		return nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{{
		e.ID,
		e.Date.Format(time.DateOnly),
		e.Item,
		e.Amount.Decimal().InexactFloat64(),
		e.Payer,
		e.Note,
	}}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.rng("A:F"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append expense %s to %s: %w", e.ID, c.sheet, err)
	}
	return nil
}

// DeleteExpense removes the row whose first column is id. A missing row is
// not an error.
func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	row, err := c.findRow(ctx, id)
	if err != nil {
		return err
	}
	if row < 0 {
		c.logger.DebugContext(ctx, "Expense not in mirror", log.FieldExpenseID, id)
		return nil
	}
	sheetID, err := c.lookupSheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row),
			EndIndex:   int64(row + 1),
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d of %s: %w", row+1, c.sheet, err)
	}
	return nil
}

// Clear removes every data row and keeps the header.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, c.rng("A2:F"), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", c.sheet, err)
	}
	return nil
}

// findRow returns the zero-based row index holding id, or -1.
func (c *Client) findRow(ctx context.Context, id string) (int, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return -1, fmt.Errorf("read ids of %s: %w", c.sheet, err)
	}
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i, nil
		}
	}
	return -1, nil
}

func (c *Client) lookupSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetID != nil {
		return *c.sheetID, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheet {
			id := s.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheet)
}

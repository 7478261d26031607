package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"combolift/domain/combo"
	"combolift/internal"
	"combolift/ports"

	"github.com/xuri/excelize/v2"
)

// EngagementSheet is the sheet read from and written to xlsx engagement files
const EngagementSheet = "Sheet1"

// EngagementColumns is the header row of an engagement file
var EngagementColumns = []string{
	"user_id", "creator_id", "portfolio_ticker", "profile_views", "pdp_views",
	"did_subscribe", "subscription_count", "did_copy", "copy_count", "event_date",
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01-02-06"}

// FileLoader reads engagement rows from an xlsx or csv export
type FileLoader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

var _ ports.EngagementLoader = (*FileLoader)(nil)

// NewFileLoader picks the format from the file extension
func NewFileLoader(filePath string) *FileLoader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &FileLoader{
		filePath: filePath,
		fileType: fileType,
		logger:   internal.DefaultLogger.With("excel-loader"),
	}
}

// LoadEngagement reads the whole file and keeps rows inside the window.
// Rows without an event date are always kept.
func (l *FileLoader) LoadEngagement(ctx context.Context, window ports.Window) ([]combo.EngagementRow, error) {
	if _, err := os.Stat(l.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(l.fileType), l.filePath)
	}

	start := time.Now()
	var records [][]string
	var err error
	switch l.fileType {
	case "csv":
		records, err = l.readCSV()
	default:
		records, err = l.readXLSX()
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header row", l.filePath)
	}

	index := headerIndex(records[0])
	if _, ok := index["user_id"]; !ok {
		return nil, fmt.Errorf("%s is missing the user_id column", l.filePath)
	}

	rows := make([]combo.EngagementRow, 0, len(records)-1)
	skipped := 0
	for i, record := range records[1:] {
		row, err := parseRow(index, record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if !row.EventDate.IsZero() && !window.Contains(row.EventDate) {
			skipped++
			continue
		}
		rows = append(rows, row)
	}

	l.logger.Debug("read %d rows from %s in %s (%d outside window)", len(rows), l.filePath, time.Since(start), skipped)
	return rows, nil
}

func (l *FileLoader) readXLSX() ([][]string, error) {
	f, err := excelize.OpenFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(EngagementSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", EngagementSheet, err)
	}
	return rows, nil
}

func (l *FileLoader) readCSV() ([][]string, error) {
	file, err := os.Open(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return records, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return index
}

func parseRow(index map[string]int, record []string) (combo.EngagementRow, error) {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var row combo.EngagementRow
	var err error
	row.UserID = cell("user_id")
	row.CreatorID = cell("creator_id")
	row.PortfolioTicker = cell("portfolio_ticker")

	if row.ProfileViews, err = parseCount(cell("profile_views")); err != nil {
		return row, fmt.Errorf("profile_views: %w", err)
	}
	if row.PDPViews, err = parseCount(cell("pdp_views")); err != nil {
		return row, fmt.Errorf("pdp_views: %w", err)
	}
	if row.SubscriptionCount, err = parseCount(cell("subscription_count")); err != nil {
		return row, fmt.Errorf("subscription_count: %w", err)
	}
	if row.CopyCount, err = parseCount(cell("copy_count")); err != nil {
		return row, fmt.Errorf("copy_count: %w", err)
	}
	if row.DidSubscribe, err = parseFlag(cell("did_subscribe")); err != nil {
		return row, fmt.Errorf("did_subscribe: %w", err)
	}
	if row.DidCopy, err = parseFlag(cell("did_copy")); err != nil {
		return row, fmt.Errorf("did_copy: %w", err)
	}
	if row.EventDate, err = parseDate(cell("event_date")); err != nil {
		return row, fmt.Errorf("event_date: %w", err)
	}
	return row, nil
}

// parseCount accepts integers and integral floats ("3.0" from spreadsheet exports)
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "no", "n":
		return false, nil
	case "1", "true", "yes", "y":
		return true, nil
	}
	return strconv.ParseBool(s)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"combolift/domain/combo"
	"combolift/internal"
	"combolift/ports"

	"github.com/tidwall/gjson"
)

// Source describes a paged JSON endpoint serving engagement rows
type Source struct {
	BaseURL   string
	AuthToken string
	// DataPath is the gjson path of the row array in each page
	DataPath string
	// CursorPath is the gjson path of the next-page cursor; empty tries common names
	CursorPath string
	PageSize   int
	MaxPages   int
	Timeout    time.Duration
}

// DefaultSource fills the paging defaults for baseURL
func DefaultSource(baseURL string) Source {
	return Source{
		BaseURL:  baseURL,
		DataPath: "data",
		PageSize: 1000,
		MaxPages: 10000,
		Timeout:  30 * time.Second,
	}
}

var cursorFields = []string{"next_cursor", "cursor", "next", "continuation_token"}

// Loader pulls engagement rows from an analytics export API.
// It follows the cursor until a page comes back without one.
type Loader struct {
	source     Source
	httpClient *http.Client
	logger     *internal.Logger
}

var _ ports.EngagementLoader = (*Loader)(nil)

// NewLoader creates a loader for the source
func NewLoader(source Source) *Loader {
	if source.PageSize <= 0 {
		source.PageSize = 1000
	}
	if source.MaxPages <= 0 {
		source.MaxPages = 10000
	}
	if source.DataPath == "" {
		source.DataPath = "data"
	}
	return &Loader{
		source:     source,
		httpClient: &http.Client{Timeout: source.Timeout},
		logger:     internal.DefaultLogger.With("api-loader"),
	}
}

// LoadEngagement fetches every page for the window
func (l *Loader) LoadEngagement(ctx context.Context, window ports.Window) ([]combo.EngagementRow, error) {
	start := time.Now()
	var rows []combo.EngagementRow
	cursor := ""

	for page := 0; ; page++ {
		if page >= l.source.MaxPages {
			return nil, fmt.Errorf("page limit %d reached before the last page", l.source.MaxPages)
		}

		body, err := l.fetch(ctx, l.buildURL(window, cursor))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		pageRows, err := l.parsePage(body)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		rows = append(rows, pageRows...)

		cursor = l.nextCursor(body)
		if cursor == "" {
			l.logger.Debug("fetched %d rows in %d pages in %s", len(rows), page+1, time.Since(start))
			return rows, nil
		}
	}
}

// buildURL adds the window and paging parameters to the base URL
func (l *Loader) buildURL(window ports.Window, cursor string) string {
	params := url.Values{}
	if !window.From.IsZero() {
		params.Set("from", window.From.UTC().Format(time.RFC3339))
	}
	if !window.To.IsZero() {
		params.Set("to", window.To.UTC().Format(time.RFC3339))
	}
	params.Set("limit", strconv.Itoa(l.source.PageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	return l.source.BaseURL + "?" + params.Encode()
}

func (l *Loader) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if l.source.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+l.source.AuthToken)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// parsePage reads the row array at DataPath; missing fields take zero values
func (l *Loader) parsePage(body []byte) ([]combo.EngagementRow, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	data := gjson.GetBytes(body, l.source.DataPath)
	if !data.Exists() {
		return nil, fmt.Errorf("data path '%s' not found in response", l.source.DataPath)
	}
	if !data.IsArray() {
		return nil, fmt.Errorf("data path '%s' is not an array", l.source.DataPath)
	}

	var rows []combo.EngagementRow
	var parseErr error
	data.ForEach(func(_, rec gjson.Result) bool {
		row := combo.EngagementRow{
			UserID:            rec.Get("user_id").String(),
			CreatorID:         rec.Get("creator_id").String(),
			PortfolioTicker:   rec.Get("portfolio_ticker").String(),
			ProfileViews:      int(rec.Get("profile_views").Int()),
			PDPViews:          int(rec.Get("pdp_views").Int()),
			DidSubscribe:      rec.Get("did_subscribe").Bool(),
			SubscriptionCount: int(rec.Get("subscription_count").Int()),
			DidCopy:           rec.Get("did_copy").Bool(),
			CopyCount:         int(rec.Get("copy_count").Int()),
		}
		if date := rec.Get("event_date"); date.Exists() && date.String() != "" {
			t, err := time.Parse(time.RFC3339, date.String())
			if err != nil {
				parseErr = fmt.Errorf("row %d: event_date: %w", len(rows), err)
				return false
			}
			row.EventDate = t.UTC()
		}
		rows = append(rows, row)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return rows, nil
}

func (l *Loader) nextCursor(body []byte) string {
	if l.source.CursorPath != "" {
		return gjson.GetBytes(body, l.source.CursorPath).String()
	}
	for _, field := range cursorFields {
		if cursor := gjson.GetBytes(body, field); cursor.Exists() && cursor.String() != "" {
			return cursor.String()
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

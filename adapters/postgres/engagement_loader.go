package postgres

import (
	"context"
	"fmt"

	"combolift/domain/combo"
	"combolift/ports"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// DefaultPageSize is the number of engagement rows fetched per round trip
const DefaultPageSize = 5000

// psql builds statements with $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// engagementRecord carries the paging key alongside the row
type engagementRecord struct {
	ID int64 `db:"id"`
	combo.EngagementRow
}

// engagementLoader reads the user_engagement table in id-ordered pages
type engagementLoader struct {
	db       *sqlx.DB
	pageSize uint64
}

var _ ports.EngagementLoader = (*engagementLoader)(nil)

// NewEngagementLoader creates a loader over user_engagement; pageSize <= 0 uses DefaultPageSize
func NewEngagementLoader(db *sqlx.DB, pageSize int) ports.EngagementLoader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &engagementLoader{db: db, pageSize: uint64(pageSize)}
}

// LoadEngagement pages through the window until a short page comes back
func (l *engagementLoader) LoadEngagement(ctx context.Context, window ports.Window) ([]combo.EngagementRow, error) {
	var rows []combo.EngagementRow
	var afterID int64
	for {
		query, args, err := engagementPageQuery(window, afterID, l.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to build engagement query: %w", err)
		}

		var page []engagementRecord
		if err := l.db.SelectContext(ctx, &page, query, args...); err != nil {
			return nil, fmt.Errorf("failed to load engagement page after id %d: %w", afterID, err)
		}

		for _, rec := range page {
			rows = append(rows, rec.EngagementRow)
		}
		if uint64(len(page)) < l.pageSize {
			return rows, nil
		}
		afterID = page[len(page)-1].ID
	}
}

func engagementPageQuery(window ports.Window, afterID int64, pageSize uint64) (string, []interface{}, error) {
	q := psql.Select(
		"id",
		"user_id",
		"COALESCE(creator_id, '') AS creator_id",
		"COALESCE(portfolio_ticker, '') AS portfolio_ticker",
		"COALESCE(profile_views, 0) AS profile_views",
		"COALESCE(pdp_views, 0) AS pdp_views",
		"COALESCE(did_subscribe, false) AS did_subscribe",
		"COALESCE(subscription_count, 0) AS subscription_count",
		"COALESCE(did_copy, false) AS did_copy",
		"COALESCE(copy_count, 0) AS copy_count",
		"event_date",
	).
		From("user_engagement").
		Where(sq.Gt{"id": afterID})

	if !window.From.IsZero() {
		q = q.Where(sq.GtOrEq{"event_date": window.From})
	}
	if !window.To.IsZero() {
		q = q.Where(sq.Lt{"event_date": window.To})
	}

	return q.OrderBy("id").Limit(pageSize).ToSql()
}

package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"combolift/domain/combo"
	"combolift/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestWriteEngagement_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engagement.xlsx")
	rows := []combo.EngagementRow{
		{UserID: "u1", CreatorID: "c1", ProfileViews: 3, DidSubscribe: true, SubscriptionCount: 2, EventDate: day(1)},
		{UserID: "u1", CreatorID: "c2", ProfileViews: 1, DidSubscribe: true, SubscriptionCount: 2, EventDate: day(2)},
		{UserID: "u2", PortfolioTicker: "TECH", PDPViews: 5, DidCopy: true, CopyCount: 1, EventDate: day(3)},
	}
	require.NoError(t, WriteEngagement(path, rows))

	loaded, err := NewFileLoader(path).LoadEngagement(context.Background(), ports.Window{})
	require.NoError(t, err)
	assert.Equal(t, rows, loaded)
}

func TestLoadEngagement_WindowFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engagement.xlsx")
	rows := []combo.EngagementRow{
		{UserID: "u1", CreatorID: "c1", EventDate: day(1)},
		{UserID: "u2", CreatorID: "c1", EventDate: day(10)},
		{UserID: "u3", CreatorID: "c1", EventDate: day(20)},
		{UserID: "u4", CreatorID: "c1"},
	}
	require.NoError(t, WriteEngagement(path, rows))

	loaded, err := NewFileLoader(path).LoadEngagement(context.Background(), ports.Window{From: day(5), To: day(20)})
	require.NoError(t, err)

	var users []string
	for _, r := range loaded {
		users = append(users, r.UserID)
	}
	assert.Equal(t, []string{"u2", "u4"}, users)
}

func TestLoadEngagement_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engagement.csv")
	content := "User_ID,creator_id,profile_views,did_subscribe,subscription_count,event_date\n" +
		"u1,c1,2.0,yes,1,2025-06-01\n" +
		"u2,c2,,0,,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loaded, err := NewFileLoader(path).LoadEngagement(context.Background(), ports.Window{})
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, combo.EngagementRow{
		UserID: "u1", CreatorID: "c1", ProfileViews: 2, DidSubscribe: true, SubscriptionCount: 1, EventDate: day(1),
	}, loaded[0])
	assert.Equal(t, combo.EngagementRow{UserID: "u2", CreatorID: "c2"}, loaded[1])
}

func TestLoadEngagement_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileLoader(filepath.Join(dir, "missing.xlsx")).LoadEngagement(context.Background(), ports.Window{})
	assert.ErrorContains(t, err, "not found")

	noUser := filepath.Join(dir, "no_user.csv")
	require.NoError(t, os.WriteFile(noUser, []byte("creator_id\nc1\n"), 0o644))
	_, err = NewFileLoader(noUser).LoadEngagement(context.Background(), ports.Window{})
	assert.ErrorContains(t, err, "user_id")

	badFlag := filepath.Join(dir, "bad_flag.csv")
	require.NoError(t, os.WriteFile(badFlag, []byte("user_id,did_copy\nu1,maybe\n"), 0o644))
	_, err = NewFileLoader(badFlag).LoadEngagement(context.Background(), ports.Window{})
	assert.ErrorContains(t, err, "row 2: did_copy")
}

func TestExportResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	results := []combo.CombinationResult{
		{Rank: 1, Combination: combo.Combination{A: "c1", B: "c2"}, DisplayName1: "Alpha", DisplayName2: "Beta", Lift: 2, TotalConversions: 6},
		{Rank: 2, Combination: combo.Combination{A: "c1", B: "c3"}, Lift: 1.5, TotalConversions: 4},
	}
	require.NoError(t, ExportResults(path, combo.SubscriptionPairs, results))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{string(combo.SubscriptionPairs)}, f.GetSheetList())
	rows, err := f.GetRows(string(combo.SubscriptionPairs))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ResultColumns, rows[0])
	assert.Equal(t, []string{"1", "c1", "Alpha", "c2", "Beta"}, rows[1][:5])
	assert.Equal(t, "12", rows[1][10])
}

package sqlstore

import (
	"strings"
	"testing"
	"time"

	"combolift/domain/combo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertResultsQuery_OneStatementPerBatch(t *testing.T) {
	batch := []combo.CombinationResult{
		{Rank: 1, Combination: combo.Combination{A: "a", B: "b"}, Lift: 2},
		{Rank: 2, Combination: combo.Combination{A: "a", B: "c"}, Lift: 1.5},
		{Rank: 3, Combination: combo.Combination{A: "b", B: "c"}, Lift: 1.1},
	}

	query, args, err := insertResultsQuery(Postgres.builder(), combo.SubscriptionPairs, batch)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO combination_results"))
	assert.Equal(t, 2, strings.Count(query, "),("))
	assert.Len(t, args, len(resultColumns)*len(batch))
	assert.Equal(t, string(combo.SubscriptionPairs), args[0])
	assert.Equal(t, "a", args[2])
	assert.Equal(t, "b", args[3])
	assert.Contains(t, query, "$72")
}

func TestListResultsQuery(t *testing.T) {
	query, args, err := listResultsQuery(Postgres.builder(), combo.CopyPairs, 25)
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE analysis_type = $1 ORDER BY rank LIMIT 25")
	assert.Equal(t, []interface{}{string(combo.CopyPairs)}, args)

	query, _, err = listResultsQuery(Postgres.builder(), combo.CopyPairs, 0)
	require.NoError(t, err)
	assert.NotContains(t, query, "LIMIT")
}

func TestResultRow_ToDomain(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := resultRow{
		AnalysisType:     string(combo.CreatorCopyPairs),
		Rank:             4,
		EntityID1:        "x",
		EntityID2:        "y",
		DisplayName1:     "X Capital",
		Lift:             1.8,
		TotalConversions: 9,
		AnalyzedAt:       at,
	}

	res := row.toDomain()
	assert.Equal(t, combo.Combination{A: "x", B: "y"}, res.Combination)
	assert.Equal(t, 4, res.Rank)
	assert.Equal(t, "X Capital", res.DisplayName1)
	assert.InDelta(t, 16.2, res.ExpectedValue(), 1e-9)
	assert.Equal(t, at, res.AnalyzedAt)
}

func TestSQLiteDialectUsesQuestionMarks(t *testing.T) {
	query, _, err := listResultsQuery(SQLite.builder(), combo.CopyPairs, 5)
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE analysis_type = ? ORDER BY rank LIMIT 5")
}

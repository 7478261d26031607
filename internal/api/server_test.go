package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"combolift/domain/combo"
	"combolift/internal/errors"
	"combolift/ports"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, t combo.AnalysisType) (*combo.RunReport, error) {
	args := m.Called(ctx, t)
	rep, _ := args.Get(0).(*combo.RunReport)
	return rep, args.Error(1)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ReplaceResults(ctx context.Context, t combo.AnalysisType, results []combo.CombinationResult) error {
	args := m.Called(ctx, t, results)
	return args.Error(0)
}

func (m *MockRepository) ListResults(ctx context.Context, t combo.AnalysisType, limit int) ([]combo.CombinationResult, error) {
	args := m.Called(ctx, t, limit)
	results, _ := args.Get(0).([]combo.CombinationResult)
	return results, args.Error(1)
}

func (m *MockRepository) RecordRun(ctx context.Context, run ports.RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRepository) LatestRun(ctx context.Context, t combo.AnalysisType) (*ports.RunRecord, error) {
	args := m.Called(ctx, t)
	run, _ := args.Get(0).(*ports.RunRecord)
	return run, args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStartRun_ReturnsReport(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Run", mock.Anything, combo.CopyPairs).Return(&combo.RunReport{
		AnalysisType: combo.CopyPairs,
		Status:       combo.RunInsufficientData,
		Warning:      "insufficient data: population below minimum",
		Results:      []combo.CombinationResult{},
	}, nil)
	s := NewServer(runner, &MockRepository{})

	rec := serve(s, http.MethodPost, "/api/analyses/copy_pairs/runs")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "insufficient_data", body["status"])
	assert.Equal(t, "copy_pairs", body["analysis_type"])
	runner.AssertExpectations(t)
}

func TestStartRun_UnknownAnalysisType(t *testing.T) {
	runner := &MockRunner{}
	s := NewServer(runner, &MockRepository{})

	rec := serve(s, http.MethodPost, "/api/analyses/bogus/runs")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestStartRun_UpstreamFailureIsBadGateway(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Run", mock.Anything, combo.SubscriptionPairs).
		Return(nil, errors.UpstreamIO("load engagement", stderrors.New("connection refused")))
	s := NewServer(runner, &MockRepository{})

	rec := serve(s, http.MethodPost, "/api/analyses/subscription_pairs/runs")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, errors.CodeUpstreamIO, decode(t, rec)["code"])
}

func TestStartRun_ConcurrentRunIsRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := &MockRunner{}
	runner.On("Run", mock.Anything, combo.SubscriptionPairs).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&combo.RunReport{Status: combo.RunCompleted}, nil).Once()
	s := NewServer(runner, &MockRepository{})

	first := make(chan *httptest.ResponseRecorder)
	go func() { first <- serve(s, http.MethodPost, "/api/analyses/subscription_pairs/runs") }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}
	second := serve(s, http.MethodPost, "/api/analyses/subscription_pairs/runs")
	close(release)

	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, http.StatusOK, (<-first).Code)
	runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestListResults(t *testing.T) {
	repo := &MockRepository{}
	repo.On("ListResults", mock.Anything, combo.CreatorCopyPairs, 5).Return([]combo.CombinationResult{
		{Rank: 1, Combination: combo.Combination{A: "c1", B: "c2"}, Lift: 2},
	}, nil)
	s := NewServer(&MockRunner{}, repo)

	rec := serve(s, http.MethodGet, "/api/analyses/creator_copy_pairs/results?limit=5")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	repo.AssertExpectations(t)
}

func TestListResults_DefaultLimitAndBadLimit(t *testing.T) {
	repo := &MockRepository{}
	repo.On("ListResults", mock.Anything, combo.CopyPairs, DefaultResultLimit).Return(nil, nil)
	s := NewServer(&MockRunner{}, repo)

	rec := serve(s, http.MethodGet, "/api/analyses/copy_pairs/results")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["results"])

	rec = serve(s, http.MethodGet, "/api/analyses/copy_pairs/results?limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestRun_NotFound(t *testing.T) {
	repo := &MockRepository{}
	repo.On("LatestRun", mock.Anything, combo.CopyPairs).Return(nil, nil)
	s := NewServer(&MockRunner{}, repo)

	rec := serve(s, http.MethodGet, "/api/analyses/copy_pairs/runs/latest")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeNotFound, decode(t, rec)["code"])
}

func TestReport_MarkdownAndHTML(t *testing.T) {
	repo := &MockRepository{}
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.On("LatestRun", mock.Anything, combo.SubscriptionPairs).Return(&ports.RunRecord{
		AnalysisType: combo.SubscriptionPairs,
		Status:       combo.RunCompleted,
		StartedAt:    at,
		FinishedAt:   at.Add(time.Second),
	}, nil)
	repo.On("ListResults", mock.Anything, combo.SubscriptionPairs, mock.Anything).Return([]combo.CombinationResult{
		{Rank: 1, Combination: combo.Combination{A: "c1", B: "c2"}, Lift: 2, TotalConversions: 3},
	}, nil)
	s := NewServer(&MockRunner{}, repo)

	rec := serve(s, http.MethodGet, "/api/analyses/subscription_pairs/report")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# subscription_pairs"))

	rec = serve(s, http.MethodGet, "/api/analyses/subscription_pairs/report?format=html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<table>")

	rec = serve(s, http.MethodGet, "/api/analyses/subscription_pairs/report?format=pdf")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAnalyses(t *testing.T) {
	s := NewServer(&MockRunner{}, &MockRepository{})

	rec := serve(s, http.MethodGet, "/api/analyses")

	assert.Equal(t, http.StatusOK, rec.Code)
	analyses := decode(t, rec)["analyses"].([]any)
	assert.Len(t, analyses, len(combo.AnalysisTypes()))
}

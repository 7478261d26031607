package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(context.Context) error { return p.err }

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestOpsRouter_Readiness(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(NewOpsRouter(stubPinger{}, false), "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(NewOpsRouter(nil, false), "/readyz").Code)

	rec := get(NewOpsRouter(stubPinger{err: stderrors.New("db down")}, false), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestOpsRouter_Metrics(t *testing.T) {
	rec := get(NewOpsRouter(nil, true), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusNotFound, get(NewOpsRouter(nil, false), "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(NewOpsRouter(nil, false), "/healthz").Code)
}

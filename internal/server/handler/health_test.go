package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeedStatus struct {
	counts map[string]int
	cycles map[string]int64
}

func (f *fakeFeedStatus) Counts() map[string]int { return f.counts }

func (f *fakeFeedStatus) Cycles() map[string]int64 { return f.cycles }

func healthLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthCheckBeforeFirstCycle(t *testing.T) {
	h := NewHealthHandler(&fakeFeedStatus{
		counts: map[string]int{},
		cycles: map[string]int64{},
	}, healthLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "feed not ready")
}

func TestHealthCheckAfterFirstCycle(t *testing.T) {
	h := NewHealthHandler(&fakeFeedStatus{
		counts: map[string]int{"binance": 300, "bitget": 250},
		cycles: map[string]int64{"binance": 2, "bitget": 1},
	}, healthLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(300), body["binance"])
	assert.Equal(t, float64(250), body["bitget"])
}

func TestHealthCheckOneVenueCycled(t *testing.T) {
	// One venue producing is enough to serve; the other keeps retrying.
	h := NewHealthHandler(&fakeFeedStatus{
		counts: map[string]int{"binance": 300},
		cycles: map[string]int64{"binance": 1, "bitget": 0},
	}, healthLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthCheckWithoutFeed(t *testing.T) {
	h := NewHealthHandler(nil, healthLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "stages without a feed are ready immediately")
}

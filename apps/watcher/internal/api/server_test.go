package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
	"transferwatch/apps/watcher/internal/notify"
	"transferwatch/apps/watcher/internal/pipeline"
)

type fakeStatus struct {
	state  pipeline.State
	report *pipeline.Report
}

func (f fakeStatus) State() pipeline.State { return f.state }

func (f fakeStatus) LastReport() (pipeline.Report, bool) {
	if f.report == nil {
		return pipeline.Report{}, false
	}
	return *f.report, true
}

type fakeCheckpoints struct {
	cursor *model.Cursor
	err    error
}

func (f fakeCheckpoints) GetCheckpoint(context.Context, string) (*model.Cursor, error) {
	return f.cursor, f.err
}

func (f fakeCheckpoints) PutCheckpoint(context.Context, string, uint64) error { return nil }

type fakeTransfers struct {
	records  []model.TransferRecord
	err      error
	gotLimit int
	gotChain string
}

func (f *fakeTransfers) ListTransfers(_ context.Context, chainID string, limit int) ([]model.TransferRecord, error) {
	f.gotChain = chainID
	f.gotLimit = limit
	return f.records, f.err
}

func newTestServer(status RunStatus, cp fakeCheckpoints, transfers *fakeTransfers) http.Handler {
	logger := zap.NewNop()
	return NewServer(0, NewStatusHandler(status, cp, logger), NewTransferHandler(transfers, logger), logger).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("NoRunYet", func(t *testing.T) {
		h := newTestServer(fakeStatus{state: pipeline.StateScan}, fakeCheckpoints{}, &fakeTransfers{})
		rec := get(t, h, "/api/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "scan", body.State)
		assert.Nil(t, body.LastRun)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("FailedRun", func(t *testing.T) {
		report := &pipeline.Report{
			Outcome:         pipeline.OutcomeFailed,
			LastCommitted:   15000100,
			RangesCommitted: 1,
			Candidates:      make([]model.AlertCandidate, 3),
			Dispatch:        notify.Result{Sent: 2},
			Duration:        1500 * time.Millisecond,
		}
		h := newTestServer(fakeStatus{state: pipeline.StateIdle, report: report}, fakeCheckpoints{}, &fakeTransfers{})
		rec := get(t, h, "/api/health")

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "degraded", body.Status)
		require.NotNil(t, body.LastRun)
		assert.Equal(t, uint64(15000100), body.LastRun.LastCommitted)
		assert.Equal(t, 3, body.LastRun.Alerts)
		assert.Equal(t, 2, body.LastRun.MessagesSent)
		assert.Equal(t, int64(1500), body.LastRun.DurationMs)
	})
}

func TestHealthRegistryDegraded(t *testing.T) {
	report := &pipeline.Report{Outcome: pipeline.OutcomeDegraded, LastCommitted: 15000250}
	h := newTestServer(fakeStatus{state: pipeline.StateIdle, report: report}, fakeCheckpoints{}, &fakeTransfers{})

	var body HealthResponse
	require.NoError(t, json.NewDecoder(get(t, h, "/api/health").Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, pipeline.OutcomeDegraded, body.LastRun.Outcome)
}

func TestGetCursor(t *testing.T) {
	status := fakeStatus{state: pipeline.StateIdle}

	t.Run("Found", func(t *testing.T) {
		cp := fakeCheckpoints{cursor: &model.Cursor{ChainID: "root", LastProcessedBlock: 15000200, UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}}
		rec := get(t, newTestServer(status, cp, &fakeTransfers{}), "/api/cursor/root")
		require.Equal(t, http.StatusOK, rec.Code)

		var body CursorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "root", body.ChainID)
		assert.Equal(t, uint64(15000200), body.LastProcessedBlock)
		require.NotNil(t, body.UpdatedAt)
	})

	t.Run("Missing", func(t *testing.T) {
		rec := get(t, newTestServer(status, fakeCheckpoints{}, &fakeTransfers{}), "/api/cursor/root")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("StoreError", func(t *testing.T) {
		rec := get(t, newTestServer(status, fakeCheckpoints{err: errors.New("down")}, &fakeTransfers{}), "/api/cursor/root")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "store_error", body.Error)
	})
}

func TestListTransfers(t *testing.T) {
	status := fakeStatus{state: pipeline.StateIdle}
	raw := big.NewInt(2500000)
	transfers := &fakeTransfers{records: []model.TransferRecord{{
		ChainID:     "root",
		EventID:     "0015000001-000002",
		Kind:        model.KindBalancesTransfer,
		From:        "0xaaa",
		To:          "0xbbb",
		RawAmount:   raw,
		Amount:      decimal.NewFromBigInt(raw, -6),
		AssetSymbol: "ROOT",
		Block:       15000001,
	}}}
	h := newTestServer(status, fakeCheckpoints{}, transfers)

	rec := get(t, h, "/api/transfers/root?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []TransferResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "2.5", body[0].Amount)
	assert.Equal(t, "2500000", body[0].RawAmount)
	assert.Equal(t, "root", transfers.gotChain)
	assert.Equal(t, 10, transfers.gotLimit)

	get(t, h, "/api/transfers/root")
	assert.Equal(t, defaultTransferLimit, transfers.gotLimit)

	get(t, h, "/api/transfers/root?limit=100000")
	assert.Equal(t, maxTransferLimit, transfers.gotLimit)

	rec = get(t, h, "/api/transfers/root?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(fakeStatus{state: pipeline.StateIdle}, fakeCheckpoints{}, &fakeTransfers{})
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/cursor"
	"transferwatch/apps/watcher/internal/model"
	"transferwatch/apps/watcher/internal/normalizer"
	"transferwatch/apps/watcher/internal/notify"
	"transferwatch/apps/watcher/internal/persistence"
	"transferwatch/apps/watcher/internal/source"
	"transferwatch/apps/watcher/internal/threshold"
)

// fakeIndexer answers the head and event queries of the archive GraphQL API.
func fakeIndexer(t *testing.T, head uint64, eventQueries *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		if strings.Contains(req.Query, "query Head") {
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"archive": map[string]any{"block": []map[string]any{{"height": head}}}},
			})
			return
		}

		eventQueries.Add(1)
		events := []map[string]any{}
		if req.Variables["offset"] == float64(0) {
			events = append(events, map[string]any{
				"id":           "0015000010-000002-abcde",
				"name":         "Balances.Transfer",
				"args":         map[string]any{"from": walletW, "to": recipient, "amount": "9000000"},
				"extrinsic_id": "0015000010-000001-abcde",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"archive": map[string]any{"event": events}},
		})
	}))
}

func TestRunAgainstIndexer(t *testing.T) {
	var eventQueries atomic.Int32
	server := fakeIndexer(t, 15000050, &eventQueries)
	defer server.Close()

	logger := zap.NewNop()
	cursors := &memCursorStore{rows: map[string]uint64{}}
	transfers := &memTransferStore{rows: map[string]model.TransferRecord{}, failOn: map[string]bool{}}
	sender := &recordingSender{}

	p := New(Options{ChainID: chainID, MaxBlockSpan: 100}, Components{
		Registry: &fakeRegistry{items: []model.TrackingItem{
			{Type: model.EntityWallet, Address: walletW},
		}},
		Cursor:     cursor.NewManager(cursors, genesis, logger),
		Source:     source.WithRetry(source.NewIndexerSource(server.URL, "", logger), 2, time.Millisecond, logger),
		Normalizer: normalizer.New(chainID, "ROOT", normalizer.DefaultNativeDecimals, logger),
		Evaluator:  threshold.New(decimal.NewFromInt(5)),
		Writer:     persistence.NewWriter(transfers, 25, 2, logger),
		Dispatcher: notify.NewDispatcher(sender, notify.Formatter{ExplorerURL: "https://rootscan.io"}, 10, 0, logger),
	}, logger)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, report.Outcome)
	assert.Equal(t, uint64(15000050), cursors.rows[chainID])
	assert.Equal(t, int32(1), eventQueries.Load())

	require.Len(t, transfers.rows, 1)
	rec := transfers.rows["root/0015000010-000002-abcde"]
	assert.Equal(t, "9", rec.AmountNormalized())
	assert.Equal(t, "ROOT", rec.AssetSymbol)
	assert.Equal(t, uint64(15000010), rec.Block)

	require.Len(t, sender.msgs, 2)
	assert.Contains(t, sender.msgs[1].Text, "Value: 9 ROOT")
	assert.Contains(t, sender.msgs[1].Text, "/extrinsic/")

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpToDate, second.Outcome)
}

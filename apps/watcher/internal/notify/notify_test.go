package notify

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

type recordingSender struct {
	mu     sync.Mutex
	name   string
	msgs   []Message
	times  []time.Time
	failOn map[int]bool
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.msgs)
	s.msgs = append(s.msgs, msg)
	s.times = append(s.times, time.Now())
	if s.failOn[idx] {
		return errors.New("chat not found")
	}
	return nil
}

func (s *recordingSender) Name() string {
	if s.name == "" {
		return "recording"
	}
	return s.name
}

func candidate(i int, raw int64, decimals int32) model.AlertCandidate {
	amount := big.NewInt(raw)
	return model.AlertCandidate{
		TransferRecord: model.TransferRecord{
			ChainID:      "root",
			EventID:      fmt.Sprintf("0015000123-%06d-1a2b3", i),
			Kind:         model.KindAssetsTransferred,
			From:         "0x0000000210198695da702d62b08b0444f2233f9c",
			To:           "0xffffffff0000000000000000000000000000070b",
			RawAmount:    amount,
			Amount:       decimal.NewFromBigInt(amount, -decimals),
			AssetID:      "3",
			AssetSymbol:  "VTX",
			Decimals:     decimals,
			Block:        15000123,
			ExtrinsicRef: "0015000123-000002-1a2b3",
		},
		OverThreshold: true,
	}
}

func TestFormatterAlert(t *testing.T) {
	f := Formatter{ExplorerURL: "https://rootscan.io", MaskAddresses: true}

	text := f.Alert(candidate(1, 1_500_000, 6))

	assert.Equal(t, "Token Transfer detected:\n"+
		"From: `0x0000...3f9c`\n"+
		"To: `0xffff...070b`\n"+
		"Value: 1.5 VTX\n"+
		"[View on explorer](https://rootscan.io/extrinsic/0015000123-000002-1a2b3)", text)
}

func TestFormatterUnmaskedAndLinks(t *testing.T) {
	f := Formatter{ExplorerURL: "https://rootscan.io"}
	c := candidate(1, 10_000_000, 6)

	assert.Contains(t, f.Alert(c), "From: `0x0000000210198695da702d62b08b0444f2233f9c`")

	c.ExtrinsicRef = ""
	assert.Equal(t, "https://rootscan.io/block/15000123", f.Link(c.TransferRecord))

	c.ExtrinsicRef = "0xabc"
	assert.Equal(t, "https://rootscan.io/tx/0xabc", f.Link(c.TransferRecord))

	assert.NotContains(t, Formatter{}.Alert(c), "View on explorer")
}

func TestFormatterEscapesSymbol(t *testing.T) {
	c := candidate(1, 1, 0)
	c.AssetSymbol = "W_ETH"

	assert.Contains(t, Formatter{}.Alert(c), `Value: 1 W\_ETH`)
}

func TestMaskAddress(t *testing.T) {
	assert.Equal(t, "0x0000...3f9c", MaskAddress("0x0000000210198695da702d62b08b0444f2233f9c"))
	assert.Equal(t, "short", MaskAddress("short"))
}

func TestDispatchHeaderThenBatches(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Formatter{}, 2, 0, zap.NewNop())
	candidates := []model.AlertCandidate{candidate(1, 1, 0), candidate(2, 2, 0), candidate(3, 3, 0)}

	result := d.Dispatch(context.Background(), candidates, Summary{ChainID: "root", Range: model.BlockRange{Start: 100, End: 250}})

	assert.Equal(t, Result{Messages: 3, Sent: 3}, result)
	require.Len(t, sender.msgs, 3)
	assert.Equal(t, "*3 transfer(s) over threshold* on root, blocks 100-250", sender.msgs[0].Text)
	assert.Empty(t, sender.msgs[0].Candidates)
	assert.Len(t, sender.msgs[1].Candidates, 2)
	assert.Len(t, sender.msgs[2].Candidates, 1)
	assert.Contains(t, sender.msgs[1].Text, "\n\nToken Transfer detected:")
}

func TestDispatchNothingWhenNoCandidates(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Formatter{}, 10, time.Second, zap.NewNop())

	result := d.Dispatch(context.Background(), nil, Summary{ChainID: "root"})

	assert.Zero(t, result.Messages)
	assert.Empty(t, sender.msgs)
}

func TestDispatchPacesSends(t *testing.T) {
	sender := &recordingSender{}
	delay := 30 * time.Millisecond
	d := NewDispatcher(sender, Formatter{}, 1, delay, zap.NewNop())

	d.Dispatch(context.Background(), []model.AlertCandidate{candidate(1, 1, 0), candidate(2, 2, 0)}, Summary{ChainID: "root"})

	require.Len(t, sender.times, 3)
	for i := 1; i < len(sender.times); i++ {
		// allow a little scheduler slack below the nominal delay
		assert.GreaterOrEqual(t, sender.times[i].Sub(sender.times[i-1]), delay-5*time.Millisecond)
	}
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	sender := &recordingSender{failOn: map[int]bool{1: true}}
	d := NewDispatcher(sender, Formatter{}, 1, 0, zap.NewNop())

	result := d.Dispatch(context.Background(), []model.AlertCandidate{candidate(1, 1, 0), candidate(2, 2, 0)}, Summary{ChainID: "root"})

	assert.Equal(t, Result{Messages: 3, Sent: 2, Failed: 1}, result)
	assert.Len(t, sender.msgs, 3)
}

func TestDispatchStopsOnCancel(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Formatter{}, 1, time.Hour, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := d.Dispatch(ctx, []model.AlertCandidate{candidate(1, 1, 0)}, Summary{ChainID: "root"})

	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Skipped)
}

func TestMultiSender(t *testing.T) {
	ok := &recordingSender{name: "a"}
	bad := &recordingSender{name: "b", failOn: map[int]bool{0: true}}
	m := NewMultiSender(ok, bad)

	err := m.Send(context.Background(), Message{Text: "hi"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: chat not found")
	assert.Len(t, ok.msgs, 1)
	assert.Equal(t, "a+b", m.Name())
}

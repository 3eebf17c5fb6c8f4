package threshold

import (
	"github.com/shopspring/decimal"
	"transferwatch/apps/watcher/internal/model"
)

// Evaluator decides which transfer records are worth an alert. Threshold is
// expressed in whole asset units and scaled by each record's own precision.
type Evaluator struct {
	Threshold decimal.Decimal
}

func New(threshold decimal.Decimal) *Evaluator {
	return &Evaluator{Threshold: threshold}
}

func (e *Evaluator) Evaluate(record model.TransferRecord, tracked model.TrackedSet) model.AlertCandidate {
	candidate := model.AlertCandidate{TransferRecord: record}

	if record.RawAmount != nil {
		raw := decimal.NewFromBigInt(record.RawAmount, 0)
		limit := e.Threshold.Shift(record.Decimals)
		candidate.OverThreshold = raw.GreaterThan(limit)
	}

	linked := tracked.LinkedAddress(record.From)
	candidate.IsSelfTransfer = linked != "" && model.NormalizeAddress(record.To) == linked
	candidate.IsWhitelisted = tracked.IsWhitelisted(record.To)

	return candidate
}

// EvaluateAll returns only the alert-worthy candidates, in input order.
func (e *Evaluator) EvaluateAll(records []model.TransferRecord, tracked model.TrackedSet) []model.AlertCandidate {
	var out []model.AlertCandidate
	for _, record := range records {
		if candidate := e.Evaluate(record, tracked); candidate.AlertWorthy() {
			out = append(out, candidate)
		}
	}
	return out
}

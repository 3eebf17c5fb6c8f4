package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"transferwatch/apps/watcher/internal/metrics"
	"transferwatch/apps/watcher/internal/model"
)

// Result counts messages handed to the sender by one Dispatch call.
type Result struct {
	Messages int
	Sent     int
	Failed   int
	Skipped  int
}

// Dispatcher sends a run's alerts strictly in order: one header, then batches
// of at most perMessage alerts, with at least delay between consecutive sends.
// Delivery failures are logged and counted, never returned.
type Dispatcher struct {
	sender     Sender
	formatter  Formatter
	perMessage int
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewDispatcher(sender Sender, formatter Formatter, perMessage int, delay time.Duration, logger *zap.Logger) *Dispatcher {
	if perMessage <= 0 {
		perMessage = 1
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Dispatcher{
		sender:     sender,
		formatter:  formatter,
		perMessage: perMessage,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, candidates []model.AlertCandidate, summary Summary) Result {
	var result Result
	if len(candidates) == 0 {
		return result
	}

	messages := []Message{{Text: d.formatter.Header(summary, len(candidates))}}
	for start := 0; start < len(candidates); start += d.perMessage {
		batch := candidates[start:min(start+d.perMessage, len(candidates))]
		messages = append(messages, Message{Text: d.formatter.Batch(batch), Candidates: batch})
	}
	result.Messages = len(messages)

	for i, msg := range messages {
		if err := d.limiter.Wait(ctx); err != nil {
			result.Skipped = len(messages) - i
			d.logger.Warn("Notification dispatch interrupted",
				zap.String("chain_id", summary.ChainID),
				zap.Int("skipped", result.Skipped),
				zap.Error(err))
			break
		}

		if err := d.sender.Send(ctx, msg); err != nil {
			result.Failed++
			metrics.NotificationsTotal.WithLabelValues(summary.ChainID, "failed").Inc()
			notifyErr := &model.NotificationError{Sender: d.sender.Name(), Err: err}
			d.logger.Error("Failed to send notification",
				zap.String("chain_id", summary.ChainID),
				zap.Int("message", i),
				zap.Int("alerts", len(msg.Candidates)),
				zap.Error(notifyErr))
			continue
		}
		result.Sent++
		metrics.NotificationsTotal.WithLabelValues(summary.ChainID, "sent").Inc()
	}

	d.logger.Info("Dispatched alerts",
		zap.String("chain_id", summary.ChainID),
		zap.Int("alerts", len(candidates)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))
	return result
}

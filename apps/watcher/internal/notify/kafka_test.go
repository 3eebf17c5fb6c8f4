package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

type fakeProducer struct {
	produced    []*kafka.Message
	deliveryErr error
	noReport    bool
	closed      bool
}

func (p *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	p.produced = append(p.produced, msg)
	if p.noReport {
		return nil
	}
	deliveryChan <- &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: msg.TopicPartition.Topic, Error: p.deliveryErr}}
	return nil
}

func (p *fakeProducer) Close() { p.closed = true }

func TestKafkaSendPublishesEachAlert(t *testing.T) {
	producer := &fakeProducer{}
	sender := newKafkaSender(producer, "transfer-alerts", zap.NewNop())
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sender.now = func() time.Time { return fixed }

	err := sender.Send(context.Background(), Message{Candidates: []model.AlertCandidate{candidate(1, 10_000_000, 6), candidate(2, 1, 6)}})

	require.NoError(t, err)
	require.Len(t, producer.produced, 2)
	msg := producer.produced[0]
	assert.Equal(t, "transfer-alerts", *msg.TopicPartition.Topic)
	assert.Equal(t, "0x0000000210198695da702d62b08b0444f2233f9c", string(msg.Key))

	var payload AlertMessage
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "10", payload.Amount)
	assert.Equal(t, "10000000", payload.RawAmount)
	assert.Equal(t, "VTX", payload.AssetSymbol)
	assert.Equal(t, uint64(15000123), payload.BlockNumber)
	assert.True(t, fixed.Equal(payload.Timestamp))
}

func TestKafkaSendSkipsHeader(t *testing.T) {
	producer := &fakeProducer{}
	sender := newKafkaSender(producer, "t", zap.NewNop())

	require.NoError(t, sender.Send(context.Background(), Message{Text: "header"}))
	assert.Empty(t, producer.produced)
}

func TestKafkaSendDeliveryFailure(t *testing.T) {
	producer := &fakeProducer{deliveryErr: errors.New("broker down")}
	sender := newKafkaSender(producer, "t", zap.NewNop())

	err := sender.Send(context.Background(), Message{Candidates: []model.AlertCandidate{candidate(1, 1, 0)}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestKafkaSendHonoursContext(t *testing.T) {
	producer := &fakeProducer{noReport: true}
	sender := newKafkaSender(producer, "t", zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := sender.Send(ctx, Message{Candidates: []model.AlertCandidate{candidate(1, 1, 0)}})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, sender.Close())
	assert.True(t, producer.closed)
}

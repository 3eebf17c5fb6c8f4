package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// AlertMessage is the Kafka payload for one alert-worthy transfer.
type AlertMessage struct {
	ChainID      string    `json:"chain_id"`
	EventID      string    `json:"event_id"`
	Kind         string    `json:"kind"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Amount       string    `json:"amount"`
	RawAmount    string    `json:"raw_amount"`
	AssetID      string    `json:"asset_id,omitempty"`
	AssetSymbol  string    `json:"asset_symbol"`
	Decimals     int32     `json:"decimals"`
	BlockNumber  uint64    `json:"block_number"`
	ExtrinsicRef string    `json:"extrinsic_ref,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewAlertMessage(c model.AlertCandidate, now time.Time) AlertMessage {
	raw := ""
	if c.RawAmount != nil {
		raw = c.RawAmount.String()
	}
	return AlertMessage{
		ChainID:      c.ChainID,
		EventID:      c.EventID,
		Kind:         string(c.Kind),
		From:         c.From,
		To:           c.To,
		Amount:       c.AmountNormalized(),
		RawAmount:    raw,
		AssetID:      c.AssetID,
		AssetSymbol:  c.AssetSymbol,
		Decimals:     c.Decimals,
		BlockNumber:  c.Block,
		ExtrinsicRef: c.ExtrinsicRef,
		Timestamp:    now,
	}
}

type kafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

// KafkaSender publishes one record per alert, keyed by sender address so all
// alerts of a wallet land on the same partition. Header messages carry no
// alerts and are not published.
type KafkaSender struct {
	producer kafkaProducer
	topic    string
	logger   *zap.Logger
	now      func() time.Time
}

func NewKafkaSender(kafkaBroker, kafkaTopic string, logger *zap.Logger) (*KafkaSender, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return newKafkaSender(producer, kafkaTopic, logger), nil
}

func newKafkaSender(producer kafkaProducer, topic string, logger *zap.Logger) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic, logger: logger, now: time.Now}
}

func (k *KafkaSender) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, c := range msg.Candidates {
		if err := k.publish(ctx, c); err != nil {
			k.logger.Error("Failed to publish alert to Kafka", zap.String("event_id", c.EventID), zap.Error(err))
			errs = append(errs, fmt.Errorf("event %s: %w", c.EventID, err))
		}
	}
	return errors.Join(errs...)
}

func (k *KafkaSender) publish(ctx context.Context, c model.AlertCandidate) error {
	msgBytes, err := json.Marshal(NewAlertMessage(c, k.now()))
	if err != nil {
		return err
	}

	// buffered so a late delivery report never blocks the producer
	deliveryChan := make(chan kafka.Event, 1)

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(c.From),
		Value:          msgBytes,
	}, deliveryChan)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryChan:
		switch ev := e.(type) {
		case *kafka.Message:
			return ev.TopicPartition.Error
		default:
			return fmt.Errorf("unexpected kafka event type: %T", e)
		}
	}
}

func (k *KafkaSender) Name() string {
	return "kafka"
}

func (k *KafkaSender) Close() error {
	if k.producer != nil {
		k.producer.Close()
	}
	return nil
}

// Package dynamostore keeps checkpoints, transfers and the tracking registry in
// DynamoDB tables.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// BatchWriteItem accepts at most 25 put requests per call.
const maxBatchWrite = 25

const maxUnprocessedRetries = 5

// API is the subset of *dynamodb.Client used by Store.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type Tables struct {
	Checkpoint string
	Tracking   string
	Transfers  string
}

type Store struct {
	client  API
	tables  Tables
	logger  *zap.Logger
	backoff time.Duration
}

func New(client API, tables Tables, logger *zap.Logger) *Store {
	return &Store{client: client, tables: tables, logger: logger, backoff: 100 * time.Millisecond}
}

// Connect builds a Store from the default AWS credential chain.
func Connect(ctx context.Context, region string, tables Tables, logger *zap.Logger) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), tables, logger), nil
}

type checkpointItem struct {
	Chain     string `dynamodbav:"chain"`
	Block     uint64 `dynamodbav:"block"`
	UpdatedAt string `dynamodbav:"updatedAt,omitempty"`
}

func (s *Store) GetCheckpoint(ctx context.Context, chainID string) (*model.Cursor, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Checkpoint),
		Key:            map[string]types.AttributeValue{"chain": &types.AttributeValueMemberS{Value: chainID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: get checkpoint: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item checkpointItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamodb: decode checkpoint: %w", err)
	}
	c := &model.Cursor{ChainID: item.Chain, LastProcessedBlock: item.Block}
	if item.UpdatedAt != "" {
		c.UpdatedAt, _ = time.Parse(time.RFC3339, item.UpdatedAt)
	}
	return c, nil
}

// PutCheckpoint only writes when block is ahead of the stored value. A lower or
// equal block is a successful no-op.
func (s *Store) PutCheckpoint(ctx context.Context, chainID string, block uint64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.Checkpoint),
		Key:                 map[string]types.AttributeValue{"chain": &types.AttributeValueMemberS{Value: chainID}},
		UpdateExpression:    aws.String("SET #block = :block, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_not_exists(#block) OR #block < :block"),
		ExpressionAttributeNames: map[string]string{
			"#block": "block",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":block": &types.AttributeValueMemberN{Value: strconv.FormatUint(block, 10)},
			":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			s.logger.Debug("Checkpoint already ahead", zap.String("chain_id", chainID), zap.Uint64("block", block))
			return nil
		}
		return fmt.Errorf("dynamodb: put checkpoint: %w", err)
	}
	return nil
}

type transferItem struct {
	Chain        string `dynamodbav:"chain"`
	EventID      string `dynamodbav:"event_id"`
	Kind         string `dynamodbav:"kind"`
	From         string `dynamodbav:"from"`
	To           string `dynamodbav:"to"`
	RawAmount    string `dynamodbav:"raw_amount"`
	Amount       string `dynamodbav:"value"`
	AssetID      string `dynamodbav:"asset_id,omitempty"`
	AssetSymbol  string `dynamodbav:"asset_symbol"`
	Decimals     int32  `dynamodbav:"decimals"`
	Block        uint64 `dynamodbav:"block"`
	ExtrinsicRef string `dynamodbav:"extrinsic_ref,omitempty"`
}

func toTransferItem(r model.TransferRecord) transferItem {
	raw := "0"
	if r.RawAmount != nil {
		raw = r.RawAmount.String()
	}
	return transferItem{
		Chain:        r.ChainID,
		EventID:      r.EventID,
		Kind:         string(r.Kind),
		From:         r.From,
		To:           r.To,
		RawAmount:    raw,
		Amount:       r.AmountNormalized(),
		AssetID:      r.AssetID,
		AssetSymbol:  r.AssetSymbol,
		Decimals:     r.Decimals,
		Block:        r.Block,
		ExtrinsicRef: r.ExtrinsicRef,
	}
}

func (i transferItem) record() (model.TransferRecord, error) {
	raw, ok := new(big.Int).SetString(i.RawAmount, 10)
	if !ok {
		return model.TransferRecord{}, fmt.Errorf("invalid raw amount %q", i.RawAmount)
	}
	return model.TransferRecord{
		ChainID:      i.Chain,
		EventID:      i.EventID,
		Kind:         model.EventKind(i.Kind),
		From:         i.From,
		To:           i.To,
		RawAmount:    raw,
		Amount:       decimal.NewFromBigInt(raw, -i.Decimals),
		AssetID:      i.AssetID,
		AssetSymbol:  i.AssetSymbol,
		Decimals:     i.Decimals,
		Block:        i.Block,
		ExtrinsicRef: i.ExtrinsicRef,
	}, nil
}

func (s *Store) MaxBatchSize() int {
	return maxBatchWrite
}

// PutTransfers writes one chunk with BatchWriteItem, resubmitting unprocessed
// items with a growing pause. Items are keyed by (chain, event_id), so a
// rewrite replaces an identical item.
func (s *Store) PutTransfers(ctx context.Context, records []model.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > maxBatchWrite {
		return fmt.Errorf("dynamodb: batch of %d exceeds %d items", len(records), maxBatchWrite)
	}

	requests := make([]types.WriteRequest, 0, len(records))
	for _, r := range records {
		item, err := attributevalue.MarshalMap(toTransferItem(r))
		if err != nil {
			return fmt.Errorf("dynamodb: encode transfer %s: %w", r.EventID, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	pending := map[string][]types.WriteRequest{s.tables.Transfers: requests}
	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("dynamodb: batch write transfers: %w", err)
		}
		if len(out.UnprocessedItems) == 0 || len(out.UnprocessedItems[s.tables.Transfers]) == 0 {
			return nil
		}
		if attempt >= maxUnprocessedRetries {
			return fmt.Errorf("dynamodb: %d transfers left unprocessed", len(out.UnprocessedItems[s.tables.Transfers]))
		}
		pending = out.UnprocessedItems

		timer := time.NewTimer(time.Duration(attempt+1) * s.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ListTransfers returns the newest transfers of a chain. Event ids start with
// the zero-padded block number, so descending sort key order is newest first.
func (s *Store) ListTransfers(ctx context.Context, chainID string, limit int) ([]model.TransferRecord, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Transfers),
		KeyConditionExpression: aws.String("chain = :chain"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":chain": &types.AttributeValueMemberS{Value: chainID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: query transfers: %w", err)
	}

	var items []transferItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("dynamodb: decode transfers: %w", err)
	}
	records := make([]model.TransferRecord, 0, len(items))
	for _, item := range items {
		rec, err := item.record()
		if err != nil {
			return nil, fmt.Errorf("dynamodb: transfer %s: %w", item.EventID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ScanTracked reads every page of the tracking table.
func (s *Store) ScanTracked(ctx context.Context) ([]model.TrackingItem, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tables.Tracking),
	})

	var items []model.TrackingItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: scan tracking table: %w", err)
		}
		var pageItems []model.TrackingItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("dynamodb: decode tracking items: %w", err)
		}
		items = append(items, pageItems...)
	}
	return items, nil
}

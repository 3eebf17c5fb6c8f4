package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

const defaultPageSize = 1000

// StatusError is a non-200 answer from the indexer endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// IndexerSource queries a Hasura-style archive GraphQL endpoint
// (archive.event / archive.block).
type IndexerSource struct {
	graphqlURL  string
	adminSecret string
	pageSize    int
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewIndexerSource(graphqlURL, adminSecret string, logger *zap.Logger) *IndexerSource {
	return &IndexerSource{
		graphqlURL:  graphqlURL,
		adminSecret: strings.TrimSpace(adminSecret),
		pageSize:    defaultPageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const headQuery = `
	query Head {
		archive {
			block(order_by: {height: desc}, limit: 1) {
				height
			}
		}
	}
`

const eventsQuery = `
	query TransferEvents($where: archive_event_bool_exp!, $limit: Int!, $offset: Int!) {
		archive {
			event(where: $where, order_by: {id: asc}, limit: $limit, offset: $offset) {
				id
				name
				args
				extrinsic_id
			}
		}
	}
`

func (s *IndexerSource) Head(ctx context.Context) (uint64, error) {
	data, err := s.doQuery(ctx, headQuery, nil)
	if err != nil {
		return 0, fmt.Errorf("indexer: fetch head: %w", err)
	}

	var result struct {
		Archive struct {
			Block []struct {
				Height uint64 `json:"height"`
			} `json:"block"`
		} `json:"archive"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("indexer: decode head: %w", err)
	}
	if len(result.Archive.Block) == 0 {
		return 0, fmt.Errorf("indexer: no indexed blocks")
	}
	return result.Archive.Block[0].Height, nil
}

func (s *IndexerSource) Fetch(ctx context.Context, blockRange model.BlockRange, filter Filter) ([]model.RawEvent, error) {
	if len(filter.Senders) == 0 {
		return nil, nil
	}
	where := buildWhere(blockRange, filter)

	var events []model.RawEvent
	for offset := 0; ; offset += s.pageSize {
		data, err := s.doQuery(ctx, eventsQuery, map[string]any{
			"where":  where,
			"limit":  s.pageSize,
			"offset": offset,
		})
		if err != nil {
			return nil, fmt.Errorf("indexer: fetch events %s: %w", blockRange, err)
		}

		var result struct {
			Archive struct {
				Event []struct {
					ID          string          `json:"id"`
					Name        string          `json:"name"`
					Args        json.RawMessage `json:"args"`
					ExtrinsicID *string         `json:"extrinsic_id"`
				} `json:"event"`
			} `json:"archive"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("indexer: decode events %s: %w", blockRange, err)
		}

		for _, e := range result.Archive.Event {
			raw := model.RawEvent{ID: e.ID, Kind: model.EventKind(e.Name), Args: e.Args}
			if e.ExtrinsicID != nil {
				raw.ExtrinsicRef = *e.ExtrinsicID
			}
			events = append(events, raw)
		}
		if len(result.Archive.Event) < s.pageSize {
			break
		}
	}

	s.logger.Debug("Fetched events from indexer",
		zap.String("range", blockRange.String()),
		zap.Int("events", len(events)))
	return events, nil
}

// buildWhere renders the archive_event_bool_exp for one range:
// height range AND transfer kinds AND sender in wallets AND NOT recipient in
// whitelist, with Assets.Transferred further narrowed to the asset table.
func buildWhere(blockRange model.BlockRange, filter Filter) map[string]any {
	and := []any{
		map[string]any{"block": map[string]any{"height": map[string]any{
			"_gte": blockRange.Start,
			"_lte": blockRange.End,
		}}},
	}

	senders := make([]any, 0, len(filter.Senders))
	for _, from := range filter.Senders {
		senders = append(senders, argsContains("from", from))
	}
	and = append(and, map[string]any{"_or": senders})

	if len(filter.ExcludeRecipients) > 0 {
		excluded := make([]any, 0, len(filter.ExcludeRecipients))
		for _, to := range filter.ExcludeRecipients {
			excluded = append(excluded, argsContains("to", to))
		}
		and = append(and, map[string]any{"_not": map[string]any{"_or": excluded}})
	}

	kinds := make([]any, 0, len(filter.Kinds))
	for _, kind := range filter.Kinds {
		if kind == model.KindAssetsTransferred && len(filter.AssetIDs) > 0 {
			assets := make([]any, 0, len(filter.AssetIDs))
			for _, id := range filter.AssetIDs {
				assets = append(assets, argsContains("assetId", assetIDValue(id)))
			}
			kinds = append(kinds, map[string]any{"_and": []any{
				map[string]any{"name": map[string]any{"_eq": string(kind)}},
				map[string]any{"_or": assets},
			}})
			continue
		}
		kinds = append(kinds, map[string]any{"name": map[string]any{"_eq": string(kind)}})
	}
	and = append(and, map[string]any{"_or": kinds})

	return map[string]any{"_and": and}
}

func argsContains(key string, value any) map[string]any {
	return map[string]any{"args": map[string]any{"_contains": map[string]any{key: value}}}
}

// assetIDValue keeps numeric asset ids numeric so jsonb containment matches.
func assetIDValue(id string) any {
	if _, err := strconv.ParseUint(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (s *IndexerSource) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.adminSecret != "" {
		req.Header.Set("x-hasura-admin-secret", s.adminSecret)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	if len(gqlResp.Data) == 0 || string(gqlResp.Data) == "null" {
		return nil, fmt.Errorf("graphql response has no data")
	}
	return gqlResp.Data, nil
}

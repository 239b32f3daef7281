package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shinobi-cash/shinobi-sdk/internal/discovery"
	shinobicommon "github.com/shinobi-cash/shinobi-sdk/pkg/common"
	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// maxPageLimit bounds how many activities a single request asks for,
// regardless of what the caller configured the engine's PageSize to.
const maxPageLimit = 500

// httpActivityFetcher is the reference discovery.ActivityFetcher: it asks a
// REST indexer for one page of activity at a time. A production host
// application is free to back discovery with a GraphQL client, a local
// database, or a cached snapshot instead. The engine only depends on the
// interface.
type httpActivityFetcher struct {
	baseURL string
	client  *http.Client
}

func newHTTPActivityFetcher(baseURL string) *httpActivityFetcher {
	return &httpActivityFetcher{baseURL: baseURL, client: http.DefaultClient}
}

type activityPageWire struct {
	Items []struct {
		Type                       string  `json:"type"`
		PrecommitmentHash          string  `json:"precommitmentHash"`
		SpentNullifier             string  `json:"spentNullifier"`
		NewCommitment              *string `json:"newCommitment"`
		RefundCommitment           *string `json:"refundCommitment"`
		Amount                     *uint64 `json:"amount"`
		Label                      *string `json:"label"`
		OriginTransactionHash      string  `json:"originTransactionHash"`
		DestinationTransactionHash *string `json:"destinationTransactionHash"`
		OriginChainID              uint64  `json:"originChainId"`
		DestinationChainID         *uint64 `json:"destinationChainId"`
		BlockNumber                uint64  `json:"blockNumber"`
		Timestamp                  uint64  `json:"timestamp"`
	} `json:"items"`
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

var activityTypeByWireName = map[string]types.ActivityType{
	"deposit":             types.ActivityDeposit,
	"withdrawal":          types.ActivityWithdrawal,
	"crossChainDeposit":   types.ActivityCrossChainDeposit,
	"crossChainWithdrawal": types.ActivityCrossChainWithdrawal,
}

// Fetch retrieves one page of activity for pool starting at cursor.
func (f *httpActivityFetcher) Fetch(ctx context.Context, pool types.Address, limit int, cursor string, order discovery.FetchOrder) (*types.ActivityPage, error) {
	q := url.Values{}
	q.Set("pool", pool.Hex())
	q.Set("limit", fmt.Sprintf("%d", shinobicommon.MinInt(limit, maxPageLimit)))
	q.Set("cursor", cursor)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/activities?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building activity request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching activity page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer returned status %d", resp.StatusCode)
	}

	var wire activityPageWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding activity page: %w", err)
	}

	page := &types.ActivityPage{
		PageInfo: types.PageInfo{HasNextPage: wire.HasNextPage, EndCursor: wire.EndCursor},
	}
	for _, item := range wire.Items {
		page.Items = append(page.Items, types.Activity{
			Type:                       activityTypeByWireName[item.Type],
			PrecommitmentHash:          item.PrecommitmentHash,
			SpentNullifier:             item.SpentNullifier,
			NewCommitment:              item.NewCommitment,
			RefundCommitment:           item.RefundCommitment,
			Amount:                     item.Amount,
			Label:                      item.Label,
			OriginTransactionHash:      item.OriginTransactionHash,
			DestinationTransactionHash: item.DestinationTransactionHash,
			OriginChainID:              item.OriginChainID,
			DestinationChainID:         item.DestinationChainID,
			BlockNumber:                item.BlockNumber,
			Timestamp:                  item.Timestamp,
		})
	}

	return page, nil
}

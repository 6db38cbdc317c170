package hedera

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// accountIDPattern matches the shard.realm.num account syntax the network
// uses everywhere.
var accountIDPattern = regexp.MustCompile(`^0\.0\.\d+$`)

// ValidAccountID reports whether s is a syntactically valid account id.
// Existence on the network is not checked.
func ValidAccountID(s string) bool {
	return accountIDPattern.MatchString(s)
}

const (
	defaultMirrorTimeout = 15 * time.Second
	tokenCacheSize       = 256
	transferPageSize     = 100
)

type MirrorConfig struct {
	BaseURL string `toml:"base_url"`
}

// MirrorClient reads from a mirror-node REST API. Token metadata is cached
// since token symbol and decimals never change for a given id.
type MirrorClient struct {
	baseURL    string
	httpClient *http.Client
	tokenCache *lru.Cache
}

func NewMirrorClient(cfg MirrorConfig) (*MirrorClient, error) {
	cache, err := lru.New(tokenCacheSize)
	if err != nil {
		return nil, err
	}
	return &MirrorClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: defaultMirrorTimeout},
		tokenCache: cache,
	}, nil
}

// MirrorTransaction is one transaction row from the mirror node. Amounts in
// the transfer legs are signed; credits to an account are positive.
type MirrorTransaction struct {
	TransactionID      string          `json:"transaction_id"`
	ConsensusTimestamp string          `json:"consensus_timestamp"`
	Name               string          `json:"name"`
	Result             string          `json:"result"`
	MemoBase64         string          `json:"memo_base64"`
	Transfers          []AccountAmount `json:"transfers"`
	TokenTransfers     []TokenAmount   `json:"token_transfers"`
}

type AccountAmount struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type TokenAmount struct {
	TokenID string `json:"token_id"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type transactionsPage struct {
	Transactions []MirrorTransaction `json:"transactions"`
}

// TransfersTo returns transactions crediting account, in ascending consensus
// order, strictly after the given consensus timestamp. An empty cursor means
// from the beginning of the account's history.
func (c *MirrorClient) TransfersTo(ctx context.Context, account, afterCursor string) ([]MirrorTransaction, error) {
	params := url.Values{}
	params.Set("account.id", account)
	params.Set("transactiontype", "CRYPTOTRANSFER")
	params.Set("order", "asc")
	params.Set("limit", strconv.Itoa(transferPageSize))
	if afterCursor != "" {
		params.Set("timestamp", "gt:"+afterCursor)
	}

	endpoint := fmt.Sprintf("%s/api/v1/transactions?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror node request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror node returned status %d", resp.StatusCode)
	}

	var page transactionsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode mirror response: %w", err)
	}
	return page.Transactions, nil
}

// TokenInfo is the subset of token metadata needed to render amounts.
type TokenInfo struct {
	TokenID  string
	Name     string
	Symbol   string
	Decimals int
}

type tokenInfoResponse struct {
	TokenID  string `json:"token_id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

// TokenInfo resolves token metadata, serving repeats from cache.
func (c *MirrorClient) TokenInfo(ctx context.Context, tokenID string) (*TokenInfo, error) {
	if cached, ok := c.tokenCache.Get(tokenID); ok {
		return cached.(*TokenInfo), nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/tokens/%s", c.baseURL, url.PathEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror node request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token %s lookup returned status %d", tokenID, resp.StatusCode)
	}

	var raw tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode token info: %w", err)
	}

	decimals, err := strconv.Atoi(raw.Decimals)
	if err != nil {
		return nil, fmt.Errorf("token %s has invalid decimals %q", tokenID, raw.Decimals)
	}

	info := &TokenInfo{
		TokenID:  raw.TokenID,
		Name:     raw.Name,
		Symbol:   raw.Symbol,
		Decimals: decimals,
	}
	c.tokenCache.Add(tokenID, info)
	return info, nil
}

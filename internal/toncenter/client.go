package toncenter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rabbitluck-bot/internal/metrics"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	endpointGetTransactions = "/api/v2/getTransactions"
	endpointTransactions    = "/api/v3/transactions"

	maxErrorBody = 512
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Metrics    *metrics.Metrics
}

// NewClient builds a TonCenter client. rps bounds outgoing requests per
// second; TonCenter throttles keyless callers to 1 rps.
func NewClient(baseURL, apiKey string, rps float64) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	u := fmt.Sprintf("%s%s?%s", c.BaseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Metrics.ObserveChainRequest(endpoint, "transport_error")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Metrics.ObserveChainRequest(endpoint, "read_error")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.Metrics.ObserveChainRequest(endpoint, strconv.Itoa(resp.StatusCode))
		body := string(respBody)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: body}
	}

	c.Metrics.ObserveChainRequest(endpoint, "ok")
	return respBody, nil
}

// GetTransactions lists up to limit most recent transactions of address.
func (c *Client) GetTransactions(ctx context.Context, address string, limit int) ([]TransactionRef, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("limit", strconv.Itoa(limit))

	resp, err := c.doRequest(ctx, endpointGetTransactions, params)
	if err != nil {
		return nil, err
	}

	var result getTransactionsResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("toncenter getTransactions: %s", result.Error)
	}

	return result.Result, nil
}

// TransactionDetails queries the indexed v3 transactions endpoint.
func (c *Client) TransactionDetails(ctx context.Context, q TransactionQuery) ([]Transaction, error) {
	params := url.Values{}
	params.Set("account", q.Account)
	params.Set("hash", q.Hash)
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}

	resp, err := c.doRequest(ctx, endpointTransactions, params)
	if err != nil {
		return nil, err
	}

	var result transactionsResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result.Transactions, nil
}

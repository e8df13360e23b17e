package rpcfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"
)

// RPCClient handles JSON-RPC requests to Solana endpoints.
type RPCClient struct {
	httpClient *http.Client
	pool       Pool
	limiter    *rate.Limiter
	nextID     atomic.Uint64
}

// NewRPCClient creates a client that sends every request to an endpoint
// chosen by pool. Responses are transparently gzip-decoded.
func NewRPCClient(pool Pool, config Config) *RPCClient {
	config = config.WithDefaults()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}

	return &RPCClient{
		httpClient: &http.Client{
			Timeout:   config.RequestTimeout,
			Transport: gzhttp.Transport(http.DefaultTransport),
		},
		pool:    pool,
		limiter: limiter,
	}
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// call makes a JSON-RPC call and decodes the result into result. A null
// result leaves result untouched.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	endpoint, err := c.pool.GetEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}

	start := time.Now()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
		c.pool.MarkUnhealthy(endpoint.URL, httpErr)
		return httpErr
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("unmarshal response: %w", err)
	}

	// The endpoint answered; RPC-level errors say nothing about its health.
	c.pool.MarkHealthy(endpoint.URL, time.Since(start))

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// GetSlot fetches the current slot at commitment.
func (c *RPCClient) GetSlot(ctx context.Context, commitment string) (uint64, error) {
	params := []interface{}{
		map[string]interface{}{
			"commitment": commitment,
		},
	}

	var slot uint64
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetBlocks lists the slots with a block from start, inclusive, up to the
// current slot at commitment.
func (c *RPCClient) GetBlocks(ctx context.Context, start uint64, commitment string) ([]uint64, error) {
	params := []interface{}{
		start,
		nil,
		map[string]interface{}{
			"commitment": commitment,
		},
	}

	var slots []uint64
	if err := c.call(ctx, "getBlocks", params, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// BlockOptions selects what getBlock returns.
type BlockOptions struct {
	Commitment         string
	TransactionDetails string
}

// BlockResponse holds the getBlock fields the listener reads. Absent fields
// decode as nil.
type BlockResponse struct {
	Blockhash    string            `json:"blockhash"`
	ParentSlot   *uint64           `json:"parentSlot"`
	BlockHeight  *uint64           `json:"blockHeight"`
	Transactions []json.RawMessage `json:"transactions"`
	Signatures   []string          `json:"signatures"`
}

// GetBlock fetches the block at slot. Transactions are requested base64
// encoded and are not decoded. A null result returns ErrNullResult.
func (c *RPCClient) GetBlock(ctx context.Context, slot uint64, opts BlockOptions) (*BlockResponse, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"transactionDetails":             opts.TransactionDetails,
			"commitment":                     opts.Commitment,
			"maxSupportedTransactionVersion": 0,
			"encoding":                       "base64",
			"rewards":                        false,
		},
	}

	var block *BlockResponse
	if err := c.call(ctx, "getBlock", params, &block); err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrNullResult
	}
	return block, nil
}

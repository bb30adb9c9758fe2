package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RPCConfig holds the chain-node adapter configuration.
type RPCConfig struct {
	URL     string
	Timeout time.Duration
}

// RPCAdapter moves the asset through a custody node's JSON-RPC interface.
type RPCAdapter struct {
	url        string
	httpClient *http.Client
}

var _ Adapter = (*RPCAdapter)(nil)

// NewRPCAdapter creates an adapter for the given node.
func NewRPCAdapter(cfg RPCConfig) (*RPCAdapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &RPCAdapter{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call makes an RPC call to the custody node.
func (a *RPCAdapter) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

func (a *RPCAdapter) Pull(ctx context.Context, from string, amount uint64) error {
	_, err := a.call(ctx, "custody_pull", []any{from, amount})
	return err
}

func (a *RPCAdapter) Push(ctx context.Context, to string, amount uint64) error {
	_, err := a.call(ctx, "custody_push", []any{to, amount})
	return err
}

func (a *RPCAdapter) Balance(ctx context.Context) (uint64, error) {
	result, err := a.call(ctx, "custody_balance", nil)
	if err != nil {
		return 0, err
	}

	var total uint64
	if err := json.Unmarshal(result, &total); err != nil {
		return 0, err
	}
	return total, nil
}

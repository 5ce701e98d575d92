package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

var rpcSeq atomic.Int64

type rpcClient struct {
	socket  string
	timeout time.Duration
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcCallError   `json:"error"`
	ID      int64           `json:"id"`
}

// rpcCallError is an application error returned by the gate server. Codes
// mirror HTTP statuses times one hundred (40900 is a conflict).
type rpcCallError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcCallError) Error() string {
	return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message)
}

func newRPCClient(socket string) *rpcClient {
	return &rpcClient{socket: socket, timeout: 20 * time.Second}
}

func (c *rpcClient) call(ctx context.Context, method string, params any, out any) error {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", c.socket)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.socket, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: rpcSeq.Add(1)}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if resp.ID != req.ID {
		return fmt.Errorf("rpc response id %d does not match request %d", resp.ID, req.ID)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

package etherman

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

// RpcCaller is the outbound call to the external chain node. Implementations
// must route every response through TransformResponse before decoding so the
// output is verifiable across repeated identical calls.
type RpcCaller interface {
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

type rpcRequest struct {
	JsonRpc string        `json:"jsonrpc"`
	Id      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// HttpRpcClient posts JSON-RPC requests to the configured endpoint.
//
// go-ethereum's rpc.Client is deliberately not used here: it hides the raw
// response body, and the gateway must prune non-deterministic fields from
// the raw bytes before treating them as verifiable output.
type HttpRpcClient struct {
	url    string
	client *http.Client
	nextId atomic.Uint64 // shared by reconciler goroutines and http handlers
}

func NewHttpRpcClient(url string) *HttpRpcClient {
	return &HttpRpcClient{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HttpRpcClient) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	body, err := json.Marshal(&rpcRequest{
		JsonRpc: "2.0",
		Id:      c.nextId.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		// timeouts and transport failures are retriable by the caller
		return nil, &agreement.CanisterCallError{
			Rejection: agreement.RejectionSysTransient,
			Message:   err.Error(),
		}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &agreement.CanisterCallError{
			Rejection: agreement.RejectionSysTransient,
			Message:   err.Error(),
		}
	}

	canonical, err := TransformResponse(raw)
	if err != nil {
		return nil, &agreement.CanisterCallError{
			Rejection: agreement.RejectionCanisterError,
			Message:   err.Error(),
		}
	}

	var resp rpcResponse
	if err := json.Unmarshal(canonical, &resp); err != nil {
		return nil, &agreement.CanisterCallError{
			Rejection: agreement.RejectionCanisterError,
			Message:   err.Error(),
		}
	}

	if resp.Error != nil {
		return nil, &agreement.EthRpcError{
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
		}
	}

	return resp.Result, nil
}

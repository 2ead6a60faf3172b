package etherman

import (
	"encoding/json"
)

// rpcResponse is the JSON-RPC envelope of the external chain endpoint.
type rpcResponse struct {
	JsonRpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// TransformResponse canonicalizes a raw RPC response body: the request id
// (which varies between otherwise-identical calls) is dropped and the
// remaining fields are re-marshaled with a fixed key order. The function is
// pure and deterministic given identical raw input, so repeated identical
// submissions produce byte-identical verifiable output.
func TransformResponse(raw []byte) ([]byte, error) {
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	resp.Id = nil

	return json.Marshal(&resp)
}

package multisig

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

// Connector abstracts the transport to the threshold-signing service.
type Connector interface {
	// GetSignature asks the service for a recoverable signature over hash,
	// answered in compact [V+27 || R || S] layout.
	GetSignature(ctx context.Context, hash []byte) ([]byte, error)

	// GetPubKey returns the service's uncompressed public key for the
	// bridge's derivation path.
	GetPubKey(ctx context.Context) ([]byte, error)
}

// RemoteEcdsaSigner delegates signing to the threshold service.
type RemoteEcdsaSigner struct {
	connector Connector
}

func NewRemoteEcdsaSigner(connector Connector) *RemoteEcdsaSigner {
	return &RemoteEcdsaSigner{connector: connector}
}

func (rs *RemoteEcdsaSigner) SignHash(ctx context.Context, hash [32]byte) ([]byte, error) {
	content, err := rs.connector.GetSignature(ctx, hash[:])
	if err != nil {
		return nil, err
	}
	return compactToEth(content)
}

func (rs *RemoteEcdsaSigner) PublicKey(ctx context.Context) ([]byte, error) {
	content, err := rs.connector.GetPubKey(ctx)
	if err != nil {
		return nil, err
	}
	if len(content) != 65 {
		return nil, &agreement.EcdsaError{Code: agreement.EcdsaInvalidPublicKey}
	}
	return content, nil
}

// ConnectorConfig wires the HTTP connector to the signing service.
type ConnectorConfig struct {
	// base URL of the signing service
	URL string

	// DerivationPath is unique to this bridge deployment; the service
	// derives the signing key from it.
	DerivationPath string

	Timeout time.Duration
}

// HttpConnector talks JSON over HTTP to the signing service.
type HttpConnector struct {
	cfg    *ConnectorConfig
	client *http.Client
}

func NewHttpConnector(cfg *ConnectorConfig) *HttpConnector {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HttpConnector{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type signRequest struct {
	DerivationPath string `json:"derivation_path"`
	Hash           string `json:"hash"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

type pubKeyResponse struct {
	PublicKey string `json:"public_key"`
}

func (c *HttpConnector) GetSignature(ctx context.Context, hash []byte) ([]byte, error) {
	body, err := json.Marshal(&signRequest{
		DerivationPath: c.cfg.DerivationPath,
		Hash:           hex.EncodeToString(hash),
	})
	if err != nil {
		return nil, err
	}

	var resp signResponse
	if err := c.post(ctx, "/sign", body, &resp); err != nil {
		return nil, err
	}

	sig, err := hex.DecodeString(resp.Signature)
	if err != nil {
		return nil, &agreement.EcdsaError{Code: agreement.EcdsaInvalidSignature}
	}
	return sig, nil
}

func (c *HttpConnector) GetPubKey(ctx context.Context) ([]byte, error) {
	body, err := json.Marshal(&signRequest{DerivationPath: c.cfg.DerivationPath})
	if err != nil {
		return nil, err
	}

	var resp pubKeyResponse
	if err := c.post(ctx, "/pubkey", body, &resp); err != nil {
		return nil, err
	}

	pk, err := hex.DecodeString(resp.PublicKey)
	if err != nil {
		return nil, &agreement.EcdsaError{Code: agreement.EcdsaInvalidPublicKey}
	}
	return pk, nil
}

func (c *HttpConnector) post(ctx context.Context, route string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+route, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &agreement.CanisterCallError{
			Rejection: agreement.RejectionSysTransient,
			Message:   err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &agreement.CanisterCallError{
			Rejection: agreement.RejectionCanisterReject,
			Message:   fmt.Sprintf("signer service returned %d", resp.StatusCode),
		}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

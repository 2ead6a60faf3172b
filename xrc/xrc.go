// Exchange-rate oracle client.
//
// The oracle prices outbound swaps: it answers with the bridging fee in the
// native token's smallest unit. A quote is advisory and time-boxed; the
// orchestrator must re-quote once the validity window has elapsed. Exactly
// one attempt is made per quote — a failure degrades to XrcError and aborts
// the swap before any value has moved.

package xrc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

// DefaultQuoteValidity is how long a fee quote may be used before the
// orchestrator must refresh it.
const DefaultQuoteValidity = 30 * time.Second

// BaseTokenPrice is the oracle price at which rewards are paid out
// unscaled.
const BaseTokenPrice = 100

type Client interface {
	// QuoteFee returns the current bridging fee quote. Failures are
	// *agreement.XrcError; no retry is performed.
	QuoteFee(ctx context.Context) (agreement.FeeQuote, error)

	// TokenPrice returns the current native token price in hundredths of
	// the quote currency. Failures are *agreement.XrcError.
	TokenPrice(ctx context.Context) (uint64, error)
}

type Config struct {
	// URL of the rate oracle endpoint
	URL string

	// How long a quote stays usable; DefaultQuoteValidity when zero.
	QuoteValidity time.Duration

	Timeout time.Duration
}

// HttpClient fetches quotes from the oracle over HTTP.
type HttpClient struct {
	cfg    *Config
	client *http.Client
	now    func() time.Time
}

func NewHttpClient(cfg *Config) *HttpClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HttpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

type quoteResponse struct {
	// fee in the native token's smallest unit
	Fee uint64 `json:"fee"`
	// token price in hundredths of the quote currency
	Price uint64 `json:"price"`
}

func (c *HttpClient) fetch(ctx context.Context) (*quoteResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, &agreement.XrcError{}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logger.WithField("err", err).Warn("xrc quote failed")
		return nil, &agreement.XrcError{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.WithField("status", resp.StatusCode).Warn("xrc quote rejected")
		return nil, &agreement.XrcError{}
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &agreement.XrcError{}
	}

	return &body, nil
}

func (c *HttpClient) QuoteFee(ctx context.Context) (agreement.FeeQuote, error) {
	body, err := c.fetch(ctx)
	if err != nil {
		return agreement.FeeQuote{}, err
	}

	validity := c.cfg.QuoteValidity
	if validity == 0 {
		validity = DefaultQuoteValidity
	}

	now := c.now()
	return agreement.FeeQuote{
		Amount:     body.Fee,
		FetchedAt:  now,
		ValidUntil: now.Add(validity),
	}, nil
}

func (c *HttpClient) TokenPrice(ctx context.Context) (uint64, error) {
	body, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}
	if body.Price == 0 {
		return 0, &agreement.XrcError{}
	}

	return body.Price, nil
}

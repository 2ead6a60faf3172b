package xrc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

func TestQuoteFee(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"fee":230000}`)
	}))
	defer server.Close()

	client := NewHttpClient(&Config{URL: server.URL})

	quote, err := client.QuoteFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(230000), quote.Amount)
	assert.Equal(t, DefaultQuoteValidity, quote.ValidUntil.Sub(quote.FetchedAt))
	assert.False(t, quote.Expired(quote.FetchedAt))
	assert.True(t, quote.Expired(quote.FetchedAt.Add(time.Minute)))
}

func TestTokenPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"fee":230000,"price":140}`)
	}))
	defer server.Close()

	client := NewHttpClient(&Config{URL: server.URL})

	price, err := client.TokenPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(140), price)
}

func TestTokenPriceMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"fee":230000}`)
	}))
	defer server.Close()

	client := NewHttpClient(&Config{URL: server.URL})

	_, err := client.TokenPrice(context.Background())
	require.Error(t, err)
	_, ok := err.(*agreement.XrcError)
	assert.True(t, ok)
}

func TestQuoteFeeOracleDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHttpClient(&Config{URL: server.URL})

	_, err := client.QuoteFee(context.Background())
	require.Error(t, err)
	_, ok := err.(*agreement.XrcError)
	assert.True(t, ok)
}

func TestQuoteFeeUnreachable(t *testing.T) {
	client := NewHttpClient(&Config{
		URL:     "http://127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	})

	_, err := client.QuoteFee(context.Background())
	require.Error(t, err)
	_, ok := err.(*agreement.XrcError)
	assert.True(t, ok)
}

package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient("demo", WithBaseURL(srv.URL))
}

func TestGetQuote(t *testing.T) {
	c := serve(t, `{"Global Quote": {
		"01. symbol": "IBM", "05. price": "185.5000", "06. volume": "3456789",
		"07. latest trading day": "2024-06-03", "08. previous close": "183.0000",
		"09. change": "2.5000", "10. change percent": "1.3661%"}}`)

	quote, err := c.GetQuote(context.Background(), "IBM")
	require.NoError(t, err)

	assert.Equal(t, 185.5, quote.Price)
	assert.Equal(t, 183.0, quote.PreviousClose)
	assert.Equal(t, 2.5, quote.Change)
	assert.InDelta(t, 1.3661, quote.ChangePercent, 1e-9)
	assert.Equal(t, int64(3456789), quote.Volume)
	assert.Equal(t, "alphavantage", quote.Source)
}

func TestGetQuote_Throttled(t *testing.T) {
	c := serve(t, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`)

	_, err := c.GetQuote(context.Background(), "IBM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call frequency")
}

func TestGetQuote_Empty(t *testing.T) {
	c := serve(t, `{"Global Quote": {}}`)

	_, err := c.GetQuote(context.Background(), "XXXX")
	assert.Error(t, err)
}

func TestGetQuote_BadPrice(t *testing.T) {
	c := serve(t, `{"Global Quote": {"01. symbol": "IBM", "05. price": "n/a", "09. change": "0"}}`)

	_, err := c.GetQuote(context.Background(), "IBM")
	assert.Error(t, err)
}

package eodhd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
}

func TestGetEODParsesDatesAndQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/AAPL.US", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_token"))
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
		assert.Equal(t, "a", r.URL.Query().Get("order"))
		assert.Equal(t, "d", r.URL.Query().Get("period"))
		w.Write([]byte(`[{"date":"2024-01-02","open":1,"high":2,"low":0.5,"close":1.5,"adjusted_close":1.4,"volume":100}]`))
	})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := client.GetEOD(context.Background(), "AAPL.US", WithDateRange(from, time.Time{}))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 2024, bars[0].Date.Year())
	assert.Equal(t, 1.4, bars[0].AdjustedClose)
}

func TestGetFundamentalsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Ticker Not Found.", http.StatusNotFound)
	})

	_, err := client.GetFundamentals(context.Background(), "ZZZZ9.US")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetNews(context.Background(), []string{"AAPL.US"}, WithLimit(3))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsNotFound(err))
}

func TestGetNewsParsesDates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL.US", r.URL.Query().Get("s"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"date":"2024-03-01T13:45:00+00:00","title":"Apple ships","content":"<p>Body</p>","sentiment":{"polarity":0.6}}]`))
	})

	news, err := client.GetNews(context.Background(), []string{"AAPL.US"}, WithLimit(2))
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, 13, news[0].Date.Hour())
	require.NotNil(t, news[0].Sentiment)
	assert.Equal(t, 0.6, news[0].Sentiment.Polarity)
}

func TestGetFundamentalsFinancialStatements(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"General":{"Code":"AAPL"},"Financials":{
			"Balance_Sheet":{"currency":"USD","yearly":{
				"2022-09-30":{"totalAssets":"352755000000.00","shortLongTermDebtTotal":null},
				"2023-09-30":{"totalAssets":"352583000000.00","shortLongTermDebtTotal":"111088000000.00","totalStockholderEquity":62146000000}}},
			"Income_Statement":{"currency":"USD","yearly":{"2023-09-30":{"totalRevenue":"383285000000.00"}}}}}`))
	})

	resp, err := client.GetFundamentals(context.Background(), "AAPL.US")
	require.NoError(t, err)
	require.NotNil(t, resp.Financials)

	year, balance := resp.Financials.BalanceSheet.LatestYear()
	assert.Equal(t, "2023-09-30", year)
	assert.Equal(t, 352583000000.0, Number(balance, "totalAssets"))
	assert.Equal(t, 111088000000.0, Number(balance, "shortLongTermDebtTotal"))
	assert.Equal(t, 62146000000.0, Number(balance, "totalStockholderEquity"))
	assert.Zero(t, Number(balance, "missing"))

	assert.Zero(t, Number(resp.Financials.BalanceSheet.Yearly["2022-09-30"], "shortLongTermDebtTotal"))

	var empty *FinancialStatement
	year, items := empty.LatestYear()
	assert.Empty(t, year)
	assert.Nil(t, items)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
	}{
		{"float", 12.5, 12.5},
		{"numeric string", "1500.25", 1500.25},
		{"none string", "None", 0},
		{"empty string", "", 0},
		{"garbage", "n/a", 0},
		{"null", nil, 0},
		{"bool", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Number(map[string]interface{}{"v": tt.value}, "v"))
		})
	}
}

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/stockcrew/internal/models"
)

const defaultQuoteSummaryURL = "https://query1.finance.yahoo.com/v10/finance/quoteSummary"

// yahooRaw is Yahoo's {"raw": n, "fmt": "..."} number wrapper.
type yahooRaw struct {
	Raw float64 `json:"raw"`
}

// quoteSummaryResponse is the subset of quoteSummary's statement modules used for analysis.
// Statements are ordered newest first.
type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			IncomeStatementHistory struct {
				IncomeStatementHistory []struct {
					EndDate         yahooRaw `json:"endDate"`
					TotalRevenue    yahooRaw `json:"totalRevenue"`
					GrossProfit     yahooRaw `json:"grossProfit"`
					OperatingIncome yahooRaw `json:"operatingIncome"`
					NetIncome       yahooRaw `json:"netIncome"`
					EBITDA          yahooRaw `json:"ebitda"`
				} `json:"incomeStatementHistory"`
			} `json:"incomeStatementHistory"`
			BalanceSheetHistory struct {
				BalanceSheetStatements []struct {
					EndDate                 yahooRaw `json:"endDate"`
					TotalAssets             yahooRaw `json:"totalAssets"`
					TotalLiab               yahooRaw `json:"totalLiab"`
					TotalStockholderEquity  yahooRaw `json:"totalStockholderEquity"`
					Cash                    yahooRaw `json:"cash"`
					ShortLongTermDebt       yahooRaw `json:"shortLongTermDebt"`
					LongTermDebt            yahooRaw `json:"longTermDebt"`
					TotalCurrentAssets      yahooRaw `json:"totalCurrentAssets"`
					TotalCurrentLiabilities yahooRaw `json:"totalCurrentLiabilities"`
				} `json:"balanceSheetStatements"`
			} `json:"balanceSheetHistory"`
			CashflowStatementHistory struct {
				CashflowStatements []struct {
					TotalCashFromOperatingActivities yahooRaw `json:"totalCashFromOperatingActivities"`
					FreeCashFlow                     yahooRaw `json:"freeCashFlow"`
					DividendsPaid                    yahooRaw `json:"dividendsPaid"`
				} `json:"cashflowStatements"`
			} `json:"cashflowStatementHistory"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteSummary"`
}

// quoteSummaryClient fetches annual statements, which finance-go does not expose.
type quoteSummaryClient struct {
	baseURL    string
	httpClient *http.Client
}

func newQuoteSummaryClient() *quoteSummaryClient {
	return &quoteSummaryClient{
		baseURL:    defaultQuoteSummaryURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch returns the latest annual statements for symbol, or nil when Yahoo has none.
func (c *quoteSummaryClient) Fetch(ctx context.Context, symbol string) (*models.Financials, error) {
	reqURL := fmt.Sprintf("%s/%s?modules=%s", c.baseURL, url.PathEscape(symbol),
		url.QueryEscape("incomeStatementHistory,balanceSheetHistory,cashflowStatementHistory"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch financial statements: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Yahoo Finance API returned status %d", resp.StatusCode)
	}

	var apiResp quoteSummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.QuoteSummary.Result) == 0 {
		return nil, nil
	}
	result := apiResp.QuoteSummary.Result[0]

	incomes := result.IncomeStatementHistory.IncomeStatementHistory
	balances := result.BalanceSheetHistory.BalanceSheetStatements
	if len(incomes) == 0 && len(balances) == 0 {
		return nil, nil
	}

	f := &models.Financials{}
	if len(incomes) > 0 {
		is := incomes[0]
		f.FiscalYear = fiscalYear(is.EndDate.Raw)
		f.Income = models.IncomeStatement{
			TotalRevenue:    is.TotalRevenue.Raw,
			GrossProfit:     is.GrossProfit.Raw,
			OperatingIncome: is.OperatingIncome.Raw,
			NetIncome:       is.NetIncome.Raw,
			EBITDA:          is.EBITDA.Raw,
		}
	}
	if len(balances) > 0 {
		bs := balances[0]
		f.FiscalYear = fiscalYear(bs.EndDate.Raw)
		f.Balance = models.BalanceSheet{
			TotalAssets:        bs.TotalAssets.Raw,
			TotalLiabilities:   bs.TotalLiab.Raw,
			TotalDebt:          bs.ShortLongTermDebt.Raw + bs.LongTermDebt.Raw,
			StockholderEquity:  bs.TotalStockholderEquity.Raw,
			CashAndEquivalents: bs.Cash.Raw,
			CurrentAssets:      bs.TotalCurrentAssets.Raw,
			CurrentLiabilities: bs.TotalCurrentLiabilities.Raw,
		}
		f.Balance.WorkingCapital = workingCapital(f.Balance)
	}
	if cfs := result.CashflowStatementHistory.CashflowStatements; len(cfs) > 0 {
		f.CashFlow = models.CashFlowStatement{
			OperatingCashFlow: cfs[0].TotalCashFromOperatingActivities.Raw,
			FreeCashFlow:      cfs[0].FreeCashFlow.Raw,
			DividendsPaid:     cfs[0].DividendsPaid.Raw,
		}
	}
	return f, nil
}

func fiscalYear(unix float64) string {
	if unix <= 0 {
		return ""
	}
	return time.Unix(int64(unix), 0).UTC().Format("2006-01-02")
}

package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/stockcrew/internal/eodhd"
	"github.com/ternarybob/stockcrew/internal/models"
)

func TestComputeRatios(t *testing.T) {
	f := &models.Financials{
		Income: models.IncomeStatement{TotalRevenue: 1000, GrossProfit: 400, NetIncome: 100},
		Balance: models.BalanceSheet{
			TotalAssets:       2000,
			TotalDebt:         500,
			StockholderEquity: 250,
		},
	}

	r := ComputeRatios(f, 3000)

	assert.InDelta(t, 40.0, r.GrossMargin, 1e-9)
	assert.InDelta(t, 10.0, r.NetMargin, 1e-9)
	assert.InDelta(t, 5.0, r.ROA, 1e-9)
	assert.InDelta(t, 40.0, r.ROE, 1e-9)
	assert.InDelta(t, 25.0, r.DebtToAssets, 1e-9)
	assert.InDelta(t, 200.0, r.DebtToEquity, 1e-9)
	assert.InDelta(t, 30.0, r.PERatio, 1e-9)
	assert.InDelta(t, 3.0, r.PriceToSales, 1e-9)
	assert.InDelta(t, 12.0, r.PriceToBook, 1e-9)
}

func TestComputeRatiosSkipsNonPositiveDenominators(t *testing.T) {
	f := &models.Financials{
		Income:  models.IncomeStatement{TotalRevenue: 0, NetIncome: -50},
		Balance: models.BalanceSheet{TotalAssets: 800, TotalDebt: 300, StockholderEquity: -20},
	}

	r := ComputeRatios(f, 1000)

	assert.Zero(t, r.GrossMargin)
	assert.Zero(t, r.NetMargin)
	assert.Zero(t, r.ROE)
	assert.Zero(t, r.DebtToEquity, "negative equity leaves leverage unknown")
	assert.Zero(t, r.PERatio, "losses have no P/E")
	assert.Zero(t, r.PriceToSales)
	assert.InDelta(t, -6.25, r.ROA, 1e-9)
	assert.InDelta(t, 37.5, r.DebtToAssets, 1e-9)

	assert.Equal(t, models.FinancialRatios{}, ComputeRatios(nil, 1000))
}

func TestComputeRatiosWithoutMarketCap(t *testing.T) {
	f := &models.Financials{
		Income:  models.IncomeStatement{TotalRevenue: 1000, NetIncome: 100},
		Balance: models.BalanceSheet{StockholderEquity: 500},
	}

	r := ComputeRatios(f, 0)

	assert.Zero(t, r.PERatio)
	assert.Zero(t, r.PriceToSales)
	assert.Zero(t, r.PriceToBook)
	assert.InDelta(t, 20.0, r.ROE, 1e-9)
}

func TestFinancialsFromEODHD(t *testing.T) {
	fin := &eodhd.Financials{
		BalanceSheet: &eodhd.FinancialStatement{
			Currency: "USD",
			Yearly: map[string]map[string]interface{}{
				"2022-12-31": {"totalAssets": "900"},
				"2023-12-31": {
					"totalAssets":                 "1000",
					"totalLiab":                   "700",
					"shortTermDebt":               "50",
					"longTermDebt":                "250",
					"totalStockholderEquity":      "300",
					"cashAndShortTermInvestments": 120.0,
					"totalCurrentAssets":          "400",
					"totalCurrentLiabilities":     "150",
				},
			},
		},
		IncomeStatement: &eodhd.FinancialStatement{
			Yearly: map[string]map[string]interface{}{
				"2023-12-31": {"totalRevenue": "2000", "grossProfit": "800", "netIncome": "150", "operatingIncome": nil},
			},
		},
		CashFlow: &eodhd.FinancialStatement{
			Yearly: map[string]map[string]interface{}{
				"2023-12-31": {"totalCashFromOperatingActivities": "220", "freeCashFlow": "180"},
			},
		},
	}

	f := financialsFromEODHD(fin)
	require.NotNil(t, f)

	assert.Equal(t, "2023-12-31", f.FiscalYear)
	assert.Equal(t, "USD", f.Currency)
	assert.Equal(t, 2000.0, f.Income.TotalRevenue)
	assert.Zero(t, f.Income.OperatingIncome)
	assert.Equal(t, 1000.0, f.Balance.TotalAssets)
	assert.Equal(t, 300.0, f.Balance.TotalDebt, "short plus long term debt when no total is reported")
	assert.Equal(t, 120.0, f.Balance.CashAndEquivalents)
	assert.Equal(t, 250.0, f.Balance.WorkingCapital)
	assert.Equal(t, 220.0, f.CashFlow.OperatingCashFlow)
	assert.Equal(t, 180.0, f.CashFlow.FreeCashFlow)

	assert.Nil(t, financialsFromEODHD(nil))
	assert.Nil(t, financialsFromEODHD(&eodhd.Financials{}))
}

func TestAttachFinancialsFillsDebtToEquity(t *testing.T) {
	data := &SourceData{
		Currency:     "USD",
		Fundamentals: models.Fundamentals{MarketCap: 1200},
		Financials: &models.Financials{
			Balance: models.BalanceSheet{TotalDebt: 500, StockholderEquity: 100},
		},
	}

	attachFinancials(data)

	assert.InDelta(t, 500.0, data.Fundamentals.DebtToEquity, 1e-9)
	assert.InDelta(t, 12.0, data.Financials.Ratios.PriceToBook, 1e-9)
	assert.Equal(t, "USD", data.Financials.Currency)

	reported := &SourceData{
		Fundamentals: models.Fundamentals{DebtToEquity: 80},
		Financials:   &models.Financials{Balance: models.BalanceSheet{TotalDebt: 500, StockholderEquity: 100}},
	}
	attachFinancials(reported)
	assert.Equal(t, 80.0, reported.Fundamentals.DebtToEquity, "a reported figure is kept")
}

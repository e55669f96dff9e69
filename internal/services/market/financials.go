package market

import (
	"github.com/ternarybob/stockcrew/internal/eodhd"
	"github.com/ternarybob/stockcrew/internal/models"
)

// ComputeRatios derives profitability, leverage and valuation ratios from the
// statement figures. marketCap of 0 leaves the valuation multiples unset.
func ComputeRatios(f *models.Financials, marketCap float64) models.FinancialRatios {
	var r models.FinancialRatios
	if f == nil {
		return r
	}
	revenue := f.Income.TotalRevenue
	netIncome := f.Income.NetIncome
	assets := f.Balance.TotalAssets
	debt := f.Balance.TotalDebt
	equity := f.Balance.StockholderEquity

	if revenue > 0 {
		r.GrossMargin = f.Income.GrossProfit / revenue * 100
		r.NetMargin = netIncome / revenue * 100
	}
	if assets > 0 {
		r.ROA = netIncome / assets * 100
		r.DebtToAssets = debt / assets * 100
	}
	if equity > 0 {
		r.ROE = netIncome / equity * 100
		r.DebtToEquity = debt / equity * 100
	}

	if marketCap > 0 {
		if netIncome > 0 {
			r.PERatio = marketCap / netIncome
		}
		if revenue > 0 {
			r.PriceToSales = marketCap / revenue
		}
		if equity > 0 {
			r.PriceToBook = marketCap / equity
		}
	}
	return r
}

// financialsFromEODHD reads the latest yearly income statement, balance sheet
// and cash flow. Returns nil when EODHD has no yearly statements.
func financialsFromEODHD(fin *eodhd.Financials) *models.Financials {
	if fin == nil {
		return nil
	}
	incomeYear, income := fin.IncomeStatement.LatestYear()
	balanceYear, balance := fin.BalanceSheet.LatestYear()
	_, cashFlow := fin.CashFlow.LatestYear()
	if income == nil && balance == nil {
		return nil
	}

	f := &models.Financials{FiscalYear: balanceYear}
	if f.FiscalYear == "" {
		f.FiscalYear = incomeYear
	}
	switch {
	case fin.BalanceSheet != nil && fin.BalanceSheet.Currency != "":
		f.Currency = fin.BalanceSheet.Currency
	case fin.IncomeStatement != nil:
		f.Currency = fin.IncomeStatement.Currency
	}

	f.Income = models.IncomeStatement{
		TotalRevenue:    eodhd.Number(income, "totalRevenue"),
		GrossProfit:     eodhd.Number(income, "grossProfit"),
		OperatingIncome: eodhd.Number(income, "operatingIncome"),
		NetIncome:       eodhd.Number(income, "netIncome"),
		EBITDA:          eodhd.Number(income, "ebitda"),
	}

	debt := eodhd.Number(balance, "shortLongTermDebtTotal")
	if debt == 0 {
		debt = eodhd.Number(balance, "shortTermDebt") + eodhd.Number(balance, "longTermDebt")
	}
	cashOnHand := eodhd.Number(balance, "cash")
	if cashOnHand == 0 {
		cashOnHand = eodhd.Number(balance, "cashAndShortTermInvestments")
	}
	f.Balance = models.BalanceSheet{
		TotalAssets:        eodhd.Number(balance, "totalAssets"),
		TotalLiabilities:   eodhd.Number(balance, "totalLiab"),
		TotalDebt:          debt,
		StockholderEquity:  eodhd.Number(balance, "totalStockholderEquity"),
		CashAndEquivalents: cashOnHand,
		CurrentAssets:      eodhd.Number(balance, "totalCurrentAssets"),
		CurrentLiabilities: eodhd.Number(balance, "totalCurrentLiabilities"),
	}
	f.Balance.WorkingCapital = workingCapital(f.Balance)

	f.CashFlow = models.CashFlowStatement{
		OperatingCashFlow: eodhd.Number(cashFlow, "totalCashFromOperatingActivities"),
		FreeCashFlow:      eodhd.Number(cashFlow, "freeCashFlow"),
		DividendsPaid:     eodhd.Number(cashFlow, "dividendsPaid"),
	}
	return f
}

func workingCapital(b models.BalanceSheet) float64 {
	if b.CurrentAssets == 0 && b.CurrentLiabilities == 0 {
		return 0
	}
	return b.CurrentAssets - b.CurrentLiabilities
}

// attachFinancials fills the ratios and, when the source gave no leverage
// figure, the fundamentals' debt-to-equity the risk rating reads.
func attachFinancials(data *SourceData) {
	if data.Financials == nil {
		return
	}
	data.Financials.Ratios = ComputeRatios(data.Financials, data.Fundamentals.MarketCap)
	if data.Fundamentals.DebtToEquity == 0 {
		data.Fundamentals.DebtToEquity = data.Financials.Ratios.DebtToEquity
	}
	if data.Financials.Currency == "" {
		data.Financials.Currency = data.Currency
	}
}

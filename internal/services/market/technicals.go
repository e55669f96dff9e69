package market

import "github.com/ternarybob/stockcrew/internal/models"

// ComputeTechnicals derives simple indicators from bars in ascending date order.
// Indicators needing more history than available are left at zero.
func ComputeTechnicals(bars []models.PriceBar) models.Technicals {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Price()
	}

	var t models.Technicals
	n := len(prices)
	if n == 0 {
		return t
	}

	t.LastClose = prices[n-1]
	if prices[0] > 0 {
		t.PeriodChangePct = (prices[n-1]/prices[0] - 1) * 100
	}
	if n >= 20 {
		t.SMA20 = Mean(prices[n-20:])
		t.Support, t.Resistance = minMax(prices[n-20:])
	}
	if n >= 50 {
		t.SMA50 = Mean(prices[n-50:])
	}
	if n >= 10 && prices[n-10] > 0 {
		t.Momentum10 = (prices[n-1]/prices[n-10] - 1) * 100
	}
	t.Trend = trend(t)
	t.Regime = ClassifyRegime(bars)

	return t
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func trend(t models.Technicals) string {
	switch {
	case t.SMA20 == 0 || t.SMA50 == 0:
		return ""
	case t.LastClose > t.SMA20 && t.SMA20 > t.SMA50:
		return "uptrend"
	case t.LastClose < t.SMA20 && t.SMA20 < t.SMA50:
		return "downtrend"
	default:
		return "sideways"
	}
}

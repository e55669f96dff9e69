package market

import (
	"math"

	"github.com/ternarybob/stockcrew/internal/models"
)

// minRegimeBars is the history needed for the 20/50 EMA stack.
const minRegimeBars = 50

// ClassifyRegime determines the price action regime over bars in ascending
// date order. Histories shorter than minRegimeBars are left unclassified; the
// 200-day EMA is used only when enough bars are available.
func ClassifyRegime(bars []models.PriceBar) models.Regime {
	if len(bars) < minRegimeBars {
		return models.Regime{}
	}

	prices := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Price()
		volumes[i] = float64(b.Volume)
	}
	n := len(prices)
	current := prices[n-1]

	ema20 := EMA(prices, 20)
	ema50 := EMA(prices, 50)
	ema200 := EMA(prices, 200)

	aboveEMA20 := current > ema20
	aboveEMA50 := current > ema50
	aboveEMA200 := ema200 > 0 && current > ema200
	belowEMA200 := ema200 > 0 && current < ema200

	// EMA stack (bullish = 20 > 50 > 200)
	emaStackBullish := ema20 > ema50 && (ema200 == 0 || ema50 > ema200)
	emaStackBearish := ema20 < ema50 && (ema200 == 0 || ema50 < ema200)

	// Near period extremes
	low, high := minMax(prices)
	distToHigh := 0.0
	if high > 0 {
		distToHigh = (high - current) / high
	}
	near52WkHigh := distToHigh < 0.05 && distToHigh >= 0 // Within 5%

	distToLow := 0.0
	if low > 0 {
		distToLow = (current - low) / low
	}
	near52WkLow := distToLow < 0.10 && distToLow >= 0 // Within 10%

	// Volume confirmation
	volZ := zScore(volumes[n-1], volumes[n-20:])
	volExpanding := volZ > 0.5
	volRising := Mean(volumes[n-5:]) > Mean(volumes[n-20:])*1.1

	return4W := returnPct(prices, 20)
	return12W := returnPct(prices, 60)

	var regime models.RegimeType
	var confidence float64

	switch {
	// Breakout: near highs with volume expansion and bullish EMAs
	case near52WkHigh && volExpanding && emaStackBullish:
		regime, confidence = models.RegimeBreakout, 0.80

	// Trend up: bullish structure, above the 20 EMA, positive momentum
	case emaStackBullish && aboveEMA20 && return4W > 0:
		regime, confidence = models.RegimeTrendUp, 0.70

	// Trend down: bearish structure, below the 50 EMA, negative momentum
	case emaStackBearish && !aboveEMA50 && return4W < 0:
		regime, confidence = models.RegimeTrendDown, 0.70

	// Decay: below the 200 EMA, rising volume, significant losses
	case belowEMA200 && volRising && return12W < -10:
		regime, confidence = models.RegimeDecay, 0.65

	// Distribution: near highs without volume expansion, weak recent returns
	case near52WkHigh && !volExpanding && return4W < 3:
		regime, confidence = models.RegimeDistribution, 0.60

	// Accumulation: flat price, rising and expanding volume
	case math.Abs(return4W) < 5 && volRising && volExpanding:
		regime, confidence = models.RegimeAccumulation, 0.55

	// Range: mean-reverting, no clear trend
	case math.Abs(return12W) < 10 && !emaStackBullish && !emaStackBearish:
		regime, confidence = models.RegimeRange, 0.50

	default:
		switch {
		case aboveEMA200 && return4W > 0:
			regime, confidence = models.RegimeTrendUp, 0.40
		case belowEMA200 && return4W < 0:
			regime, confidence = models.RegimeTrendDown, 0.40
		case near52WkLow && volExpanding:
			regime, confidence = models.RegimeAccumulation, 0.45
		default:
			regime, confidence = models.RegimeUndefined, 0.30
		}
	}

	trendBias := "neutral"
	if aboveEMA200 {
		trendBias = "bullish"
	} else if belowEMA200 {
		trendBias = "bearish"
	}

	emaStack := "mixed"
	if emaStackBullish {
		emaStack = "bullish"
	} else if emaStackBearish {
		emaStack = "bearish"
	}

	return models.Regime{
		Classification: regime,
		Confidence:     confidence,
		TrendBias:      trendBias,
		EMAStack:       emaStack,
		EMA20:          round(ema20, 4),
		EMA50:          round(ema50, 4),
		EMA200:         round(ema200, 4),
		VolumeZScore:   round(volZ, 2),
	}
}

// EMA returns the exponential moving average of values over period n, seeded
// with the simple average of the first n values. Zero when len(values) < n.
func EMA(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return 0
	}
	k := 2.0 / float64(n+1)
	ema := Mean(values[:n])
	for _, v := range values[n:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// zScore of value against values, zero when values have no spread.
func zScore(value float64, values []float64) float64 {
	sd := SampleStddev(values)
	if sd == 0 {
		return 0
	}
	return (value - Mean(values)) / sd
}

// returnPct is the percentage return over the last days bars.
func returnPct(prices []float64, days int) float64 {
	n := len(prices)
	if n <= days || prices[n-1-days] == 0 {
		return 0
	}
	return (prices[n-1]/prices[n-1-days] - 1) * 100
}

func round(value float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(value*mult) / mult
}

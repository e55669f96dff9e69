package market

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/stockcrew/internal/models"
)

const (
	// TradingDaysPerYear annualizes daily volatility.
	TradingDaysPerYear = 252

	// MinReturns is the minimum number of periodic returns needed for risk statistics.
	MinReturns = 10

	VaRMethodHistorical = "historical"
	VaRMethodParametric = "parametric"
)

// ErrInsufficientHistory is returned when fewer than MinReturns returns are available.
var ErrInsufficientHistory = errors.New("insufficient price history")

// RiskParams configures ComputeRisk.
type RiskParams struct {
	LookbackDays    int
	ConfidenceLevel float64
	Method          string
	PositionSize    float64
	Currency        string
}

// SimpleReturns calculates periodic simple returns (p[i]/p[i-1] - 1) from bars
// in ascending date order. Pairs with a non-positive base price are skipped.
func SimpleReturns(bars []models.PriceBar) []float64 {
	if len(bars) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Price()
		if prev <= 0 {
			continue
		}
		returns = append(returns, bars[i].Price()/prev-1)
	}
	return returns
}

// Mean calculates the arithmetic mean
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleStddev calculates the sample standard deviation (n-1 denominator)
func SampleStddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)

	return math.Sqrt(variance)
}

// AnnualizedVolatility scales the sample standard deviation of daily returns by sqrt(252).
func AnnualizedVolatility(returns []float64) float64 {
	return SampleStddev(returns) * math.Sqrt(TradingDaysPerYear)
}

// HistoricalVaR returns the historical-simulation Value-at-Risk as a loss
// fraction: returns are sorted ascending and the value at index
// floor((1-c)*n) is negated. A negative result means even the tail return was a gain.
func HistoricalVaR(returns []float64, confidence float64) (float64, error) {
	if len(returns) < MinReturns {
		return 0, fmt.Errorf("%w: %d returns, need %d", ErrInsufficientHistory, len(returns), MinReturns)
	}
	if confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("confidence level must be in (0, 1), got %v", confidence)
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// the epsilon keeps e.g. (1-0.9)*10 from flooring to 0
	idx := int(math.Floor((1-confidence)*float64(len(sorted)) + 1e-9))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return -sorted[idx], nil
}

// ParametricVaR returns the variance-covariance Value-at-Risk as a loss
// fraction, -(mean - z*sd), with z the standard normal quantile at confidence.
func ParametricVaR(returns []float64, confidence float64) (float64, error) {
	if len(returns) < MinReturns {
		return 0, fmt.Errorf("%w: %d returns, need %d", ErrInsufficientHistory, len(returns), MinReturns)
	}
	if confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("confidence level must be in (0, 1), got %v", confidence)
	}
	z := NormalQuantile(confidence)
	return -(Mean(returns) - z*SampleStddev(returns)), nil
}

// NormalQuantile is the inverse CDF of the standard normal distribution.
func NormalQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

// ComputeRisk derives volatility, VaR and a coarse risk rating from the last
// LookbackDays returns of bars.
func ComputeRisk(bars []models.PriceBar, fundamentals models.Fundamentals, params RiskParams) (models.RiskMetrics, error) {
	if params.LookbackDays > 0 && len(bars) > params.LookbackDays+1 {
		bars = bars[len(bars)-params.LookbackDays-1:]
	}

	returns := SimpleReturns(bars)
	if len(returns) < MinReturns {
		return models.RiskMetrics{}, fmt.Errorf("%w: %d returns, need %d", ErrInsufficientHistory, len(returns), MinReturns)
	}

	method := params.Method
	if method == "" {
		method = VaRMethodHistorical
	}

	var (
		varFraction float64
		err         error
	)
	switch method {
	case VaRMethodHistorical:
		varFraction, err = HistoricalVaR(returns, params.ConfidenceLevel)
	case VaRMethodParametric:
		varFraction, err = ParametricVaR(returns, params.ConfidenceLevel)
	default:
		return models.RiskMetrics{}, fmt.Errorf("unknown VaR method %q", method)
	}
	if err != nil {
		return models.RiskMetrics{}, err
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	metrics := models.RiskMetrics{
		Observations:         len(returns),
		LookbackDays:         params.LookbackDays,
		DailyVolatility:      SampleStddev(returns),
		AnnualizedVolatility: AnnualizedVolatility(returns),
		ConfidenceLevel:      params.ConfidenceLevel,
		Method:               method,
		VaR:                  varFraction,
		VaRPercent:           varFraction * 100,
		VaRAmount:            varFraction * params.PositionSize,
		PositionSize:         params.PositionSize,
		Currency:             params.Currency,
		MeanReturn:           Mean(returns),
		WorstReturn:          sorted[0],
		BestReturn:           sorted[len(sorted)-1],
	}
	metrics.Rating, metrics.RiskFactors = RateRisk(metrics.AnnualizedVolatility, fundamentals.Beta, fundamentals.DebtToEquity)
	metrics.Recommendations = RiskRecommendations(metrics.Rating)

	return metrics, nil
}

// RateRisk scores volatility, beta and leverage on a 1-10 scale starting at 5
// and maps the score to Low (<=3), Medium (<=6) or High.
// debtToEquity is a percentage (150 means 1.5x). Zero inputs are treated as unknown.
func RateRisk(annualizedVolatility, beta, debtToEquity float64) (string, []string) {
	score := 5
	var factors []string

	if annualizedVolatility > 0.3 {
		factors = append(factors, "High volatility")
		score++
	}
	if beta > 1.5 {
		factors = append(factors, "High market sensitivity")
		score++
	} else if beta > 0 && beta < 0.5 {
		factors = append(factors, "Low market correlation")
	}
	if debtToEquity > 100 {
		factors = append(factors, "High debt levels")
		score++
	}

	switch {
	case score <= 3:
		return "Low", factors
	case score <= 6:
		return "Medium", factors
	default:
		return "High", factors
	}
}

// RiskRecommendations returns the standing advice for a rating. Only High
// carries any.
func RiskRecommendations(rating string) []string {
	if rating != "High" {
		return nil
	}
	return []string{
		"Consider position sizing carefully",
		"Implement stop-loss strategies",
	}
}

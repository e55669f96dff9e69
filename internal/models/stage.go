package models

import "fmt"

// StageKind identifies one of the fixed pipeline stages. The numeric order is
// the execution order.
type StageKind int

const (
	StageMarketResearch StageKind = iota
	StageFinancialHealth
	StageTechnicalAnalysis
	StageRiskAssessment
	StageInvestmentSynthesis
)

var stageKeys = [...]string{
	"market_research",
	"financial_health",
	"technical_analysis",
	"risk_assessment",
	"investment_synthesis",
}

var stageTitles = [...]string{
	"Market Research",
	"Financial Health",
	"Technical Analysis",
	"Risk Assessment",
	"Investment Synthesis",
}

// AllStages returns every stage in execution order.
func AllStages() []StageKind {
	return []StageKind{
		StageMarketResearch,
		StageFinancialHealth,
		StageTechnicalAnalysis,
		StageRiskAssessment,
		StageInvestmentSynthesis,
	}
}

// Valid reports whether s is a known stage.
func (s StageKind) Valid() bool {
	return s >= StageMarketResearch && s <= StageInvestmentSynthesis
}

// String returns the snake_case key used in templates and storage.
func (s StageKind) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageKeys[s]
}

// Title returns the human-readable label used in prompts and reports.
func (s StageKind) Title() string {
	if !s.Valid() {
		return s.String()
	}
	return stageTitles[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s StageKind) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StageKind) UnmarshalText(text []byte) error {
	parsed, err := ParseStageKind(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStageKind resolves a stage key such as "risk_assessment".
func ParseStageKind(key string) (StageKind, error) {
	for i, k := range stageKeys {
		if k == key {
			return StageKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", key)
}

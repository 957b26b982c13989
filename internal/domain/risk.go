package domain

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// RiskAssessment is the scoring output recorded on an order at creation.
// It is never recomputed after the fact.
type RiskAssessment struct {
	Score   float64
	Level   RiskLevel
	Reasons []string
	Block   bool
}

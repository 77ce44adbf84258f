package risk

import (
	"time"

	"github.com/google/uuid"

	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
	"github.com/riskcore/transaction-risk-engine/internal/service/compliance"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

// Action is the aggregator's recommendation to the caller.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReview  Action = "REVIEW"
	ActionDecline Action = "DECLINE"
)

// Weights controls how the three risk signals combine into the final score.
type Weights struct {
	Fraud      float64 `koanf:"fraud"`
	Compliance float64 `koanf:"compliance"`
	Velocity   float64 `koanf:"velocity"`
}

// Config drives score combination and the action decision.
type Config struct {
	Weights Weights `koanf:"weights"`

	// ReviewThreshold and DeclineThreshold split the combined score into
	// APPROVE / REVIEW / DECLINE bands.
	ReviewThreshold  float64 `koanf:"review_threshold"`
	DeclineThreshold float64 `koanf:"decline_threshold"`
}

// DefaultConfig returns the production combination policy.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Fraud:      0.5,
			Compliance: 0.3,
			Velocity:   0.2,
		},
		ReviewThreshold:  0.5,
		DeclineThreshold: 0.8,
	}
}

// Validate reports configuration errors. Fatal at startup only.
func (c Config) Validate() error {
	for _, w := range []float64{c.Weights.Fraud, c.Weights.Compliance, c.Weights.Velocity} {
		if w < 0 {
			return errors.NewConfigurationError("NEGATIVE_WEIGHT", "combination weights must be non-negative")
		}
	}
	if c.Weights.Fraud+c.Weights.Compliance+c.Weights.Velocity <= 0 {
		return errors.NewConfigurationError("ZERO_WEIGHTS", "at least one combination weight must be positive")
	}
	if c.ReviewThreshold <= 0 || c.ReviewThreshold > 1 {
		return errors.NewConfigurationError("INVALID_REVIEW_THRESHOLD", "review threshold must be in (0, 1]")
	}
	if c.DeclineThreshold <= 0 || c.DeclineThreshold > 1 {
		return errors.NewConfigurationError("INVALID_DECLINE_THRESHOLD", "decline threshold must be in (0, 1]")
	}
	if c.ReviewThreshold >= c.DeclineThreshold {
		return errors.NewConfigurationError("INVERTED_THRESHOLDS", "review threshold must be below decline threshold")
	}
	return nil
}

// CombinedResult is the aggregator's verdict for one transaction. Created
// fresh per assessment and returned to the caller; the core keeps no copy.
type CombinedResult struct {
	TransactionID     uuid.UUID        `json:"transaction_id"`
	EntityID          string           `json:"entity_id"`
	FraudProbability  float64          `json:"fraud_probability"`
	VelocityRiskScore float64          `json:"velocity_risk_score"`
	AMLRiskScore      float64          `json:"aml_risk_score"`
	CombinedScore     float64          `json:"combined_risk_score"`
	RiskLevel         values.RiskLevel `json:"risk_level"`
	RecommendedAction Action           `json:"recommended_action"`
	Flags             []string         `json:"flags"`
	RequiresReview    bool             `json:"requires_manual_review"`
	Confidence        float64          `json:"confidence"`
	AssessedAt        time.Time        `json:"assessed_at"`

	Velocity   *velocity.Assessment   `json:"velocity"`
	Compliance *compliance.Assessment `json:"compliance"`
}

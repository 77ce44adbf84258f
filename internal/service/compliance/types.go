package compliance

import (
	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/transaction"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

// Detector names. Also used to build DEGRADED:<detector> markers.
const (
	DetectorStructuring        = "structuring"
	DetectorRapidMovement      = "rapid_movement"
	DetectorSuspiciousPatterns = "suspicious_patterns"
	DetectorSanctions          = "sanctions"
)

// Compliance flag codes
const (
	FlagAmountNearCTRThreshold  = "AMOUNT_NEAR_CTR_THRESHOLD"
	FlagMultipleAboveThreshold  = "MULTIPLE_TRANSACTIONS_ABOVE_THRESHOLD"
	FlagLargeSingleTransaction  = "LARGE_SINGLE_TRANSACTION"
	FlagRoundAmountTransaction  = "ROUND_AMOUNT_TRANSACTION"
	FlagHighFrequency           = "HIGH_FREQUENCY_TRANSACTIONS"
	FlagUnusualTiming           = "UNUSUAL_TIMING"
	FlagHighRiskMerchant        = "HIGH_RISK_MERCHANT_CATEGORY"
	FlagHighRiskLocation        = "HIGH_RISK_LOCATION"
	FlagRepeatedDigitAmount     = "REPEATED_DIGIT_AMOUNT"
	FlagSanctionsMatch          = "SANCTIONS_MATCH"
	FlagSanctionsLocation       = "SANCTIONS_LOCATION"

	degradedPrefix = "DEGRADED:"
)

// Weights controls how detector scores combine into the overall score.
type Weights struct {
	Structuring        float64 `koanf:"structuring"`
	RapidMovement      float64 `koanf:"rapid_movement"`
	SuspiciousPatterns float64 `koanf:"suspicious_patterns"`
	Sanctions          float64 `koanf:"sanctions"`
}

// Config drives the rule engine. All thresholds and lists are overridable;
// the engine itself hardcodes nothing.
type Config struct {
	// StructuringThreshold is the CTR reporting threshold. Amounts inside
	// [BandRatio x threshold, threshold) score as potential structuring.
	StructuringThreshold float64 `koanf:"structuring_threshold"`
	StructuringBandRatio float64 `koanf:"structuring_band_ratio"`
	// StructuringWindow names the recent-activity window consulted for the
	// many-small-transactions check.
	StructuringWindow   string `koanf:"structuring_window"`
	StructuringMinCount int    `koanf:"structuring_min_count"`

	RapidMovementThreshold float64 `koanf:"rapid_movement_threshold"`
	// RapidMovementWindow names the recent-activity window consulted for
	// elevated frequency.
	RapidMovementWindow   string `koanf:"rapid_movement_window"`
	RapidMovementMinCount int    `koanf:"rapid_movement_min_count"`

	OffHoursStart int `koanf:"off_hours_start"` // inclusive, e.g. 23
	OffHoursEnd   int `koanf:"off_hours_end"`   // exclusive, e.g. 6

	HighRiskCategories []string `koanf:"high_risk_categories"`
	HighRiskLocations  []string `koanf:"high_risk_locations"`

	// Watchlist holds restricted party names for sanctions screening;
	// SanctionedLocations holds restricted jurisdictions.
	Watchlist           []string `koanf:"watchlist"`
	SanctionedLocations []string `koanf:"sanctioned_locations"`

	Weights               Weights `koanf:"weights"`
	ManualReviewThreshold float64 `koanf:"manual_review_threshold"`
}

// DefaultConfig returns the production rule set.
func DefaultConfig() Config {
	return Config{
		StructuringThreshold:   10_000,
		StructuringBandRatio:   0.8,
		StructuringWindow:      "day",
		StructuringMinCount:    3,
		RapidMovementThreshold: 50_000,
		RapidMovementWindow:    "six_hour",
		RapidMovementMinCount:  5,
		OffHoursStart:          23,
		OffHoursEnd:            6,
		HighRiskCategories:     []string{"CASH_ADVANCE", "GAMBLING", "CRYPTOCURRENCY", "MONEY_TRANSFER"},
		HighRiskLocations:      []string{"OFFSHORE", "HIGH_RISK_JURISDICTION"},
		Watchlist:              []string{},
		SanctionedLocations:    []string{"SANCTIONS_COUNTRY"},
		Weights: Weights{
			Structuring:        0.20,
			RapidMovement:      0.20,
			SuspiciousPatterns: 0.35,
			Sanctions:          0.25,
		},
		ManualReviewThreshold: 0.7,
	}
}

// Validate reports configuration errors. Fatal at startup only.
func (c Config) Validate() error {
	if c.StructuringThreshold <= 0 {
		return errors.NewConfigurationError("INVALID_STRUCTURING_THRESHOLD", "structuring threshold must be positive")
	}
	if c.StructuringBandRatio <= 0 || c.StructuringBandRatio >= 1 {
		return errors.NewConfigurationError("INVALID_STRUCTURING_BAND", "structuring band ratio must be in (0, 1)")
	}
	if c.RapidMovementThreshold <= 0 {
		return errors.NewConfigurationError("INVALID_RAPID_MOVEMENT_THRESHOLD", "rapid movement threshold must be positive")
	}
	if c.OffHoursStart < 0 || c.OffHoursStart > 23 || c.OffHoursEnd < 0 || c.OffHoursEnd > 23 {
		return errors.NewConfigurationError("INVALID_OFF_HOURS", "off-hours bounds must be valid hours of day")
	}
	for _, w := range []float64{c.Weights.Structuring, c.Weights.RapidMovement, c.Weights.SuspiciousPatterns, c.Weights.Sanctions} {
		if w < 0 {
			return errors.NewConfigurationError("NEGATIVE_WEIGHT", "detector weights must be non-negative")
		}
	}
	if c.ManualReviewThreshold <= 0 || c.ManualReviewThreshold > 1 {
		return errors.NewConfigurationError("INVALID_REVIEW_THRESHOLD", "manual review threshold must be in (0, 1]")
	}
	return nil
}

// DetectorResult is one detector's contribution to an assessment.
type DetectorResult struct {
	Score    float64
	Flags    []string
	Degraded bool
}

// DetectorFunc evaluates one rule family against a transaction and the
// entity's recent activity. It must not panic and must not error; a
// detector that cannot compute reports Degraded instead.
type DetectorFunc func(tx *transaction.Event, recent velocity.Summary) DetectorResult

// Detector pairs a named rule family with its combination weight.
type Detector struct {
	Name     string
	Weight   float64
	Evaluate DetectorFunc
}

// ComponentScores carries the unweighted per-detector scores.
type ComponentScores struct {
	Structuring        float64 `json:"structuring"`
	RapidMovement      float64 `json:"rapid_movement"`
	SuspiciousPatterns float64 `json:"suspicious_patterns"`
	Sanctions          float64 `json:"sanctions"`
}

// Assessment is the engine's best-effort verdict. Created fresh per call and
// never stored by the engine.
type Assessment struct {
	ComponentScores      ComponentScores  `json:"component_scores"`
	OverallScore         float64          `json:"overall_score"`
	RiskLevel            values.RiskLevel `json:"risk_level"`
	Flags                []string         `json:"flags"`
	Recommendations      []string         `json:"recommendations"`
	RequiresManualReview bool             `json:"requires_manual_review"`
}

// SanctionsMatched reports whether screening found a watchlist hit.
func (a *Assessment) SanctionsMatched() bool {
	for _, f := range a.Flags {
		if f == FlagSanctionsMatch {
			return true
		}
	}
	return false
}

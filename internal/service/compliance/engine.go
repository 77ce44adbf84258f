// Package compliance evaluates transactions against independent AML rule
// detectors and combines their findings into a weighted compliance score.
//
// The engine is stateless per call: recent activity is supplied by the
// caller, and every evaluation returns a best-effort Assessment. Screening
// must degrade gracefully rather than block transaction flow, so Evaluate
// never returns an error.
package compliance

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/riskcore/transaction-risk-engine/internal/domain/transaction"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

// Engine runs a configurable list of rule detectors.
type Engine struct {
	cfg       Config
	detectors []Detector
	logger    *slog.Logger
}

// NewEngine validates the configuration and builds the detector list.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{cfg: cfg, logger: logger}
	e.detectors = []Detector{
		{Name: DetectorStructuring, Weight: cfg.Weights.Structuring, Evaluate: e.checkStructuring},
		{Name: DetectorRapidMovement, Weight: cfg.Weights.RapidMovement, Evaluate: e.checkRapidMovement},
		{Name: DetectorSuspiciousPatterns, Weight: cfg.Weights.SuspiciousPatterns, Evaluate: e.checkSuspiciousPatterns},
		{Name: DetectorSanctions, Weight: cfg.Weights.Sanctions, Evaluate: e.checkSanctions},
	}
	return e, nil
}

// Evaluate runs every detector against the transaction and combines the
// results. Detectors that cannot compute contribute zero with a
// DEGRADED:<name> marker; the caller always gets an Assessment.
func (e *Engine) Evaluate(tx *transaction.Event, recent velocity.Summary) *Assessment {
	assessment := &Assessment{}
	scores := make(map[string]float64, len(e.detectors))

	overall := 0.0
	for _, d := range e.detectors {
		result := d.Evaluate(tx, recent)
		score := clamp(result.Score)
		scores[d.Name] = score
		overall += score * d.Weight
		assessment.Flags = append(assessment.Flags, result.Flags...)

		if result.Degraded {
			assessment.Flags = append(assessment.Flags, degradedPrefix+d.Name)
			e.logger.Warn("compliance detector degraded",
				"detector", d.Name,
				"entity_id", tx.EntityID,
			)
		}
	}

	assessment.ComponentScores = ComponentScores{
		Structuring:        scores[DetectorStructuring],
		RapidMovement:      scores[DetectorRapidMovement],
		SuspiciousPatterns: scores[DetectorSuspiciousPatterns],
		Sanctions:          scores[DetectorSanctions],
	}
	assessment.OverallScore = clamp(overall)
	assessment.RiskLevel = values.RiskLevelForScore(assessment.OverallScore)
	assessment.RequiresManualReview = assessment.OverallScore >= e.cfg.ManualReviewThreshold ||
		assessment.SanctionsMatched()
	assessment.Recommendations = e.recommendations(assessment)
	return assessment
}

// checkStructuring detects transactions kept just under the reporting
// threshold, individually or split across the recent window.
func (e *Engine) checkStructuring(tx *transaction.Event, recent velocity.Summary) DetectorResult {
	var result DetectorResult
	amount := tx.Amount.Float64()
	threshold := e.cfg.StructuringThreshold

	// Band check: at exactly the threshold the transaction is reportable,
	// so only [band x threshold, threshold) scores.
	if amount >= e.cfg.StructuringBandRatio*threshold && amount < threshold {
		result.Score += 0.4
		result.Flags = append(result.Flags, FlagAmountNearCTRThreshold)
	}

	if stats, ok := recent.Windows[e.cfg.StructuringWindow]; ok {
		total, _ := stats.TotalAmount.Float64()
		if stats.Count >= e.cfg.StructuringMinCount && total > threshold {
			result.Score += 0.6
			result.Flags = append(result.Flags, FlagMultipleAboveThreshold)
		}
	} else {
		// No window to consult for the split check; the band check still stands.
		result.Degraded = true
	}

	return result
}

// checkRapidMovement detects large fund movements, laundering-typical round
// amounts, and elevated short-horizon frequency.
func (e *Engine) checkRapidMovement(tx *transaction.Event, recent velocity.Summary) DetectorResult {
	var result DetectorResult
	amount := tx.Amount.Amount()

	if f := tx.Amount.Float64(); f > e.cfg.RapidMovementThreshold {
		result.Score += 0.3
		result.Flags = append(result.Flags, FlagLargeSingleTransaction)
	}

	if isRoundAmount(amount) {
		result.Score += 0.2
		result.Flags = append(result.Flags, FlagRoundAmountTransaction)
	}

	if stats, ok := recent.Windows[e.cfg.RapidMovementWindow]; ok {
		if stats.Count >= e.cfg.RapidMovementMinCount {
			result.Score += 0.4
			result.Flags = append(result.Flags, FlagHighFrequency)
		}
	} else {
		// No frequency horizon to consult; the amount checks still stand.
		result.Degraded = true
	}

	return result
}

// checkSuspiciousPatterns detects off-hours timing, high-risk merchant
// categories, high-risk locations, and repeated-digit amounts.
func (e *Engine) checkSuspiciousPatterns(tx *transaction.Event, _ velocity.Summary) DetectorResult {
	var result DetectorResult

	hour := tx.Hour()
	if hour < e.cfg.OffHoursEnd || hour >= e.cfg.OffHoursStart {
		result.Score += 0.2
		result.Flags = append(result.Flags, FlagUnusualTiming)
	}

	category := strings.ToUpper(tx.MerchantCategory)
	for _, risky := range e.cfg.HighRiskCategories {
		if category == strings.ToUpper(risky) {
			result.Score += 0.3
			result.Flags = append(result.Flags, FlagHighRiskMerchant)
			break
		}
	}

	location := strings.ToUpper(tx.Location)
	if location != "" {
		for _, risky := range e.cfg.HighRiskLocations {
			if strings.Contains(location, strings.ToUpper(risky)) {
				result.Score += 0.4
				result.Flags = append(result.Flags, FlagHighRiskLocation)
				break
			}
		}
	}

	if hasRepeatedDigits(tx.Amount.Amount()) {
		result.Score += 0.3
		result.Flags = append(result.Flags, FlagRepeatedDigitAmount)
	}

	return result
}

// checkSanctions screens transaction parties against the watchlist and the
// location against sanctioned jurisdictions. Matching is case-insensitive
// substring, mirroring how screening vendors normalize names.
func (e *Engine) checkSanctions(tx *transaction.Event, _ velocity.Summary) DetectorResult {
	var result DetectorResult

	customer := strings.ToUpper(tx.CustomerName)
	merchant := strings.ToUpper(tx.MerchantName)
	location := strings.ToUpper(tx.Location)

	if customer == "" && merchant == "" && location == "" {
		// Nothing to screen against.
		result.Degraded = true
		return result
	}

	for _, entry := range e.cfg.Watchlist {
		needle := strings.ToUpper(entry)
		if needle == "" {
			continue
		}
		if (customer != "" && strings.Contains(customer, needle)) ||
			(merchant != "" && strings.Contains(merchant, needle)) {
			result.Score = 1.0
			result.Flags = append(result.Flags, FlagSanctionsMatch)
			break
		}
	}

	if location != "" {
		for _, entry := range e.cfg.SanctionedLocations {
			if strings.Contains(location, strings.ToUpper(entry)) {
				if result.Score < 0.8 {
					result.Score = 0.8
				}
				result.Flags = append(result.Flags, FlagSanctionsLocation)
				break
			}
		}
	}

	return result
}

func (e *Engine) recommendations(a *Assessment) []string {
	var recs []string
	if a.OverallScore >= 0.8 {
		recs = append(recs, "IMMEDIATE_MANUAL_REVIEW_REQUIRED", "CONSIDER_SUSPICIOUS_ACTIVITY_REPORT")
	} else if a.OverallScore >= 0.5 {
		recs = append(recs, "ENHANCED_DUE_DILIGENCE")
	}
	for _, f := range a.Flags {
		switch f {
		case FlagSanctionsMatch:
			recs = append(recs, "BLOCK_TRANSACTION_IMMEDIATELY", "REPORT_TO_COMPLIANCE_TEAM")
		case FlagAmountNearCTRThreshold, FlagMultipleAboveThreshold:
			recs = append(recs, "MONITOR_CUSTOMER_PATTERN")
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "STANDARD_PROCESSING")
	}
	return recs
}

// isRoundAmount reports whether the amount is an exact positive multiple of
// 1,000 (which covers 5,000 and 10,000 multiples as well).
func isRoundAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	thousand := decimal.NewFromInt(1000)
	return amount.Mod(thousand).IsZero()
}

// hasRepeatedDigits reports amounts whose integer part is one repeated digit
// at least four digits long, e.g. 5555 or 7777.
func hasRepeatedDigits(amount decimal.Decimal) bool {
	digits := amount.Truncate(0).Abs().String()
	if len(digits) < 4 {
		return false
	}
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}

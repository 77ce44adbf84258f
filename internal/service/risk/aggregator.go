// Package risk ties velocity monitoring, compliance screening, and the
// externally supplied fraud probability into one combined decision.
//
// The aggregator is the single write path into the velocity monitor: each
// transaction is recorded exactly once, then compliance is evaluated against
// the freshly updated activity summary. Callers are responsible for
// at-most-once submission per transaction.
package risk

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/transaction"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
	"github.com/riskcore/transaction-risk-engine/internal/service/compliance"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

// VelocityService is the aggregator's view of the velocity monitor.
type VelocityService interface {
	Record(entityID string, amount values.Money, ts time.Time) (*velocity.Assessment, error)
	Summary(entityID string) velocity.Summary
}

// ComplianceService is the aggregator's view of the rule engine.
type ComplianceService interface {
	Evaluate(tx *transaction.Event, recent velocity.Summary) *compliance.Assessment
}

// Aggregator combines the three risk signals into a recommended action.
type Aggregator struct {
	velocity   VelocityService
	compliance ComplianceService
	cfg        Config
	logger     *slog.Logger
}

// NewAggregator validates the configuration and wires the collaborators.
func NewAggregator(vel VelocityService, comp ComplianceService, cfg Config, logger *slog.Logger) (*Aggregator, error) {
	if vel == nil || comp == nil {
		return nil, errors.NewConfigurationError("MISSING_COLLABORATOR", "velocity and compliance services are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		velocity:   vel,
		compliance: comp,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Assess records the transaction, evaluates compliance against the updated
// activity summary, and combines both with the fraud probability.
//
// Validation failures return before any state is mutated. Past validation, a
// result is always produced: component degradation surfaces as flags on the
// result, never as an error.
func (a *Aggregator) Assess(ctx context.Context, tx *transaction.Event, fraudProbability float64) (*CombinedResult, error) {
	if tx == nil {
		return nil, errors.NewValidationError("MISSING_TRANSACTION", "transaction is required")
	}
	if fraudProbability < 0 || fraudProbability > 1 {
		return nil, errors.NewValidationError("INVALID_FRAUD_PROBABILITY", "fraud probability must be in [0, 1]")
	}

	velResult, err := a.velocity.Record(tx.EntityID, tx.Amount, tx.Timestamp)
	if err != nil {
		return nil, err
	}

	compResult := a.compliance.Evaluate(tx, a.velocity.Summary(tx.EntityID))

	combined := clamp(fraudProbability*a.cfg.Weights.Fraud +
		compResult.OverallScore*a.cfg.Weights.Compliance +
		velResult.Score*a.cfg.Weights.Velocity)

	result := &CombinedResult{
		TransactionID:     tx.ID,
		EntityID:          tx.EntityID,
		FraudProbability:  fraudProbability,
		VelocityRiskScore: velResult.Score,
		AMLRiskScore:      compResult.OverallScore,
		CombinedScore:     combined,
		RiskLevel:         values.RiskLevelForScore(combined),
		RecommendedAction: a.decideAction(combined, velResult, compResult),
		Flags:             mergeFlags(velResult.Flags, compResult.Flags),
		RequiresReview:    compResult.RequiresManualReview || velResult.RequiresReview,
		Confidence:        confidence(combined),
		AssessedAt:        time.Now().UTC(),
		Velocity:          velResult,
		Compliance:        compResult,
	}

	// Component findings escalate the headline level even when the weighted
	// score alone would land lower.
	if a.escalates(velResult, compResult) {
		result.RiskLevel = values.RiskLevelHigh
	}

	a.logger.InfoContext(ctx, "risk assessment complete",
		"transaction_id", result.TransactionID,
		"entity_id", result.EntityID,
		"combined_score", result.CombinedScore,
		"risk_level", result.RiskLevel,
		"action", result.RecommendedAction,
		"flag_count", len(result.Flags),
	)
	return result, nil
}

// decideAction maps the combined score into APPROVE / REVIEW / DECLINE. A
// HIGH compliance finding, a sanctions match, or a component review request
// forces at least REVIEW regardless of the numeric score.
func (a *Aggregator) decideAction(combined float64, vel *velocity.Assessment, comp *compliance.Assessment) Action {
	action := ActionApprove
	switch {
	case combined >= a.cfg.DeclineThreshold:
		action = ActionDecline
	case combined >= a.cfg.ReviewThreshold:
		action = ActionReview
	}
	if action == ActionApprove && a.escalates(vel, comp) {
		action = ActionReview
	}
	return action
}

func (a *Aggregator) escalates(vel *velocity.Assessment, comp *compliance.Assessment) bool {
	return comp.RequiresManualReview ||
		comp.SanctionsMatched() ||
		comp.RiskLevel == values.RiskLevelHigh ||
		vel.RequiresReview ||
		vel.Level == values.RiskLevelHigh
}

// mergeFlags unions the component flags, preserving first-seen order.
func mergeFlags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, list := range lists {
		for _, f := range list {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			merged = append(merged, f)
		}
	}
	return merged
}

// confidence measures distance from the decision midpoint: scores near 0 or
// 1 are confident, scores near 0.5 are not.
func confidence(score float64) float64 {
	return clamp(math.Abs(score-0.5) * 2)
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

package risk

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/transaction"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
	"github.com/riskcore/transaction-risk-engine/internal/service/compliance"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

var baseTime = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T, mutate func(*Config)) (*Aggregator, *velocity.Monitor) {
	t.Helper()

	monitor, err := velocity.NewMonitor(velocity.DefaultConfig(),
		velocity.WithClock(func() time.Time { return baseTime }))
	require.NoError(t, err)

	complianceCfg := compliance.DefaultConfig()
	complianceCfg.Watchlist = []string{"SANCTIONED ENTITY"}
	engine, err := compliance.NewEngine(complianceCfg, slog.Default())
	require.NoError(t, err)

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	agg, err := NewAggregator(monitor, engine, cfg, slog.Default())
	require.NoError(t, err)
	return agg, monitor
}

func newTx(t *testing.T, entityID string, amount float64, ts time.Time) *transaction.Event {
	t.Helper()
	ev, err := transaction.NewEvent(entityID, values.MustNewMoneyFromFloat(amount, values.USD), ts)
	require.NoError(t, err)
	return ev.WithMetadata("RETAIL", "DOMESTIC", "ALICE SMITH", "CORNER STORE")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Weights.Fraud = -0.1 }},
		{"all weights zero", func(c *Config) { c.Weights = Weights{} }},
		{"review threshold out of range", func(c *Config) { c.ReviewThreshold = 1.5 }},
		{"decline threshold zero", func(c *Config) { c.DeclineThreshold = 0 }},
		{"review above decline", func(c *Config) { c.ReviewThreshold = 0.9; c.DeclineThreshold = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
		})
	}
}

func TestNewAggregator_RequiresCollaborators(t *testing.T) {
	_, err := NewAggregator(nil, nil, DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestAssess_InputValidation(t *testing.T) {
	agg, monitor := newTestAggregator(t, nil)
	ctx := context.Background()

	_, err := agg.Assess(ctx, nil, 0.5)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	tx := newTx(t, "C1", 100, baseTime)
	for _, p := range []float64{-0.1, 1.1} {
		_, err = agg.Assess(ctx, tx, p)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	}

	// Rejected transactions never reach the monitor.
	assert.Equal(t, 0, monitor.ActiveEntities())
}

func TestAssess_CleanTransactionApproves(t *testing.T) {
	agg, _ := newTestAggregator(t, nil)

	result, err := agg.Assess(context.Background(), newTx(t, "C1", 120, baseTime), 0.05)
	require.NoError(t, err)

	assert.Equal(t, ActionApprove, result.RecommendedAction)
	assert.Equal(t, values.RiskLevelMinimal, result.RiskLevel)
	assert.False(t, result.RequiresReview)
	assert.Equal(t, "C1", result.EntityID)
	assert.GreaterOrEqual(t, result.CombinedScore, 0.0)
	assert.LessOrEqual(t, result.CombinedScore, 1.0)
}

func TestAssess_LargeOffHoursTransaction(t *testing.T) {
	agg, _ := newTestAggregator(t, nil)

	// Single $75,000 transaction at 03:00.
	ts := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	result, err := agg.Assess(context.Background(), newTx(t, "C2", 75000, ts), 0.10)
	require.NoError(t, err)

	assert.Contains(t, result.Flags, compliance.FlagLargeSingleTransaction)
	assert.Contains(t, result.Flags, compliance.FlagUnusualTiming)
	assert.NotEqual(t, ActionApprove, result.RecommendedAction)
	assert.Equal(t, values.RiskLevelHigh, result.RiskLevel)
	assert.InDelta(t, 0.301, result.CombinedScore, 1e-9)
}

func TestAssess_StructuringAcrossTransactions(t *testing.T) {
	agg, _ := newTestAggregator(t, nil)
	ctx := context.Background()

	_, err := agg.Assess(ctx, newTx(t, "C1", 9500, baseTime), 0.05)
	require.NoError(t, err)

	// The second evaluation sees the first transaction in its summary.
	result, err := agg.Assess(ctx, newTx(t, "C1", 9600, baseTime.Add(30*time.Minute)), 0.05)
	require.NoError(t, err)

	assert.Contains(t, result.Flags, compliance.FlagAmountNearCTRThreshold)
	require.NotNil(t, result.Velocity)
	hour := result.Velocity.Windows["hour"]
	assert.Equal(t, 2, hour.Stats.Count)
	assert.Equal(t, "19100", hour.Stats.TotalAmount.String())
}

func TestAssess_SanctionsForcesReview(t *testing.T) {
	agg, _ := newTestAggregator(t, nil)

	tx := newTx(t, "C3", 50, baseTime).
		WithMetadata("RETAIL", "DOMESTIC", "SANCTIONED ENTITY LLC", "CORNER STORE")
	result, err := agg.Assess(context.Background(), tx, 0.01)
	require.NoError(t, err)

	assert.Contains(t, result.Flags, compliance.FlagSanctionsMatch)
	assert.True(t, result.RequiresReview)
	assert.NotEqual(t, ActionApprove, result.RecommendedAction)
	assert.Equal(t, values.RiskLevelHigh, result.RiskLevel)
}

func TestAssess_DeclineAboveThreshold(t *testing.T) {
	agg, _ := newTestAggregator(t, func(c *Config) {
		c.Weights = Weights{Fraud: 1.0}
	})

	result, err := agg.Assess(context.Background(), newTx(t, "C4", 120, baseTime), 0.9)
	require.NoError(t, err)
	assert.Equal(t, ActionDecline, result.RecommendedAction)
	assert.InDelta(t, 0.9, result.CombinedScore, 1e-9)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestAssess_RecordsExactlyOncePerCall(t *testing.T) {
	agg, monitor := newTestAggregator(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := agg.Assess(ctx, newTx(t, "C5", 100, baseTime.Add(time.Duration(i)*time.Minute)), 0.05)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, monitor.Summary("C5").Windows["day"].Count)
}

// capturingCompliance records the summary passed to Evaluate.
type capturingCompliance struct {
	inner    ComplianceService
	captured velocity.Summary
}

func (c *capturingCompliance) Evaluate(tx *transaction.Event, recent velocity.Summary) *compliance.Assessment {
	c.captured = recent
	return c.inner.Evaluate(tx, recent)
}

func TestAssess_ComplianceSeesUpdatedSummary(t *testing.T) {
	monitor, err := velocity.NewMonitor(velocity.DefaultConfig(),
		velocity.WithClock(func() time.Time { return baseTime }))
	require.NoError(t, err)
	engine, err := compliance.NewEngine(compliance.DefaultConfig(), slog.Default())
	require.NoError(t, err)

	capture := &capturingCompliance{inner: engine}
	agg, err := NewAggregator(monitor, capture, DefaultConfig(), slog.Default())
	require.NoError(t, err)

	_, err = agg.Assess(context.Background(), newTx(t, "C6", 200, baseTime), 0.05)
	require.NoError(t, err)

	// The summary handed to compliance already includes the current
	// transaction, not the pre-record state.
	assert.Equal(t, 1, capture.captured.Windows["day"].Count)
}

func TestMergeFlags(t *testing.T) {
	merged := mergeFlags(
		[]string{"A", "B"},
		[]string{"B", "C"},
		nil,
	)
	assert.Equal(t, []string{"A", "B", "C"}, merged)
}

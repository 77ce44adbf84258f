package compliance

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/transaction"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Watchlist = []string{"SANCTIONED ENTITY"}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, slog.Default())
	require.NoError(t, err)
	return e
}

func txAt(t *testing.T, amount float64, ts time.Time) *transaction.Event {
	t.Helper()
	ev, err := transaction.NewEvent("C1", values.MustNewMoneyFromFloat(amount, values.USD), ts)
	require.NoError(t, err)
	return ev
}

// middayTx is a transaction free of timing, category, and location signals.
func middayTx(t *testing.T, amount float64) *transaction.Event {
	return txAt(t, amount, time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC))
}

func summaryWith(window string, count int, total float64) velocity.Summary {
	return velocity.Summary{
		EntityID: "C1",
		Windows: map[string]velocity.WindowStats{
			window: {
				Count:       count,
				TotalAmount: decimal.NewFromFloat(total),
			},
		},
	}
}

func emptySummary() velocity.Summary {
	return velocity.Summary{
		EntityID: "C1",
		Windows: map[string]velocity.WindowStats{
			"minute": {}, "hour": {}, "six_hour": {}, "day": {},
		},
	}
}

func TestNewEngine_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero structuring threshold", func(c *Config) { c.StructuringThreshold = 0 }},
		{"band ratio out of range", func(c *Config) { c.StructuringBandRatio = 1.2 }},
		{"negative weight", func(c *Config) { c.Weights.Sanctions = -0.1 }},
		{"invalid off hours", func(c *Config) { c.OffHoursStart = 25 }},
		{"review threshold zero", func(c *Config) { c.ManualReviewThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg, nil)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
		})
	}
}

func TestStructuring_BandBoundary(t *testing.T) {
	e := newTestEngine(t, nil)

	tests := []struct {
		name    string
		amount  float64
		flagged bool
	}{
		{"well below band", 7999, false},
		{"band lower edge", 8000, true},
		{"inside band", 9999, true},
		{"exactly at threshold is reportable, not structuring", 10000, false},
		{"above threshold", 10001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Evaluate(middayTx(t, tt.amount), emptySummary())
			if tt.flagged {
				assert.Contains(t, a.Flags, FlagAmountNearCTRThreshold)
			} else {
				assert.NotContains(t, a.Flags, FlagAmountNearCTRThreshold)
			}
		})
	}
}

func TestStructuring_SplitAcrossWindow(t *testing.T) {
	e := newTestEngine(t, nil)

	// Two transactions summing over the threshold: band flag only.
	a := e.Evaluate(middayTx(t, 9600), summaryWith("day", 2, 19100))
	assert.Contains(t, a.Flags, FlagAmountNearCTRThreshold)
	assert.NotContains(t, a.Flags, FlagMultipleAboveThreshold)

	// Three or more recent transactions over the threshold: split detected.
	a = e.Evaluate(middayTx(t, 9600), summaryWith("day", 3, 28700))
	assert.Contains(t, a.Flags, FlagMultipleAboveThreshold)
	assert.InDelta(t, 1.0, a.ComponentScores.Structuring, 1e-9)
	assert.Contains(t, a.Recommendations, "MONITOR_CUSTOMER_PATTERN")
}

func TestStructuring_DegradesWithoutWindow(t *testing.T) {
	e := newTestEngine(t, nil)

	// The summary lacks the structuring window: the split check cannot run,
	// so the detector reports degraded rather than silently passing.
	a := e.Evaluate(middayTx(t, 9600), summaryWith("six_hour", 3, 28700))
	assert.Contains(t, a.Flags, degradedPrefix+DetectorStructuring)
	assert.NotContains(t, a.Flags, FlagMultipleAboveThreshold)
	assert.Contains(t, a.Flags, FlagAmountNearCTRThreshold)
}

func TestRapidMovement_LargeOffHoursTransaction(t *testing.T) {
	e := newTestEngine(t, nil)

	// Single $75,000 transaction at 03:00.
	tx := txAt(t, 75000, time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC))
	a := e.Evaluate(tx, emptySummary())

	assert.Contains(t, a.Flags, FlagLargeSingleTransaction)
	assert.Contains(t, a.Flags, FlagRoundAmountTransaction)
	assert.Contains(t, a.Flags, FlagUnusualTiming)
	assert.InDelta(t, 0.5, a.ComponentScores.RapidMovement, 1e-9)
	assert.InDelta(t, 0.2, a.ComponentScores.SuspiciousPatterns, 1e-9)
}

func TestRapidMovement_ElevatedFrequency(t *testing.T) {
	e := newTestEngine(t, nil)

	a := e.Evaluate(middayTx(t, 60000), summaryWith("six_hour", 6, 360000))
	assert.Contains(t, a.Flags, FlagHighFrequency)
	// large (0.3) + round (0.2) + frequency (0.4), clamped per detector
	assert.InDelta(t, 0.9, a.ComponentScores.RapidMovement, 1e-9)
}

func TestRapidMovement_CountsActivitySpreadBeyondOneHour(t *testing.T) {
	e := newTestEngine(t, nil)

	// Five $60,000 transactions 40 minutes apart span ~2.7 hours: only two
	// survive the one-hour window, but all five sit inside the six-hour
	// frequency horizon.
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	latest := base.Add(4 * 40 * time.Minute)
	m, err := velocity.NewMonitor(velocity.DefaultConfig(),
		velocity.WithClock(func() time.Time { return latest }))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := m.Record("C1", values.MustNewMoneyFromFloat(60000, values.USD),
			base.Add(time.Duration(i)*40*time.Minute))
		require.NoError(t, err)
	}

	summary := m.Summary("C1")
	require.Equal(t, 5, summary.Windows["six_hour"].Count)
	require.Less(t, summary.Windows["hour"].Count, 5)

	a := e.Evaluate(txAt(t, 60000, latest), summary)
	assert.Contains(t, a.Flags, FlagHighFrequency)
	assert.NotContains(t, a.Flags, degradedPrefix+DetectorRapidMovement)
}

func TestSuspiciousPatterns(t *testing.T) {
	e := newTestEngine(t, nil)

	tests := []struct {
		name     string
		tx       *transaction.Event
		expected []string
		score    float64
	}{
		{
			name:     "high-risk merchant category",
			tx:       middayTx(t, 120).WithMetadata("GAMBLING", "", "", ""),
			expected: []string{FlagHighRiskMerchant},
			score:    0.3,
		},
		{
			name:     "high-risk location substring",
			tx:       middayTx(t, 120).WithMetadata("", "OFFSHORE BANKING LTD", "", ""),
			expected: []string{FlagHighRiskLocation},
			score:    0.4,
		},
		{
			name:     "repeated digit amount",
			tx:       middayTx(t, 5555),
			expected: []string{FlagRepeatedDigitAmount},
			score:    0.3,
		},
		{
			name:     "late evening at 22:30 is still business hours",
			tx:       txAt(t, 123.45, time.Date(2025, 3, 10, 22, 30, 0, 0, time.UTC)),
			expected: nil,
			score:    0,
		},
		{
			name:     "off-hours at 23:15",
			tx:       txAt(t, 123.45, time.Date(2025, 3, 10, 23, 15, 0, 0, time.UTC)),
			expected: []string{FlagUnusualTiming},
			score:    0.2,
		},
		{
			name:     "clean midday purchase",
			tx:       middayTx(t, 123.45),
			expected: nil,
			score:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Evaluate(tt.tx, emptySummary())
			for _, f := range tt.expected {
				assert.Contains(t, a.Flags, f)
			}
			assert.InDelta(t, tt.score, a.ComponentScores.SuspiciousPatterns, 1e-9)
		})
	}
}

func TestSanctions_WatchlistMatch(t *testing.T) {
	e := newTestEngine(t, nil)

	tx := middayTx(t, 50).WithMetadata("", "", "MR SANCTIONED ENTITY JR", "")
	a := e.Evaluate(tx, emptySummary())

	assert.Contains(t, a.Flags, FlagSanctionsMatch)
	assert.InDelta(t, 1.0, a.ComponentScores.Sanctions, 1e-9)
	// Manual review regardless of the combined numeric score.
	assert.True(t, a.RequiresManualReview)
	assert.Contains(t, a.Recommendations, "BLOCK_TRANSACTION_IMMEDIATELY")
}

func TestSanctions_CaseInsensitive(t *testing.T) {
	e := newTestEngine(t, nil)

	tx := middayTx(t, 50).WithMetadata("", "", "", "sanctioned entity holdings")
	a := e.Evaluate(tx, emptySummary())
	assert.True(t, a.SanctionsMatched())
}

func TestSanctions_LocationMatch(t *testing.T) {
	e := newTestEngine(t, nil)

	tx := middayTx(t, 50).WithMetadata("", "SANCTIONS_COUNTRY", "JANE DOE", "")
	a := e.Evaluate(tx, emptySummary())

	assert.Contains(t, a.Flags, FlagSanctionsLocation)
	assert.InDelta(t, 0.8, a.ComponentScores.Sanctions, 1e-9)
}

func TestSanctions_DegradesWithoutScreenableFields(t *testing.T) {
	e := newTestEngine(t, nil)

	a := e.Evaluate(middayTx(t, 50), emptySummary())
	assert.Contains(t, a.Flags, "DEGRADED:sanctions")
	assert.Zero(t, a.ComponentScores.Sanctions)
	assert.False(t, a.RequiresManualReview)
}

func TestEvaluate_WeightsAreConfigurable(t *testing.T) {
	// All weight on sanctions: a location hit alone dominates the score.
	e := newTestEngine(t, func(c *Config) {
		c.Weights = Weights{Sanctions: 1.0}
	})

	tx := middayTx(t, 50).WithMetadata("", "SANCTIONS_COUNTRY", "JANE DOE", "")
	a := e.Evaluate(tx, emptySummary())
	assert.InDelta(t, 0.8, a.OverallScore, 1e-9)
	assert.Equal(t, values.RiskLevelHigh, a.RiskLevel)
}

func TestEvaluate_ScoresAlwaysInRange(t *testing.T) {
	e := newTestEngine(t, nil)

	// Stack every signal at once.
	tx := txAt(t, 9999, time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)).
		WithMetadata("CRYPTOCURRENCY", "OFFSHORE SANCTIONS_COUNTRY", "SANCTIONED ENTITY", "SANCTIONED ENTITY")
	a := e.Evaluate(tx, summaryWith("day", 10, 99990))

	assert.GreaterOrEqual(t, a.OverallScore, 0.0)
	assert.LessOrEqual(t, a.OverallScore, 1.0)
	for _, s := range []float64{
		a.ComponentScores.Structuring,
		a.ComponentScores.RapidMovement,
		a.ComponentScores.SuspiciousPatterns,
		a.ComponentScores.Sanctions,
	} {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Equal(t, values.RiskLevelHigh, a.RiskLevel)
	assert.True(t, a.RequiresManualReview)
}

func TestEvaluate_ManualReviewThreshold(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.ManualReviewThreshold = 0.3
	})

	tx := middayTx(t, 9999) // structuring band only: 0.4 x 0.20 weight = 0.08
	a := e.Evaluate(tx, emptySummary())
	assert.False(t, a.RequiresManualReview)

	tx = txAt(t, 9999, time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)).
		WithMetadata("GAMBLING", "OFFSHORE", "JANE DOE", "")
	a = e.Evaluate(tx, emptySummary())
	assert.True(t, a.OverallScore >= 0.3)
	assert.True(t, a.RequiresManualReview)
}

package velocity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
)

// Velocity flag codes
const (
	FlagRapidFire    = "RAPID_FIRE_TRANSACTIONS"
	FlagVolumeSpike  = "VOLUME_SPIKE"
	FlagBurstPattern = "BURST_PATTERN"

	flagHighFrequencyPrefix = "HIGH_FREQUENCY_"
	flagHighVolumePrefix    = "HIGH_VOLUME_"
)

// WindowConfig names one time horizon and its violation thresholds.
// Immutable after load.
type WindowConfig struct {
	Name            string        `koanf:"name"`
	Duration        time.Duration `koanf:"duration"`
	CountThreshold  int           `koanf:"count_threshold"`
	AmountThreshold float64       `koanf:"amount_threshold"`
}

// Config drives the monitor. Windows must be non-empty; thresholds positive.
type Config struct {
	Windows []WindowConfig `koanf:"windows"`

	// Pattern detection: at least PatternMinEvents in the shortest window
	// with inter-arrival standard deviation at or below PatternTolerance
	// indicates scripted rapid-fire submission.
	PatternMinEvents int           `koanf:"pattern_min_events"`
	PatternTolerance time.Duration `koanf:"pattern_tolerance"`

	// FlagRatio is the fraction of a threshold at which flags fire, so a
	// window can be flagged before its score saturates to 1.0.
	FlagRatio float64 `koanf:"flag_ratio"`
}

// DefaultConfig mirrors the production horizons. The six-hour window exists
// chiefly for the compliance rapid-movement frequency check, which counts
// activity over a longer span than the one-hour horizon covers.
func DefaultConfig() Config {
	return Config{
		Windows: []WindowConfig{
			{Name: "minute", Duration: time.Minute, CountThreshold: 10, AmountThreshold: 50_000},
			{Name: "hour", Duration: time.Hour, CountThreshold: 100, AmountThreshold: 200_000},
			{Name: "six_hour", Duration: 6 * time.Hour, CountThreshold: 250, AmountThreshold: 500_000},
			{Name: "day", Duration: 24 * time.Hour, CountThreshold: 500, AmountThreshold: 1_000_000},
		},
		PatternMinEvents: 5,
		PatternTolerance: 2 * time.Second,
		FlagRatio:        0.8,
	}
}

// Validate reports configuration errors. Fatal at startup only.
func (c Config) Validate() error {
	if len(c.Windows) == 0 {
		return errors.NewConfigurationError("NO_WINDOWS", "at least one velocity window is required")
	}
	for _, w := range c.Windows {
		if w.Name == "" {
			return errors.NewConfigurationError("UNNAMED_WINDOW", "velocity window name is required")
		}
		if w.Duration <= 0 {
			return errors.NewConfigurationError("INVALID_WINDOW_DURATION", "velocity window duration must be positive: "+w.Name)
		}
		if w.CountThreshold <= 0 {
			return errors.NewConfigurationError("INVALID_COUNT_THRESHOLD", "velocity count threshold must be positive: "+w.Name)
		}
		if w.AmountThreshold <= 0 {
			return errors.NewConfigurationError("INVALID_AMOUNT_THRESHOLD", "velocity amount threshold must be positive: "+w.Name)
		}
	}
	if c.PatternMinEvents <= 1 {
		return errors.NewConfigurationError("INVALID_PATTERN_MIN_EVENTS", "pattern detection needs at least two events")
	}
	if c.PatternTolerance <= 0 {
		return errors.NewConfigurationError("INVALID_PATTERN_TOLERANCE", "pattern tolerance must be positive")
	}
	if c.FlagRatio <= 0 || c.FlagRatio > 1 {
		return errors.NewConfigurationError("INVALID_FLAG_RATIO", "flag ratio must be in (0, 1]")
	}
	return nil
}

// maxWindow returns the largest configured horizon; events beyond it are evicted.
func (c Config) maxWindow() time.Duration {
	var max time.Duration
	for _, w := range c.Windows {
		if w.Duration > max {
			max = w.Duration
		}
	}
	return max
}

// shortestWindow returns the tightest horizon, used for pattern detection.
func (c Config) shortestWindow() WindowConfig {
	shortest := c.Windows[0]
	for _, w := range c.Windows[1:] {
		if w.Duration < shortest.Duration {
			shortest = w
		}
	}
	return shortest
}

// WindowStats summarizes surviving events inside one window.
type WindowStats struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AvgAmount   decimal.Decimal `json:"avg_amount"`
	MaxAmount   decimal.Decimal `json:"max_amount"`
}

// Summary is a read-only snapshot of an entity's per-window activity.
// Unknown entities get a zero summary.
type Summary struct {
	EntityID string                 `json:"entity_id"`
	Windows  map[string]WindowStats `json:"windows"`
}

// EmptySummary returns a zero summary covering every configured window.
func EmptySummary(entityID string, cfg Config) Summary {
	windows := make(map[string]WindowStats, len(cfg.Windows))
	for _, w := range cfg.Windows {
		windows[w.Name] = WindowStats{
			TotalAmount: decimal.Zero,
			AvgAmount:   decimal.Zero,
			MaxAmount:   decimal.Zero,
		}
	}
	return Summary{EntityID: entityID, Windows: windows}
}

// WindowAssessment carries the per-window sub-scores behind an assessment.
type WindowAssessment struct {
	Stats         WindowStats `json:"stats"`
	FrequencyRisk float64     `json:"frequency_risk"`
	VolumeRisk    float64     `json:"volume_risk"`
	PatternRisk   float64     `json:"pattern_risk"`
	Risk          float64     `json:"risk"`
}

// Assessment is the result of recording one transaction.
type Assessment struct {
	EntityID        string                      `json:"entity_id"`
	Score           float64                     `json:"score"`
	Level           values.RiskLevel            `json:"level"`
	Flags           []string                    `json:"flags"`
	Windows         map[string]WindowAssessment `json:"windows"`
	Recommendations []string                    `json:"recommendations"`
	RequiresReview  bool                        `json:"requires_review"`
}

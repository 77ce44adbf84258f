// Package velocity tracks per-entity transaction frequency and volume across
// sliding time windows and turns the observed activity into a risk score.
//
// All state is in-memory. Window arithmetic is relative to the latest
// timestamp seen for an entity rather than the wall clock, so replay and
// synthetic-clock test scenarios behave deterministically.
package velocity

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
)

// patternRiskScore is the per-window risk contributed by a detected
// rapid-fire pattern, independent of raw count.
const patternRiskScore = 0.9

// reviewThreshold marks assessments that warrant a velocity review.
const reviewThreshold = 0.7

// Monitor maintains sliding-window transaction history per entity.
// Safe for concurrent use; distinct entities never contend on one lock.
type Monitor struct {
	cfg      Config
	entities sync.Map // map[string]*entityState
	clock    func() time.Time
}

type entityState struct {
	mu     sync.Mutex
	events []event
	latest time.Time
}

type event struct {
	amount decimal.Decimal
	ts     time.Time
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock overrides the monitor's clock, used by read-side eviction.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// NewMonitor validates the configuration and returns a ready monitor.
func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:   cfg,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Record appends a transaction to the entity's buffer and assesses its
// velocity risk. Validation failures never partially mutate state.
// For a single entity, events are kept in the order Record is invoked;
// out-of-order timestamps are accepted but never advance the eviction
// horizon backwards.
func (m *Monitor) Record(entityID string, amount values.Money, ts time.Time) (*Assessment, error) {
	if entityID == "" {
		return nil, errors.ErrMissingEntityID
	}
	if amount.IsNegative() {
		return nil, errors.ErrNegativeAmount
	}
	if ts.IsZero() {
		ts = m.clock()
	}

	st := m.state(entityID)

	st.mu.Lock()
	if ts.After(st.latest) {
		st.latest = ts
	}
	st.events = append(st.events, event{amount: amount.Amount(), ts: ts})
	m.prune(st)
	snapshot := make([]event, len(st.events))
	copy(snapshot, st.events)
	ref := st.latest
	st.mu.Unlock()

	return m.assess(entityID, snapshot, ref), nil
}

// Summary returns a read-only snapshot of the entity's per-window activity.
// Unknown entities get a zero summary, never an error. Repeated calls do not
// change subsequent Record outcomes.
func (m *Monitor) Summary(entityID string) Summary {
	v, ok := m.entities.Load(entityID)
	if !ok {
		return EmptySummary(entityID, m.cfg)
	}
	st := v.(*entityState)

	st.mu.Lock()
	snapshot := make([]event, len(st.events))
	copy(snapshot, st.events)
	ref := st.latest
	st.mu.Unlock()

	// The clock only moves the reference forward, so an idle entity's
	// windows drain to zero as time advances past them.
	if now := m.clock(); now.After(ref) {
		ref = now
	}

	summary := Summary{
		EntityID: entityID,
		Windows:  make(map[string]WindowStats, len(m.cfg.Windows)),
	}
	for _, w := range m.cfg.Windows {
		summary.Windows[w.Name] = windowStats(snapshot, ref, w.Duration)
	}
	return summary
}

// ActiveEntities reports how many entities currently hold buffered events.
func (m *Monitor) ActiveEntities() int {
	count := 0
	m.entities.Range(func(_, v any) bool {
		st := v.(*entityState)
		st.mu.Lock()
		if len(st.events) > 0 {
			count++
		}
		st.mu.Unlock()
		return true
	})
	return count
}

func (m *Monitor) state(entityID string) *entityState {
	v, _ := m.entities.LoadOrStore(entityID, &entityState{})
	return v.(*entityState)
}

// prune drops events older than the largest window relative to the entity's
// latest timestamp. Caller holds the entity lock. Events arrive append-only
// and possibly out of timestamp order, so this filters rather than trims.
func (m *Monitor) prune(st *entityState) {
	cutoff := st.latest.Add(-m.cfg.maxWindow())
	kept := st.events[:0]
	for _, e := range st.events {
		if !e.ts.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	st.events = kept
}

func (m *Monitor) assess(entityID string, events []event, ref time.Time) *Assessment {
	shortest := m.cfg.shortestWindow()
	patternRisk, rapidFire := m.patternRisk(events, ref, shortest.Duration)

	assessment := &Assessment{
		EntityID: entityID,
		Windows:  make(map[string]WindowAssessment, len(m.cfg.Windows)),
	}

	var flags []string
	overall := 0.0
	volumeSpike := false

	for _, w := range m.cfg.Windows {
		stats := windowStats(events, ref, w.Duration)

		frequencyRisk := saturate(float64(stats.Count) / float64(w.CountThreshold))
		total, _ := stats.TotalAmount.Float64()
		volumeRisk := saturate(total / w.AmountThreshold)

		windowPattern := 0.0
		if w.Name == shortest.Name {
			windowPattern = patternRisk
		}

		risk := math.Max(frequencyRisk, math.Max(volumeRisk, windowPattern))
		overall = math.Max(overall, risk)

		if frequencyRisk >= m.cfg.FlagRatio {
			flags = append(flags, flagHighFrequencyPrefix+strings.ToUpper(w.Name))
		}
		if volumeRisk >= m.cfg.FlagRatio {
			flags = append(flags, flagHighVolumePrefix+strings.ToUpper(w.Name))
			volumeSpike = true
		}

		assessment.Windows[w.Name] = WindowAssessment{
			Stats:         stats,
			FrequencyRisk: frequencyRisk,
			VolumeRisk:    volumeRisk,
			PatternRisk:   windowPattern,
			Risk:          risk,
		}
	}

	if volumeSpike {
		flags = append(flags, FlagVolumeSpike)
	}
	if rapidFire {
		flags = append(flags, FlagRapidFire)
	}
	if shortCount := assessment.Windows[shortest.Name].Stats.Count; shortCount >= m.cfg.PatternMinEvents {
		flags = append(flags, FlagBurstPattern)
	}

	assessment.Score = overall
	assessment.Level = values.RiskLevelForScore(overall)
	assessment.Flags = flags
	assessment.RequiresReview = overall >= reviewThreshold
	assessment.Recommendations = recommendations(overall, flags)
	return assessment
}

// patternRisk detects near-uniform inter-arrival times inside the shortest
// window, a proxy for scripted submission. Returns the risk contribution and
// whether the rapid-fire flag should fire.
func (m *Monitor) patternRisk(events []event, ref time.Time, window time.Duration) (float64, bool) {
	cutoff := ref.Add(-window)
	var times []time.Time
	for _, e := range events {
		if !e.ts.Before(cutoff) {
			times = append(times, e.ts)
		}
	}
	if len(times) < m.cfg.PatternMinEvents {
		return 0, false
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Seconds())
	}

	mean := 0.0
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))

	variance := 0.0
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))

	if math.Sqrt(variance) <= m.cfg.PatternTolerance.Seconds() {
		return patternRiskScore, true
	}
	return 0, false
}

func windowStats(events []event, ref time.Time, window time.Duration) WindowStats {
	cutoff := ref.Add(-window)

	stats := WindowStats{
		TotalAmount: decimal.Zero,
		AvgAmount:   decimal.Zero,
		MaxAmount:   decimal.Zero,
	}
	for _, e := range events {
		if e.ts.Before(cutoff) {
			continue
		}
		stats.Count++
		stats.TotalAmount = stats.TotalAmount.Add(e.amount)
		if e.amount.GreaterThan(stats.MaxAmount) {
			stats.MaxAmount = e.amount
		}
	}
	if stats.Count > 0 {
		stats.AvgAmount = stats.TotalAmount.Div(decimal.NewFromInt(int64(stats.Count)))
	}
	return stats
}

func recommendations(score float64, flags []string) []string {
	var recs []string
	if score >= 0.8 {
		recs = append(recs, "IMMEDIATE_VELOCITY_REVIEW", "TEMPORARY_TRANSACTION_HOLD")
	} else if score >= 0.6 {
		recs = append(recs, "ENHANCED_VELOCITY_MONITORING")
	}
	for _, f := range flags {
		switch f {
		case FlagBurstPattern:
			recs = append(recs, "INVESTIGATE_BURST_ACTIVITY")
		case FlagRapidFire:
			recs = append(recs, "CHECK_FOR_AUTOMATED_ACTIVITY")
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "STANDARD_VELOCITY_PROCESSING")
	}
	return recs
}

func saturate(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}

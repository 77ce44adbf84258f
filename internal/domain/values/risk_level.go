package values

// RiskLevel buckets a normalized risk score into a reviewable band.
type RiskLevel string

const (
	RiskLevelMinimal RiskLevel = "MINIMAL"
	RiskLevelLow     RiskLevel = "LOW"
	RiskLevelMedium  RiskLevel = "MEDIUM"
	RiskLevelHigh    RiskLevel = "HIGH"
)

// Band boundaries. A risk level is a pure function of score; changing these
// changes every component's banding at once.
const (
	riskBandLow    = 0.2
	riskBandMedium = 0.35
	riskBandHigh   = 0.6
)

// RiskLevelForScore maps a score in [0,1] to its band:
// MINIMAL [0, 0.2), LOW [0.2, 0.35), MEDIUM [0.35, 0.6), HIGH [0.6, 1.0].
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= riskBandHigh:
		return RiskLevelHigh
	case score >= riskBandMedium:
		return RiskLevelMedium
	case score >= riskBandLow:
		return RiskLevelLow
	default:
		return RiskLevelMinimal
	}
}

func (l RiskLevel) String() string {
	return string(l)
}

package detector

import (
	"fmt"

	"r4r-detector/internal/models"
)

// ScoreInput carries the aggregate counts the R4R score is computed from.
type ScoreInput struct {
	TotalReviewsReceived int
	ReciprocalCount      int
	QuickReciprocalCount int
	AccountAgeDays       int
	AccountAgeKnown      bool
}

// Score computes the aggregate R4R score in [0, 1] together with the full
// breakdown. The formula is auditable on purpose: every intermediate value
// and the rationale for each factor ends up in the report.
//
//	score = clamp(min(reciprocal%, cap) * volume * age + quick% * weight, 0, 1)
func (e *Engine) Score(in ScoreInput) (float64, models.ScoreBreakdown) {
	var reciprocalPct, quickPct float64
	if in.TotalReviewsReceived > 0 {
		reciprocalPct = float64(in.ReciprocalCount) / float64(in.TotalReviewsReceived) * 100
		quickPct = float64(in.QuickReciprocalCount) / float64(in.TotalReviewsReceived) * 100
	}

	breakdown := models.ScoreBreakdown{}

	breakdown.UncappedBaseScore = reciprocalPct / 100
	breakdown.CappedBaseScore = breakdown.UncappedBaseScore
	if breakdown.CappedBaseScore > e.config.BaseScoreCap {
		breakdown.CappedBaseScore = e.config.BaseScoreCap
	}
	breakdown.BaseScoreRationale = fmt.Sprintf(
		"%.1f%% of received reviews are reciprocal; raw reciprocity alone is capped at %.2f so a single factor cannot signal critical risk",
		reciprocalPct, e.config.BaseScoreCap)

	breakdown.VolumeMultiplier, breakdown.VolumeRationale = e.volumeFactor(in.TotalReviewsReceived)
	breakdown.AccountAgeMultiplier, breakdown.AccountAgeRationale = e.accountAgeFactor(in.AccountAgeDays, in.AccountAgeKnown)

	breakdown.TimePenalty = quickPct / 100 * e.config.TimePenaltyWeight
	breakdown.TimePenaltyRationale = fmt.Sprintf(
		"%.1f%% of received reviews were reciprocated within %s; fast reciprocation suggests coordination",
		quickPct, e.config.QuickReciprocalWindow)

	score := breakdown.CappedBaseScore*breakdown.VolumeMultiplier*breakdown.AccountAgeMultiplier + breakdown.TimePenalty
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	breakdown.Expression = fmt.Sprintf(
		"clamp(min(%.3f, %.2f) * %.2f * %.2f + %.3f, 0, 1) = %.3f",
		breakdown.UncappedBaseScore, e.config.BaseScoreCap,
		breakdown.VolumeMultiplier, breakdown.AccountAgeMultiplier,
		breakdown.TimePenalty, score)

	return score, breakdown
}

// volumeFactor weights the base score by review volume: too few reviews to
// be confident, the neutral middle band, or a sustained pattern at scale.
func (e *Engine) volumeFactor(totalReceived int) (float64, string) {
	switch {
	case totalReceived < e.config.LowVolumeThreshold:
		return e.config.LowVolumeMultiplier, fmt.Sprintf(
			"only %d reviews received (fewer than %d): too little data to be confident, score dampened",
			totalReceived, e.config.LowVolumeThreshold)
	case totalReceived > e.config.HighVolumeThreshold:
		return e.config.HighVolumeMultiplier, fmt.Sprintf(
			"%d reviews received (more than %d): a sustained pattern at scale weighs heavier",
			totalReceived, e.config.HighVolumeThreshold)
	default:
		return 1.0, fmt.Sprintf(
			"%d reviews received is within the neutral band [%d, %d]",
			totalReceived, e.config.LowVolumeThreshold, e.config.HighVolumeThreshold)
	}
}

// accountAgeFactor weights the base score by account age: reciprocity
// among brand-new accounts is more suspicious. An unknown age falls back to
// the established tier.
func (e *Engine) accountAgeFactor(ageDays int, known bool) (float64, string) {
	if !known {
		return e.config.EstablishedAccountMultiplier,
			"account age unknown: treated as an established account"
	}

	switch {
	case ageDays < e.config.NewAccountAgeDays:
		return e.config.NewAccountMultiplier, fmt.Sprintf(
			"account is %d days old (younger than %d): reciprocity among brand-new accounts is more suspicious",
			ageDays, e.config.NewAccountAgeDays)
	case ageDays > e.config.EstablishedAccountAgeDays:
		return e.config.EstablishedAccountMultiplier, fmt.Sprintf(
			"account is %d days old (older than %d): established history softens the signal",
			ageDays, e.config.EstablishedAccountAgeDays)
	default:
		return 1.0, fmt.Sprintf(
			"account age of %d days is within the neutral band [%d, %d]",
			ageDays, e.config.NewAccountAgeDays, e.config.EstablishedAccountAgeDays)
	}
}

// Package detector implements the reciprocal-review risk analysis engine:
// pair detection over a user's review history, interaction-graph
// aggregation, suspicious-group detection, and the multi-factor R4R score.
// Every stage is a pure, synchronous transformation of its input.
package detector

import (
	"fmt"
	"log"
	"sort"
	"time"

	"r4r-detector/internal/models"
)

// Config holds all thresholds of the analysis. The scoring constants are
// deliberately configuration, not hard physical constants.
type Config struct {
	// Pair detection
	QuickReciprocalWindow time.Duration `yaml:"quick_reciprocal_window"`

	// Per-pair suspicion weights (0-100 scale)
	QuickPairWeight      float64 `yaml:"quick_pair_weight"`
	BothPositiveWeight   float64 `yaml:"both_positive_weight"`
	BothNegativeWeight   float64 `yaml:"both_negative_weight"`
	GenericCommentWeight float64 `yaml:"generic_comment_weight"`

	// Aggregate score formula
	BaseScoreCap                 float64 `yaml:"base_score_cap"`
	LowVolumeThreshold           int     `yaml:"low_volume_threshold"`
	HighVolumeThreshold          int     `yaml:"high_volume_threshold"`
	LowVolumeMultiplier          float64 `yaml:"low_volume_multiplier"`
	HighVolumeMultiplier         float64 `yaml:"high_volume_multiplier"`
	NewAccountAgeDays            int     `yaml:"new_account_age_days"`
	EstablishedAccountAgeDays    int     `yaml:"established_account_age_days"`
	NewAccountMultiplier         float64 `yaml:"new_account_multiplier"`
	EstablishedAccountMultiplier float64 `yaml:"established_account_multiplier"`
	TimePenaltyWeight            float64 `yaml:"time_penalty_weight"`

	// Risk classification thresholds on the final score
	ModerateRiskThreshold float64 `yaml:"moderate_risk_threshold"`
	HighRiskThreshold     float64 `yaml:"high_risk_threshold"`
	CriticalRiskThreshold float64 `yaml:"critical_risk_threshold"`

	// Cluster detection
	MinGroupSize      int     `yaml:"min_group_size"`
	GroupEdgeMinPairs int     `yaml:"group_edge_min_pairs"`
	GroupEdgeMinScore float64 `yaml:"group_edge_min_score"`

	// Pattern flags
	MinPatternOccurrences int `yaml:"min_pattern_occurrences"`
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		QuickReciprocalWindow: 24 * time.Hour,

		QuickPairWeight:      40,
		BothPositiveWeight:   20,
		BothNegativeWeight:   10,
		GenericCommentWeight: 10,

		BaseScoreCap:                 0.70,
		LowVolumeThreshold:           5,
		HighVolumeThreshold:          20,
		LowVolumeMultiplier:          0.6,
		HighVolumeMultiplier:         1.15,
		NewAccountAgeDays:            30,
		EstablishedAccountAgeDays:    180,
		NewAccountMultiplier:         1.2,
		EstablishedAccountMultiplier: 0.9,
		TimePenaltyWeight:            0.25,

		ModerateRiskThreshold: 0.25,
		HighRiskThreshold:     0.50,
		CriticalRiskThreshold: 0.75,

		MinGroupSize:      3,
		GroupEdgeMinPairs: 2,
		GroupEdgeMinScore: 50,

		MinPatternOccurrences: 2,
	}
}

// Validate checks configuration values.
func (c Config) Validate() error {
	if c.QuickReciprocalWindow <= 0 {
		return fmt.Errorf("quick_reciprocal_window must be positive")
	}
	if c.BaseScoreCap <= 0 || c.BaseScoreCap > 1 {
		return fmt.Errorf("base_score_cap must be in (0, 1]")
	}
	if c.LowVolumeThreshold < 0 || c.HighVolumeThreshold < c.LowVolumeThreshold {
		return fmt.Errorf("volume thresholds must satisfy 0 <= low <= high")
	}
	if c.NewAccountAgeDays < 0 || c.EstablishedAccountAgeDays < c.NewAccountAgeDays {
		return fmt.Errorf("account age bands must satisfy 0 <= new <= established")
	}
	if c.TimePenaltyWeight < 0 || c.TimePenaltyWeight > 1 {
		return fmt.Errorf("time_penalty_weight must be in [0, 1]")
	}
	if !(c.ModerateRiskThreshold < c.HighRiskThreshold && c.HighRiskThreshold < c.CriticalRiskThreshold) {
		return fmt.Errorf("risk thresholds must be strictly increasing")
	}
	if c.CriticalRiskThreshold > 1 {
		return fmt.Errorf("critical_risk_threshold must not exceed 1")
	}
	if c.MinGroupSize < 3 {
		return fmt.Errorf("min_group_size must be at least 3")
	}
	if c.GroupEdgeMinPairs < 1 {
		return fmt.Errorf("group_edge_min_pairs must be at least 1")
	}
	return nil
}

// Engine computes R4R analyses. It is stateless: two calls with the same
// input and config produce the same report.
type Engine struct {
	config Config
}

// New creates an analysis engine with the given thresholds.
func New(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	return &Engine{config: config}, nil
}

// Config returns the engine's thresholds.
func (e *Engine) Config() Config {
	return e.config
}

// Input carries the normalized records for one target userkey.
type Input struct {
	Userkey         string
	Received        []models.Review
	Given           []models.Review
	Vouches         models.VouchStats
	AccountAgeDays  int
	AccountAgeKnown bool
}

// Analyze runs the full pipeline and assembles the report. A user with
// zero reviews received yields an explicit all-zero low-risk report, never
// an error.
func (e *Engine) Analyze(in Input) *models.R4RAnalysis {
	start := time.Now()
	report := e.analyze(in, true)
	report.ProcessingTime = time.Since(start)

	log.Printf("R4R analysis completed for %s: %d pairs, %d groups, score %.3f (%s)",
		in.Userkey, len(report.Pairs), len(report.SuspiciousGroups), report.R4RScore, report.RiskLevel)

	return report
}

// Summarize runs the cheap path: totals, score, and classification without
// cluster detection.
func (e *Engine) Summarize(in Input) *models.Summary {
	return e.analyze(in, false).Summarize()
}

func (e *Engine) analyze(in Input, withClusters bool) *models.R4RAnalysis {
	report := models.NewR4RAnalysis(in.Userkey)
	report.TotalReviewsReceived = len(in.Received)
	report.TotalReviewsGiven = len(in.Given)
	report.Vouches = in.Vouches
	report.AccountAgeDays = in.AccountAgeDays
	report.AccountAgeKnown = in.AccountAgeKnown

	pairs := e.DetectPairs(in.Userkey, in.Received, in.Given)
	report.Pairs = pairs
	report.ReciprocalCount = len(pairs)

	quickCount := 0
	genericCount := 0
	for _, p := range pairs {
		if p.IsQuickReciprocal {
			quickCount++
		}
		if p.CommentsGeneric {
			genericCount++
		}
	}
	report.QuickReciprocalCount = quickCount

	if report.TotalReviewsReceived > 0 {
		report.ReciprocalPercentage = float64(report.ReciprocalCount) / float64(report.TotalReviewsReceived) * 100
		report.QuickReciprocalPercentage = float64(quickCount) / float64(report.TotalReviewsReceived) * 100
	}

	graph := e.BuildNetwork(map[string][]models.ReviewPair{in.Userkey: pairs})
	report.Connections = graph.ConnectionsFor(in.Userkey)

	if withClusters {
		report.SuspiciousGroups = e.DetectGroups(graph)
	}

	report.Patterns = models.PatternAnalysis{
		HasTimePatterns:     quickCount >= e.config.MinPatternOccurrences,
		HasContentPatterns:  genericCount >= e.config.MinPatternOccurrences,
		HasSuspiciousGroups: len(report.SuspiciousGroups) > 0,
	}

	report.R4RScore, report.Breakdown = e.Score(ScoreInput{
		TotalReviewsReceived: report.TotalReviewsReceived,
		ReciprocalCount:      report.ReciprocalCount,
		QuickReciprocalCount: quickCount,
		AccountAgeDays:       in.AccountAgeDays,
		AccountAgeKnown:      in.AccountAgeKnown,
	})
	report.RiskLevel = e.ClassifyRisk(report.R4RScore)

	return report
}

// ClassifyRisk maps a score in [0, 1] onto a risk level. Boundary values
// classify into the upper band.
func (e *Engine) ClassifyRisk(score float64) models.RiskLevel {
	switch {
	case score >= e.config.CriticalRiskThreshold:
		return models.RiskCritical
	case score >= e.config.HighRiskThreshold:
		return models.RiskHigh
	case score >= e.config.ModerateRiskThreshold:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}

// RankHighRisk returns the scanned users whose score exceeds the high-risk
// threshold, ranked by score descending.
func (e *Engine) RankHighRisk(reports map[string]*models.R4RAnalysis) []models.NetworkReviewer {
	ranked := make([]models.NetworkReviewer, 0)
	for _, r := range reports {
		if r.R4RScore > e.config.HighRiskThreshold {
			ranked = append(ranked, models.NetworkReviewer{
				Userkey:   r.Userkey,
				R4RScore:  r.R4RScore,
				RiskLevel: r.RiskLevel,
			})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].R4RScore != ranked[j].R4RScore {
			return ranked[i].R4RScore > ranked[j].R4RScore
		}
		return ranked[i].Userkey < ranked[j].Userkey
	})

	return ranked
}

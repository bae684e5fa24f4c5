package models

import (
	"time"

	"github.com/google/uuid"
)

// Sentiment is the stance a review takes toward its subject.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Review represents a single review between two users, as fetched from the
// reputation provider. Reviews are immutable once fetched.
type Review struct {
	ID        string    `json:"id"`
	Author    string    `json:"author_userkey"`
	Subject   string    `json:"subject_userkey"`
	Sentiment Sentiment `json:"sentiment"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// VouchStats aggregates vouch activity for a user. Vouches are only used
// in aggregate; individual vouches are never analyzed for reciprocity.
type VouchStats struct {
	GivenCount     int     `json:"given_count"`
	GivenAmount    float64 `json:"given_amount"`
	ReceivedCount  int     `json:"received_count"`
	ReceivedAmount float64 `json:"received_amount"`
}

// ReviewPair is a pair of reviews between the same two users, one in each
// direction. Earlier/Later are ordered by timestamp, so TimeGap is the
// non-negative duration between the first review and its reciprocation.
type ReviewPair struct {
	Counterpart       string        `json:"counterpart_userkey"`
	Earlier           Review        `json:"earlier"`
	Later             Review        `json:"later"`
	IsReciprocal      bool          `json:"is_reciprocal"`
	IsQuickReciprocal bool          `json:"is_quick_reciprocal"`
	TimeGap           time.Duration `json:"time_gap"`
	SuspiciousScore   float64       `json:"suspicious_score"` // 0-100
	CommentsGeneric   bool          `json:"comments_generic"`
}

// NewReviewPair builds a pair from two opposite-direction reviews between
// the target user and a counterpart, ordering them by timestamp.
func NewReviewPair(counterpart string, a, b Review) ReviewPair {
	earlier, later := a, b
	if b.CreatedAt.Before(a.CreatedAt) {
		earlier, later = b, a
	}
	return ReviewPair{
		Counterpart:  counterpart,
		Earlier:      earlier,
		Later:        later,
		IsReciprocal: true,
		TimeGap:      later.CreatedAt.Sub(earlier.CreatedAt),
	}
}

// NetworkConnection aggregates all interactions between the target user and
// a single counterpart. Connections are deduplicated by counterpart userkey.
type NetworkConnection struct {
	Userkey          string        `json:"userkey"`
	InteractionCount int           `json:"interaction_count"`
	ReciprocalCount  int           `json:"reciprocal_count"`
	AvgTimeGap       time.Duration `json:"avg_time_gap"`
	SuspiciousScore  float64       `json:"suspicious_score"` // mean of pair scores
}

// SuspiciousGroup is a set of three or more accounts with dense mutual
// review activity, detected as a connected component of qualified edges.
type SuspiciousGroup struct {
	ID               string        `json:"id"`
	Members          []string      `json:"members"`
	InteractionCount int           `json:"interaction_count"`
	AvgTimeGap       time.Duration `json:"avg_time_gap"`
}

// NewSuspiciousGroup creates a group with a generated ID.
func NewSuspiciousGroup(members []string) *SuspiciousGroup {
	return &SuspiciousGroup{
		ID:      uuid.New().String(),
		Members: members,
	}
}

// PatternAnalysis flags recurring behaviors found across the pair set.
type PatternAnalysis struct {
	HasTimePatterns     bool `json:"has_time_patterns"`
	HasContentPatterns  bool `json:"has_content_patterns"`
	HasSuspiciousGroups bool `json:"has_suspicious_groups"`
}

// ScoreBreakdown exposes every intermediate value of the R4R score formula
// together with the rationale for each factor. This is part of the public
// report, not a debug aid: callers render it to end users.
type ScoreBreakdown struct {
	UncappedBaseScore    float64 `json:"uncapped_base_score"`
	CappedBaseScore      float64 `json:"capped_base_score"`
	BaseScoreRationale   string  `json:"base_score_rationale"`
	VolumeMultiplier     float64 `json:"volume_multiplier"`
	VolumeRationale      string  `json:"volume_rationale"`
	AccountAgeMultiplier float64 `json:"account_age_multiplier"`
	AccountAgeRationale  string  `json:"account_age_rationale"`
	TimePenalty          float64 `json:"time_penalty"`
	TimePenaltyRationale string  `json:"time_penalty_rationale"`
	Expression           string  `json:"expression"`
}

// RiskLevel is the discrete classification of an R4R score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// NetworkReviewer identifies another user in the analyzed network whose own
// R4R score exceeds the high-risk threshold.
type NetworkReviewer struct {
	Userkey   string    `json:"userkey"`
	R4RScore  float64   `json:"r4r_score"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// R4RAnalysis is the full analysis report for one userkey. It is a pure
// function of the fetched review/vouch records and the engine thresholds.
type R4RAnalysis struct {
	ID          string    `json:"id"`
	Userkey     string    `json:"userkey"`
	GeneratedAt time.Time `json:"generated_at"`

	// Totals
	TotalReviewsReceived      int        `json:"total_reviews_received"`
	TotalReviewsGiven         int        `json:"total_reviews_given"`
	ReciprocalCount           int        `json:"reciprocal_count"`
	ReciprocalPercentage      float64    `json:"reciprocal_percentage"`
	QuickReciprocalCount      int        `json:"quick_reciprocal_count"`
	QuickReciprocalPercentage float64    `json:"quick_reciprocal_percentage"`
	Vouches                   VouchStats `json:"vouches"`
	AccountAgeDays            int        `json:"account_age_days"`
	AccountAgeKnown           bool       `json:"account_age_known"`

	// Classification
	R4RScore  float64        `json:"r4r_score"` // 0.0-1.0
	RiskLevel RiskLevel      `json:"risk_level"`
	Breakdown ScoreBreakdown `json:"score_breakdown"`

	// Detail
	Pairs            []ReviewPair        `json:"review_pairs"`
	Connections      []NetworkConnection `json:"network_connections"`
	SuspiciousGroups []SuspiciousGroup   `json:"suspicious_groups"`
	Patterns         PatternAnalysis     `json:"pattern_analysis"`

	// Filled only when the report was produced by a network scan.
	HighRiskReviewers []NetworkReviewer `json:"high_risk_reviewers,omitempty"`

	ProcessingTime time.Duration `json:"processing_time"`
}

// NewR4RAnalysis creates an empty report for a userkey with a generated ID.
func NewR4RAnalysis(userkey string) *R4RAnalysis {
	return &R4RAnalysis{
		ID:               uuid.New().String(),
		Userkey:          userkey,
		GeneratedAt:      time.Now(),
		RiskLevel:        RiskLow,
		Pairs:            make([]ReviewPair, 0),
		Connections:      make([]NetworkConnection, 0),
		SuspiciousGroups: make([]SuspiciousGroup, 0),
	}
}

// Summary is the cheap subset of a report used for dashboard display.
type Summary struct {
	Userkey                   string    `json:"userkey"`
	R4RScore                  float64   `json:"r4r_score"`
	RiskLevel                 RiskLevel `json:"risk_level"`
	TotalReviewsReceived      int       `json:"total_reviews_received"`
	TotalReviewsGiven         int       `json:"total_reviews_given"`
	ReciprocalCount           int       `json:"reciprocal_count"`
	ReciprocalPercentage      float64   `json:"reciprocal_percentage"`
	QuickReciprocalCount      int       `json:"quick_reciprocal_count"`
	QuickReciprocalPercentage float64   `json:"quick_reciprocal_percentage"`
}

// Summarize projects the report down to its dashboard subset.
func (r *R4RAnalysis) Summarize() *Summary {
	return &Summary{
		Userkey:                   r.Userkey,
		R4RScore:                  r.R4RScore,
		RiskLevel:                 r.RiskLevel,
		TotalReviewsReceived:      r.TotalReviewsReceived,
		TotalReviewsGiven:         r.TotalReviewsGiven,
		ReciprocalCount:           r.ReciprocalCount,
		ReciprocalPercentage:      r.ReciprocalPercentage,
		QuickReciprocalCount:      r.QuickReciprocalCount,
		QuickReciprocalPercentage: r.QuickReciprocalPercentage,
	}
}

// NetworkAnalysis is the result of a batch scan over multiple userkeys.
// Failed members are reported individually; one member's failure never
// discards a sibling's completed report.
type NetworkAnalysis struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Userkeys    []string  `json:"userkeys"`

	Reports  map[string]*R4RAnalysis `json:"per_user"`
	Failures map[string]MemberError  `json:"failures,omitempty"`

	// Cross-member groups detected from the combined pair sets of the scan.
	SharedGroups []SuspiciousGroup `json:"shared_groups"`

	// All scanned users above the high-risk threshold, ranked by score.
	HighRiskReviewers []NetworkReviewer `json:"high_risk_reviewers"`

	ProcessingTime time.Duration `json:"processing_time"`
}

// MemberError describes why one member of a batch scan failed.
type MemberError struct {
	Kind    string `json:"kind"` // not_found, data_format, timeout, upstream
	Message string `json:"message"`
}

// NewNetworkAnalysis creates an empty batch result with a generated ID.
func NewNetworkAnalysis(userkeys []string) *NetworkAnalysis {
	return &NetworkAnalysis{
		ID:                uuid.New().String(),
		GeneratedAt:       time.Now(),
		Userkeys:          userkeys,
		Reports:           make(map[string]*R4RAnalysis),
		Failures:          make(map[string]MemberError),
		SharedGroups:      make([]SuspiciousGroup, 0),
		HighRiskReviewers: make([]NetworkReviewer, 0),
	}
}

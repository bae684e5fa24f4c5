package detector

import (
	"strings"

	"r4r-detector/internal/models"
)

// DetectPairs scans the target user's review history for reciprocal pairs:
// a review received from X matched with a review given to X. Matching uses
// a hash index on counterpart userkey, so the scan is O(|received|+|given|).
// When several reviews exist between the same two users, each received
// review consumes at most one unmatched given review, oldest first.
func (e *Engine) DetectPairs(userkey string, received, given []models.Review) []models.ReviewPair {
	givenBySubject := make(map[string][]models.Review, len(given))
	for _, g := range given {
		if g.Author != userkey || g.Subject == userkey {
			continue
		}
		givenBySubject[g.Subject] = append(givenBySubject[g.Subject], g)
	}

	pairs := make([]models.ReviewPair, 0)
	for _, r := range received {
		if r.Subject != userkey || r.Author == userkey {
			continue
		}

		candidates := givenBySubject[r.Author]
		if len(candidates) == 0 {
			continue
		}

		// Consume the oldest unmatched given review for this counterpart.
		match := candidates[0]
		givenBySubject[r.Author] = candidates[1:]

		pair := models.NewReviewPair(r.Author, r, match)
		e.scorePair(&pair)
		pairs = append(pairs, pair)
	}

	return pairs
}

// scorePair computes the per-pair suspicion score on a 0-100 scale from the
// time gap, sentiment alignment, and comment similarity heuristics.
func (e *Engine) scorePair(pair *models.ReviewPair) {
	pair.IsQuickReciprocal = pair.TimeGap <= e.config.QuickReciprocalWindow

	score := 0.0
	if pair.IsQuickReciprocal {
		score += e.config.QuickPairWeight
	}

	switch {
	case pair.Earlier.Sentiment == models.SentimentPositive && pair.Later.Sentiment == models.SentimentPositive:
		score += e.config.BothPositiveWeight
	case pair.Earlier.Sentiment == models.SentimentNegative && pair.Later.Sentiment == models.SentimentNegative:
		score += e.config.BothNegativeWeight
	}

	if isGenericComment(pair.Earlier.Comment) && isGenericComment(pair.Later.Comment) {
		pair.CommentsGeneric = true
		score += e.config.GenericCommentWeight
	}

	if score > 100 {
		score = 100
	}
	pair.SuspiciousScore = score
}

// genericPhrases are low-effort review templates frequently traded in
// review-for-review exchanges.
var genericPhrases = map[string]bool{
	"good":             true,
	"great":            true,
	"nice":             true,
	"awesome":          true,
	"legit":            true,
	"trusted":          true,
	"good guy":         true,
	"great guy":        true,
	"good trader":      true,
	"great trader":     true,
	"highly recommend": true,
	"recommended":      true,
	"w":                true,
	"gm":               true,
	"+1":               true,
}

// isGenericComment reports whether a comment is near-empty or matches a
// template phrase.
func isGenericComment(comment string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(comment))
	trimmed = strings.Trim(trimmed, ".!")
	if len(trimmed) <= 3 {
		return true
	}
	return genericPhrases[trimmed]
}

package provider

import (
	"log"
	"time"

	"r4r-detector/internal/errs"
	"r4r-detector/internal/models"
)

// NormalizeReviews converts raw provider records into normalized reviews.
// Records missing author, subject, or created_at are skipped: those fields
// are load-bearing for pairing and time-gap math. A missing comment is
// allowed and a missing or unknown sentiment defaults to neutral. When more
// than half of a non-empty batch is malformed the provider itself is
// considered broken and the whole batch fails with ErrUpstream.
func NormalizeReviews(records []reviewRecord) ([]models.Review, error) {
	reviews := make([]models.Review, 0, len(records))
	skipped := 0

	for _, rec := range records {
		review, err := normalizeReview(rec)
		if err != nil {
			log.Printf("Skipping malformed review record %q: %v", rec.ID, err)
			skipped++
			continue
		}
		reviews = append(reviews, review)
	}

	if len(records) > 0 && skipped*2 > len(records) {
		return nil, errs.Upstream(errs.DataFormat("%d of %d review records malformed", skipped, len(records)))
	}

	return reviews, nil
}

func normalizeReview(rec reviewRecord) (models.Review, error) {
	if rec.Author == "" {
		return models.Review{}, errs.DataFormat("missing author_userkey")
	}
	if rec.Subject == "" {
		return models.Review{}, errs.DataFormat("missing subject_userkey")
	}
	if rec.CreatedAt == "" {
		return models.Review{}, errs.DataFormat("missing created_at")
	}

	createdAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		return models.Review{}, errs.DataFormat("unparseable created_at %q", rec.CreatedAt)
	}

	return models.Review{
		ID:        rec.ID,
		Author:    rec.Author,
		Subject:   rec.Subject,
		Sentiment: normalizeSentiment(rec.Sentiment),
		Comment:   rec.Comment,
		CreatedAt: createdAt,
	}, nil
}

func normalizeSentiment(s string) models.Sentiment {
	switch models.Sentiment(s) {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
		return models.Sentiment(s)
	default:
		return models.SentimentNeutral
	}
}

package ranking

import (
	"math"
	"strings"
	"time"

	"PaperWatcher/internal/config"
	"PaperWatcher/internal/domain"
)

// Metric keys read from CandidateWork.Metrics.
const (
	MetricCitedBy        = "cited_by"
	MetricReferencedBy   = "is-referenced-by"
	MetricAltmetric      = "altmetric"
	neutralJournalWeight = 1.0
)

// Recency maps the age of a work onto a four-step staircase.
func Recency(published *time.Time, now time.Time, decay config.DecayDays) float64 {
	if published == nil || published.IsZero() {
		return 0
	}
	days := int(now.Sub(*published) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	switch {
	case days <= decay.Fast:
		return 1.0
	case days <= decay.Medium:
		return 0.7
	case days <= decay.Slow:
		return 0.4
	default:
		return 0.1
	}
}

// Compress is log(1+x) for positive finite counts and 0 otherwise.
func Compress(count float64) float64 {
	if count <= 0 || math.IsNaN(count) || math.IsInf(count, 0) {
		return 0
	}
	return math.Log1p(count)
}

// MetricScores returns the compressed citation and altmetric counts.
func MetricScores(metrics map[string]float64) (float64, float64) {
	citations, ok := metrics[MetricCitedBy]
	if !ok {
		citations = metrics[MetricReferencedBy]
	}
	return Compress(citations), Compress(metrics[MetricAltmetric])
}

// JournalQuality resolves a venue to max(1, log1p(value)); unknown venues are neutral.
func JournalQuality(venue string, journals JournalMetrics) (float64, *float64) {
	value, ok := journals.Lookup(venue)
	if !ok {
		return neutralJournalWeight, nil
	}
	quality := math.Log1p(value)
	if math.IsNaN(quality) || math.IsInf(quality, 0) || quality < neutralJournalWeight {
		return neutralJournalWeight, &value
	}
	return quality, &value
}

// Bonus is 1 when any value matches the whitelist case-insensitively.
func Bonus(values []string, whitelist map[string]struct{}) float64 {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := whitelist[strings.ToLower(strings.TrimSpace(v))]; ok {
			return 1
		}
	}
	return 0
}

// LabelFor buckets a score. Thresholds are assumed ordered (MustRead >= Consider).
func LabelFor(score float64, th config.Thresholds) domain.Label {
	switch {
	case score >= th.MustRead:
		return domain.LabelMustRead
	case score >= th.Consider:
		return domain.LabelConsider
	default:
		return domain.LabelIgnore
	}
}

func composite(w domain.RankedWork, weights config.ScoreWeights) float64 {
	score := w.Similarity*weights.Similarity +
		w.Recency*weights.Recency +
		w.MetricScore*weights.Citations +
		w.AltmetricScore*weights.Altmetric +
		w.AuthorBonus*weights.AuthorBonus +
		w.VenueBonus*weights.VenueBonus
	if weights.JournalQuality != 0 {
		score += w.JournalQuality * weights.JournalQuality
	}
	return score
}

func whitelistSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

package domain

import (
	"strings"
	"time"
)

// KnownItem is a record already present in the reference library.
type KnownItem struct {
	Key       string
	Version   int
	Title     string
	Abstract  string
	Creators  []string
	Tags      []string
	Venue     string
	Year      int
	DOI       string
	URL       string
	Extra     map[string]any
	Embedding []float32
}

// Content returns the text used to embed the item.
func (i KnownItem) Content() string {
	return joinParts(i.Title, i.Abstract, strings.Join(i.Creators, "; "), strings.Join(i.Tags, "; "))
}

// CandidateWork is a discovered work that has not been vetted yet.
type CandidateWork struct {
	Source     string
	Identifier string
	Title      string
	Abstract   string
	Authors    []string
	DOI        string
	URL        string
	Published  *time.Time
	Venue      string
	Metrics    map[string]float64
	// Extra carries source-specific metadata the pipeline never interprets.
	Extra map[string]any
}

// Content returns the text used to embed the candidate.
func (c CandidateWork) Content() string {
	return joinParts(c.Title, c.Abstract, strings.Join(c.Authors, "; "))
}

// Label buckets a ranked work by score.
type Label string

const (
	LabelMustRead Label = "must_read"
	LabelConsider Label = "consider"
	LabelIgnore   Label = "ignore"
)

// RankedWork is a candidate with its score breakdown. Never mutated after ranking.
type RankedWork struct {
	CandidateWork

	Score          float64
	Similarity     float64
	Recency        float64
	MetricScore    float64
	AltmetricScore float64
	AuthorBonus    float64
	VenueBonus     float64
	JournalQuality float64
	// JournalSJR is the raw quality figure resolved for the venue, nil when the venue is unknown.
	JournalSJR *float64
	Label      Label
}

func joinParts(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "\n")
}

package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"PaperWatcher/internal/config"
	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/index"
)

// ErrIndexNotReady is returned when ranking is attempted without a profile index.
var ErrIndexNotReady = errors.New("ranking: profile index is not loaded")

// Encoder turns candidate texts into unit vectors.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher answers nearest-neighbour queries against the profile.
type Searcher interface {
	Search(queries [][]float32, k int) ([][]float64, [][]int, error)
}

// Deps wires the ranker. Now defaults to time.Now.
type Deps struct {
	Encoder  Encoder
	Index    Searcher
	Journals JournalMetrics
	Scoring  config.ScoringConfig
	Now      func() time.Time
	Logger   *slog.Logger
}

// Ranker scores candidates against the interest profile.
type Ranker struct {
	encoder  Encoder
	index    Searcher
	journals JournalMetrics
	scoring  config.ScoringConfig
	authors  map[string]struct{}
	venues   map[string]struct{}
	now      func() time.Time
	logger   *slog.Logger
}

// New validates thresholds and builds a Ranker.
func New(deps Deps) (*Ranker, error) {
	th := deps.Scoring.Thresholds
	if th.MustRead < th.Consider {
		return nil, fmt.Errorf("ranking: must_read threshold %.3f is below consider threshold %.3f", th.MustRead, th.Consider)
	}
	if ix, ok := deps.Index.(*index.Index); ok && ix == nil {
		deps.Index = nil
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Ranker{
		encoder:  deps.Encoder,
		index:    deps.Index,
		journals: deps.Journals,
		scoring:  deps.Scoring,
		authors:  whitelistSet(deps.Scoring.WhitelistAuthors),
		venues:   whitelistSet(deps.Scoring.WhitelistVenues),
		now:      deps.Now,
		logger:   deps.Logger,
	}, nil
}

// Rank scores every candidate and returns them by descending score; ties keep input order.
func (r *Ranker) Rank(ctx context.Context, candidates []domain.CandidateWork) ([]domain.RankedWork, error) {
	if len(candidates) == 0 {
		return []domain.RankedWork{}, nil
	}
	if r.index == nil || r.encoder == nil {
		return nil, ErrIndexNotReady
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content()
	}
	vectors, err := r.encoder.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}
	if len(vectors) != len(candidates) {
		return nil, fmt.Errorf("encode candidates: got %d vectors for %d candidates", len(vectors), len(candidates))
	}

	r.logger.Info("scoring candidate works", "count", len(candidates))
	scores, ids, err := r.index.Search(vectors, 1)
	if errors.Is(err, index.ErrNotBuilt) {
		return nil, ErrIndexNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("search profile index: %w", err)
	}

	now := r.now()
	ranked := make([]domain.RankedWork, len(candidates))
	for i, candidate := range candidates {
		similarity := 0.0
		if len(ids[i]) > 0 && ids[i][0] != index.NoMatch {
			similarity = scores[i][0]
		}
		ranked[i] = r.score(candidate, similarity, now)
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})
	return ranked, nil
}

func (r *Ranker) score(candidate domain.CandidateWork, similarity float64, now time.Time) domain.RankedWork {
	citations, altmetric := MetricScores(candidate.Metrics)
	quality, sjr := JournalQuality(candidate.Venue, r.journals)

	work := domain.RankedWork{
		CandidateWork:  candidate,
		Similarity:     similarity,
		Recency:        Recency(candidate.Published, now, r.scoring.DecayDays),
		MetricScore:    citations,
		AltmetricScore: altmetric,
		AuthorBonus:    Bonus(candidate.Authors, r.authors),
		VenueBonus:     Bonus([]string{candidate.Venue}, r.venues),
		JournalQuality: quality,
		JournalSJR:     sjr,
	}
	work.Score = composite(work, r.scoring.Weights)
	work.Label = LabelFor(work.Score, r.scoring.Thresholds)
	return work
}

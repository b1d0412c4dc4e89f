package dedupe

import (
	"log/slog"

	"PaperWatcher/internal/domain"
)

// DefaultTitleThreshold is the fuzzy title similarity at which two works collide.
const DefaultTitleThreshold = 0.90

// Engine filters candidates already present in the library. Its corpus state is
// built once and never modified by Filter.
type Engine struct {
	threshold float64
	dois      map[string]struct{}
	ids       map[string]struct{}
	titles    []string
	logger    *slog.Logger
}

// Batch is the scratch state of one filtering pass: what has been accepted so far.
type Batch struct {
	dois   map[string]struct{}
	ids    map[string]struct{}
	titles []string
}

// New indexes the known items. threshold <= 0 selects DefaultTitleThreshold.
func New(items []domain.KnownItem, threshold float64, logger *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultTitleThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		threshold: threshold,
		dois:      make(map[string]struct{}, len(items)),
		ids:       make(map[string]struct{}, len(items)),
		titles:    make([]string, 0, len(items)),
		logger:    logger,
	}
	for _, item := range items {
		if doi := NormalizeDOI(item.DOI); doi != "" {
			e.dois[doi] = struct{}{}
		}
		if id := NormalizeIdentifier(item.URL); id != "" {
			e.ids[id] = struct{}{}
		}
		if title := NormalizeTitle(item.Title); title != "" {
			e.titles = append(e.titles, title)
		}
	}
	return e
}

// NewBatch returns empty per-call scratch state.
func (e *Engine) NewBatch() *Batch {
	return &Batch{dois: map[string]struct{}{}, ids: map[string]struct{}{}}
}

// Filter drops candidates that duplicate the corpus or an earlier candidate,
// keeping the input order of the survivors.
func (e *Engine) Filter(candidates []domain.CandidateWork) []domain.CandidateWork {
	return e.FilterBatch(e.NewBatch(), candidates)
}

// FilterBatch is Filter with caller-owned scratch, so consecutive calls sharing
// a Batch also deduplicate against each other.
func (e *Engine) FilterBatch(batch *Batch, candidates []domain.CandidateWork) []domain.CandidateWork {
	kept := make([]domain.CandidateWork, 0, len(candidates))
	for _, work := range candidates {
		if reason := e.duplicateReason(batch, work); reason != "" {
			e.logger.Debug("skip duplicate candidate", "identifier", work.Identifier, "reason", reason)
			continue
		}
		batch.record(work)
		kept = append(kept, work)
	}

	e.logger.Info("deduped candidates", "before", len(candidates), "after", len(kept))
	return kept
}

func (e *Engine) duplicateReason(batch *Batch, work domain.CandidateWork) string {
	if doi := NormalizeDOI(work.DOI); doi != "" {
		if contains(e.dois, doi) || contains(batch.dois, doi) {
			return "doi"
		}
	}

	for _, id := range []string{NormalizeIdentifier(work.Identifier), NormalizeIdentifier(work.URL)} {
		if id == "" {
			continue
		}
		if contains(e.ids, id) || contains(batch.ids, id) {
			return "identifier"
		}
	}

	title := NormalizeTitle(work.Title)
	if title == "" {
		return ""
	}
	if e.similarTitle(title, e.titles) || e.similarTitle(title, batch.titles) {
		return "title"
	}
	return ""
}

func (e *Engine) similarTitle(title string, titles []string) bool {
	for _, existing := range titles {
		if TokenSetRatio(title, existing) >= e.threshold {
			return true
		}
	}
	return false
}

func (b *Batch) record(work domain.CandidateWork) {
	if doi := NormalizeDOI(work.DOI); doi != "" {
		b.dois[doi] = struct{}{}
	}
	if id := NormalizeIdentifier(work.Identifier); id != "" {
		b.ids[id] = struct{}{}
	}
	if id := NormalizeIdentifier(work.URL); id != "" {
		b.ids[id] = struct{}{}
	}
	if title := NormalizeTitle(work.Title); title != "" {
		b.titles = append(b.titles, title)
	}
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

package ranking

import (
	"strings"
	"time"

	"PaperWatcher/internal/domain"
)

var preprintSources = map[string]struct{}{
	"arxiv":   {},
	"biorxiv": {},
	"medrxiv": {},
}

// FilterRecent keeps dated works published within the last days. days <= 0 disables the filter.
func FilterRecent(works []domain.RankedWork, days int, now time.Time) []domain.RankedWork {
	if days <= 0 {
		return works
	}
	cutoff := now.AddDate(0, 0, -days)
	kept := make([]domain.RankedWork, 0, len(works))
	for _, w := range works {
		if w.Published != nil && !w.Published.Before(cutoff) {
			kept = append(kept, w)
		}
	}
	return kept
}

// LimitPreprints walks works in order and drops preprints that would push their
// share of the kept list above maxRatio. maxRatio <= 0 disables the cap.
func LimitPreprints(works []domain.RankedWork, maxRatio float64) []domain.RankedWork {
	if len(works) == 0 || maxRatio <= 0 {
		return works
	}
	kept := make([]domain.RankedWork, 0, len(works))
	preprints := 0
	for _, w := range works {
		if IsPreprint(w.Source) {
			if float64(preprints+1)/float64(len(kept)+1) > maxRatio {
				continue
			}
			preprints++
		}
		kept = append(kept, w)
	}
	return kept
}

// IsPreprint reports whether a source tag names a preprint server.
func IsPreprint(source string) bool {
	_, ok := preprintSources[strings.ToLower(strings.TrimSpace(source))]
	return ok
}

package usecase

import (
	"fmt"
	"strings"
	"time"

	"PaperWatcher/internal/dedupe"
	"PaperWatcher/internal/domain"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// BuildDigest renders ranked works as a Telegram Markdown message.
func BuildDigest(works []domain.RankedWork, now time.Time) string {
	if len(works) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*PaperWatcher digest* %s\n\n", now.Format("2006-01-02"))
	for i, w := range works {
		fmt.Fprintf(&b, "%d. *%s* (%s, %.2f)\n", i+1, escapeMarkdown(w.Title), w.Label, w.Score)
		meta := []string{}
		if w.Venue != "" {
			meta = append(meta, escapeMarkdown(w.Venue))
		}
		if w.Published != nil {
			meta = append(meta, w.Published.Format("2006-01-02"))
		}
		if len(meta) > 0 {
			fmt.Fprintf(&b, "%s\n", strings.Join(meta, " · "))
		}
		if link := workLink(w.CandidateWork); link != "" {
			fmt.Fprintf(&b, "%s\n", link)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func workLink(w domain.CandidateWork) string {
	if w.URL != "" {
		return w.URL
	}
	if doi := dedupe.NormalizeDOI(w.DOI); doi != "" {
		return "https://doi.org/" + doi
	}
	return ""
}

// escapeMarkdown neutralizes the characters legacy Markdown mode treats as markup.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

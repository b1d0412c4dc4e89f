package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/scanner"
)

const openAlexBaseURL = "https://api.openalex.org"

// OpenAlexScanner queries the OpenAlex works endpoint for recent publications.
type OpenAlexScanner struct {
	api     apiClient
	baseURL string
	logger  *slog.Logger
}

var _ scanner.Scanner = (*OpenAlexScanner)(nil)

// NewOpenAlexScanner wires the shared HTTP client and rate limiter.
func NewOpenAlexScanner(client *http.Client, limiter *rate.Limiter, mailto string, logger *slog.Logger) *OpenAlexScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAlexScanner{api: newAPIClient(client, limiter, mailto), baseURL: openAlexBaseURL, logger: logger}
}

// Name identifies the strategy inside the registry.
func (o *OpenAlexScanner) Name() string {
	return "openalex"
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID              string           `json:"id"`
	DOI             string           `json:"doi"`
	DisplayName     string           `json:"display_name"`
	PublicationDate string           `json:"publication_date"`
	CitedByCount    float64          `json:"cited_by_count"`
	InvertedIndex   map[string][]int `json:"abstract_inverted_index"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation *struct {
		LandingPageURL string `json:"landing_page_url"`
		Source         *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	Concepts []struct {
		DisplayName string `json:"display_name"`
	} `json:"concepts"`
}

// Scan fetches works published on or after req.Since, newest first.
func (o *OpenAlexScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateWork, error) {
	query := url.Values{}
	query.Set("filter", "from_publication_date:"+req.Since.UTC().Format("2006-01-02"))
	query.Set("sort", "publication_date:desc")
	query.Set("per-page", optionOr(req.Options, "perPage", "200"))
	if o.api.mailto != "" {
		query.Set("mailto", o.api.mailto)
	}
	if search := req.Options["search"]; search != "" {
		query.Set("search", search)
	}
	endpoint := fmt.Sprintf("%s/works?%s", strings.TrimSuffix(o.baseURL, "/"), query.Encode())

	var payload openAlexResponse
	if err := o.api.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("openalex works: %w", err)
	}

	works := make([]domain.CandidateWork, 0, len(payload.Results))
	for _, item := range payload.Results {
		title := strings.TrimSpace(item.DisplayName)
		if title == "" {
			o.logger.Debug("skip openalex work without title", "id", item.ID)
			continue
		}
		works = append(works, o.toCandidate(item, title))
	}
	return works, nil
}

func (o *OpenAlexScanner) toCandidate(item openAlexWork, title string) domain.CandidateWork {
	work := domain.CandidateWork{
		Source:     "openalex",
		Identifier: firstNonEmpty(item.ID, item.DOI, title),
		Title:      title,
		Abstract:   invertedAbstract(item.InvertedIndex),
		DOI:        item.DOI,
		Published:  parseDate(item.PublicationDate),
		Metrics:    map[string]float64{"cited_by": item.CitedByCount},
	}
	for _, a := range item.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			work.Authors = append(work.Authors, name)
		}
	}
	if loc := item.PrimaryLocation; loc != nil {
		work.URL = loc.LandingPageURL
		if loc.Source != nil {
			work.Venue = strings.TrimSpace(loc.Source.DisplayName)
		}
	}
	if work.URL == "" {
		work.URL = item.DOI
	}
	if len(item.Concepts) > 0 {
		concepts := make([]string, 0, len(item.Concepts))
		for _, c := range item.Concepts {
			concepts = append(concepts, c.DisplayName)
		}
		work.Extra = map[string]any{"concepts": concepts}
	}
	return work
}

// invertedAbstract rebuilds text from OpenAlex's word -> positions map.
func invertedAbstract(index map[string][]int) string {
	size := 0
	for _, positions := range index {
		for _, pos := range positions {
			size = max(size, pos+1)
		}
	}
	if size == 0 {
		return ""
	}
	tokens := make([]string, size)
	for word, positions := range index {
		for _, pos := range positions {
			if pos >= 0 {
				tokens[pos] = word
			}
		}
	}
	return strings.Join(strings.Fields(strings.Join(tokens, " ")), " ")
}

func optionOr(options map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(options[key]); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

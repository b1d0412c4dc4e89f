package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/scanner"
)

const (
	crossrefBaseURL      = "https://api.crossref.org"
	defaultTopVenueLimit = 5
)

// CrossrefScanner queries Crossref for recent works and, when known, the reader's top venues.
type CrossrefScanner struct {
	api     apiClient
	baseURL string
	logger  *slog.Logger
}

var _ scanner.Scanner = (*CrossrefScanner)(nil)

// NewCrossrefScanner wires the shared HTTP client and rate limiter.
func NewCrossrefScanner(client *http.Client, limiter *rate.Limiter, mailto string, logger *slog.Logger) *CrossrefScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossrefScanner{api: newAPIClient(client, limiter, mailto), baseURL: crossrefBaseURL, logger: logger}
}

// Name identifies the strategy inside the registry.
func (c *CrossrefScanner) Name() string {
	return "crossref"
}

type crossrefResponse struct {
	Message struct {
		Items []crossrefItem `json:"items"`
	} `json:"message"`
}

type crossrefItem struct {
	DOI            string   `json:"DOI"`
	URL            string   `json:"URL"`
	Type           string   `json:"type"`
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	Abstract       string   `json:"abstract"`
	ReferencedBy   float64  `json:"is-referenced-by-count"`
	Author         []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
		Name   string `json:"name"`
	} `json:"author"`
	Created struct {
		DateTime string `json:"date-time"`
	} `json:"created"`
}

// Scan fetches the general feed, then one query per top venue. A failing venue query is skipped.
func (c *CrossrefScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateWork, error) {
	since := req.Since.UTC().Format("2006-01-02")

	items, err := c.query(ctx, "from-pub-date:"+since, optionOr(req.Options, "rows", "200"))
	if err != nil {
		return nil, fmt.Errorf("crossref works: %w", err)
	}
	works := c.toCandidates(items, "", "")

	limit := defaultTopVenueLimit
	if v, err := strconv.Atoi(req.Options["topVenues"]); err == nil && v >= 0 {
		limit = v
	}
	venues := req.Venues[:min(limit, len(req.Venues))]

	extra := 0
	for _, venue := range venues {
		items, err := c.query(ctx, fmt.Sprintf("from-pub-date:%s,container-title:%s", since, venue), "100")
		if err != nil {
			c.logger.Warn("crossref top venue query failed", "venue", venue, "error", err)
			continue
		}
		found := c.toCandidates(items, venue, "top_venue")
		extra += len(found)
		works = append(works, found...)
	}
	if extra > 0 {
		c.logger.Info("fetched additional works from top venues", "count", extra, "venues", len(venues))
	}
	return works, nil
}

func (c *CrossrefScanner) query(ctx context.Context, filter, rows string) ([]crossrefItem, error) {
	query := url.Values{}
	query.Set("filter", filter)
	query.Set("sort", "created")
	query.Set("order", "desc")
	query.Set("rows", rows)
	if c.api.mailto != "" {
		query.Set("mailto", c.api.mailto)
	}
	endpoint := fmt.Sprintf("%s/works?%s", strings.TrimSuffix(c.baseURL, "/"), query.Encode())

	var payload crossrefResponse
	if err := c.api.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Message.Items, nil
}

func (c *CrossrefScanner) toCandidates(items []crossrefItem, venue, origin string) []domain.CandidateWork {
	works := make([]domain.CandidateWork, 0, len(items))
	for _, item := range items {
		title := ""
		if len(item.Title) > 0 {
			title = strings.TrimSpace(item.Title[0])
		}
		if title == "" {
			c.logger.Debug("skip crossref work without title", "doi", item.DOI)
			continue
		}

		work := domain.CandidateWork{
			Source:     "crossref",
			Identifier: firstNonEmpty(item.DOI, item.URL, "unknown"),
			Title:      title,
			Abstract:   stripMarkup(item.Abstract),
			DOI:        item.DOI,
			URL:        item.URL,
			Published:  parseDate(item.Created.DateTime),
			Venue:      venue,
			Metrics:    map[string]float64{"is-referenced-by": item.ReferencedBy},
			Extra:      map[string]any{"type": item.Type},
		}
		if work.Venue == "" && len(item.ContainerTitle) > 0 {
			work.Venue = strings.TrimSpace(item.ContainerTitle[0])
		}
		if origin != "" {
			work.Extra["source"] = origin
		}
		for _, a := range item.Author {
			name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
			if name == "" {
				name = strings.TrimSpace(a.Name)
			}
			if name != "" {
				work.Authors = append(work.Authors, name)
			}
		}
		works = append(works, work)
	}
	return works
}

// stripMarkup flattens a JATS/HTML abstract to plain text.
func stripMarkup(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return strings.Join(strings.Fields(value), " ")
	}
	var parts []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, textOf(s)...)
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func textOf(s *goquery.Selection) []string {
	if goquery.NodeName(s) == "#text" {
		return []string{s.Text()}
	}
	var parts []string
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		parts = append(parts, textOf(child)...)
	})
	return parts
}

package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/scanner"
)

const (
	arxivBaseURL = "https://arxiv.org"
)

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivScanner crawls category listing pages and extracts works published since the requested date.
type ArxivScanner struct {
	client   *http.Client
	pageSize int
	logger   *slog.Logger
}

var _ scanner.Scanner = (*ArxivScanner)(nil)

// NewArxivScanner wires an HTTP client; pageSize defaults to 200.
func NewArxivScanner(client *http.Client, logger *slog.Logger) *ArxivScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArxivScanner{client: client, pageSize: 200, logger: logger}
}

// Name identifies the strategy inside the registry.
func (a *ArxivScanner) Name() string {
	return "arxiv"
}

// Scan walks through each category URL and returns every listed work dated on or after req.Since.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateWork, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	since := req.Since.UTC().Truncate(24 * time.Hour)
	results := make([]domain.CandidateWork, 0)
	seen := map[string]struct{}{}

	for _, cat := range req.Categories {
		skip := 0
		for {
			pageURL, err := buildPageURL(cat.URL, skip, a.pageSize)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			doc, err := a.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			works, shouldContinue := a.extractWorks(doc, since, cat.Name)
			for _, work := range works {
				if _, ok := seen[work.Identifier]; ok {
					continue
				}
				seen[work.Identifier] = struct{}{}
				results = append(results, work)
			}

			if !shouldContinue {
				break
			}
			skip += a.pageSize
		}
	}

	return results, nil
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (a *ArxivScanner) extractWorks(doc *goquery.Document, since time.Time, category string) ([]domain.CandidateWork, bool) {
	var (
		collected    []domain.CandidateWork
		continueScan = true
		processed    int
	)

	doc.Find("dl").EachWithBreak(func(_ int, dl *goquery.Selection) bool {
		heading := listingDate(dl.PrevAllFiltered("h3").First().Text())

		dl.ChildrenFiltered("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
			processed++
			work, err := parseEntry(dt, dt.Next(), category, heading)
			if err != nil {
				a.logger.Debug("skip arxiv entry", "category", category, "error", err)
				return true
			}
			if work.Published != nil && work.Published.Before(since) {
				continueScan = false
				return false
			}
			collected = append(collected, work)
			return true
		})
		return continueScan
	})

	if processed < a.pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func parseEntry(dt, dd *goquery.Selection, category string, fallback *time.Time) (domain.CandidateWork, error) {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")

	id := strings.TrimSpace(link.Text())
	if id == "" {
		id = strings.TrimPrefix(href, "/abs/")
	}
	id = strings.TrimSpace(strings.TrimPrefix(id, "arXiv:"))
	if id == "" {
		return domain.CandidateWork{}, errors.New("entry without identifier")
	}

	if href == "" {
		href = "/abs/" + id
	}
	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	if title == "" {
		return domain.CandidateWork{}, fmt.Errorf("entry %s without title", id)
	}

	summary := dd.Find("p.mathjax").First().Text()
	summary = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(summary), "Abstract:"))

	var authors []string
	dd.Find(".list-authors a").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}
	published := listingDate(dateText)
	if published == nil {
		published = fallback
	}

	extra := map[string]any{"arxiv_id": id}
	if category != "" {
		extra["category"] = category
	}

	return domain.CandidateWork{
		Source:     "arxiv",
		Identifier: id,
		Title:      title,
		Abstract:   summary,
		Authors:    authors,
		URL:        href,
		Published:  published,
		Venue:      "arXiv",
		Extra:      extra,
	}, nil
}

func listingDate(text string) *time.Time {
	match := dateExpr.FindString(text)
	if match == "" {
		return nil
	}
	parsed, err := time.Parse("2 Jan 2006", match)
	if err != nil {
		return nil
	}
	return &parsed
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

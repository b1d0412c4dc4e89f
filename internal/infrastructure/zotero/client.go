package zotero

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

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/ports"
)

const apiVersion = "3"

var (
	yearExpr = regexp.MustCompile(`\b(1[5-9]\d{2}|2\d{3})\b`)
	nextExpr = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)
)

// skippedTypes never carry content worth embedding.
var skippedTypes = map[string]bool{"attachment": true, "note": true, "annotation": true}

// Config holds what the client needs to reach one user library.
type Config struct {
	BaseURL     string
	UserID      string
	APIKey      string
	PageSize    int
	PoliteDelay time.Duration
}

// Client pulls a Zotero user library through the Web API v3.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ports.LibraryClient = (*Client)(nil)

// NewClient validates credentials and wires an HTTP client.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.UserID == "" || cfg.APIKey == "" {
		return nil, errors.New("zotero user id and api key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.zotero.org"
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.PoliteDelay > 0 {
		limit = rate.Every(cfg.PoliteDelay)
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

type apiItem struct {
	Key     string  `json:"key"`
	Version int     `json:"version"`
	Data    apiData `json:"data"`
}

type apiData struct {
	ItemType         string       `json:"itemType"`
	Title            string       `json:"title"`
	AbstractNote     string       `json:"abstractNote"`
	Creators         []apiCreator `json:"creators"`
	Tags             []apiTag     `json:"tags"`
	PublicationTitle string       `json:"publicationTitle"`
	ProceedingsTitle string       `json:"proceedingsTitle"`
	Date             string       `json:"date"`
	DOI              string       `json:"DOI"`
	URL              string       `json:"url"`
	Extra            string       `json:"extra"`
	Collections      []string     `json:"collections"`
}

type apiCreator struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Name        string `json:"name"`
}

type apiTag struct {
	Tag string `json:"tag"`
}

// FetchItems walks every page of top-level items modified after sinceVersion.
// A 304 answer means nothing changed and fn is never called.
func (c *Client) FetchItems(ctx context.Context, sinceVersion int, fn func(ports.LibraryPage) error) error {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("limit", strconv.Itoa(c.cfg.PageSize))
	query.Set("sort", "dateModified")
	if sinceVersion > 0 {
		query.Set("since", strconv.Itoa(sinceVersion))
	}
	next := fmt.Sprintf("%s/users/%s/items/top?%s", strings.TrimSuffix(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.UserID), query.Encode())

	for page := 1; next != ""; page++ {
		resp, err := c.get(ctx, next, sinceVersion)
		if err != nil {
			return fmt.Errorf("items page %d: %w", page, err)
		}
		if resp.StatusCode == http.StatusNotModified {
			_ = resp.Body.Close()
			c.logger.Debug("library not modified", "since", sinceVersion)
			return nil
		}

		var raw []apiItem
		if err := decode(resp, &raw); err != nil {
			return fmt.Errorf("items page %d: %w", page, err)
		}

		version := headerVersion(resp.Header)
		items := make([]domain.KnownItem, 0, len(raw))
		for _, it := range raw {
			if skippedTypes[it.Data.ItemType] {
				continue
			}
			items = append(items, toKnownItem(it))
		}
		c.logger.Debug("fetched library page", "page", page, "items", len(items), "version", version)

		if err := fn(ports.LibraryPage{Items: items, Version: version}); err != nil {
			return err
		}
		next = nextLink(resp.Header.Get("Link"))
	}
	return nil
}

// FetchDeleted lists item keys removed from the library after sinceVersion.
func (c *Client) FetchDeleted(ctx context.Context, sinceVersion int) ([]string, error) {
	endpoint := fmt.Sprintf("%s/users/%s/deleted?since=%d", strings.TrimSuffix(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.UserID), sinceVersion)
	resp, err := c.get(ctx, endpoint, 0)
	if err != nil {
		return nil, fmt.Errorf("deleted items: %w", err)
	}
	var payload struct {
		Items []string `json:"items"`
	}
	if err := decode(resp, &payload); err != nil {
		return nil, fmt.Errorf("deleted items: %w", err)
	}
	return payload.Items, nil
}

func (c *Client) get(ctx context.Context, endpoint string, sinceVersion int) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Zotero-API-Version", apiVersion)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", "PaperWatcher/1.0")
	if sinceVersion > 0 {
		req.Header.Set("If-Modified-Since-Version", strconv.Itoa(sinceVersion))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotModified {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("zotero returned %s", resp.Status)
	}
	return resp, nil
}

func decode(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}

func headerVersion(h http.Header) int {
	v, err := strconv.Atoi(h.Get("Last-Modified-Version"))
	if err != nil {
		return 0
	}
	return v
}

func nextLink(header string) string {
	if m := nextExpr.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return ""
}

func toKnownItem(it apiItem) domain.KnownItem {
	d := it.Data
	item := domain.KnownItem{
		Key:      it.Key,
		Version:  it.Version,
		Title:    strings.TrimSpace(d.Title),
		Abstract: strings.TrimSpace(d.AbstractNote),
		Venue:    firstNonEmpty(d.PublicationTitle, d.ProceedingsTitle),
		DOI:      strings.TrimSpace(d.DOI),
		URL:      strings.TrimSpace(d.URL),
		Extra:    map[string]any{"itemType": d.ItemType},
	}
	for _, cr := range d.Creators {
		if name := creatorName(cr); name != "" {
			item.Creators = append(item.Creators, name)
		}
	}
	for _, tag := range d.Tags {
		if t := strings.TrimSpace(tag.Tag); t != "" {
			item.Tags = append(item.Tags, t)
		}
	}
	if m := yearExpr.FindString(d.Date); m != "" {
		item.Year, _ = strconv.Atoi(m)
	}
	if len(d.Collections) > 0 {
		item.Extra["collections"] = d.Collections
	}
	if d.Extra != "" {
		item.Extra["extra"] = d.Extra
	}
	return item
}

func creatorName(cr apiCreator) string {
	if cr.Name != "" {
		return strings.TrimSpace(cr.Name)
	}
	return strings.TrimSpace(strings.TrimSpace(cr.FirstName) + " " + strings.TrimSpace(cr.LastName))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

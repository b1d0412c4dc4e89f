package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"PaperWatcher/internal/config"
	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/ports"
	"PaperWatcher/internal/scanner"
)

// ErrAllSourcesFailed is returned when no enabled site produced a result.
var ErrAllSourcesFailed = errors.New("all candidate sources failed")

// StrategySource implements CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry    *scanner.Registry
	sites       []config.SiteConfig
	venues      func() []string
	concurrency int
	logger      *slog.Logger
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites. venues may be nil.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, venues func() []string, concurrency int, log *slog.Logger) *StrategySource {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &StrategySource{
		registry:    reg,
		sites:       sites,
		venues:      venues,
		concurrency: concurrency,
		logger:      log,
	}
}

type siteResult struct {
	works []domain.CandidateWork
	err   error
}

// FetchCandidates runs every enabled site in parallel and concatenates results in site order.
// A failing site is logged and skipped; the call fails only when every site failed.
func (s *StrategySource) FetchCandidates(ctx context.Context, since time.Time) ([]domain.CandidateWork, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	var sites []config.SiteConfig
	for _, site := range s.sites {
		if site.IsEnabled() {
			sites = append(sites, site)
		}
	}
	if len(sites) == 0 {
		return nil, nil
	}

	var venues []string
	if s.venues != nil {
		venues = s.venues()
	}

	s.debug("fetch candidates", "sites", len(sites), "since", since.Format("2006-01-02"))

	results := make([]siteResult, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, site := range sites {
		i, site := i, site
		g.Go(func() error {
			results[i] = s.scanSite(gctx, site, since, venues)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		aggregated []domain.CandidateWork
		errs       []error
	)
	for i, res := range results {
		if res.err != nil {
			s.warn("candidate source failed", "site", sites[i].Name, "error", res.err)
			errs = append(errs, fmt.Errorf("site %s: %w", sites[i].Name, res.err))
			continue
		}
		aggregated = append(aggregated, res.works...)
	}
	if len(errs) == len(sites) {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}

	s.debug("strategy source done", "total_candidates", len(aggregated), "failed_sites", len(errs))
	return aggregated, nil
}

func (s *StrategySource) scanSite(ctx context.Context, site config.SiteConfig, since time.Time, venues []string) siteResult {
	s.debug("process site", "site", site.Name, "scanner", site.Scanner, "categories", len(site.Categories))
	strategy, err := s.registry.Resolve(site.Scanner)
	if err != nil {
		return siteResult{err: err}
	}

	req := scanner.Request{
		Since:      since,
		SiteName:   site.Name,
		Options:    site.Options,
		Categories: toScannerCategories(site.Categories),
		Venues:     venues,
	}

	works, err := strategy.Scan(ctx, req)
	if err != nil {
		return siteResult{err: fmt.Errorf("scan: %w", err)}
	}

	for i := range works {
		if works[i].Source == "" {
			works[i].Source = site.Name
		}
	}
	s.debug("site produced candidates", "site", site.Name, "count", len(works))
	return siteResult{works: works}
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

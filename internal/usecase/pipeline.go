package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PaperWatcher/internal/dedupe"
	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/ports"
	"PaperWatcher/internal/ranking"
)

// Ranker scores deduplicated candidates against the interest profile.
type Ranker interface {
	Rank(ctx context.Context, candidates []domain.CandidateWork) ([]domain.RankedWork, error)
}

// Syncer refreshes the local library before a cycle.
type Syncer interface {
	Run(ctx context.Context, full bool) (IngestStats, error)
}

// Settings are the cycle knobs taken from configuration.
type Settings struct {
	WindowDays       int
	TitleThreshold   float64
	RecentDays       int
	MaxPreprintRatio float64
	Top              int
	DigestSize       int
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source   ports.CandidateSource
	Items    ports.KnownItemSource
	Syncer   Syncer
	Ranker   Ranker
	History  ports.DeliveryHistory
	Notifier ports.Notifier
	Settings Settings
	Logger   *slog.Logger
}

// WatchOptions tune a single cycle.
type WatchOptions struct {
	// Top overrides Settings.Top when positive.
	Top    int
	Notify bool
	// SkipSync leaves the local library as it is. By default every cycle
	// pulls library changes first so dedupe sees freshly added items.
	SkipSync bool
}

// WatchResult summarizes one watch cycle.
type WatchResult struct {
	CycleID   string
	Fetched   int
	Unique    int
	Ranked    []domain.RankedWork
	Delivered int
}

// Pipeline implements the watch workflow: fetch, dedupe, rank, filter, notify.
type Pipeline struct {
	source   ports.CandidateSource
	items    ports.KnownItemSource
	syncer   Syncer
	ranker   Ranker
	history  ports.DeliveryHistory
	notifier ports.Notifier
	settings Settings
	logger   *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{
		source:   deps.Source,
		items:    deps.Items,
		syncer:   deps.Syncer,
		ranker:   deps.Ranker,
		history:  deps.History,
		notifier: deps.Notifier,
		settings: deps.Settings,
		logger:   deps.Logger,
	}
}

// Watch runs one cycle. A cycle with no surviving candidates returns an empty result.
func (p *Pipeline) Watch(ctx context.Context, now time.Time, opts WatchOptions) (WatchResult, error) {
	result := WatchResult{CycleID: uuid.NewString()}
	log := p.logger.With("cycle_id", result.CycleID)

	if p.source == nil || p.items == nil || p.ranker == nil {
		return result, fmt.Errorf("pipeline is not fully configured")
	}

	if !opts.SkipSync && p.syncer != nil {
		if _, err := p.syncer.Run(ctx, false); err != nil {
			return result, fmt.Errorf("sync library: %w", err)
		}
	}

	since := now.AddDate(0, 0, -max(p.settings.WindowDays, 1))
	candidates, err := p.source.FetchCandidates(ctx, since)
	if err != nil {
		return result, fmt.Errorf("fetch candidates: %w", err)
	}
	result.Fetched = len(candidates)
	log.Info("fetched candidates", "count", len(candidates), "since", since.Format("2006-01-02"))

	known, err := p.items.Items(ctx)
	if err != nil {
		return result, fmt.Errorf("load known items: %w", err)
	}
	unique := dedupe.New(known, p.settings.TitleThreshold, log.With("component", "dedupe")).Filter(candidates)
	result.Unique = len(unique)
	if len(unique) == 0 {
		log.Info("no new candidates after dedupe")
		return result, nil
	}

	ranked, err := p.ranker.Rank(ctx, unique)
	if err != nil {
		return result, fmt.Errorf("rank candidates: %w", err)
	}

	ranked = ranking.FilterRecent(ranked, p.settings.RecentDays, now)
	ranked = ranking.LimitPreprints(ranked, p.settings.MaxPreprintRatio)
	top := p.settings.Top
	if opts.Top > 0 {
		top = opts.Top
	}
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	result.Ranked = ranked

	log.Info("ranked candidates", "kept", len(ranked), "unique", len(unique))
	for i, w := range ranked[:min(10, len(ranked))] {
		log.Info("top candidate",
			"rank", i+1,
			"score", fmt.Sprintf("%.3f", w.Score),
			"label", w.Label,
			"source", w.Source,
			"title", w.Title,
		)
	}

	if opts.Notify {
		delivered, err := p.deliver(ctx, log, ranked, now)
		if err != nil {
			return result, err
		}
		result.Delivered = delivered
	}
	return result, nil
}

func (p *Pipeline) deliver(ctx context.Context, log *slog.Logger, ranked []domain.RankedWork, now time.Time) (int, error) {
	if p.notifier == nil {
		log.Warn("notifications requested but no notifier is configured")
		return 0, nil
	}

	var picked []domain.RankedWork
	for _, w := range ranked {
		if w.Label != domain.LabelIgnore {
			picked = append(picked, w)
		}
	}

	if p.history != nil && len(picked) > 0 {
		keys := make([]string, len(picked))
		for i, w := range picked {
			keys[i] = dedupe.DeliveryKey(w.CandidateWork)
		}
		seen, err := p.history.AlreadyDelivered(ctx, keys)
		if err != nil {
			return 0, fmt.Errorf("load delivery history: %w", err)
		}
		fresh := picked[:0:0]
		for i, w := range picked {
			if !seen[keys[i]] {
				fresh = append(fresh, w)
			}
		}
		picked = fresh
	}

	if size := p.settings.DigestSize; size > 0 && len(picked) > size {
		picked = picked[:size]
	}
	if len(picked) == 0 {
		log.Info("nothing new to deliver")
		return 0, nil
	}

	if err := p.notifier.PublishDigest(ctx, BuildDigest(picked, now)); err != nil {
		return 0, fmt.Errorf("publish digest: %w", err)
	}
	if p.history != nil {
		if err := p.history.SaveDelivered(ctx, picked); err != nil {
			return 0, fmt.Errorf("record delivered works: %w", err)
		}
	}
	log.Info("digest delivered", "works", len(picked))
	return len(picked), nil
}

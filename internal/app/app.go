package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"PaperWatcher/internal/config"
	"PaperWatcher/internal/index"
	"PaperWatcher/internal/infrastructure/ml"
	"PaperWatcher/internal/infrastructure/parser"
	"PaperWatcher/internal/infrastructure/scheduler"
	"PaperWatcher/internal/infrastructure/storage"
	"PaperWatcher/internal/infrastructure/telegram"
	"PaperWatcher/internal/infrastructure/zotero"
	"PaperWatcher/internal/logging"
	"PaperWatcher/internal/ports"
	"PaperWatcher/internal/profile"
	"PaperWatcher/internal/ranking"
	"PaperWatcher/internal/scanner"
	"PaperWatcher/internal/usecase"
	"PaperWatcher/internal/vectorizer"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	http   *http.Client
	loader *vectorizer.Loader
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		http:   &http.Client{Timeout: 30 * time.Second},
		loader: vectorizer.NewLoader(embeddingBackend(cfg.Embedding), cfg.Embedding.BatchSize, baseLogger.With("component", "vectorizer")),
	}
}

func embeddingBackend(cfg config.EmbeddingConfig) vectorizer.Backend {
	if cfg.Backend == "hashing" {
		return vectorizer.NewHashingBackend(cfg.HashDimension)
	}
	return ml.NewClient(ml.Config{
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxLength: cfg.MaxLength,
		Timeout:   cfg.RequestTimeout,
	})
}

// ProfileReport describes what the profile command did.
type ProfileReport struct {
	Ingest    *usecase.IngestStats
	Artifacts profile.Artifacts
}

// RunProfile syncs the library (when Zotero credentials are set) and rebuilds the profile.
func (a *Application) RunProfile(ctx context.Context, full bool) (ProfileReport, error) {
	var report ProfileReport

	store, err := a.openStore(ctx)
	if err != nil {
		return report, err
	}
	defer a.closeQuietly("item store", store.Close)

	if ingestor := a.ingestor(store); ingestor != nil {
		stats, err := ingestor.Run(ctx, full)
		if err != nil {
			return report, fmt.Errorf("ingest library: %w", err)
		}
		report.Ingest = &stats
	} else {
		a.logger.Warn("zotero credentials missing, building profile from the local store only")
	}

	model, err := a.loader.Load(ctx)
	if err != nil {
		return report, err
	}

	builder := profile.NewBuilder(store, model, a.cfg.IndexPath(), a.cfg.ProfilePath(), a.logger.With("component", "profile"))
	report.Artifacts, err = builder.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("build profile: %w", err)
	}
	return report, nil
}

// RunWatch executes a single watch cycle.
func (a *Application) RunWatch(ctx context.Context, opts usecase.WatchOptions) (usecase.WatchResult, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return usecase.WatchResult{}, err
	}
	defer a.closeQuietly("item store", store.Close)

	history, closeHistory, err := a.openHistory(ctx, opts.Notify)
	if err != nil {
		return usecase.WatchResult{}, err
	}
	defer closeHistory()

	return a.watch(ctx, store, history, time.Now().In(a.cfg.Scheduler.Location()), opts)
}

// RunDaemon runs watch cycles on the configured interval until ctx is cancelled.
func (a *Application) RunDaemon(ctx context.Context, opts usecase.WatchOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer a.closeQuietly("item store", store.Close)

	history, closeHistory, err := a.openHistory(ctx, opts.Notify)
	if err != nil {
		return err
	}
	defer closeHistory()

	cycle := func(ctx context.Context, trigger time.Time) error {
		_, err := a.watch(ctx, store, history, trigger.In(a.cfg.Scheduler.Location()), opts)
		return err
	}

	sched := usecase.NewScheduler(scheduler.NewTickerScheduler(a.cfg.Scheduler.Interval), cycle, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("daemon started", "interval", a.cfg.Scheduler.Interval.String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("daemon stopped")
	return nil
}

func (a *Application) watch(ctx context.Context, store ports.ItemStore, history ports.DeliveryHistory, now time.Time, opts usecase.WatchOptions) (usecase.WatchResult, error) {
	summary, err := profile.LoadSummary(a.cfg.ProfilePath())
	if err != nil {
		return usecase.WatchResult{}, err
	}
	ix, err := index.Load(a.cfg.IndexPath())
	if errors.Is(err, os.ErrNotExist) {
		return usecase.WatchResult{}, fmt.Errorf("%w: %w", profile.ErrProfileMissing, err)
	}
	if err != nil {
		return usecase.WatchResult{}, err
	}

	model, err := a.loader.Load(ctx)
	if err != nil {
		return usecase.WatchResult{}, err
	}
	if model.Dimension() != ix.Dim() {
		return usecase.WatchResult{}, fmt.Errorf("profile index has dimension %d but model %s produces %d; rerun the profile command",
			ix.Dim(), model.Name(), model.Dimension())
	}

	journals, err := ranking.LoadJournalMetrics(a.cfg.Path(a.cfg.Scoring.JournalMetricsPath), a.logger.With("component", "journals"))
	if err != nil {
		return usecase.WatchResult{}, err
	}
	ranker, err := ranking.New(ranking.Deps{
		Encoder:  model,
		Index:    ix,
		Journals: journals,
		Scoring:  a.cfg.Scoring,
		Now:      func() time.Time { return now },
		Logger:   a.logger.With("component", "ranker"),
	})
	if err != nil {
		return usecase.WatchResult{}, err
	}

	var notifier ports.Notifier
	if tg := a.cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	var syncer usecase.Syncer
	if ingestor := a.ingestor(store); ingestor != nil {
		syncer = ingestor
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:   a.candidateSource(summary.VenueNames()),
		Items:    store,
		Syncer:   syncer,
		Ranker:   ranker,
		History:  history,
		Notifier: notifier,
		Settings: usecase.Settings{
			WindowDays:       a.cfg.Sources.WindowDays,
			TitleThreshold:   a.cfg.Scoring.TitleThreshold,
			RecentDays:       a.cfg.Watch.RecentDays,
			MaxPreprintRatio: a.cfg.Watch.MaxPreprintRatio,
			Top:              a.cfg.Watch.Top,
			DigestSize:       a.cfg.Watch.DigestSize,
		},
		Logger: a.logger.With("component", "pipeline"),
	})
	return pipeline.Watch(ctx, now, opts)
}

func (a *Application) candidateSource(venues []string) *parser.StrategySource {
	limiter := parser.NewLimiter(a.cfg.Sources.RatePerSecond)
	mailto := a.cfg.Sources.Mailto

	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivScanner(a.http, a.logger.With("component", "scanner.arxiv")))
	registry.Register(parser.NewOpenAlexScanner(a.http, limiter, mailto, a.logger.With("component", "scanner.openalex")))
	registry.Register(parser.NewCrossrefScanner(a.http, limiter, mailto, a.logger.With("component", "scanner.crossref")))
	registry.Register(parser.NewBiorxivScanner(a.http, limiter, a.logger.With("component", "scanner.biorxiv")))

	return parser.NewStrategySource(registry, a.cfg.Sites, func() []string { return venues },
		a.cfg.Sources.Concurrency, a.logger.With("component", "source"))
}

func (a *Application) ingestor(store ports.ItemStore) *usecase.Ingestor {
	z := a.cfg.Zotero
	if z.UserID == "" || z.APIKey == "" {
		return nil
	}
	client, err := zotero.NewClient(zotero.Config{
		BaseURL:     z.BaseURL,
		UserID:      z.UserID,
		APIKey:      z.APIKey,
		PageSize:    z.PageSize,
		PoliteDelay: time.Duration(z.PoliteDelayMS) * time.Millisecond,
	}, a.http, a.logger.With("component", "zotero"))
	if err != nil {
		a.logger.Warn("zotero client unavailable", "error", err)
		return nil
	}
	return usecase.NewIngestor(client, store, a.logger.With("component", "ingest"))
}

func (a *Application) openStore(ctx context.Context) (*storage.SQLiteStore, error) {
	store, err := storage.OpenSQLite(ctx, a.cfg.Path(a.cfg.Database.ItemsPath))
	if err != nil {
		return nil, fmt.Errorf("open item store: %w", err)
	}
	return store, nil
}

// openHistory connects delivery history only when notifications are wanted and a DSN is set.
func (a *Application) openHistory(ctx context.Context, notify bool) (ports.DeliveryHistory, func(), error) {
	noop := func() {}
	if !notify || a.cfg.Database.HistoryDSN == "" {
		return nil, noop, nil
	}
	history, err := storage.OpenPostgresHistory(ctx, a.cfg.Database.HistoryDSN)
	if err != nil {
		return nil, noop, fmt.Errorf("open delivery history: %w", err)
	}
	return history, func() { a.closeQuietly("delivery history", history.Close) }, nil
}

func (a *Application) closeQuietly(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		a.logger.Warn("close failed", "resource", what, "error", err)
	}
}

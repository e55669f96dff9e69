// -----------------------------------------------------------------------
// Last Modified: Monday, 19th October 2026 9:12:40 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/eodhd"
	"github.com/ternarybob/stockcrew/internal/interfaces"
	"github.com/ternarybob/stockcrew/internal/models"
	"github.com/ternarybob/stockcrew/internal/services/llm"
	"github.com/ternarybob/stockcrew/internal/services/market"
	"github.com/ternarybob/stockcrew/internal/services/pipeline"
	"github.com/ternarybob/stockcrew/internal/services/report"
	"github.com/ternarybob/stockcrew/internal/services/scheduler"
	"github.com/ternarybob/stockcrew/internal/storage/badger"
	"github.com/ternarybob/stockcrew/internal/templates"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Run history, nil when storage.enabled=false
	Runs *badger.RunStorage

	// Analysis services
	Inference    *llm.Client
	Market       *market.Service
	Templates    *templates.Engine
	Orchestrator *pipeline.Orchestrator
	Writer       *report.Writer

	stageHook pipeline.StageHook
}

// Option configures an App
type Option func(*App)

// WithStageHook forwards completed stage results, e.g. for CLI progress output.
func WithStageHook(hook pipeline.StageHook) Option {
	return func(a *App) {
		a.stageHook = hook
	}
}

// New initializes the application with all dependencies.
// A nil logger falls back to the global logger.
func New(cfg *common.Config, logger arbor.ILogger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = common.GetLogger()
	}
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(app)
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("provider", string(cfg.LLM.Provider)).
		Str("model", cfg.InferenceModel()).
		Str("market_source", cfg.Market.Provider).
		Str("reports_dir", cfg.Reports.Dir).
		Str("storage_enabled", fmt.Sprintf("%v", cfg.Storage.Enabled)).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the run history store. Storage is optional: a store that
// cannot be opened is logged and the application runs without history.
func (a *App) initDatabase() error {
	if !a.Config.Storage.Enabled {
		a.Logger.Debug().Msg("Run history storage disabled")
		return nil
	}

	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage)
	if err != nil {
		a.Logger.Warn().Err(err).Str("path", a.Config.Storage.Path).Msg("Run history unavailable, continuing without storage")
		return nil
	}
	a.Runs = badger.NewRunStorage(db, a.Logger)
	return nil
}

func (a *App) initServices() error {
	cfg := a.Config

	// 1. Inference
	provider, err := llm.NewProvider(context.Background(), cfg, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create inference provider: %w", err)
	}
	clientOpts := []llm.ClientOption{
		llm.WithCallTimeout(common.ParseDurationOr(cfg.LLM.Timeout, 5*time.Minute)),
	}
	if a.Runs != nil {
		clientOpts = append(clientOpts, llm.WithAuditLogger(a.Runs))
	}
	a.Inference = llm.NewClient(provider, common.NewRetryPolicy(cfg.LLM.Retry), a.Logger, clientOpts...)

	// 2. Market data
	source, err := a.newMarketSource()
	if err != nil {
		return err
	}
	a.Market = market.NewService(source, cfg.Market, a.Logger)

	// 3. Stage templates
	a.Templates, err = templates.NewEngine(cfg.Templates.Dir)
	if err != nil {
		return fmt.Errorf("failed to load stage templates: %w", err)
	}

	// 4. Orchestrator
	sampling := interfaces.SamplingConfig{
		Model:         cfg.InferenceModel(),
		Temperature:   cfg.LLM.Temperature,
		MaxIterations: cfg.LLM.MaxIterations,
		MaxTokens:     cfg.LLM.MaxTokens,
		Memory:        cfg.LLM.Memory,
	}
	orchestratorOpts := []pipeline.Option{
		pipeline.WithMemoryWindow(cfg.LLM.MemoryWindow),
		pipeline.WithMinOutputChars(cfg.LLM.MinOutputChars),
		pipeline.WithStageTimeout(common.ParseDurationOr(cfg.LLM.Timeout, 5*time.Minute)),
	}
	if a.Runs != nil {
		orchestratorOpts = append(orchestratorOpts, pipeline.WithRunStorage(a.Runs))
	}
	if a.stageHook != nil {
		orchestratorOpts = append(orchestratorOpts, pipeline.WithStageHook(a.stageHook))
	}
	a.Orchestrator = pipeline.NewOrchestrator(a.Market, a.Templates, a.Inference, sampling, a.Logger, orchestratorOpts...)

	// 5. Reports
	a.Writer = report.NewWriter(cfg.Reports, a.Logger)

	return nil
}

func (a *App) newMarketSource() (market.Source, error) {
	cfg := a.Config
	switch cfg.Market.Provider {
	case "yahoo", "":
		return market.NewYahooSource(a.Logger), nil
	case "eodhd":
		apiKey, err := common.ResolveAPIKey("eodhd_api_key", cfg.EODHD.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve EODHD API key: %w", err)
		}
		opts := []eodhd.ClientOption{
			eodhd.WithLogger(a.Logger),
			eodhd.WithRateLimit(cfg.EODHD.RateLimit),
		}
		if cfg.EODHD.BaseURL != "" {
			opts = append(opts, eodhd.WithBaseURL(cfg.EODHD.BaseURL))
		}
		client := eodhd.NewClient(apiKey, opts...)
		return market.NewEODHDSource(client, cfg.Market.NewsLimit, a.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported market provider %q", cfg.Market.Provider)
	}
}

// Analyze runs the pipeline for ticker and writes the report.
//
// Returns the report (nil when the run failed before any stage), the markdown
// path ("" when nothing was written) and the run error, if any. A report
// write failure is returned only when the run itself succeeded; a path that
// was written is always returned and recorded.
func (a *App) Analyze(ctx context.Context, ticker string) (*models.Report, string, error) {
	result, runErr := a.Orchestrator.RunAnalysis(ctx, ticker)
	if result == nil {
		return nil, "", runErr
	}

	path, err := a.Writer.Write(result)
	if err != nil {
		a.Logger.Error().Err(err).Str("ticker", result.Ticker).Msg("Failed to write report")
		if runErr == nil {
			runErr = err
		}
	}
	if path != "" {
		a.Orchestrator.RecordReportPath(context.WithoutCancel(ctx), result.RunID, path)
	}
	return result, path, runErr
}

// Snapshot fetches the market snapshot for ticker without running any stage.
func (a *App) Snapshot(ctx context.Context, ticker string) (*models.MarketSnapshot, error) {
	parsed, err := common.ParseTicker(ticker)
	if err != nil {
		return nil, err
	}
	return a.Market.Fetch(ctx, parsed)
}

// ErrStorageDisabled is returned by history queries when storage is off.
var ErrStorageDisabled = errors.New("run history storage is disabled")

// ListRuns returns recorded runs, newest first.
func (a *App) ListRuns(ctx context.Context, ticker string, limit int) ([]*models.RunRecord, error) {
	if a.Runs == nil {
		return nil, ErrStorageDisabled
	}
	return a.Runs.ListRuns(ctx, ticker, limit)
}

// GetRun returns one recorded run with its inference audit trail.
func (a *App) GetRun(ctx context.Context, id string) (*models.RunRecord, []*models.InferenceAudit, error) {
	if a.Runs == nil {
		return nil, nil, ErrStorageDisabled
	}
	run, err := a.Runs.GetRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	audit, err := a.Runs.ListInferences(ctx, id)
	if err != nil {
		return run, nil, err
	}
	return run, audit, nil
}

// NewWatcher creates the watchlist scheduler. Each tick analyses every
// configured ticker and writes its report.
func (a *App) NewWatcher() (*scheduler.Service, error) {
	return scheduler.NewService(a.Config.Watch, func(ctx context.Context, ticker string) error {
		_, path, err := a.Analyze(ctx, ticker)
		if path != "" {
			a.Logger.Info().Str("ticker", ticker).Str("path", path).Msg("Watch report written")
		}
		return err
	}, a.Logger)
}

// Close releases the inference provider and the run history store
func (a *App) Close() error {
	var errs []error

	if a.Inference != nil {
		if err := a.Inference.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close inference client")
			errs = append(errs, err)
		}
	}

	if a.Runs != nil {
		if err := a.Runs.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close run storage")
			errs = append(errs, err)
		} else {
			a.Logger.Debug().Msg("Run storage closed")
		}
	}

	return errors.Join(errs...)
}

// Package scheduler runs the watchlist: every configured ticker is analysed on
// a cron schedule, as independent concurrent runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"golang.org/x/sync/errgroup"
)

// AnalyzeFunc runs one complete analysis for ticker, including writing its report.
type AnalyzeFunc func(ctx context.Context, ticker string) error

// TickStatus describes the most recent watch tick.
type TickStatus struct {
	StartedAt time.Time
	Duration  time.Duration
	Tickers   int
	Failed    []string
}

// Service triggers watchlist analyses on a cron schedule.
type Service struct {
	schedule    string
	tickers     []string
	concurrency int
	analyze     AnalyzeFunc
	cron        *cron.Cron
	logger      arbor.ILogger

	mu      sync.Mutex // Protects running and last
	running bool
	last    *TickStatus
}

// NewService validates the watch configuration and creates a scheduler.
func NewService(config common.WatchConfig, analyze AnalyzeFunc, logger arbor.ILogger) (*Service, error) {
	if err := common.ValidateSchedule(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid watch.schedule: %w", err)
	}
	if len(config.Tickers) == 0 {
		return nil, fmt.Errorf("watch.tickers is empty")
	}

	tickers, err := common.ParseTickers(config.Tickers)
	if err != nil {
		return nil, fmt.Errorf("invalid watch.tickers: %w", err)
	}
	names := make([]string, len(tickers))
	for i, t := range tickers {
		names[i] = t.String()
	}

	concurrency := config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Service{
		schedule:    config.Schedule,
		tickers:     names,
		concurrency: concurrency,
		analyze:     analyze,
		cron:        cron.New(),
		logger:      logger,
	}, nil
}

// Tickers returns the normalised watchlist.
func (s *Service) Tickers() []string {
	return append([]string(nil), s.tickers...)
}

// LastTick returns the status of the most recent completed tick, or nil.
func (s *Service) LastTick() *TickStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	status := *s.last
	return &status
}

// RunOnce analyses every ticker, at most concurrency at a time. A failing
// ticker does not stop the others; the returned error joins every failure.
func (s *Service) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("watch tick already running")
	}
	s.running = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info().
		Int("tickers", len(s.tickers)).
		Int("concurrency", s.concurrency).
		Msg("Watch tick started")

	var (
		g        errgroup.Group
		failMu   sync.Mutex
		failures []error
		failed   []string
	)
	g.SetLimit(s.concurrency)

	for _, ticker := range s.tickers {
		g.Go(func() error {
			if err := s.runTicker(ctx, ticker); err != nil {
				failMu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", ticker, err))
				failed = append(failed, ticker)
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	status := &TickStatus{
		StartedAt: start,
		Duration:  time.Since(start),
		Tickers:   len(s.tickers),
		Failed:    failed,
	}
	s.mu.Lock()
	s.running = false
	s.last = status
	s.mu.Unlock()

	event := s.logger.Info()
	if len(failed) > 0 {
		event = s.logger.Warn()
	}
	event.
		Int("tickers", status.Tickers).
		Int("failed", len(failed)).
		Dur("duration", status.Duration).
		Msg("Watch tick completed")

	return errors.Join(failures...)
}

func (s *Service) runTicker(ctx context.Context, ticker string) (err error) {
	defer common.Recover(s.logger, "watch:"+ticker, &err)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.analyze(ctx, ticker); err != nil {
		s.logger.Error().Str("ticker", ticker).Err(err).Msg("Watch analysis failed")
		return err
	}
	return nil
}

// Start registers the watch tick with cron and starts the scheduler. Ticks
// that fire while the previous one is still running are skipped.
func (s *Service) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug().Err(err).Msg("Watch tick finished with failures")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.schedule).
		Strs("tickers", s.tickers).
		Msg("Watch scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running tick to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Watch scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

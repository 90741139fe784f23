package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/observability"
)

const (
	defaultSweepInterval   = time.Minute
	defaultResponseTimeout = 30 * time.Minute
	defaultSweepBatch      = 500
)

// MissedResponseFlagger is the part of the ticket engine the watchdog drives.
type MissedResponseFlagger interface {
	MissedCandidates(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]domain.Ticket, error)
	FlagMissedResponse(ctx context.Context, ticket domain.Ticket) (bool, error)
}

// Watchdog periodically flags claimed tickets that were not answered in time.
// It keeps no cursor between sweeps: every sweep pages through all candidates.
type Watchdog struct {
	engine  MissedResponseFlagger
	cfg     config.WatchdogConfig
	clock   clock.Clock
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewWatchdog builds a watchdog, applying defaults to unset settings.
func NewWatchdog(engine MissedResponseFlagger, cfg config.WatchdogConfig, clk clock.Clock, metrics *observability.Metrics, logger *zap.Logger) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatch
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{engine: engine, cfg: cfg, clock: clk, metrics: metrics, logger: logger}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (w *Watchdog) Start(ctx context.Context) error {
	w.logger.Info("watchdog started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Duration("response_timeout", w.cfg.ResponseTimeout))

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("watchdog sweep failed; retrying next tick", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep flags every eligible ticket and returns how many this call flagged.
// Candidates are read in id-ordered batches until a short batch comes back.
// Failures on single tickets are logged and skipped; only a failed candidate
// read aborts the sweep.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	cutoff := w.clock.Now().Add(-w.cfg.ResponseTimeout)

	var (
		flagged  int
		seen     int
		lastID   int64
		failures []error
	)
	for ctx.Err() == nil {
		batch, err := w.engine.MissedCandidates(ctx, cutoff, lastID, w.cfg.BatchSize)
		if err != nil {
			failures = append(failures, err)
			sweepErr := errors.Join(failures...)
			w.metrics.RecordSweep(flagged, sweepErr)
			return flagged, sweepErr
		}
		seen += len(batch)
		for _, ticket := range batch {
			if ctx.Err() != nil {
				break
			}
			lastID = ticket.ID
			ok, err := w.engine.FlagMissedResponse(ctx, ticket)
			if err != nil {
				failures = append(failures, err)
				w.logger.Warn("flag missed response",
					zap.Int64("ticket_id", ticket.ID),
					zap.Error(err))
				continue
			}
			if ok {
				flagged++
				w.logger.Info("missed response flagged",
					zap.Int64("ticket_id", ticket.ID),
					zap.Int64p("claimant_id", ticket.AssignedAdminID))
			}
		}
		if len(batch) < w.cfg.BatchSize {
			break
		}
	}

	sweepErr := errors.Join(failures...)
	w.metrics.RecordSweep(flagged, sweepErr)
	w.logger.Debug("watchdog sweep finished",
		zap.Int("candidates", seen),
		zap.Int("flagged", flagged))
	return flagged, sweepErr
}

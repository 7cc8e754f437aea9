package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MaxOutageInterval caps the wait between cycles during a total outage.
const MaxOutageInterval = 5 * time.Minute

// Runner is one refresh entry point; *Cycle satisfies it.
type Runner interface {
	Run(ctx context.Context, tags []string) *Result
}

// Poller runs a cycle immediately, then once per interval, and publishes
// every result. Cycles never overlap. While every route is down the wait
// grows exponentially up to MaxOutageInterval.
type Poller struct {
	runner   Runner
	tags     []string
	store    *Store
	interval time.Duration
	onResult func(*Result)
	logger   *slog.Logger
}

// NewPoller creates a poller for tags. onResult may be nil.
func NewPoller(runner Runner, tags []string, store *Store, interval time.Duration, onResult func(*Result), logger *slog.Logger) *Poller {
	return &Poller{
		runner:   runner,
		tags:     tags,
		store:    store,
		interval: interval,
		onResult: onResult,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	outage := p.newBackOff()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-timer.C:
		}

		res := p.runner.Run(ctx, p.tags)
		if ctx.Err() != nil {
			p.logger.Info("poller stopped")
			return
		}
		p.store.Publish(res)
		if p.onResult != nil {
			p.onResult(res)
		}

		wait := p.interval
		if res.TotalOutage {
			wait = outage.NextBackOff()
			p.logger.Warn("total outage, backing off", "next_attempt_in", wait)
		} else {
			outage.Reset()
		}
		timer.Reset(wait)
	}
}

func (p *Poller) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.interval
	b.MaxInterval = MaxOutageInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

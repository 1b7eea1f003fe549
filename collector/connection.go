package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/robertof/go-jbd-exporter/utils"
	"github.com/rs/zerolog/log"
)

// Run polls the device until ctx is canceled. When the transport fails the session is
// closed and, if a reconnect delay is configured, reopened after an exponential backoff.
func (p *Poller) Run(ctx context.Context) error {
	attempt := 0

	for {
		cycles, err := p.session(ctx)

		if ctx.Err() != nil || utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
			log.Debug().Stringer("Device", p.dev).Msg("collector: poller stopped")
			return nil
		}

		transportFailuresCounter.WithLabelValues(p.dev.Name()).Inc()

		if p.opts.ReconnectDelay <= 0 {
			return fmt.Errorf("%v: %w", p.dev, err)
		}

		if cycles > 0 {
			attempt = 0
		}

		backoff := p.opts.ReconnectDelay << attempt

		if backoff <= 0 || backoff > p.opts.MaxReconnectDelay {
			backoff = p.opts.MaxReconnectDelay
		}

		log.Warn().
			Stringer("Device", p.dev).
			Err(err).
			Int("Attempt", attempt).
			Dur("Backoff", backoff).
			Msg("collector: session failed, reconnecting after backoff")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		attempt += 1
	}
}

// session opens the transport and runs poll cycles on it until an error occurs.
func (p *Poller) session(ctx context.Context) (cycles int, err error) {
	t, err := p.dev.Open(ctx, p.env)

	if err != nil {
		return 0, fmt.Errorf("failed to open transport: %w", err)
	}

	log.Info().Stringer("Device", p.dev).Msg("collector: transport open, polling")

	defer func() {
		if err := t.Close(); err != nil {
			log.Debug().Err(err).Stringer("Device", p.dev).Msg("collector: error closing transport")
		}
	}()

	for {
		if err := p.Cycle(ctx, t); err != nil {
			return cycles, err
		}

		cycles += 1

		log.Trace().
			Stringer("Device", p.dev).
			Int("Cycle", cycles).
			Dur("Interval", p.opts.Interval).
			Msg("collector: poll cycle complete")

		select {
		case <-ctx.Done():
			return cycles, ctx.Err()
		case <-time.After(p.opts.Interval):
		}
	}
}

// Package services – ExpirySweeper
//
// Reads already report overdue Pending requests as Expired; the sweeper
// persists that state in the background and tells connected clients. It also
// drops idempotency records past their TTL.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/clock"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	defaultSweepBatch    = 200
)

// ExpirySweeper periodically marks overdue requests Expired.
type ExpirySweeper struct {
	DB       *gorm.DB
	Events   EventPublisher
	Clock    clock.Clock
	Interval time.Duration
	Batch    int
}

// Sweep expires every overdue Pending request and returns how many changed.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	batch := s.Batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now()
	}

	total := 0
	for {
		ids, err := repo.ExpireOverdueRequests(ctx, s.DB, now, batch)
		if err != nil {
			return total, err
		}
		for _, id := range ids {
			r, err := repo.GetRequest(ctx, s.DB, id)
			if err != nil {
				continue
			}
			publisherOrNop(s.Events).BroadcastAll(realtime.Event{Type: realtime.EventRequestUpdated, Data: r})
		}
		total += len(ids)
		requestsExpired.Add(float64(len(ids)))
		if len(ids) < batch {
			return total, nil
		}
	}
}

// PurgeKeys removes expired idempotency records.
func (s *ExpirySweeper) PurgeKeys(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now()
	}
	return repo.PurgeIdempotency(ctx, s.DB, now)
}

// Run sweeps every Interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("expiry sweep failed")
				}
				continue
			}
			if n > 0 {
				log.Info().Int("expired", n).Msg("expired overdue requests")
			}
			if purged, err := s.PurgeKeys(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
			} else if purged > 0 {
				log.Debug().Int64("purged", purged).Msg("purged idempotency records")
			}
		}
	}
}

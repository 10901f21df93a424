// Package services – Matcher
//
// The Matcher runs once a request has been persisted: it resolves compatible
// blood types, locates eligible donors, pushes alerts and emits realtime
// emergencyAlert events concurrently, records who was notified, and finally
// broadcasts the new request to every connected client.
//
// Every step after persistence is best-effort. Failures are logged and show
// up as a smaller NotifiedCount; they never fail request creation.
package services

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/observability"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MatchResult summarizes a match for the requester.
type MatchResult struct {
	NotifiedCount    int            `json:"notified_count"`
	NotifiedDonorIDs []string       `json:"notified_donor_ids"`
	Delivery         DispatchResult `json:"delivery"`
}

// Matcher orchestrates matching for newly created requests.
type Matcher struct {
	DB         *gorm.DB
	Locator    *Locator
	Dispatcher *Dispatcher
	Events     EventPublisher

	// Limit caps candidates per request.
	Limit int
}

// NewMatcher wires a Matcher with default limits.
func NewMatcher(db *gorm.DB, loc *Locator, d *Dispatcher, events EventPublisher) *Matcher {
	return &Matcher{DB: db, Locator: loc, Dispatcher: d, Events: events, Limit: DefaultMatchLimit}
}

// OnRequestCreated matches r against the donor pool. Calling it again for the
// same request replaces the notified-donor list rather than extending it.
func (m *Matcher) OnRequestCreated(ctx context.Context, r *domain.Request) MatchResult {
	tr := observability.Tracer("services/Matcher")
	ctx, span := tr.Start(ctx, "OnRequestCreated",
		trace.WithAttributes(
			attribute.String("request.id", r.ID),
			attribute.String("request.blood_type", string(r.BloodType)),
			attribute.String("request.urgency", string(r.Urgency)),
		),
	)
	defer span.End()

	events := publisherOrNop(m.Events)
	result := MatchResult{NotifiedDonorIDs: []string{}}

	allowed := domain.CompatibleDonors(r.BloodType)

	var candidates []Candidate
	if m.Locator != nil {
		found, err := m.Locator.FindCandidates(ctx, AnchorFor(r), allowed, m.Limit)
		if err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("request_id", r.ID).Msg("candidate lookup failed; continuing with zero candidates")
		} else {
			candidates = found
		}
	}
	matchCandidates.Observe(float64(len(candidates)))

	if len(candidates) > 0 {
		donors := make([]domain.Donor, len(candidates))
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			donors[i] = c.Donor
			ids[i] = c.Donor.ID
		}
		// r is shared with the dispatcher and realtime consumers from here on.
		r.NotifiedDonors = ids

		var wg sync.WaitGroup
		if m.Dispatcher != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result.Delivery = m.Dispatcher.Dispatch(ctx, donors, r)
			}()
		} else {
			result.Delivery = DispatchResult{Skipped: len(donors)}
		}

		events.PublishMany(alertChannels(r, donors), realtime.Event{Type: realtime.EventEmergencyAlert, Data: r})

		if err := repo.SetNotifiedDonors(ctx, m.DB, r.ID, ids); err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("request_id", r.ID).Msg("persist notified donors failed")
		}
		wg.Wait()

		result.NotifiedCount = len(ids)
		result.NotifiedDonorIDs = ids
	}

	events.BroadcastAll(realtime.Event{Type: realtime.EventNewRequest, Data: r})

	span.SetAttributes(
		attribute.Int("match.notified", result.NotifiedCount),
		attribute.Int("match.delivered", result.Delivery.Delivered),
	)
	log.Info().
		Str("request_id", r.ID).
		Int("candidates", result.NotifiedCount).
		Int("delivered", result.Delivery.Delivered).
		Int("skipped", result.Delivery.Skipped).
		Int("failed", result.Delivery.Failed).
		Msg("request matched")
	return result
}

// alertChannels lists each candidate's private channel, the request city,
// and every distinct candidate blood type.
func alertChannels(r *domain.Request, donors []domain.Donor) []string {
	chs := make([]string, 0, len(donors)+4)
	types := make(map[domain.BloodType]struct{})
	for i := range donors {
		chs = append(chs, realtime.UserChannel(donors[i].ID))
		types[donors[i].BloodType] = struct{}{}
	}
	if c := realtime.CityChannel(r.City); c != "" {
		chs = append(chs, c)
	}
	bts := make([]string, 0, len(types))
	for bt := range types {
		bts = append(bts, realtime.BloodTypeChannel(string(bt)))
	}
	sort.Strings(bts)
	return append(chs, bts...)
}

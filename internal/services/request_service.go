// Package services – RequestService
//
// RequestService validates and persists blood requests, hands new requests to
// the Matcher, and manages the request lifecycle (listing, lookup, and status
// transitions). Reads apply passive expiry: a Pending request past its
// expiry is reported as Expired even before the sweeper persists it.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/clock"
	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/geo"
	"github.com/tbourn/lifeline-backend/internal/observability"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateRequestInput carries caller-supplied request fields.
type CreateRequestInput struct {
	BloodType    string
	UnitsNeeded  int
	Urgency      string
	PatientName  string
	HospitalName string
	City         string
	Address      string
	Latitude     *float64
	Longitude    *float64
	ContactPhone string
	ContactEmail string
	Description  string
	ExpiresAt    *time.Time
}

// RequestService manages blood requests.
type RequestService struct {
	DB      *gorm.DB
	Matcher *Matcher
	Events  EventPublisher
	Clock   clock.Clock

	// TTL is the default lifetime of a new request.
	TTL time.Duration
	// MaxUnits caps UnitsNeeded; 0 disables the cap.
	MaxUnits int
}

// NewRequestService returns a RequestService with default TTL.
func NewRequestService(db *gorm.DB, m *Matcher, events EventPublisher) *RequestService {
	return &RequestService{
		DB:       db,
		Matcher:  m,
		Events:   events,
		Clock:    clock.Real{},
		TTL:      domain.DefaultRequestTTL,
		MaxUnits: 50,
	}
}

func (s *RequestService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

// Create validates in, persists the request, and runs matching. The request
// is durable before matching starts; matching problems only reduce the
// returned MatchResult. Matching survives cancellation of ctx.
func (s *RequestService) Create(ctx context.Context, who domain.Identity, in CreateRequestInput) (*domain.Request, MatchResult, error) {
	tr := observability.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", who.ID),
			attribute.String("user.role", string(who.Role)),
		),
	)
	defer span.End()

	now := s.now()
	r, err := s.build(who, in, now)
	if err != nil {
		return nil, MatchResult{}, err
	}
	if err := repo.CreateRequest(ctx, s.DB, r); err != nil {
		span.RecordError(err)
		return nil, MatchResult{}, err
	}
	span.SetAttributes(attribute.String("request.id", r.ID))

	var res MatchResult
	if s.Matcher != nil {
		res = s.Matcher.OnRequestCreated(context.WithoutCancel(ctx), r)
	} else {
		res = MatchResult{NotifiedDonorIDs: []string{}}
		publisherOrNop(s.Events).BroadcastAll(realtime.Event{Type: realtime.EventNewRequest, Data: r})
	}
	return r, res, nil
}

func (s *RequestService) build(who domain.Identity, in CreateRequestInput, now time.Time) (*domain.Request, error) {
	bt, err := domain.ParseBloodType(in.BloodType)
	if err != nil {
		return nil, invalid("blood_type: %v", err)
	}

	units := in.UnitsNeeded
	if units == 0 {
		units = 1
	}
	if units < 1 {
		return nil, invalid("units_needed must be at least 1")
	}
	if s.MaxUnits > 0 && units > s.MaxUnits {
		return nil, invalid("units_needed must be at most %d", s.MaxUnits)
	}

	urgency := domain.UrgencyUrgent
	if u := strings.TrimSpace(in.Urgency); u != "" {
		urgency = domain.Urgency(u)
		if !urgency.Valid() {
			return nil, invalid("urgency must be Critical, Urgent or Normal")
		}
	}

	patient := strings.TrimSpace(in.PatientName)
	hospital := strings.TrimSpace(in.HospitalName)
	city := strings.TrimSpace(in.City)
	phone := strings.TrimSpace(in.ContactPhone)
	switch {
	case patient == "":
		return nil, invalid("patient_name is required")
	case hospital == "":
		return nil, invalid("hospital_name is required")
	case city == "":
		return nil, invalid("city is required")
	case phone == "":
		return nil, invalid("contact_phone is required")
	}

	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, invalid("latitude and longitude must be given together")
	}
	if in.Latitude != nil && !geo.ValidCoordinates(*in.Latitude, *in.Longitude) {
		return nil, invalid("coordinates out of range")
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = domain.DefaultRequestTTL
	}
	expires := now.Add(ttl)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, invalid("expires_at must be in the future")
		}
		expires = in.ExpiresAt.UTC()
	}

	r := &domain.Request{
		ID:           uuid.NewString(),
		BloodType:    bt,
		UnitsNeeded:  units,
		Urgency:      urgency,
		PatientName:  patient,
		HospitalName: hospital,
		City:         city,
		Address:      strings.TrimSpace(in.Address),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		ContactPhone: phone,
		ContactEmail: strings.TrimSpace(in.ContactEmail),
		Description:  strings.TrimSpace(in.Description),
		Status:       domain.RequestPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    expires,
		Responses:    []domain.Response{},

		NotifiedDonors: datatypes.JSONSlice[string]{},
	}
	if !who.Anonymous() {
		id := who.ID
		r.RequestedBy = &id
	}
	return r, nil
}

// Get returns a request with its responses and effective status.
func (s *RequestService) Get(ctx context.Context, id string) (*domain.Request, error) {
	tr := observability.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("request.id", id)))
	defer span.End()

	r, err := repo.GetRequest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	r.Status = r.EffectiveStatus(s.now())
	return r, nil
}

// ListPage returns a page of requests matching f, most urgent first.
func (s *RequestService) ListPage(ctx context.Context, f repo.RequestFilter, page, pageSize int) ([]domain.Request, int64, error) {
	tr := observability.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("filter.status", string(f.Status)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	now := s.now()
	f.Now = now

	total, err := repo.CountRequests(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Request{}, 0, nil
	}
	items, err := repo.ListRequestsPage(ctx, s.DB, f, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(now)
	}
	return items, total, nil
}

// Stats returns the count and latest update time of requests matching f,
// used for weak ETags.
func (s *RequestService) Stats(ctx context.Context, f repo.RequestFilter) (int64, *time.Time, error) {
	f.Now = s.now()
	return repo.RequestsStats(ctx, s.DB, f)
}

// Mine lists the caller's own requests, any status.
func (s *RequestService) Mine(ctx context.Context, who domain.Identity, page, pageSize int) ([]domain.Request, int64, error) {
	if who.Anonymous() {
		return nil, 0, ErrForbidden
	}
	return s.ListPage(ctx, repo.RequestFilter{RequestedBy: who.ID}, page, pageSize)
}

// UpdateStatus moves a Pending request to Fulfilled, Cancelled, or Expired.
// Only the requester and staff may do so.
func (s *RequestService) UpdateStatus(ctx context.Context, who domain.Identity, id string, to domain.RequestStatus) (*domain.Request, error) {
	tr := observability.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("request.id", id),
			attribute.String("request.to", string(to)),
			attribute.String("user.id", who.ID),
		),
	)
	defer span.End()

	if !to.Valid() {
		return nil, invalid("status must be Pending, Fulfilled, Cancelled or Expired")
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.CanManageRequest(r.RequestedBy) {
		return nil, ErrForbidden
	}
	if r.Status != domain.RequestPending {
		return nil, ErrRequestNotPending
	}
	if !r.Status.CanTransitionTo(to) {
		return nil, ErrInvalidTransition
	}

	if err := repo.TransitionRequest(ctx, s.DB, id, to, s.now()); err != nil {
		if errors.Is(err, repo.ErrConditionFailed) {
			return nil, ErrRequestNotPending
		}
		return nil, err
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	publisherOrNop(s.Events).BroadcastAll(realtime.Event{Type: realtime.EventRequestUpdated, Data: updated})
	return updated, nil
}

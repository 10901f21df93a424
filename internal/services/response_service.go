// Package services – ResponseService
//
// ResponseService is the response ledger: donors register interest in open
// requests (one response per donor per request) and responses then advance
// forward only, Interested -> Confirmed -> Completed. Every change is
// broadcast as requestUpdated; the requester is pushed when a donor responds.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/clock"
	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/observability"
	"github.com/tbourn/lifeline-backend/internal/push"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ResponseService manages donor responses to requests.
type ResponseService struct {
	DB         *gorm.DB
	Events     EventPublisher
	Dispatcher *Dispatcher
	Clock      clock.Clock
}

func (s *ResponseService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

// Respond records the calling donor's interest in a request.
func (s *ResponseService) Respond(ctx context.Context, who domain.Identity, requestID string) (*domain.Request, error) {
	if who.Anonymous() || who.Role != domain.RoleDonor {
		return nil, ErrForbidden
	}
	return s.AddResponse(ctx, requestID, who.ID)
}

// AddResponse appends an Interested response from donorID. It fails with
// ErrDuplicateResponse when the donor already responded and with
// ErrRequestNotPending when the request is closed or expired. Concurrent
// calls from distinct donors all succeed.
func (s *ResponseService) AddResponse(ctx context.Context, requestID, donorID string) (*domain.Request, error) {
	tr := observability.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "AddResponse",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("donor.id", donorID),
		),
	)
	defer span.End()

	donor, err := repo.GetDonor(ctx, s.DB, donorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}

	now := s.now()
	if _, err := repo.AppendResponse(ctx, s.DB, requestID, donorID, now); err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, repo.ErrConditionFailed):
			return nil, ErrRequestNotPending
		case errors.Is(err, repo.ErrDuplicate):
			return nil, ErrDuplicateResponse
		default:
			span.RecordError(err)
			return nil, err
		}
	}

	r, err := s.reload(ctx, requestID, now)
	if err != nil {
		return nil, err
	}
	publisherOrNop(s.Events).BroadcastAll(realtime.Event{Type: realtime.EventRequestUpdated, Data: r})
	s.notifyRequester(ctx, r, donor)
	return r, nil
}

// Advance moves donorID's response on requestID forward to the target
// state. The donor, the requester, and staff may advance it.
func (s *ResponseService) Advance(ctx context.Context, who domain.Identity, requestID, donorID string, to domain.ResponseStatus) (*domain.Request, error) {
	tr := observability.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "Advance",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("donor.id", donorID),
			attribute.String("response.to", string(to)),
		),
	)
	defer span.End()

	if to != domain.ResponseConfirmed && to != domain.ResponseCompleted {
		return nil, invalid("status must be Confirmed or Completed")
	}

	now := s.now()
	r, err := s.reload(ctx, requestID, now)
	if err != nil {
		return nil, err
	}
	if who.Anonymous() || (who.ID != donorID && !who.CanManageRequest(r.RequestedBy)) {
		return nil, ErrForbidden
	}
	if _, ok := r.ResponseFrom(donorID); !ok {
		return nil, ErrResponseNotFound
	}

	if err := repo.AdvanceResponse(ctx, s.DB, requestID, donorID, to, now); err != nil {
		if errors.Is(err, repo.ErrConditionFailed) {
			return nil, ErrInvalidTransition
		}
		span.RecordError(err)
		return nil, err
	}

	r, err = s.reload(ctx, requestID, now)
	if err != nil {
		return nil, err
	}
	publisherOrNop(s.Events).BroadcastAll(realtime.Event{Type: realtime.EventRequestUpdated, Data: r})
	return r, nil
}

func (s *ResponseService) reload(ctx context.Context, requestID string, now time.Time) (*domain.Request, error) {
	r, err := repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	r.Status = r.EffectiveStatus(now)
	return r, nil
}

// notifyRequester pushes the requester when they are a donor with a token.
func (s *ResponseService) notifyRequester(ctx context.Context, r *domain.Request, donor *domain.Donor) {
	if s.Dispatcher == nil || r.RequestedBy == nil {
		return
	}
	requester, err := repo.GetDonor(ctx, s.DB, *r.RequestedBy)
	if err != nil || !requester.HasPushToken() {
		return
	}
	_ = s.Dispatcher.Notify(ctx, *requester.PushToken, push.Message{
		Title: "💖 Donor Response!",
		Body:  fmt.Sprintf("%s (%s) has responded to your blood request for %s.", donor.Name, donor.BloodType, titleCase(r.City)),
		Data: map[string]string{
			"requestId": r.ID,
			"donorId":   donor.ID,
			"type":      PushTypeResponse,
		},
	})
}

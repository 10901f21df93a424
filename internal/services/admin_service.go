// Package services – AdminService
//
// AdminService covers donor verification. Administrators list donors by
// status and move Pending accounts to Verified or Rejected; the donor is told
// on their private realtime channel and, when they have a device, by push.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/observability"
	"github.com/tbourn/lifeline-backend/internal/push"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	verifiedMessage = "Your donor account has been verified. You will now receive emergency alerts."
	rejectedMessage = "Your donor registration could not be verified. Please contact support."
)

// AdminService implements donor verification.
type AdminService struct {
	DB         *gorm.DB
	Events     EventPublisher
	Dispatcher *Dispatcher
}

// ListByStatus returns a page of donors in status, oldest first.
func (s *AdminService) ListByStatus(ctx context.Context, who domain.Identity, status domain.DonorStatus, page, pageSize int) ([]domain.Donor, int64, error) {
	if who.Role != domain.RoleAdmin {
		return nil, 0, ErrForbidden
	}
	switch status {
	case "":
		status = domain.DonorPending
	case domain.DonorPending, domain.DonorVerified, domain.DonorRejected:
	default:
		return nil, 0, invalid("status must be Pending, Verified or Rejected")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	items, total, err := repo.ListDonorsByStatus(ctx, s.DB, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []domain.Donor{}
	}
	return items, total, nil
}

// Verify marks a Pending donor Verified.
func (s *AdminService) Verify(ctx context.Context, who domain.Identity, donorID string) (*domain.Donor, error) {
	return s.decide(ctx, who, donorID, domain.DonorVerified, verifiedMessage)
}

// Reject marks a Pending donor Rejected.
func (s *AdminService) Reject(ctx context.Context, who domain.Identity, donorID string) (*domain.Donor, error) {
	return s.decide(ctx, who, donorID, domain.DonorRejected, rejectedMessage)
}

func (s *AdminService) decide(ctx context.Context, who domain.Identity, donorID string, to domain.DonorStatus, message string) (*domain.Donor, error) {
	tr := observability.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "Decide",
		trace.WithAttributes(
			attribute.String("donor.id", donorID),
			attribute.String("donor.to", string(to)),
			attribute.String("user.id", who.ID),
		),
	)
	defer span.End()

	if who.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}

	if err := repo.SetDonorStatus(ctx, s.DB, donorID, domain.DonorPending, to); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			span.RecordError(err)
			return nil, err
		}
		// Either missing or no longer Pending.
		if _, gerr := repo.GetDonor(ctx, s.DB, donorID); errors.Is(gerr, repo.ErrNotFound) {
			return nil, ErrDonorNotFound
		} else if gerr != nil {
			return nil, gerr
		}
		return nil, ErrInvalidTransition
	}

	d, err := repo.GetDonor(ctx, s.DB, donorID)
	if err != nil {
		return nil, err
	}

	publisherOrNop(s.Events).Publish(realtime.UserChannel(d.ID), realtime.Event{
		Type: realtime.EventStatusUpdate,
		Data: StatusUpdate{Status: string(to), Message: message},
	})
	if s.Dispatcher != nil && d.HasPushToken() {
		title := "✅ Account Verified"
		if to == domain.DonorRejected {
			title = "Account Update"
		}
		_ = s.Dispatcher.Notify(ctx, *d.PushToken, push.Message{
			Title: title,
			Body:  message,
			Data: map[string]string{
				"donorId": d.ID,
				"status":  string(to),
				"type":    PushTypeVerification,
			},
		})
	}

	log.Info().
		Str("donor_id", d.ID).
		Str("status", string(to)).
		Str("admin_id", who.ID).
		Msg("donor verification decided")
	return d, nil
}

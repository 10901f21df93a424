// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for blood requests
// and their embedded donor responses.
//
// Error semantics:
//   - Missing rows yield ErrNotFound.
//   - Conditional writes whose precondition no longer holds yield
//     ErrConditionFailed; callers re-read to decide which business error
//     applies.
//   - A second response from the same donor yields ErrDuplicate.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/lifeline-backend/internal/domain"
)

// ErrConditionFailed is returned when a conditional update matched no row.
var ErrConditionFailed = errors.New("condition failed")

// RequestFilter narrows ListRequests. Zero values mean "any".
//
// When Now is set, status filtering follows passive expiry: Pending matches
// only requests still open at Now, and Expired also matches Pending rows
// whose expiry has passed.
type RequestFilter struct {
	Status      domain.RequestStatus
	BloodType   domain.BloodType
	City        string
	Urgency     domain.Urgency
	RequestedBy string
	Now         time.Time
}

func (f RequestFilter) apply(db *gorm.DB) *gorm.DB {
	switch {
	case f.Status == "":
	case f.Now.IsZero():
		db = db.Where("status = ?", f.Status)
	case f.Status == domain.RequestPending:
		db = db.Where("status = ? AND expires_at > ?", domain.RequestPending, f.Now)
	case f.Status == domain.RequestExpired:
		db = db.Where("(status = ? OR (status = ? AND expires_at <= ?))",
			domain.RequestExpired, domain.RequestPending, f.Now)
	default:
		db = db.Where("status = ?", f.Status)
	}
	if f.BloodType != "" {
		db = db.Where("blood_type = ?", f.BloodType)
	}
	if c := strings.TrimSpace(f.City); c != "" {
		db = db.Where(`LOWER(city) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(c))+"%")
	}
	if f.Urgency != "" {
		db = db.Where("urgency = ?", f.Urgency)
	}
	if f.RequestedBy != "" {
		db = db.Where("requested_by = ?", f.RequestedBy)
	}
	return db
}

// urgencyOrder sorts Critical before Urgent before Normal.
const urgencyOrder = "CASE urgency WHEN 'Critical' THEN 0 WHEN 'Urgent' THEN 1 ELSE 2 END"

func orderedResponses(db *gorm.DB) *gorm.DB {
	return db.Order("responded_at asc")
}

// CreateRequest inserts r.
func CreateRequest(ctx context.Context, db *gorm.DB, r *domain.Request) error {
	return db.WithContext(ctx).Omit("Responses").Create(r).Error
}

// GetRequest loads a request with its responses in response order.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.Request, error) {
	var r domain.Request
	err := db.WithContext(ctx).
		Preload("Responses", orderedResponses).
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRequests returns the number of requests matching f.
func CountRequests(ctx context.Context, db *gorm.DB, f RequestFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Request{})).Count(&total).Error
	return total, err
}

// ListRequestsPage returns a page of requests matching f, most urgent first
// and newest first within a tier.
func ListRequestsPage(ctx context.Context, db *gorm.DB, f RequestFilter, offset, limit int) ([]domain.Request, error) {
	var out []domain.Request
	err := f.apply(db.WithContext(ctx).Model(&domain.Request{})).
		Preload("Responses", orderedResponses).
		Order(urgencyOrder).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SetNotifiedDonors replaces the notified-donor list. Replacing rather than
// appending keeps re-matching idempotent.
func SetNotifiedDonors(ctx context.Context, db *gorm.DB, requestID string, donorIDs []string) error {
	if donorIDs == nil {
		donorIDs = []string{}
	}
	res := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ?", requestID).
		Update("notified_donors", datatypes.NewJSONSlice(donorIDs))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionRequest moves a still-open Pending request to status to.
// Returns ErrConditionFailed when the request is no longer Pending or has
// passed its expiry.
func TransitionRequest(ctx context.Context, db *gorm.DB, id string, to domain.RequestStatus, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, domain.RequestPending, now).
		Updates(map[string]any{"status": to, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

// ExpireOverdueRequests marks every Pending request whose expiry has passed
// as Expired and returns the affected ids.
func ExpireOverdueRequests(ctx context.Context, db *gorm.DB, now time.Time, batch int) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Request{}).
			Where("status = ? AND expires_at <= ?", domain.RequestPending, now).
			Order("expires_at asc").
			Limit(batch).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&domain.Request{}).
			Where("id IN ? AND status = ?", ids, domain.RequestPending).
			Updates(map[string]any{"status": domain.RequestExpired, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AppendResponse records donorID's Interested response on a Pending,
// unexpired request. The request row is locked (where the driver supports
// it) and the (request_id, donor_id) unique index rejects a second entry, so
// concurrent calls cannot produce duplicates or lose writes.
//
// Returns ErrNotFound for an unknown request, ErrConditionFailed when the
// request is not open, and ErrDuplicate when the donor already responded.
func AppendResponse(ctx context.Context, db *gorm.DB, requestID, donorID string, now time.Time) (*domain.Response, error) {
	resp := &domain.Response{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		DonorID:     donorID,
		Status:      domain.ResponseInterested,
		RespondedAt: now,
		UpdatedAt:   now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r domain.Request
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status", "expires_at").
			Where("id = ?", requestID).
			First(&r).Error; err != nil {
			return err
		}
		if r.EffectiveStatus(now) != domain.RequestPending {
			return ErrConditionFailed
		}
		if err := tx.Create(resp).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return tx.Model(&domain.Request{}).Where("id = ?", requestID).Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetResponse returns donorID's response to requestID or ErrNotFound.
func GetResponse(ctx context.Context, db *gorm.DB, requestID, donorID string) (*domain.Response, error) {
	var out domain.Response
	err := db.WithContext(ctx).
		Where("request_id = ? AND donor_id = ?", requestID, donorID).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AdvanceResponse moves a response forward to status to, only from a state
// that ranks below it. Returns ErrConditionFailed when the response is
// missing or already at or past to.
func AdvanceResponse(ctx context.Context, db *gorm.DB, requestID, donorID string, to domain.ResponseStatus, now time.Time) error {
	from := to.Before()
	if len(from) == 0 {
		return ErrConditionFailed
	}
	res := db.WithContext(ctx).
		Model(&domain.Response{}).
		Where("request_id = ? AND donor_id = ? AND status IN ?", requestID, donorID, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

// Package services – DonorService
//
// DonorService owns donor accounts: registration (bcrypt-hashed credentials,
// Pending until verified), profile updates, location and device token
// registration, and the public donor search built on the Locator.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
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

const minPasswordLen = 6

// RegisterDonorInput carries registration fields.
type RegisterDonorInput struct {
	Name                  string
	Email                 string
	Password              string
	Phone                 string
	BloodType             string
	City                  string
	Address               string
	Latitude              *float64
	Longitude             *float64
	EmergencyContactName  string
	EmergencyContactPhone string
}

// UpdateDonorInput is a partial profile update; nil fields are unchanged.
type UpdateDonorInput struct {
	Name                  *string
	Phone                 *string
	City                  *string
	Address               *string
	IsAvailable           *bool
	NotificationsEnabled  *bool
	EmergencyContactName  *string
	EmergencyContactPhone *string
}

// SearchInput narrows the public donor search. BloodType is the recipient
// type; compatible donors are returned.
type SearchInput struct {
	BloodType string
	City      string
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
	Limit     int
}

// DonorService manages donor accounts.
type DonorService struct {
	DB      *gorm.DB
	Locator *Locator
	Events  EventPublisher
	Clock   clock.Clock

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// NewDonorService returns a DonorService using the default bcrypt cost.
func NewDonorService(db *gorm.DB, loc *Locator, events EventPublisher) *DonorService {
	return &DonorService{DB: db, Locator: loc, Events: events, Clock: clock.Real{}}
}

func (s *DonorService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

// Register creates a Pending donor. Emails are unique, case-insensitively.
func (s *DonorService) Register(ctx context.Context, in RegisterDonorInput) (*domain.Donor, error) {
	tr := observability.Tracer("services/DonorService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalid("email is invalid")
	}
	if len(in.Password) < minPasswordLen {
		return nil, invalid("password must be at least %d characters", minPasswordLen)
	}
	bt, err := domain.ParseBloodType(in.BloodType)
	if err != nil {
		return nil, invalid("blood_type: %v", err)
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		return nil, invalid("city is required")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, invalid("latitude and longitude must be given together")
	}
	if in.Latitude != nil && !geo.ValidCoordinates(*in.Latitude, *in.Longitude) {
		return nil, invalid("coordinates out of range")
	}

	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := &domain.Donor{
		ID:                    uuid.NewString(),
		Name:                  name,
		Email:                 email,
		PasswordHash:          string(hash),
		Phone:                 strings.TrimSpace(in.Phone),
		BloodType:             bt,
		City:                  city,
		Address:               strings.TrimSpace(in.Address),
		IsAvailable:           true,
		NotificationsEnabled:  true,
		Status:                domain.DonorPending,
		EmergencyContactName:  strings.TrimSpace(in.EmergencyContactName),
		EmergencyContactPhone: strings.TrimSpace(in.EmergencyContactPhone),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if in.Latitude != nil {
		d.Latitude, d.Longitude, d.HasLocation = *in.Latitude, *in.Longitude, true
	}

	if err := repo.CreateDonor(ctx, s.DB, d); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("donor.id", d.ID))
	return d, nil
}

// Get returns a donor by id.
func (s *DonorService) Get(ctx context.Context, id string) (*domain.Donor, error) {
	d, err := repo.GetDonor(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}
	return d, nil
}

// Update applies a partial profile update. A change of availability is
// broadcast to every connected client.
func (s *DonorService) Update(ctx context.Context, id string, in UpdateDonorInput) (*domain.Donor, error) {
	tr := observability.Tracer("services/DonorService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(attribute.String("donor.id", id)))
	defer span.End()

	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	text := func(col string, v *string, required bool) error {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		if required && t == "" {
			return invalid("%s must not be empty", col)
		}
		fields[col] = t
		return nil
	}
	for _, f := range []struct {
		col      string
		v        *string
		required bool
	}{
		{"name", in.Name, true},
		{"phone", in.Phone, false},
		{"city", in.City, true},
		{"address", in.Address, false},
		{"emergency_contact_name", in.EmergencyContactName, false},
		{"emergency_contact_phone", in.EmergencyContactPhone, false},
	} {
		if err := text(f.col, f.v, f.required); err != nil {
			return nil, err
		}
	}
	if in.IsAvailable != nil {
		fields["is_available"] = *in.IsAvailable
	}
	if in.NotificationsEnabled != nil {
		fields["notifications_enabled"] = *in.NotificationsEnabled
	}
	if len(fields) == 0 {
		return before, nil
	}
	fields["updated_at"] = s.now()

	if err := repo.UpdateDonorFields(ctx, s.DB, id, fields); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}
	after, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if after.IsAvailable != before.IsAvailable {
		publisherOrNop(s.Events).BroadcastAll(realtime.Event{
			Type: realtime.EventDonorAvailability,
			Data: AvailabilityChange{DonorID: id, IsAvailable: after.IsAvailable},
		})
	}
	return after, nil
}

// UpdateLocation records the donor's current position.
func (s *DonorService) UpdateLocation(ctx context.Context, id string, lat, lng float64) (*domain.Donor, error) {
	if !geo.ValidCoordinates(lat, lng) {
		return nil, invalid("coordinates out of range")
	}
	err := repo.UpdateDonorFields(ctx, s.DB, id, map[string]any{
		"latitude":     lat,
		"longitude":    lng,
		"has_location": true,
		"updated_at":   s.now(),
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetPushToken registers a device token; an empty token clears it.
func (s *DonorService) SetPushToken(ctx context.Context, id, token string) error {
	var v any
	if t := strings.TrimSpace(token); t != "" {
		v = t
	}
	err := repo.UpdateDonorFields(ctx, s.DB, id, map[string]any{"push_token": v, "updated_at": s.now()})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrDonorNotFound
	}
	return err
}

// Search returns eligible donors compatible with the recipient blood type
// (all types when empty), near a point or in a city.
func (s *DonorService) Search(ctx context.Context, in SearchInput) ([]Candidate, error) {
	tr := observability.Tracer("services/DonorService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("search.blood_type", in.BloodType),
			attribute.String("search.city", in.City),
		),
	)
	defer span.End()

	allowed := domain.AllBloodTypes
	if strings.TrimSpace(in.BloodType) != "" {
		bt, err := domain.ParseBloodType(in.BloodType)
		if err != nil {
			return nil, invalid("blood_type: %v", err)
		}
		allowed = domain.CompatibleDonors(bt)
	}

	anchor := Anchor{City: in.City}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, invalid("lat and lng must be given together")
	}
	if in.Latitude != nil {
		if !geo.ValidCoordinates(*in.Latitude, *in.Longitude) {
			return nil, invalid("coordinates out of range")
		}
		p := geo.NewPoint(*in.Longitude, *in.Latitude)
		anchor.Point = &p
	} else if strings.TrimSpace(in.City) == "" {
		return nil, invalid("city or lat/lng is required")
	}

	if s.Locator == nil {
		s.Locator = NewLocator(s.DB)
	}
	loc := *s.Locator
	if in.RadiusKm > 0 {
		loc.RadiusKm = in.RadiusKm
	}
	return loc.FindCandidates(ctx, anchor, allowed, in.Limit)
}

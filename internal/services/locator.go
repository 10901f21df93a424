// Package services – Locator
//
// The Locator turns a request location into an ordered list of eligible,
// compatible donors. Requests with coordinates are matched geographically
// (nearest first within a radius); requests without coordinates fall back to
// a case-insensitive city match. Eligibility is applied inside the store
// queries so ineligible donors never leave the database.
package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/geo"
	"github.com/tbourn/lifeline-backend/internal/observability"
	"github.com/tbourn/lifeline-backend/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMatchRadiusKm = 50.0
	DefaultMatchLimit    = 50
)

// CandidateStore is the donor query surface the Locator needs.
type CandidateStore interface {
	// FindDonorsNear returns eligible donors of the given types within
	// radiusKm of center, nearest first.
	FindDonorsNear(ctx context.Context, db *gorm.DB, center geo.Point, radiusKm float64, types []domain.BloodType, limit int) ([]repo.NearbyDonor, error)

	// FindDonorsInCity returns eligible donors of the given types whose city
	// contains city, case-insensitively.
	FindDonorsInCity(ctx context.Context, db *gorm.DB, city string, types []domain.BloodType, limit int) ([]domain.Donor, error)
}

// RepoCandidateStore adapts the repo free functions to CandidateStore.
type RepoCandidateStore struct{}

func (RepoCandidateStore) FindDonorsNear(ctx context.Context, db *gorm.DB, center geo.Point, radiusKm float64, types []domain.BloodType, limit int) ([]repo.NearbyDonor, error) {
	return repo.FindDonorsNear(ctx, db, center, radiusKm, types, limit)
}

func (RepoCandidateStore) FindDonorsInCity(ctx context.Context, db *gorm.DB, city string, types []domain.BloodType, limit int) ([]domain.Donor, error) {
	return repo.FindDonorsInCity(ctx, db, city, types, limit)
}

// Anchor is where a search is centered: a point when known, else a city.
type Anchor struct {
	City  string
	Point *geo.Point
}

// AnchorFor derives the search anchor of a request.
func AnchorFor(r *domain.Request) Anchor {
	a := Anchor{City: r.City}
	if lng, lat, ok := r.Point(); ok {
		p := geo.NewPoint(lng, lat)
		a.Point = &p
	}
	return a
}

// Candidate is a located donor. DistanceKm is set in geographic mode only.
type Candidate struct {
	Donor      domain.Donor `json:"donor"`
	DistanceKm *float64     `json:"distance_km,omitempty"`
}

// Locator finds notification candidates for a request.
type Locator struct {
	DB    *gorm.DB
	Store CandidateStore

	// RadiusKm bounds geographic mode.
	RadiusKm float64
	// Limit caps the number of candidates when callers pass limit <= 0.
	Limit int
}

// NewLocator returns a Locator backed by the repo with default radius/limit.
func NewLocator(db *gorm.DB) *Locator {
	return &Locator{
		DB:       db,
		Store:    RepoCandidateStore{},
		RadiusKm: DefaultMatchRadiusKm,
		Limit:    DefaultMatchLimit,
	}
}

// FindCandidates returns at most limit eligible donors whose blood type is in
// allowed. Geographic mode orders by distance; city mode keeps store order.
// Store failures are returned to the caller, which decides how to degrade.
func (l *Locator) FindCandidates(ctx context.Context, anchor Anchor, allowed []domain.BloodType, limit int) ([]Candidate, error) {
	tr := observability.Tracer("services/Locator")
	ctx, span := tr.Start(ctx, "FindCandidates",
		trace.WithAttributes(
			attribute.String("anchor.city", anchor.City),
			attribute.Bool("anchor.geo", anchor.Point != nil),
			attribute.Int("allowed.types", len(allowed)),
		),
	)
	defer span.End()

	if limit <= 0 {
		limit = l.Limit
	}
	if limit <= 0 {
		limit = DefaultMatchLimit
	}
	if len(allowed) == 0 {
		return []Candidate{}, nil
	}

	var out []Candidate
	if anchor.Point != nil {
		radius := l.RadiusKm
		if radius <= 0 {
			radius = DefaultMatchRadiusKm
		}
		rows, err := l.Store.FindDonorsNear(ctx, l.DB, *anchor.Point, radius, allowed, limit)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = make([]Candidate, 0, len(rows))
		for _, r := range rows {
			d := r.DistanceKm
			out = append(out, Candidate{Donor: r.Donor, DistanceKm: &d})
		}
	} else {
		city := strings.TrimSpace(anchor.City)
		if city == "" {
			return []Candidate{}, nil
		}
		rows, err := l.Store.FindDonorsInCity(ctx, l.DB, city, allowed, limit)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = make([]Candidate, 0, len(rows))
		for _, d := range rows {
			out = append(out, Candidate{Donor: d})
		}
	}

	// Re-check eligibility for stores that do not filter.
	kept := out[:0]
	for _, c := range out {
		if c.Donor.IsNotificationCandidate() {
			kept = append(kept, c)
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	span.SetAttributes(attribute.Int("candidates", len(kept)))
	return kept, nil
}

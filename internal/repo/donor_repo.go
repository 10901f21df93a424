// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Donor
// model, including the two candidate queries used by donor matching:
//
//   - FindDonorsNear: bounding-box prefilter in SQL, exact haversine distance
//     in Go, nearest first.
//   - FindDonorsInCity: case-insensitive substring match on the city column.
//
// Both queries apply the EligibleDonors scope so ineligible rows never leave
// the database.
package repo

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/geo"
)

// NearbyDonor pairs a donor with its distance from the search anchor.
type NearbyDonor struct {
	Donor      domain.Donor
	DistanceKm float64
}

// EligibleDonors restricts a query to donors that may receive alerts:
// verified, available, and opted in to notifications.
func EligibleDonors(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND is_available = ? AND notifications_enabled = ?",
		domain.DonorVerified, true, true)
}

// bloodTypeIn restricts a query to the given blood types. An empty set
// matches nothing.
func bloodTypeIn(types []domain.BloodType) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(types) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where("blood_type IN ?", types)
	}
}

// CreateDonor inserts d. A duplicate email yields ErrDuplicate.
func CreateDonor(ctx context.Context, db *gorm.DB, d *domain.Donor) error {
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetDonor fetches a donor by id or returns ErrNotFound.
func GetDonor(ctx context.Context, db *gorm.DB, id string) (*domain.Donor, error) {
	var d domain.Donor
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDonorsByIDs returns the donors with the given ids in arbitrary order.
func GetDonorsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Donor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Donor
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// UpdateDonorFields applies a partial update. Keys are column names.
// Returns ErrNotFound when no row matched.
func UpdateDonorFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Donor{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetDonorStatus moves a donor from one verification status to another.
// Returns ErrNotFound when the donor does not exist or is not in from.
func SetDonorStatus(ctx context.Context, db *gorm.DB, id string, from, to domain.DonorStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Donor{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListDonorsByStatus returns a page of donors in the given status, oldest
// registration first, together with the total count.
func ListDonorsByStatus(ctx context.Context, db *gorm.DB, status domain.DonorStatus, offset, limit int) ([]domain.Donor, int64, error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Donor{}).Where("status = ?", status)
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Donor
	err := base().Order("created_at asc").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// ApplyCompletedDonation increments the donor's donation count and moves
// last_donation forward to at (never backwards). Call it in the same
// transaction that inserts the Completed donation row.
func ApplyCompletedDonation(ctx context.Context, db *gorm.DB, donorID string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Donor{}).
		Where("id = ?", donorID).
		Updates(map[string]any{
			"donation_count": gorm.Expr("donation_count + 1"),
			"last_donation":  gorm.Expr("CASE WHEN last_donation IS NULL OR last_donation < ? THEN ? ELSE last_donation END", at, at),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindDonorsNear returns eligible donors of the given blood types within
// radiusKm of center, nearest first, at most limit rows. Donors that never
// shared a location are not considered.
func FindDonorsNear(ctx context.Context, db *gorm.DB, center geo.Point, radiusKm float64, types []domain.BloodType, limit int) ([]NearbyDonor, error) {
	b := geo.BoundsAround(center, radiusKm)

	var rows []domain.Donor
	err := db.WithContext(ctx).
		Scopes(EligibleDonors, bloodTypeIn(types)).
		Where("has_location = ?", true).
		Where("latitude BETWEEN ? AND ?", b.MinLat, b.MaxLat).
		Where("longitude BETWEEN ? AND ?", b.MinLng, b.MaxLng).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]NearbyDonor, 0, len(rows))
	for _, d := range rows {
		dist := geo.DistanceKm(center, geo.NewPoint(d.Longitude, d.Latitude))
		if dist <= radiusKm {
			out = append(out, NearbyDonor{Donor: d, DistanceKm: dist})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindDonorsInCity returns eligible donors of the given blood types whose
// city contains the given text (case-insensitive), in insertion order, at
// most limit rows.
func FindDonorsInCity(ctx context.Context, db *gorm.DB, city string, types []domain.BloodType, limit int) ([]domain.Donor, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, nil
	}
	q := db.WithContext(ctx).
		Scopes(EligibleDonors, bloodTypeIn(types)).
		Where(`LOWER(city) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(city))+"%").
		Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Donor
	err := q.Find(&out).Error
	return out, err
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/domain"
)

// CreateDonation inserts d. A clashing certificate number yields ErrDuplicate.
func CreateDonation(ctx context.Context, db *gorm.DB, d *domain.Donation) error {
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListDonationsByDonor returns the donor's donations, most recent first.
func ListDonationsByDonor(ctx context.Context, db *gorm.DB, donorID string) ([]domain.Donation, error) {
	var out []domain.Donation
	err := db.WithContext(ctx).
		Where("donor_id = ?", donorID).
		Order("donated_at desc").
		Find(&out).Error
	return out, err
}

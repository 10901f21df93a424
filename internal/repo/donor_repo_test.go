package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/geo"
)

var pune = geo.NewPoint(73.8567, 18.5204)

// eligibleDonor returns a donor that passes every notification gate.
func eligibleDonor(id string, bt domain.BloodType, city string, at time.Time) domain.Donor {
	return domain.Donor{
		ID:                   id,
		Name:                 "Donor " + id,
		Email:                id + "@example.org",
		PasswordHash:         "x",
		BloodType:            bt,
		City:                 city,
		IsAvailable:          true,
		NotificationsEnabled: true,
		Status:               domain.DonorVerified,
		CreatedAt:            at,
		UpdatedAt:            at,
	}
}

func placed(d domain.Donor, p geo.Point) domain.Donor {
	d.Longitude, d.Latitude, d.HasLocation = p.Lon(), p.Lat(), true
	return d
}

func seedDonors(t *testing.T, db *gorm.DB, ds ...domain.Donor) {
	t.Helper()
	for i := range ds {
		if err := CreateDonor(context.Background(), db, &ds[i]); err != nil {
			t.Fatalf("seed donor %s: %v", ds[i].ID, err)
		}
	}
}

func ids(ds []domain.Donor) []string {
	out := make([]string, len(ds))
	for i := range ds {
		out[i] = ds[i].ID
	}
	return out
}

func TestCreateDonor_DuplicateEmail(t *testing.T) {
	db := newTestDB(t, &domain.Donor{})
	now := time.Now().UTC()
	seedDonors(t, db, eligibleDonor("d1", domain.APos, "Pune", now))

	dup := eligibleDonor("d2", domain.APos, "Pune", now)
	dup.Email = "d1@example.org"
	if err := CreateDonor(context.Background(), db, &dup); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetDonor_AndByIDs(t *testing.T) {
	db := newTestDB(t, &domain.Donor{})
	now := time.Now().UTC()
	seedDonors(t, db,
		eligibleDonor("d1", domain.APos, "Pune", now),
		eligibleDonor("d2", domain.BPos, "Pune", now),
	)

	if _, err := GetDonor(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	d, err := GetDonor(context.Background(), db, "d2")
	if err != nil || d.BloodType != domain.BPos {
		t.Fatalf("GetDonor: %+v %v", d, err)
	}

	got, err := GetDonorsByIDs(context.Background(), db, []string{"d1", "d2", "missing"})
	if err != nil || len(got) != 2 {
		t.Fatalf("GetDonorsByIDs: %v %v", got, err)
	}
	if none, err := GetDonorsByIDs(context.Background(), db, nil); err != nil || none != nil {
		t.Fatalf("empty ids: %v %v", none, err)
	}
}

func TestUpdateDonorFields_AndStatus(t *testing.T) {
	db := newTestDB(t, &domain.Donor{})
	now := time.Now().UTC()
	d := eligibleDonor("d1", domain.APos, "Pune", now)
	d.Status = domain.DonorPending
	seedDonors(t, db, d)

	if err := UpdateDonorFields(context.Background(), db, "d1", map[string]any{"city": "Nashik", "is_available": false}); err != nil {
		t.Fatalf("UpdateDonorFields: %v", err)
	}
	got, _ := GetDonor(context.Background(), db, "d1")
	if got.City != "Nashik" || got.IsAvailable {
		t.Fatalf("partial update not applied: %+v", got)
	}
	if err := UpdateDonorFields(context.Background(), db, "ghost", map[string]any{"city": "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := SetDonorStatus(context.Background(), db, "d1", domain.DonorPending, domain.DonorVerified); err != nil {
		t.Fatalf("SetDonorStatus: %v", err)
	}
	// Second verify finds nothing in Pending.
	if err := SetDonorStatus(context.Background(), db, "d1", domain.DonorPending, domain.DonorVerified); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on stale status, got %v", err)
	}
}

func TestListDonorsByStatus_PagesOldestFirst(t *testing.T) {
	db := newTestDB(t, &domain.Donor{})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ds []domain.Donor
	for i, id := range []string{"a", "b", "c"} {
		d := eligibleDonor(id, domain.OPos, "Pune", base.Add(time.Duration(i)*time.Hour))
		d.Status = domain.DonorPending
		ds = append(ds, d)
	}
	ds = append(ds, eligibleDonor("v", domain.OPos, "Pune", base))
	seedDonors(t, db, ds...)

	page, total, err := ListDonorsByStatus(context.Background(), db, domain.DonorPending, 1, 5)
	if err != nil {
		t.Fatalf("ListDonorsByStatus: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if got := ids(page); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("page = %v, want [b c]", got)
	}
}

func TestApplyCompletedDonation_NeverMovesBackwards(t *testing.T) {
	db := newTestDB(t, &domain.Donor{})
	seedDonors(t, db, eligibleDonor("d1", domain.APos, "Pune", time.Now().UTC()))

	later := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	if err := ApplyCompletedDonation(context.Background(), db, "d1", later); err != nil {
		t.Fatalf("apply later: %v", err)
	}
	if err := ApplyCompletedDonation(context.Background(), db, "d1", earlier); err != nil {
		t.Fatalf("apply earlier: %v", err)
	}
	got, _ := GetDonor(context.Background(), db, "d1")
	if got.DonationCount != 2 {
		t.Fatalf("donation_count = %d, want 2", got.DonationCount)
	}
	if got.LastDonation == nil || !got.LastDonation.Equal(later) {
		t.Fatalf("last_donation = %v, want %v", got.LastDonation, later)
	}

	if err := ApplyCompletedDonation(context.Background(), db, "ghost", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindDonorsNear_RadiusOrderAndLimit(t *testing.T) {
	db := newTestDB(t, &domain.Donor{})
	now := time.Now().UTC()

	seedDonors(t, db,
		placed(eligibleDonor("far", domain.OPos, "Pune", now), geo.OffsetKm(pune, 60, 0)),
		placed(eligibleDonor("mid", domain.OPos, "Pune", now), geo.OffsetKm(pune, 0, 10)),
		placed(eligibleDonor("near", domain.OPos, "Pune", now), geo.OffsetKm(pune, 1, 0)),
		placed(eligibleDonor("wrong-type", domain.APos, "Pune", now), geo.OffsetKm(pune, 2, 0)),
	)

	got, err := FindDonorsNear(context.Background(), db, pune, 50, domain.CompatibleDonors(domain.OPos), 50)
	if err != nil {
		t.Fatalf("FindDonorsNear: %v", err)
	}
	if len(got) != 2 || got[0].Donor.ID != "near" || got[1].Donor.ID != "mid" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got[0].DistanceKm > 1.1 || got[1].DistanceKm < 9.5 || got[1].DistanceKm > 10.5 {
		t.Fatalf("distances off: %.2f %.2f", got[0].DistanceKm, got[1].DistanceKm)
	}

	limited, err := FindDonorsNear(context.Background(), db, pune, 100, domain.CompatibleDonors(domain.OPos), 1)
	if err != nil || len(limited) != 1 || limited[0].Donor.ID != "near" {
		t.Fatalf("limit=1: %+v %v", limited, err)
	}
}

func TestFindDonorsNear_ExcludesIneligibleAndUnlocated(t *testing.T) {
	db := newTestDB(t, &domain.Donor{})
	now := time.Now().UTC()
	at := geo.OffsetKm(pune, 1, 1)

	ok := placed(eligibleDonor("ok", domain.ONeg, "Pune", now), at)
	unavailable := placed(eligibleDonor("unavailable", domain.ONeg, "Pune", now), at)
	unavailable.IsAvailable = false
	optedOut := placed(eligibleDonor("opted-out", domain.ONeg, "Pune", now), at)
	optedOut.NotificationsEnabled = false
	pending := placed(eligibleDonor("pending", domain.ONeg, "Pune", now), at)
	pending.Status = domain.DonorPending
	rejected := placed(eligibleDonor("rejected", domain.ONeg, "Pune", now), at)
	rejected.Status = domain.DonorRejected
	unlocated := eligibleDonor("unlocated", domain.ONeg, "Pune", now)
	recent := placed(eligibleDonor("recent", domain.ONeg, "Pune", now), at)
	yesterday := now.Add(-24 * time.Hour)
	recent.LastDonation = &yesterday

	seedDonors(t, db, ok, unavailable, optedOut, pending, rejected, unlocated, recent)

	got, err := FindDonorsNear(context.Background(), db, pune, 50, domain.AllBloodTypes, 50)
	if err != nil {
		t.Fatalf("FindDonorsNear: %v", err)
	}
	seen := map[string]bool{}
	for _, n := range got {
		seen[n.Donor.ID] = true
	}
	if len(got) != 2 || !seen["ok"] || !seen["recent"] {
		t.Fatalf("expected only ok and recent (cooldown does not gate alerts), got %v", seen)
	}
}

func TestFindDonorsInCity_SubstringCaseAndOrder(t *testing.T) {
	db := newTestDB(t, &domain.Donor{})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	seedDonors(t, db,
		eligibleDonor("second", domain.BPos, "Navi Mumbai", base.Add(time.Hour)),
		eligibleDonor("first", domain.BNeg, "MUMBAI", base),
		eligibleDonor("pune", domain.BPos, "Pune", base),
		eligibleDonor("wrong-type", domain.APos, "Mumbai", base),
		eligibleDonor("literal", domain.BPos, "Mum_bai", base.Add(2*time.Hour)),
	)

	got, err := FindDonorsInCity(context.Background(), db, " mumbai ", domain.CompatibleDonors(domain.BPos), 50)
	if err != nil {
		t.Fatalf("FindDonorsInCity: %v", err)
	}
	if g := ids(got); len(g) != 2 || g[0] != "first" || g[1] != "second" {
		t.Fatalf("got %v, want [first second]", g)
	}

	// Wildcards in the query match literally.
	got, _ = FindDonorsInCity(context.Background(), db, "mum_", domain.AllBloodTypes, 50)
	if g := ids(got); len(g) != 1 || g[0] != "literal" {
		t.Fatalf("wildcard escaping: got %v", g)
	}

	got, _ = FindDonorsInCity(context.Background(), db, "mumbai", domain.CompatibleDonors(domain.BPos), 1)
	if len(got) != 1 {
		t.Fatalf("limit not applied: %v", ids(got))
	}

	if got, err := FindDonorsInCity(context.Background(), db, "  ", domain.AllBloodTypes, 50); err != nil || got != nil {
		t.Fatalf("blank city: %v %v", got, err)
	}
	if got, _ := FindDonorsInCity(context.Background(), db, "mumbai", nil, 50); len(got) != 0 {
		t.Fatalf("empty type set must match nothing: %v", ids(got))
	}
}

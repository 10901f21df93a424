// Package services – DonationService
//
// DonationService records donations and derives a donor's history view:
// totals, month streak, cooldown, score, and achievements. A Completed
// donation updates the donor (last donation, donation count) and, when it
// answers a request, completes the donor's response in the same transaction.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/clock"
	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/observability"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	livesPerDonation = 3
	maxStreakMonths  = 24
	maxDonorScore    = 1000
)

// RecordDonationInput carries the fields of a new donation. Zero values take
// defaults: the donor's blood type, 450 ml, Scheduled, Completed, now.
type RecordDonationInput struct {
	BloodType string
	Quantity  int
	Type      string
	Status    string
	Hospital  string
	City      string
	RequestID string
	Notes     string
	Screening *domain.Screening
	DonatedAt *time.Time
}

// DonationStats summarizes a donor's completed donations.
type DonationStats struct {
	TotalDonations   int        `json:"totalDonations"`
	TotalQuantity    int        `json:"totalQuantity"`
	LivesImpacted    int        `json:"livesImpacted"`
	ThisMonth        int        `json:"thisMonth"`
	MonthStreak      int        `json:"monthStreak"`
	LastDonationDate *time.Time `json:"lastDonationDate,omitempty"`
	NextEligibleDate time.Time  `json:"nextEligibleDate"`
	DonorScore       int        `json:"donorScore"`
	Percentile       string     `json:"percentile"`
}

// Achievement is a milestone badge.
type Achievement struct {
	ID          int    `json:"id"`
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
	Progress    int    `json:"progress"`
	Required    int    `json:"required"`
}

// DonationHistory is the donor's dashboard view.
type DonationHistory struct {
	Donations     []domain.Donation `json:"donations"`
	Stats         DonationStats     `json:"stats"`
	Achievements  []Achievement     `json:"achievements"`
	UnlockedCount int               `json:"unlockedCount"`
}

// DonationService records donations and computes donor statistics.
type DonationService struct {
	DB     *gorm.DB
	Events EventPublisher
	Clock  clock.Clock
	Node   *snowflake.Node

	// Cooldown defaults to domain.DonationCooldown.
	Cooldown time.Duration
}

// NewDonationService returns a DonationService whose certificate serials
// come from snowflake node nodeID.
func NewDonationService(db *gorm.DB, events EventPublisher, nodeID int64) (*DonationService, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &DonationService{
		DB:       db,
		Events:   events,
		Clock:    clock.Real{},
		Node:     node,
		Cooldown: domain.DonationCooldown,
	}, nil
}

func (s *DonationService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *DonationService) cooldown() time.Duration {
	if s.Cooldown <= 0 {
		return domain.DonationCooldown
	}
	return s.Cooldown
}

// Record stores a donation for donorID.
func (s *DonationService) Record(ctx context.Context, donorID string, in RecordDonationInput) (*domain.Donation, error) {
	tr := observability.Tracer("services/DonationService")
	ctx, span := tr.Start(ctx, "Record", trace.WithAttributes(attribute.String("donor.id", donorID)))
	defer span.End()

	donor, err := repo.GetDonor(ctx, s.DB, donorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}

	now := s.now()
	d, err := s.build(donor, in, now)
	if err != nil {
		return nil, err
	}

	if d.RequestID != nil {
		if _, err := repo.GetRequest(ctx, s.DB, *d.RequestID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrRequestNotFound
			}
			return nil, err
		}
	}

	completed := d.Status == domain.DonationStatusCompleted
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateDonation(ctx, tx, d); err != nil {
			return err
		}
		if !completed {
			return nil
		}
		if err := repo.ApplyCompletedDonation(ctx, tx, donorID, d.DonatedAt); err != nil {
			return err
		}
		if d.RequestID == nil {
			return nil
		}
		err := repo.AdvanceResponse(ctx, tx, *d.RequestID, donorID, domain.ResponseCompleted, now)
		if errors.Is(err, repo.ErrConditionFailed) {
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("donation.id", d.ID))

	if completed && d.RequestID != nil {
		if r, err := repo.GetRequest(ctx, s.DB, *d.RequestID); err == nil {
			r.Status = r.EffectiveStatus(now)
			publisherOrNop(s.Events).BroadcastAll(realtime.Event{Type: realtime.EventRequestUpdated, Data: r})
		}
	}
	return d, nil
}

func (s *DonationService) build(donor *domain.Donor, in RecordDonationInput, now time.Time) (*domain.Donation, error) {
	bt := donor.BloodType
	if strings.TrimSpace(in.BloodType) != "" {
		p, err := domain.ParseBloodType(in.BloodType)
		if err != nil {
			return nil, invalid("blood_type: %v", err)
		}
		bt = p
	}

	qty := in.Quantity
	if qty == 0 {
		qty = domain.DefaultDonationQuantity
	}
	if qty < 0 {
		return nil, invalid("quantity must be positive")
	}

	typ := domain.DonationScheduled
	if t := strings.TrimSpace(in.Type); t != "" {
		typ = domain.DonationType(t)
		if !typ.Valid() {
			return nil, invalid("type must be Emergency, Scheduled, Campaign or Walk-in")
		}
	}

	status := domain.DonationStatusCompleted
	if st := strings.TrimSpace(in.Status); st != "" {
		status = domain.DonationStatus(st)
		if !status.Valid() {
			return nil, invalid("status must be Scheduled, Completed, Cancelled or No-show")
		}
	}

	hospital := strings.TrimSpace(in.Hospital)
	if hospital == "" {
		return nil, invalid("hospital is required")
	}

	at := now
	if in.DonatedAt != nil {
		at = in.DonatedAt.UTC()
	}

	var screening domain.Screening
	if in.Screening != nil {
		screening = *in.Screening
	}

	d := &domain.Donation{
		ID:        uuid.NewString(),
		DonorID:   donor.ID,
		BloodType: bt,
		Quantity:  qty,
		Type:      typ,
		Hospital:  hospital,
		City:      strings.TrimSpace(in.City),
		Status:    status,
		Notes:     strings.TrimSpace(in.Notes),
		Screening: datatypes.NewJSONType(screening),
		DonatedAt: at,
		CreatedAt: now,
	}
	if rid := strings.TrimSpace(in.RequestID); rid != "" {
		d.RequestID = &rid
	}
	if status == domain.DonationStatusCompleted {
		cert, err := s.certificate(donor.ID)
		if err != nil {
			return nil, err
		}
		d.CertificateNumber = &cert
	}
	return d, nil
}

// errNoCertificateNode means the service was built without NewDonationService.
var errNoCertificateNode = errors.New("donation service has no certificate node")

// certificate returns CERT-<serial>-<last four characters of the donor id>.
// Node is read-only after construction; snowflake.Node.Generate is safe for
// concurrent use.
func (s *DonationService) certificate(donorID string) (string, error) {
	if s.Node == nil {
		return "", errNoCertificateNode
	}
	suffix := donorID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("CERT-%s-%s", s.Node.Generate().String(), strings.ToUpper(suffix)), nil
}

// History returns the donor's donations, newest first, with statistics and
// achievements computed from the Completed ones.
func (s *DonationService) History(ctx context.Context, donorID string) (*DonationHistory, error) {
	tr := observability.Tracer("services/DonationService")
	ctx, span := tr.Start(ctx, "History", trace.WithAttributes(attribute.String("donor.id", donorID)))
	defer span.End()

	donor, err := repo.GetDonor(ctx, s.DB, donorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}
	donations, err := repo.ListDonationsByDonor(ctx, s.DB, donorID)
	if err != nil {
		return nil, err
	}
	if donations == nil {
		donations = []domain.Donation{}
	}

	stats := ComputeStats(donor, donations, s.now(), s.cooldown())
	ach := Achievements(stats.TotalDonations)
	unlocked := 0
	for _, a := range ach {
		if a.Unlocked {
			unlocked++
		}
	}
	return &DonationHistory{
		Donations:     donations,
		Stats:         stats,
		Achievements:  ach,
		UnlockedCount: unlocked,
	}, nil
}

// ComputeStats derives DonationStats. Only Completed donations count.
func ComputeStats(donor *domain.Donor, donations []domain.Donation, now time.Time, cooldown time.Duration) DonationStats {
	var st DonationStats
	var completed []time.Time
	for _, d := range donations {
		if d.Status != domain.DonationStatusCompleted {
			continue
		}
		st.TotalDonations++
		st.TotalQuantity += d.Quantity
		at := d.DonatedAt.UTC()
		completed = append(completed, at)
		if sameMonth(at, now) {
			st.ThisMonth++
		}
		if st.LastDonationDate == nil || at.After(*st.LastDonationDate) {
			t := at
			st.LastDonationDate = &t
		}
	}
	st.LivesImpacted = st.TotalDonations * livesPerDonation
	st.MonthStreak = MonthStreak(completed, now)

	st.NextEligibleDate = now
	if st.LastDonationDate != nil {
		st.NextEligibleDate = st.LastDonationDate.Add(cooldown)
	}

	st.DonorScore = DonorScore(st.TotalDonations, st.MonthStreak, donor)
	st.Percentile = Percentile(st.DonorScore)
	return st
}

// MonthStreak counts consecutive calendar months with at least one donation,
// ending at the current month, or at the previous month when the current one
// has none yet. At most 24 months are counted.
func MonthStreak(dates []time.Time, now time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	months := make(map[int]bool, len(dates))
	key := func(t time.Time) int { return t.Year()*12 + int(t.Month()) - 1 }
	for _, d := range dates {
		months[key(d.UTC())] = true
	}

	cur := key(now.UTC())
	if !months[cur] {
		cur--
	}
	streak := 0
	for i := 0; i < maxStreakMonths && months[cur]; i++ {
		streak++
		cur--
	}
	return streak
}

// DonorScore is 100, plus 50 per donation, 100 if verified, 50 if available,
// 100 for a streak of 3 months and another 200 for 6; capped at 1000.
func DonorScore(total, streak int, donor *domain.Donor) int {
	score := 100 + 50*total
	if donor != nil {
		if donor.Status == domain.DonorVerified {
			score += 100
		}
		if donor.IsAvailable {
			score += 50
		}
	}
	if streak >= 3 {
		score += 100
	}
	if streak >= 6 {
		score += 200
	}
	if score > maxDonorScore {
		score = maxDonorScore
	}
	return score
}

// Percentile maps a score to its ranking band.
func Percentile(score int) string {
	switch {
	case score >= 800:
		return "Top 5%"
	case score >= 600:
		return "Top 10%"
	case score >= 400:
		return "Top 25%"
	default:
		return "Top 50%"
	}
}

// Achievements returns every badge with progress for total donations.
func Achievements(total int) []Achievement {
	lives := total * livesPerDonation
	badge := func(id int, icon, title, desc string, have, need int) Achievement {
		return Achievement{
			ID:          id,
			Icon:        icon,
			Title:       title,
			Description: desc,
			Unlocked:    have >= need,
			Progress:    min(have, need),
			Required:    need,
		}
	}
	return []Achievement{
		badge(1, "🎖️", "First Hero", "First donation completed", total, 1),
		badge(2, "💪", "Life Saver", "5 successful donations", total, 5),
		badge(3, "👑", "Legend", "10 donations completed", total, 10),
		badge(4, "🌟", "Community Hero", "Helped 50 people", lives, 50),
		badge(5, "🏆", "Super Donor", "25 donations completed", total, 25),
		badge(6, "💎", "Platinum Donor", "50 donations completed", total, 50),
	}
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

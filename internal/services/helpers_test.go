package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/lifeline-backend/internal/clock"
	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/geo"
	"github.com/tbourn/lifeline-backend/internal/push"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"
)

var (
	t0   = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	pune = geo.NewPoint(73.8567, 18.5204)
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type donorOpt func(*domain.Donor)

func at(p geo.Point) donorOpt {
	return func(d *domain.Donor) { d.Longitude, d.Latitude, d.HasLocation = p.Lon(), p.Lat(), true }
}

func withToken(tok string) donorOpt {
	return func(d *domain.Donor) { d.PushToken = &tok }
}

func withStatus(s domain.DonorStatus) donorOpt {
	return func(d *domain.Donor) { d.Status = s }
}

func unavailable(d *domain.Donor) { d.IsAvailable = false }

// seedDonor inserts an eligible donor in Pune unless opts say otherwise.
func seedDonor(t *testing.T, db *gorm.DB, id string, bt domain.BloodType, opts ...donorOpt) *domain.Donor {
	t.Helper()
	d := &domain.Donor{
		ID:                   id,
		Name:                 "Donor " + id,
		Email:                id + "@example.org",
		PasswordHash:         "x",
		BloodType:            bt,
		City:                 "Pune",
		IsAvailable:          true,
		NotificationsEnabled: true,
		Status:               domain.DonorVerified,
		CreatedAt:            t0,
		UpdatedAt:            t0,
	}
	for _, o := range opts {
		o(d)
	}
	require.NoError(t, repo.CreateDonor(context.Background(), db, d))
	return d
}

func seedRequest(t *testing.T, db *gorm.DB, id string, bt domain.BloodType, requestedBy *string, expires time.Time) *domain.Request {
	t.Helper()
	r := &domain.Request{
		ID:           id,
		BloodType:    bt,
		UnitsNeeded:  1,
		Urgency:      domain.UrgencyUrgent,
		PatientName:  "Asha",
		HospitalName: "Ruby Hall",
		City:         "Pune",
		ContactPhone: "555",
		Status:       domain.RequestPending,
		RequestedBy:  requestedBy,
		CreatedAt:    t0,
		UpdatedAt:    t0,
		ExpiresAt:    expires,
	}
	require.NoError(t, repo.CreateRequest(context.Background(), db, r))
	return r
}

func ptr[T any](v T) *T { return &v }

// fakeProvider records multicast calls. When block is set it waits for ctx
// or release.
type fakeProvider struct {
	mu      sync.Mutex
	calls   [][]string
	msgs    []push.Message
	result  *push.BatchResult
	err     error
	block   bool
	release chan struct{}
}

func (p *fakeProvider) SendMulticast(ctx context.Context, tokens []string, msg push.Message) (push.BatchResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), tokens...))
	p.msgs = append(p.msgs, msg)
	res, err, block := p.result, p.err, p.block
	p.mu.Unlock()

	if block {
		select {
		case <-p.release:
		case <-time.After(5 * time.Second):
		}
		return push.BatchResult{SuccessCount: len(tokens)}, nil
	}
	if err != nil {
		return push.BatchResult{}, err
	}
	if res != nil {
		return *res, nil
	}
	return push.BatchResult{SuccessCount: len(tokens)}, nil
}

func (p *fakeProvider) Calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.calls...)
}

func (p *fakeProvider) Messages() []push.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]push.Message(nil), p.msgs...)
}

type published struct {
	channels  []string
	broadcast bool
	ev        realtime.Event
}

// recorder is an EventPublisher that remembers everything.
type recorder struct {
	mu  sync.Mutex
	out []published
}

func (r *recorder) Publish(ch string, ev realtime.Event) {
	r.PublishMany([]string{ch}, ev)
}

func (r *recorder) PublishMany(chs []string, ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, published{channels: append([]string(nil), chs...), ev: ev})
}

func (r *recorder) BroadcastAll(ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, published{broadcast: true, ev: ev})
}

func (r *recorder) ofType(typ string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, p := range r.out {
		if p.ev.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

func fakeClock() *clock.FakeClock { return clock.NewFakeClock(t0) }

package httpapi

import (
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/clock"
	"github.com/tbourn/lifeline-backend/internal/config"
	"github.com/tbourn/lifeline-backend/internal/http/handlers"
	"github.com/tbourn/lifeline-backend/internal/push"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/services"
)

// NewDeps builds the application services over db and the realtime router.
// A nil provider disables push delivery; a nil router disables events.
func NewDeps(db *gorm.DB, events *realtime.Router, provider push.Provider, cfg config.Config) (handlers.Deps, error) {
	var pub services.EventPublisher
	if events != nil {
		pub = events
	}
	m := cfg.Match

	loc := services.NewLocator(db)
	disp := services.NewDispatcher(provider, cfg.Push.Timeout)
	matcher := services.NewMatcher(db, loc, disp, pub)
	if m.RadiusKm > 0 {
		loc.RadiusKm = m.RadiusKm
	}
	if m.Limit > 0 {
		loc.Limit, matcher.Limit = m.Limit, m.Limit
	}

	requests := services.NewRequestService(db, matcher, pub)
	if m.RequestTTL > 0 {
		requests.TTL = m.RequestTTL
	}

	donations, err := services.NewDonationService(db, pub, cfg.NodeID)
	if err != nil {
		return handlers.Deps{}, err
	}
	if m.DonationCooldown > 0 {
		donations.Cooldown = m.DonationCooldown
	}

	return handlers.Deps{
		Requests:       requests,
		Responses:      &services.ResponseService{DB: db, Events: pub, Dispatcher: disp, Clock: clock.Real{}},
		Donors:         services.NewDonorService(db, loc, pub),
		Admin:          &services.AdminService{DB: db, Events: pub, Dispatcher: disp},
		Donations:      donations,
		Events:         events,
		DB:             db,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}, nil
}

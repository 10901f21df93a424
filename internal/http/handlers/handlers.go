// Package handlers exposes the REST and event-stream endpoints of the
// donor matching API.
//
// Handlers are transport-thin: they bind and validate input, resolve the
// caller identity placed in the context by middleware.Identity, call the
// application services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"
	"github.com/tbourn/lifeline-backend/internal/services"
	"github.com/tbourn/lifeline-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RequestService defines blood request operations consumed by handlers.
type RequestService interface {
	Create(ctx context.Context, who domain.Identity, in services.CreateRequestInput) (*domain.Request, services.MatchResult, error)
	Get(ctx context.Context, id string) (*domain.Request, error)
	ListPage(ctx context.Context, f repo.RequestFilter, page, pageSize int) ([]domain.Request, int64, error)
	// Stats returns count and latest update of the filtered set (weak ETags).
	Stats(ctx context.Context, f repo.RequestFilter) (int64, *time.Time, error)
	Mine(ctx context.Context, who domain.Identity, page, pageSize int) ([]domain.Request, int64, error)
	UpdateStatus(ctx context.Context, who domain.Identity, id string, to domain.RequestStatus) (*domain.Request, error)
}

// ResponseService defines donor response operations.
type ResponseService interface {
	Respond(ctx context.Context, who domain.Identity, requestID string) (*domain.Request, error)
	Advance(ctx context.Context, who domain.Identity, requestID, donorID string, to domain.ResponseStatus) (*domain.Request, error)
}

// DonorService defines donor account operations.
type DonorService interface {
	Register(ctx context.Context, in services.RegisterDonorInput) (*domain.Donor, error)
	Get(ctx context.Context, id string) (*domain.Donor, error)
	Update(ctx context.Context, id string, in services.UpdateDonorInput) (*domain.Donor, error)
	UpdateLocation(ctx context.Context, id string, lat, lng float64) (*domain.Donor, error)
	SetPushToken(ctx context.Context, id, token string) error
	Search(ctx context.Context, in services.SearchInput) ([]services.Candidate, error)
}

// AdminService defines donor verification operations.
type AdminService interface {
	ListByStatus(ctx context.Context, who domain.Identity, status domain.DonorStatus, page, pageSize int) ([]domain.Donor, int64, error)
	Verify(ctx context.Context, who domain.Identity, donorID string) (*domain.Donor, error)
	Reject(ctx context.Context, who domain.Identity, donorID string) (*domain.Donor, error)
}

// DonationService defines donation record operations.
type DonationService interface {
	Record(ctx context.Context, donorID string, in services.RecordDonationInput) (*domain.Donation, error)
	History(ctx context.Context, donorID string) (*services.DonationHistory, error)
}

//
// Handler wiring
//

// Deps carries the collaborators of Handlers.
type Deps struct {
	Requests  RequestService
	Responses ResponseService
	Donors    DonorService
	Admin     AdminService
	Donations DonationService

	// Events backs the event stream; nil answers 503 on /events.
	Events *realtime.Router

	// DB stores idempotency records for POST /requests. Nil disables replay.
	DB             *gorm.DB
	IdempotencyTTL time.Duration
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	reqSvc      RequestService
	respSvc     ResponseService
	donorSvc    DonorService
	adminSvc    AdminService
	donationSvc DonationService
	events      *realtime.Router

	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs and returns a Handlers instance bound to d.
func New(d Deps) *Handlers {
	ttl := d.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handlers{
		reqSvc:      d.Requests,
		respSvc:     d.Responses,
		donorSvc:    d.Donors,
		adminSvc:    d.Admin,
		donationSvc: d.Donations,
		events:      d.Events,
		db:          d.DB,
		idemTTL:     ttl,
	}
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

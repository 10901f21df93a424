// Blood request HTTP handlers.
//
// This file exposes REST endpoints for blood requests:
//   - POST  /requests              (create and match; Idempotency-Key replay)
//   - GET   /requests              (list, filtered and paginated, ETag support)
//   - GET   /requests/mine         (caller's own requests)
//   - GET   /requests/{id}         (single request with responses)
//   - PATCH /requests/{id}/status  (fulfil, cancel, or expire)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// create exists for (user, scope, key), the handler returns the recorded
// request and sets `Idempotency-Replayed: true`. Matching is not repeated.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/http/middleware"
	"github.com/tbourn/lifeline-backend/internal/repo"
	"github.com/tbourn/lifeline-backend/internal/services"
)

//
// DTOs
//

// CreateRequestRequest is the JSON payload for posting a blood request.
// Omitted units_needed, urgency, and expires_at take server defaults
// (1, Urgent, now + 7 days).
type CreateRequestRequest struct {
	BloodType    string     `json:"blood_type" example:"O-"`
	UnitsNeeded  int        `json:"units_needed" example:"2"`
	Urgency      string     `json:"urgency" example:"Critical"`
	PatientName  string     `json:"patient_name" example:"R. Sharma"`
	HospitalName string     `json:"hospital_name" example:"Ruby Hall Clinic"`
	City         string     `json:"city" example:"Pune"`
	Address      string     `json:"address" example:"40 Sassoon Road"`
	Latitude     *float64   `json:"latitude,omitempty" example:"18.5204"`
	Longitude    *float64   `json:"longitude,omitempty" example:"73.8567"`
	ContactPhone string     `json:"contact_phone" example:"+91-20-6645-5100"`
	ContactEmail string     `json:"contact_email,omitempty" example:"bloodbank@rubyhall.example"`
	Description  string     `json:"description,omitempty" example:"Post-surgery transfusion"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// CreateRequestResponse is returned for a created (or replayed) request.
type CreateRequestResponse struct {
	Request *domain.Request      `json:"request"`
	Match   services.MatchResult `json:"match"`
}

// UpdateRequestStatusRequest is the JSON payload for a status change.
type UpdateRequestStatusRequest struct {
	Status string `json:"status" binding:"required" example:"Fulfilled"`
}

// ListRequestsResponse wraps a page of requests and pagination information.
type ListRequestsResponse struct {
	Requests   []domain.Request `json:"requests"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// requestFilter reads status, blood_type, city, and urgency from the query.
// status defaults to Pending; "all" lifts the status filter.
func requestFilter(c *gin.Context) (repo.RequestFilter, error) {
	var f repo.RequestFilter

	switch s := strings.TrimSpace(c.Query("status")); {
	case s == "":
		f.Status = domain.RequestPending
	case strings.EqualFold(s, "all"):
	default:
		st := domain.RequestStatus(s)
		if !st.Valid() {
			return f, errors.New("status must be Pending, Fulfilled, Cancelled, Expired or all")
		}
		f.Status = st
	}
	if bt := strings.TrimSpace(c.Query("blood_type")); bt != "" {
		parsed, err := domain.ParseBloodType(bt)
		if err != nil {
			return f, err
		}
		f.BloodType = parsed
	}
	if u := strings.TrimSpace(c.Query("urgency")); u != "" {
		f.Urgency = domain.Urgency(u)
		if !f.Urgency.Valid() {
			return f, errors.New("urgency must be Critical, Urgent or Normal")
		}
	}
	f.City = strings.TrimSpace(c.Query("city"))
	return f, nil
}

// listETag derives a weak ETag from the filter, the page window, and the
// aggregate state of the filtered set.
func listETag(f repo.RequestFilter, page, pageSize int, count int64, maxTS *time.Time) string {
	key := fmt.Sprintf("%s|%s|%s|%s|%s", f.Status, f.BloodType, strings.ToLower(f.City), f.Urgency, f.RequestedBy)
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"requests:%s:%d:%d:%d:%d"`,
		uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(), page, pageSize, count, ts)
}

func validRequestID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// CreateRequest godoc
// @ID          createRequest
// @Summary     Post a blood request
// @Description Persists the request and notifies compatible, eligible donors near it.
// @Description Supports idempotency via the Idempotency-Key header (same key → same request, no second alert).
// @Tags        Requests
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Requester id (omit for anonymous)"  example(u-42)
// @Param       X-User-Role      header  string  false "Requester role"  Enums(Donor, Patient, Admin, Hospital)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateRequestRequest  true  "Request payload"
//
// @Success     201  {object}  handlers.CreateRequestResponse
// @Success     200  {object}  handlers.CreateRequestResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	who := middleware.IdentityFrom(c)
	claim, hasKey := middleware.IdempotencyFrom(c)
	hasKey = hasKey && h.db != nil

	if hasKey {
		if rec, err := repo.GetIdempotency(ctx, h.db, claim.UserID, claim.Scope, claim.Key, time.Now().UTC()); err == nil {
			if prev, err := h.reqSvc.Get(ctx, rec.ResourceID); err == nil {
				ids := []string(prev.NotifiedDonors)
				if ids == nil {
					ids = []string{}
				}
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, CreateRequestResponse{
					Request: prev,
					Match:   services.MatchResult{NotifiedCount: len(ids), NotifiedDonorIDs: ids},
				})
				return
			}
		}
	}

	r, res, err := h.reqSvc.Create(ctx, who, services.CreateRequestInput{
		BloodType:    req.BloodType,
		UnitsNeeded:  req.UnitsNeeded,
		Urgency:      req.Urgency,
		PatientName:  req.PatientName,
		HospitalName: req.HospitalName,
		City:         req.City,
		Address:      req.Address,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		ContactPhone: req.ContactPhone,
		ContactEmail: req.ContactEmail,
		Description:  req.Description,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}

	// Store path, best effort.
	if hasKey {
		if _, err := repo.CreateIdempotency(ctx, h.db, claim.UserID, claim.Scope, claim.Key, r.ID, http.StatusCreated, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Str("emergency_request_id", r.ID).Msg("idempotency store failed")
		}
	}

	ok(c, http.StatusCreated, CreateRequestResponse{Request: r, Match: res})
}

// ListRequests godoc
// @ID          listRequests
// @Summary     List blood requests (paginated)
// @Description Most urgent first (Critical, Urgent, Normal), newest first within a tier. Supports weak ETag via If-None-Match.
// @Tags        Requests
// @Produce     json
//
// @Param       status         query   string  false "Status filter (default Pending; 'all' for any)"
// @Param       blood_type     query   string  false "Blood type"  example(O-)
// @Param       city           query   string  false "City substring, case-insensitive"  example(pune)
// @Param       urgency        query   string  false "Urgency"  Enums(Critical, Urgent, Normal)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRequestsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	f, err := requestFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	h.listRequests(c, f)
}

func (h *Handlers) listRequests(c *gin.Context, f repo.RequestFilter) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.reqSvc.Stats(ctx, f); err == nil {
		etag := listETag(f, page, pageSize, count, maxTS)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.reqSvc.ListPage(ctx, f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{Requests: items, Pagination: newPagination(page, pageSize, total)})
}

// MyRequests godoc
// @ID          myRequests
// @Summary     List the caller's requests
// @Tags        Requests
// @Produce     json
// @Param       X-User-ID  header  string  true  "Requester id"
// @Param       page       query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListRequestsResponse
// @Failure     401  {object} handlers.ErrorResponse "Identity required"
// @Router      /requests/mine [get]
func (h *Handlers) MyRequests(c *gin.Context) {
	who := middleware.IdentityFrom(c)
	if who.Anonymous() {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID required")
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.reqSvc.Mine(c.Request.Context(), who, page, pageSize)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{Requests: items, Pagination: newPagination(page, pageSize, total)})
}

// GetRequest godoc
// @ID          getRequest
// @Summary     Get a blood request
// @Tags        Requests
// @Produce     json
// @Param       id   path     string  true  "Request ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Request
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Router      /requests/{id} [get]
func (h *Handlers) GetRequest(c *gin.Context) {
	id, valid := validRequestID(c)
	if !valid {
		return
	}
	r, err := h.reqSvc.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, r)
}

// UpdateRequestStatus godoc
// @ID          updateRequestStatus
// @Summary     Change a request's status
// @Description Only the requester, hospital staff, and administrators may close a request. Only Pending requests can change.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Param       X-User-ID    header  string  true  "Caller id"
// @Param       X-User-Role  header  string  false "Caller role"  Enums(Donor, Patient, Admin, Hospital)
// @Param       id           path    string  true  "Request ID (UUID)"  format(uuid)
// @Param       body         body    handlers.UpdateRequestStatusRequest  true  "Target status"
// @Success     200  {object} domain.Request
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Request not pending"
// @Router      /requests/{id}/status [patch]
func (h *Handlers) UpdateRequestStatus(c *gin.Context) {
	id, valid := validRequestID(c)
	if !valid {
		return
	}
	var req UpdateRequestStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	r, err := h.reqSvc.UpdateStatus(c.Request.Context(), middleware.IdentityFrom(c), id, domain.RequestStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, r)
}

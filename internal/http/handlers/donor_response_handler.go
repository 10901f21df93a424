// Donor response HTTP handlers.
//
//   - POST  /requests/{id}/responses            (donor offers to donate)
//   - PATCH /requests/{id}/responses/{donorId}  (advance Interested → Confirmed → Completed)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/http/middleware"
)

// AdvanceResponseRequest is the JSON payload for advancing a response.
type AdvanceResponseRequest struct {
	Status string `json:"status" binding:"required" example:"Confirmed"`
}

// RespondToRequest godoc
// @ID          respondToRequest
// @Summary     Respond to a blood request
// @Description Records the calling donor as Interested. A donor may respond once per request; the request must be open.
// @Tags        Responses
// @Produce     json
// @Param       X-User-ID        header  string  true  "Donor id"
// @Param       X-User-Role      header  string  true  "Must be Donor"  Enums(Donor)
// @Param       Idempotency-Key  header  string  false "Idempotency key"
// @Param       id               path    string  true  "Request ID (UUID)"  format(uuid)
// @Success     201  {object} domain.Request
// @Failure     403  {object} handlers.ErrorResponse "Caller is not a donor"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Duplicate response or request not pending"
// @Router      /requests/{id}/responses [post]
func (h *Handlers) RespondToRequest(c *gin.Context) {
	id, valid := validRequestID(c)
	if !valid {
		return
	}
	r, err := h.respSvc.Respond(c.Request.Context(), middleware.IdentityFrom(c), id)
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, r)
}

// AdvanceResponse godoc
// @ID          advanceResponse
// @Summary     Advance a donor response
// @Description Moves a response forward only. The donor, the requester, and staff may advance it.
// @Tags        Responses
// @Accept      json
// @Produce     json
// @Param       X-User-ID    header  string  true  "Caller id"
// @Param       X-User-Role  header  string  false "Caller role"  Enums(Donor, Patient, Admin, Hospital)
// @Param       id           path    string  true  "Request ID (UUID)"  format(uuid)
// @Param       donorId      path    string  true  "Donor ID"
// @Param       body         body    handlers.AdvanceResponseRequest  true  "Target status"
// @Success     200  {object} domain.Request
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Request or response not found"
// @Failure     409  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /requests/{id}/responses/{donorId} [patch]
func (h *Handlers) AdvanceResponse(c *gin.Context) {
	id, valid := validRequestID(c)
	if !valid {
		return
	}
	donorID := strings.TrimSpace(c.Param("donorId"))
	if donorID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "donor id required")
		return
	}
	var req AdvanceResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	r, err := h.respSvc.Advance(c.Request.Context(), middleware.IdentityFrom(c), id, donorID, domain.ResponseStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, r)
}

// Admin HTTP handlers for donor verification.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/http/middleware"
)

// ListDonorsResponse wraps a page of donors and pagination information.
type ListDonorsResponse struct {
	Donors     []domain.Donor `json:"donors"`
	Pagination Pagination     `json:"pagination"`
}

// ListDonorsForReview godoc
// @ID          listDonorsForReview
// @Summary     List donors by verification status
// @Tags        Admin
// @Produce     json
// @Param       X-User-ID    header  string  true  "Administrator id"
// @Param       X-User-Role  header  string  true  "Must be Admin"  Enums(Admin)
// @Param       status       query   string  false "Verification status (default Pending)"  Enums(Pending, Verified, Rejected)
// @Param       page         query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size    query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListDonorsResponse
// @Failure     400  {object} handlers.ErrorResponse "Unknown status"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Router      /admin/donors [get]
func (h *Handlers) ListDonorsForReview(c *gin.Context) {
	page, pageSize := clampPagination(c)
	status := domain.DonorStatus(strings.TrimSpace(c.Query("status")))
	items, total, err := h.adminSvc.ListByStatus(c.Request.Context(), middleware.IdentityFrom(c), status, page, pageSize)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListDonorsResponse{Donors: items, Pagination: newPagination(page, pageSize, total)})
}

// VerifyDonor godoc
// @ID          verifyDonor
// @Summary     Verify a pending donor
// @Description The donor is told over their private channel and by push.
// @Tags        Admin
// @Produce     json
// @Param       X-User-ID    header  string  true  "Administrator id"
// @Param       X-User-Role  header  string  true  "Must be Admin"  Enums(Admin)
// @Param       id           path    string  true  "Donor ID"
// @Success     200  {object} domain.Donor
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Donor not found"
// @Failure     409  {object} handlers.ErrorResponse "Donor is not pending"
// @Router      /admin/donors/{id}/verify [post]
func (h *Handlers) VerifyDonor(c *gin.Context) {
	d, err := h.adminSvc.Verify(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, d)
}

// RejectDonor godoc
// @ID          rejectDonor
// @Summary     Reject a pending donor
// @Tags        Admin
// @Produce     json
// @Param       X-User-ID    header  string  true  "Administrator id"
// @Param       X-User-Role  header  string  true  "Must be Admin"  Enums(Admin)
// @Param       id           path    string  true  "Donor ID"
// @Success     200  {object} domain.Donor
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Donor not found"
// @Failure     409  {object} handlers.ErrorResponse "Donor is not pending"
// @Router      /admin/donors/{id}/reject [post]
func (h *Handlers) RejectDonor(c *gin.Context) {
	d, err := h.adminSvc.Reject(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, d)
}

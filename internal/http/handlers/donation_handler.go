// Donation HTTP handlers.
//
//   - POST /donations        (record a donation for the calling donor)
//   - GET  /donations/mine   (history, stats, and achievements)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/services"
)

// RecordDonationRequest is the JSON payload for recording a donation.
// Omitted fields default to the donor's blood type, 450 ml, Scheduled,
// Completed, and now.
type RecordDonationRequest struct {
	BloodType string            `json:"blood_type,omitempty" example:"O-"`
	Quantity  int               `json:"quantity,omitempty" example:"450"`
	Type      string            `json:"type,omitempty" example:"Emergency"`
	Status    string            `json:"status,omitempty" example:"Completed"`
	Hospital  string            `json:"hospital" example:"Ruby Hall Clinic"`
	City      string            `json:"city,omitempty" example:"Pune"`
	RequestID string            `json:"request_id,omitempty" format:"uuid"`
	Notes     string            `json:"notes,omitempty"`
	Screening *domain.Screening `json:"screening,omitempty"`
	DonatedAt *time.Time        `json:"donated_at,omitempty"`
}

// RecordDonation godoc
// @ID          recordDonation
// @Summary     Record a donation
// @Description A completed donation updates the donor's last donation and count, issues a certificate number, and completes the linked response.
// @Tags        Donations
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Donor id"
// @Param       body       body    handlers.RecordDonationRequest  true  "Donation payload"
// @Success     201  {object} domain.Donation
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "Identity required"
// @Failure     404  {object} handlers.ErrorResponse "Donor or request not found"
// @Router      /donations [post]
func (h *Handlers) RecordDonation(c *gin.Context) {
	donorID, valid := currentDonorID(c)
	if !valid {
		return
	}
	var req RecordDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	d, err := h.donationSvc.Record(c.Request.Context(), donorID, services.RecordDonationInput{
		BloodType: req.BloodType,
		Quantity:  req.Quantity,
		Type:      req.Type,
		Status:    req.Status,
		Hospital:  req.Hospital,
		City:      req.City,
		RequestID: req.RequestID,
		Notes:     req.Notes,
		Screening: req.Screening,
		DonatedAt: req.DonatedAt,
	})
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, d)
}

// MyDonations godoc
// @ID          myDonations
// @Summary     Donation history and stats
// @Tags        Donations
// @Produce     json
// @Param       X-User-ID  header  string  true  "Donor id"
// @Success     200  {object} services.DonationHistory
// @Failure     401  {object} handlers.ErrorResponse "Identity required"
// @Failure     404  {object} handlers.ErrorResponse "Donor not found"
// @Router      /donations/mine [get]
func (h *Handlers) MyDonations(c *gin.Context) {
	donorID, valid := currentDonorID(c)
	if !valid {
		return
	}
	hist, err := h.donationSvc.History(c.Request.Context(), donorID)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, hist)
}

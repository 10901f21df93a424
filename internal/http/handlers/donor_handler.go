// Donor HTTP handlers.
//
// This file exposes REST endpoints for donor accounts:
//   - POST  /donors                 (register; account starts Pending)
//   - GET   /donors/me              (own profile)
//   - PATCH /donors/me              (partial profile update)
//   - PUT   /donors/me/location     (last known position)
//   - PUT   /donors/me/push-token   (device token; empty clears it)
//   - GET   /donors/search          (public search of eligible donors)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/http/middleware"
	"github.com/tbourn/lifeline-backend/internal/services"
	"github.com/tbourn/lifeline-backend/internal/utils"
)

//
// DTOs
//

// RegisterDonorRequest is the JSON payload for donor registration.
type RegisterDonorRequest struct {
	Name                  string   `json:"name" example:"Asha Patil"`
	Email                 string   `json:"email" example:"asha@example.com"`
	Password              string   `json:"password" example:"s3cret!"`
	Phone                 string   `json:"phone" example:"+91-98220-00000"`
	BloodType             string   `json:"blood_type" example:"O-"`
	City                  string   `json:"city" example:"Pune"`
	Address               string   `json:"address,omitempty"`
	Latitude              *float64 `json:"latitude,omitempty" example:"18.5204"`
	Longitude             *float64 `json:"longitude,omitempty" example:"73.8567"`
	EmergencyContactName  string   `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string   `json:"emergency_contact_phone,omitempty"`
}

// UpdateDonorRequest is a partial profile update; omitted fields are kept.
type UpdateDonorRequest struct {
	Name                  *string `json:"name,omitempty"`
	Phone                 *string `json:"phone,omitempty"`
	City                  *string `json:"city,omitempty"`
	Address               *string `json:"address,omitempty"`
	IsAvailable           *bool   `json:"is_available,omitempty"`
	NotificationsEnabled  *bool   `json:"notifications_enabled,omitempty"`
	EmergencyContactName  *string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string `json:"emergency_contact_phone,omitempty"`
}

// UpdateLocationRequest carries a WGS84 position.
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required" example:"18.5204"`
	Longitude *float64 `json:"longitude" binding:"required" example:"73.8567"`
}

// PushTokenRequest carries a device token. Empty unregisters the device.
type PushTokenRequest struct {
	Token string `json:"token" example:"fcm-device-token"`
}

// DonorSummary is the public projection of a donor returned by search.
// Contact details are never exposed.
type DonorSummary struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	BloodType    domain.BloodType `json:"blood_type"`
	City         string           `json:"city"`
	LastDonation *time.Time       `json:"last_donation,omitempty"`
	DistanceKm   *float64         `json:"distance_km,omitempty"`
}

// SearchDonorsResponse wraps donor search results.
type SearchDonorsResponse struct {
	Donors []DonorSummary `json:"donors"`
	Count  int            `json:"count"`
}

//
// Helpers
//

// currentDonorID returns the caller id or writes 401.
func currentDonorID(c *gin.Context) (string, bool) {
	who := middleware.IdentityFrom(c)
	if who.Anonymous() {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID required")
		return "", false
	}
	return who.ID, true
}

// queryFloat parses an optional float query parameter.
func queryFloat(c *gin.Context, name string) (*float64, bool) {
	v, err := utils.ParseOptionalFloat(c.Query(name))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a number")
		return nil, false
	}
	return v, true
}

//
// Handlers
//

// RegisterDonor godoc
// @ID          registerDonor
// @Summary     Register as a donor
// @Description Creates a Pending donor account. An administrator must verify it before alerts are sent.
// @Tags        Donors
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.RegisterDonorRequest  true  "Registration payload"
// @Success     201   {object} domain.Donor
// @Failure     400   {object} handlers.ErrorResponse "Validation failed"
// @Failure     409   {object} handlers.ErrorResponse "Email already registered"
// @Router      /donors [post]
func (h *Handlers) RegisterDonor(c *gin.Context) {
	var req RegisterDonorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	d, err := h.donorSvc.Register(c.Request.Context(), services.RegisterDonorInput{
		Name:                  req.Name,
		Email:                 req.Email,
		Password:              req.Password,
		Phone:                 req.Phone,
		BloodType:             req.BloodType,
		City:                  req.City,
		Address:               req.Address,
		Latitude:              req.Latitude,
		Longitude:             req.Longitude,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
	})
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, d)
}

// GetMe godoc
// @ID          getMe
// @Summary     Get own donor profile
// @Tags        Donors
// @Produce     json
// @Param       X-User-ID  header  string  true  "Donor id"
// @Success     200  {object} domain.Donor
// @Failure     401  {object} handlers.ErrorResponse "Identity required"
// @Failure     404  {object} handlers.ErrorResponse "Donor not found"
// @Router      /donors/me [get]
func (h *Handlers) GetMe(c *gin.Context) {
	id, valid := currentDonorID(c)
	if !valid {
		return
	}
	d, err := h.donorSvc.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, d)
}

// UpdateMe godoc
// @ID          updateMe
// @Summary     Update own donor profile
// @Description Availability changes are broadcast to connected clients.
// @Tags        Donors
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Donor id"
// @Param       body       body    handlers.UpdateDonorRequest  true  "Fields to change"
// @Success     200  {object} domain.Donor
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "Identity required"
// @Failure     404  {object} handlers.ErrorResponse "Donor not found"
// @Router      /donors/me [patch]
func (h *Handlers) UpdateMe(c *gin.Context) {
	id, valid := currentDonorID(c)
	if !valid {
		return
	}
	var req UpdateDonorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	d, err := h.donorSvc.Update(c.Request.Context(), id, services.UpdateDonorInput{
		Name:                  req.Name,
		Phone:                 req.Phone,
		City:                  req.City,
		Address:               req.Address,
		IsAvailable:           req.IsAvailable,
		NotificationsEnabled:  req.NotificationsEnabled,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
	})
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, d)
}

// UpdateMyLocation godoc
// @ID          updateMyLocation
// @Summary     Update own location
// @Tags        Donors
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Donor id"
// @Param       body       body    handlers.UpdateLocationRequest  true  "Position"
// @Success     200  {object} domain.Donor
// @Failure     400  {object} handlers.ErrorResponse "Coordinates out of range"
// @Failure     401  {object} handlers.ErrorResponse "Identity required"
// @Router      /donors/me/location [put]
func (h *Handlers) UpdateMyLocation(c *gin.Context) {
	id, valid := currentDonorID(c)
	if !valid {
		return
	}
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "latitude and longitude required")
		return
	}
	d, err := h.donorSvc.UpdateLocation(c.Request.Context(), id, *req.Latitude, *req.Longitude)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, d)
}

// SetMyPushToken godoc
// @ID          setMyPushToken
// @Summary     Register a push device token
// @Tags        Donors
// @Accept      json
// @Param       X-User-ID  header  string  true  "Donor id"
// @Param       body       body    handlers.PushTokenRequest  true  "Device token"
// @Success     204  "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Identity required"
// @Failure     404  {object} handlers.ErrorResponse "Donor not found"
// @Router      /donors/me/push-token [put]
func (h *Handlers) SetMyPushToken(c *gin.Context) {
	id, valid := currentDonorID(c)
	if !valid {
		return
	}
	var req PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.donorSvc.SetPushToken(c.Request.Context(), id, req.Token); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// SearchDonors godoc
// @ID          searchDonors
// @Summary     Search eligible donors
// @Description Returns verified, available donors able to give to blood_type, near lat/lng or in city.
// @Tags        Donors
// @Produce     json
// @Param       blood_type  query  string  false "Recipient blood type"  example(A+)
// @Param       city        query  string  false "City substring"        example(pune)
// @Param       lat         query  number  false "Latitude"
// @Param       lng         query  number  false "Longitude"
// @Param       radius_km   query  number  false "Search radius in km"
// @Param       limit       query  int     false "Maximum results"  minimum(1) maximum(100) default(50)
// @Success     200  {object} handlers.SearchDonorsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /donors/search [get]
func (h *Handlers) SearchDonors(c *gin.Context) {
	lat, valid := queryFloat(c, "lat")
	if !valid {
		return
	}
	lng, valid := queryFloat(c, "lng")
	if !valid {
		return
	}
	radius, valid := queryFloat(c, "radius_km")
	if !valid {
		return
	}
	in := services.SearchInput{
		BloodType: c.Query("blood_type"),
		City:      c.Query("city"),
		Latitude:  lat,
		Longitude: lng,
		Limit:     utils.Clamp(utils.AtoiDefault(c.Query("limit"), 50), 1, 100),
	}
	if radius != nil {
		in.RadiusKm = *radius
	}

	found, err := h.donorSvc.Search(c.Request.Context(), in)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	out := make([]DonorSummary, 0, len(found))
	for _, cand := range found {
		out = append(out, DonorSummary{
			ID:           cand.Donor.ID,
			Name:         cand.Donor.Name,
			BloodType:    cand.Donor.BloodType,
			City:         cand.Donor.City,
			LastDonation: cand.Donor.LastDonation,
			DistanceKm:   cand.DistanceKm,
		})
	}
	ok(c, http.StatusOK, SearchDonorsResponse{Donors: out, Count: len(out)})
}

// Package domain defines the persistence models for donors, blood requests,
// donor responses, and donations, plus the pure rules attached to them
// (compatibility, eligibility, status transitions). These types are mapped
// with GORM and shared by the repository, service, and HTTP layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// DonationCooldown is the minimum gap between two whole-blood donations.
// It is informational only and never gates notifications.
const DonationCooldown = 90 * 24 * time.Hour

// DefaultDonationQuantity is the volume recorded when none is supplied.
const DefaultDonationQuantity = 450

// DefaultRequestTTL is how long a request stays open without a status write.
const DefaultRequestTTL = 7 * 24 * time.Hour

// DonorStatus is the verification state of a donor account.
type DonorStatus string

const (
	DonorPending  DonorStatus = "Pending"
	DonorVerified DonorStatus = "Verified"
	DonorRejected DonorStatus = "Rejected"
)

// Donor is a registered blood donor.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: unique, stored lowercased.
//   - PasswordHash: bcrypt hash, never serialized.
//   - BloodType: one of the eight ABO/Rh values.
//   - Longitude / Latitude: last reported position; HasLocation is false until
//     the donor shares one, in which case the point stays at the origin.
//   - Status: Pending until an administrator verifies or rejects the account.
//   - LastDonation / DonationCount: maintained by completed donations.
//   - NotificationsEnabled / PushToken: alert opt-in and device token.
type Donor struct {
	ID                    string      `json:"id"           gorm:"type:char(36);primaryKey"`
	Name                  string      `json:"name"         gorm:"type:varchar(120);not null"`
	Email                 string      `json:"email"        gorm:"type:varchar(255);not null;uniqueIndex:ux_donor_email"`
	PasswordHash          string      `json:"-"            gorm:"type:varchar(100);not null"`
	Phone                 string      `json:"phone"        gorm:"type:varchar(32)"`
	BloodType             BloodType   `json:"blood_type"   gorm:"type:varchar(3);not null;index:idx_donor_match,priority:2"`
	City                  string      `json:"city"         gorm:"type:varchar(120);not null;index"`
	Address               string      `json:"address"      gorm:"type:text"`
	Longitude             float64     `json:"longitude"`
	Latitude              float64     `json:"latitude"`
	HasLocation           bool        `json:"has_location" gorm:"not null"`
	IsAvailable           bool        `json:"is_available" gorm:"not null"`
	Status                DonorStatus `json:"status"       gorm:"type:varchar(16);not null;index:idx_donor_match,priority:1"`
	LastDonation          *time.Time  `json:"last_donation,omitempty"`
	DonationCount         int         `json:"donation_count"        gorm:"not null"`
	NotificationsEnabled  bool        `json:"notifications_enabled" gorm:"not null"`
	PushToken             *string     `json:"-"                     gorm:"type:text"`
	EmergencyContactName  string      `json:"emergency_contact_name,omitempty"  gorm:"type:varchar(120)"`
	EmergencyContactPhone string      `json:"emergency_contact_phone,omitempty" gorm:"type:varchar(32)"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Donor.
func (Donor) TableName() string { return "donors" }

// IsNotificationCandidate reports whether the donor may receive emergency
// alerts: verified, available, and opted in. Donation cooldown is not
// considered.
func (d *Donor) IsNotificationCandidate() bool {
	return d.Status == DonorVerified && d.IsAvailable && d.NotificationsEnabled
}

// HasPushToken reports whether a non-empty device token is registered.
func (d *Donor) HasPushToken() bool { return d.PushToken != nil && *d.PushToken != "" }

// NextEligibleAt returns when the donor may donate again, or nil when they
// have never donated.
func (d *Donor) NextEligibleAt() *time.Time {
	if d.LastDonation == nil {
		return nil
	}
	t := d.LastDonation.Add(DonationCooldown)
	return &t
}

// CanDonate reports whether the cooldown since the last donation has passed.
func (d *Donor) CanDonate(now time.Time) bool {
	next := d.NextEligibleAt()
	return next == nil || !now.Before(*next)
}

// Urgency is the priority tier of a request.
type Urgency string

const (
	UrgencyCritical Urgency = "Critical"
	UrgencyUrgent   Urgency = "Urgent"
	UrgencyNormal   Urgency = "Normal"
)

// Valid reports whether u is a known tier.
func (u Urgency) Valid() bool {
	return u == UrgencyCritical || u == UrgencyUrgent || u == UrgencyNormal
}

// RequestStatus is the lifecycle state of a blood request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "Pending"
	RequestFulfilled RequestStatus = "Fulfilled"
	RequestCancelled RequestStatus = "Cancelled"
	RequestExpired   RequestStatus = "Expired"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestFulfilled, RequestCancelled, RequestExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool { return s != RequestPending }

// CanTransitionTo reports whether s -> next is a legal edge. Only Pending
// may move, and only into one of the terminal states.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s != RequestPending {
		return false
	}
	return next == RequestFulfilled || next == RequestCancelled || next == RequestExpired
}

// Request is a call for blood posted by a patient, hospital, or anonymous
// visitor.
//
// Fields:
//   - BloodType / UnitsNeeded / Urgency: what is needed and how badly.
//   - City / Address / Latitude / Longitude: where; the point is optional and
//     selects geographic matching when present.
//   - Status / ExpiresAt: lifecycle; a Pending request is treated as Expired
//     once ExpiresAt has passed (see EffectiveStatus).
//   - RequestedBy: caller id, nil for anonymous requests.
//   - Responses: donor responses, at most one per donor.
//   - NotifiedDonors: donor ids alerted by the most recent match, overwritten
//     on every match.
type Request struct {
	ID             string                      `json:"id"            gorm:"type:char(36);primaryKey"`
	BloodType      BloodType                   `json:"blood_type"    gorm:"type:varchar(3);not null;index"`
	UnitsNeeded    int                         `json:"units_needed"  gorm:"not null;check:units_needed >= 1"`
	Urgency        Urgency                     `json:"urgency"       gorm:"type:varchar(16);not null;index"`
	PatientName    string                      `json:"patient_name"  gorm:"type:varchar(120);not null"`
	HospitalName   string                      `json:"hospital_name" gorm:"type:varchar(160);not null"`
	City           string                      `json:"city"          gorm:"type:varchar(120);not null;index"`
	Address        string                      `json:"address"       gorm:"type:text"`
	Latitude       *float64                    `json:"latitude,omitempty"`
	Longitude      *float64                    `json:"longitude,omitempty"`
	ContactPhone   string                      `json:"contact_phone" gorm:"type:varchar(32);not null"`
	ContactEmail   string                      `json:"contact_email,omitempty" gorm:"type:varchar(255)"`
	Description    string                      `json:"description,omitempty"   gorm:"type:text"`
	Status         RequestStatus               `json:"status"        gorm:"type:varchar(16);not null;index"`
	RequestedBy    *string                     `json:"requested_by,omitempty" gorm:"type:varchar(64);index"`
	CreatedAt      time.Time                   `json:"created_at"    gorm:"index"`
	UpdatedAt      time.Time                   `json:"updated_at"`
	ExpiresAt      time.Time                   `json:"expires_at"    gorm:"not null;index"`
	Responses      []Response                  `json:"responses"     gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	NotifiedDonors datatypes.JSONSlice[string] `json:"notified_donors"`
}

// TableName returns the database table name for Request.
func (Request) TableName() string { return "blood_requests" }

// Point returns the request coordinates when both are set.
func (r *Request) Point() (lng, lat float64, ok bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Longitude, *r.Latitude, true
}

// EffectiveStatus is the stored status with passive expiry applied.
func (r *Request) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == RequestPending && !now.Before(r.ExpiresAt) {
		return RequestExpired
	}
	return r.Status
}

// ResponseFrom returns the donor's response entry, if any.
func (r *Request) ResponseFrom(donorID string) (*Response, bool) {
	for i := range r.Responses {
		if r.Responses[i].DonorID == donorID {
			return &r.Responses[i], true
		}
	}
	return nil, false
}

// ResponseStatus is the progress of a single donor's response.
type ResponseStatus string

const (
	ResponseInterested ResponseStatus = "Interested"
	ResponseConfirmed  ResponseStatus = "Confirmed"
	ResponseCompleted  ResponseStatus = "Completed"
)

// Rank orders response states; unknown values rank 0.
func (s ResponseStatus) Rank() int {
	switch s {
	case ResponseInterested:
		return 1
	case ResponseConfirmed:
		return 2
	case ResponseCompleted:
		return 3
	}
	return 0
}

// Before returns the states that rank strictly below s.
func (s ResponseStatus) Before() []ResponseStatus {
	var out []ResponseStatus
	for _, c := range []ResponseStatus{ResponseInterested, ResponseConfirmed, ResponseCompleted} {
		if c.Rank() < s.Rank() {
			out = append(out, c)
		}
	}
	return out
}

// Response is a donor's answer to a request. The (request_id, donor_id)
// unique index makes appending a response an atomic conditional insert.
type Response struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	RequestID   string         `json:"request_id"   gorm:"type:char(36);not null;uniqueIndex:ux_response_request_donor,priority:1;index:idx_response_order,priority:1"`
	DonorID     string         `json:"donor_id"     gorm:"type:char(36);not null;uniqueIndex:ux_response_request_donor,priority:2;index"`
	Status      ResponseStatus `json:"status"       gorm:"type:varchar(16);not null"`
	RespondedAt time.Time      `json:"responded_at" gorm:"not null;index:idx_response_order,priority:2"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Response.
func (Response) TableName() string { return "request_responses" }

// DonationType classifies how a donation came about.
type DonationType string

const (
	DonationEmergency DonationType = "Emergency"
	DonationScheduled DonationType = "Scheduled"
	DonationCampaign  DonationType = "Campaign"
	DonationWalkIn    DonationType = "Walk-in"
)

// Valid reports whether t is a known donation type.
func (t DonationType) Valid() bool {
	switch t {
	case DonationEmergency, DonationScheduled, DonationCampaign, DonationWalkIn:
		return true
	}
	return false
}

// DonationStatus is the outcome of a donation appointment.
type DonationStatus string

const (
	DonationStatusScheduled DonationStatus = "Scheduled"
	DonationStatusCompleted DonationStatus = "Completed"
	DonationStatusCancelled DonationStatus = "Cancelled"
	DonationStatusNoShow    DonationStatus = "No-show"
)

// Valid reports whether s is a known donation status.
func (s DonationStatus) Valid() bool {
	switch s {
	case DonationStatusScheduled, DonationStatusCompleted, DonationStatusCancelled, DonationStatusNoShow:
		return true
	}
	return false
}

// Screening holds the pre-donation health check.
type Screening struct {
	HemoglobinGDL float64 `json:"hemoglobin_g_dl,omitempty"`
	BloodPressure string  `json:"blood_pressure,omitempty"`
	PulseBPM      int     `json:"pulse_bpm,omitempty"`
	TemperatureC  float64 `json:"temperature_c,omitempty"`
	WeightKg      float64 `json:"weight_kg,omitempty"`
	Passed        bool    `json:"passed"`
	Notes         string  `json:"notes,omitempty"`
}

// Donation is a historical record of one donation. Rows are immutable once
// written; a Completed row has already been reflected on the donor.
type Donation struct {
	ID                string                        `json:"id"          gorm:"type:char(36);primaryKey"`
	DonorID           string                        `json:"donor_id"    gorm:"type:char(36);not null;index:idx_donor_donations,priority:1"`
	BloodType         BloodType                     `json:"blood_type"  gorm:"type:varchar(3);not null"`
	Quantity          int                           `json:"quantity"    gorm:"not null"`
	Type              DonationType                  `json:"type"        gorm:"type:varchar(16);not null"`
	Hospital          string                        `json:"hospital"    gorm:"type:varchar(160);not null"`
	City              string                        `json:"city,omitempty" gorm:"type:varchar(120)"`
	RequestID         *string                       `json:"request_id,omitempty" gorm:"type:char(36);index"`
	Status            DonationStatus                `json:"status"      gorm:"type:varchar(16);not null"`
	Notes             string                        `json:"notes,omitempty" gorm:"type:text"`
	Screening         datatypes.JSONType[Screening] `json:"screening"`
	CertificateNumber *string                       `json:"certificate_number,omitempty" gorm:"type:varchar(64);uniqueIndex"`
	DonatedAt         time.Time                     `json:"donated_at"  gorm:"not null;index:idx_donor_donations,priority:2"`
	CreatedAt         time.Time                     `json:"created_at"`
}

// TableName returns the database table name for Donation.
func (Donation) TableName() string { return "donations" }

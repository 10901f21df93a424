// Package realtime fans server events out to connected clients. Clients
// subscribe to named channels (one per user, city, and blood type); the
// Router delivers each event at most once per connection over bounded,
// non-blocking buffers, and an optional Redis relay mirrors events across
// server instances.
package realtime

import (
	"strings"
	"time"
)

// Event types emitted to clients.
const (
	EventConnected         = "connected"
	EventPing              = "ping"
	EventEmergencyAlert    = "emergencyAlert"
	EventNewRequest        = "newRequest"
	EventRequestUpdated    = "requestUpdated"
	EventStatusUpdate      = "statusUpdate"
	EventDonorAvailability = "donorAvailabilityChanged"
)

// Event is a typed message with an arbitrary JSON payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Ping is the heartbeat payload.
type Ping struct {
	Timestamp time.Time `json:"timestamp"`
}

const (
	userPrefix      = "user:"
	cityPrefix      = "city:"
	bloodTypePrefix = "bloodType:"
)

// UserChannel names the private channel of a user. Empty ids yield "".
func UserChannel(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return userPrefix + id
}

// CityChannel names the channel for a city: lowercased, with runs of
// whitespace collapsed to a single '-'. Blank cities yield "".
func CityChannel(city string) string {
	parts := strings.Fields(strings.ToLower(city))
	if len(parts) == 0 {
		return ""
	}
	return cityPrefix + strings.Join(parts, "-")
}

// BloodTypeChannel names the channel for a blood type ("bloodType:O-").
func BloodTypeChannel(bt string) string {
	bt = strings.ToUpper(strings.TrimSpace(bt))
	if bt == "" {
		return ""
	}
	return bloodTypePrefix + bt
}

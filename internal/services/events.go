package services

import "github.com/tbourn/lifeline-backend/internal/realtime"

// EventPublisher is the realtime surface the services emit to.
// *realtime.Router satisfies it.
type EventPublisher interface {
	Publish(channel string, ev realtime.Event)
	PublishMany(channels []string, ev realtime.Event)
	BroadcastAll(ev realtime.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, realtime.Event)       {}
func (nopPublisher) PublishMany([]string, realtime.Event) {}
func (nopPublisher) BroadcastAll(realtime.Event)          {}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// StatusUpdate is sent on a donor's private channel when an administrator
// changes their verification status.
type StatusUpdate struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AvailabilityChange is broadcast when a donor toggles availability.
type AvailabilityChange struct {
	DonorID     string `json:"donorId"`
	IsAvailable bool   `json:"isAvailable"`
}

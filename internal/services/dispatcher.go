// Package services – Dispatcher
//
// The Dispatcher sends the emergency push for a request to every located
// donor that registered a device token, in a single multicast call bounded by
// a timeout. Outcomes are counted per donor:
//
//   - skipped:   donor has no token, or the provider is unavailable
//   - delivered: provider accepted the token
//   - failed:    provider rejected the token, or the call timed out
//
// Nothing is persisted and no error escapes.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/observability"
	"github.com/tbourn/lifeline-backend/internal/push"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPushTimeout bounds one provider call.
const DefaultPushTimeout = 10 * time.Second

// Push data discriminators.
const (
	PushTypeEmergency    = "emergency_request"
	PushTypeResponse     = "donor_response"
	PushTypeVerification = "verification"
)

// DispatchResult tallies fan-out outcomes.
type DispatchResult struct {
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Dispatcher fans push notifications out through a Provider.
type Dispatcher struct {
	Provider push.Provider
	Timeout  time.Duration
}

// NewDispatcher returns a Dispatcher; a nil provider behaves like push.Noop.
func NewDispatcher(p push.Provider, timeout time.Duration) *Dispatcher {
	if p == nil {
		p = push.Noop{}
	}
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	return &Dispatcher{Provider: p, Timeout: timeout}
}

// EmergencyMessage builds the multicast payload for a request.
func (d *Dispatcher) EmergencyMessage(r *domain.Request) push.Message {
	city := titleCase(r.City)
	return push.Message{
		Title: fmt.Sprintf("🚨 Emergency: %s Blood Needed!", r.BloodType),
		Body: fmt.Sprintf("%s needs %s blood at %s, %s. Urgency: %s",
			r.PatientName, r.BloodType, r.HospitalName, city, r.Urgency),
		Data: map[string]string{
			"requestId": r.ID,
			"bloodType": string(r.BloodType),
			"city":      r.City,
			"urgency":   string(r.Urgency),
			"type":      PushTypeEmergency,
		},
	}
}

// Dispatch sends the emergency push for r to donors.
func (d *Dispatcher) Dispatch(ctx context.Context, donors []domain.Donor, r *domain.Request) DispatchResult {
	tr := observability.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("request.id", r.ID),
			attribute.Int("donors", len(donors)),
		),
	)
	defer span.End()

	tokens := make([]string, 0, len(donors))
	for i := range donors {
		if donors[i].HasPushToken() {
			tokens = append(tokens, *donors[i].PushToken)
		}
	}
	res := DispatchResult{Skipped: len(donors) - len(tokens)}
	if len(tokens) == 0 {
		record(res)
		return res
	}

	batch, err := d.send(ctx, tokens, d.EmergencyMessage(r))
	switch {
	case err == nil:
		res.Delivered = min(batch.SuccessCount, len(tokens))
		res.Failed = len(tokens) - res.Delivered
		for _, f := range batch.Failures {
			log.Debug().Str("request_id", r.ID).Str("reason", f.Reason).Msg("push token rejected")
		}
	case isTimeout(err):
		log.Warn().Err(err).Str("request_id", r.ID).Int("tokens", len(tokens)).Msg("push provider timed out")
		res.Failed = len(tokens)
	default:
		log.Warn().Err(err).Str("request_id", r.ID).Msg("push provider unavailable; alerts skipped")
		res.Skipped = len(donors)
	}

	span.SetAttributes(
		attribute.Int("push.delivered", res.Delivered),
		attribute.Int("push.skipped", res.Skipped),
		attribute.Int("push.failed", res.Failed),
	)
	record(res)
	return res
}

// Notify sends msg to a single token. Errors are logged and returned; they
// never affect the caller's primary operation.
func (d *Dispatcher) Notify(ctx context.Context, token string, msg push.Message) error {
	if token == "" {
		return nil
	}
	_, err := d.send(ctx, []string{token}, msg)
	if err != nil && !errors.Is(err, push.ErrUnavailable) {
		log.Warn().Err(err).Str("type", msg.Data["type"]).Msg("push notify failed")
	}
	return err
}

type sendOutcome struct {
	batch push.BatchResult
	err   error
}

// send calls the provider under the dispatcher timeout and gives up when the
// deadline passes even if the provider ignores ctx.
func (d *Dispatcher) send(ctx context.Context, tokens []string, msg push.Message) (push.BatchResult, error) {
	cctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	done := make(chan sendOutcome, 1)
	go func() {
		b, err := d.Provider.SendMulticast(cctx, tokens, msg)
		done <- sendOutcome{batch: b, err: err}
	}()

	select {
	case out := <-done:
		return out.batch, out.err
	case <-cctx.Done():
		return push.BatchResult{}, fmt.Errorf("%w: %v", push.ErrTimeout, cctx.Err())
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	// cases.Caser is stateful; a fresh copy keeps Dispatch concurrency-safe.
	return cases.Title(language.Und).String(s)
}

func isTimeout(err error) bool {
	return errors.Is(err, push.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func record(r DispatchResult) {
	pushResults.WithLabelValues("delivered").Add(float64(r.Delivered))
	pushResults.WithLabelValues("skipped").Add(float64(r.Skipped))
	pushResults.WithLabelValues("failed").Add(float64(r.Failed))
}

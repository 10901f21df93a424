package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"
)

func registration(email string) map[string]any {
	return map[string]any{
		"name":       "Asha Patil",
		"email":      email,
		"password":   "s3cret!",
		"phone":      "+91-98220-00000",
		"blood_type": "O-",
		"city":       "Pune",
	}
}

func TestRegisterDonor(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/donors", anon, registration("Asha@Example.com"))
	wantStatus(t, w, http.StatusCreated)
	d := decode[domain.Donor](t, w)
	if d.Status != domain.DonorPending || d.Email != "asha@example.com" || !d.IsAvailable {
		t.Fatalf("donor: %+v", d)
	}
	if body := w.Body.String(); strings.Contains(body, "password") {
		t.Fatalf("password material leaked: %s", body)
	}

	w = app.do(t, http.MethodPost, "/donors", anon, registration("asha@example.com"))
	wantError(t, w, http.StatusConflict, ErrCodeEmailTaken)

	bad := registration("x@example.com")
	bad["password"] = "123"
	w = app.do(t, http.MethodPost, "/donors", anon, bad)
	wantError(t, w, http.StatusBadRequest, ErrCodeValidation)
}

func TestDonorProfile(t *testing.T) {
	app := newTestApp(t)
	seedDonor(t, app.db, "d1", domain.APos)
	me := as{"d1", domain.RoleDonor}

	w := app.do(t, http.MethodGet, "/donors/me", anon, nil)
	wantError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	w = app.do(t, http.MethodGet, "/donors/me", as{"ghost", domain.RoleDonor}, nil)
	wantError(t, w, http.StatusNotFound, ErrCodeNotFound)

	w = app.do(t, http.MethodGet, "/donors/me", me, nil)
	wantStatus(t, w, http.StatusOK)

	// Availability changes are broadcast.
	conn := app.events.Connect()
	defer app.events.Disconnect(conn)
	w = app.do(t, http.MethodPatch, "/donors/me", me, map[string]any{"is_available": false, "phone": "+91-1"})
	wantStatus(t, w, http.StatusOK)
	if d := decode[domain.Donor](t, w); d.IsAvailable || d.Phone != "+91-1" {
		t.Fatalf("update: %+v", d)
	}
	select {
	case ev := <-conn.Events():
		if ev.Type != realtime.EventDonorAvailability {
			t.Fatalf("event type=%s", ev.Type)
		}
	default:
		t.Fatalf("expected availability broadcast")
	}

	w = app.do(t, http.MethodPatch, "/donors/me", me, map[string]any{"name": " "})
	wantError(t, w, http.StatusBadRequest, ErrCodeValidation)
}

func TestDonorLocationAndPushToken(t *testing.T) {
	app := newTestApp(t)
	seedDonor(t, app.db, "d1", domain.APos)
	me := as{"d1", domain.RoleDonor}

	w := app.do(t, http.MethodPut, "/donors/me/location", me, map[string]any{"latitude": 19.076})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = app.do(t, http.MethodPut, "/donors/me/location", me, map[string]any{"latitude": 91, "longitude": 10})
	wantError(t, w, http.StatusBadRequest, ErrCodeValidation)

	w = app.do(t, http.MethodPut, "/donors/me/location", me, map[string]any{"latitude": 19.076, "longitude": 72.8777})
	wantStatus(t, w, http.StatusOK)
	if d := decode[domain.Donor](t, w); d.Latitude != 19.076 || !d.HasLocation {
		t.Fatalf("location: %+v", d)
	}

	w = app.do(t, http.MethodPut, "/donors/me/push-token", me, map[string]string{"token": "tok-1"})
	wantStatus(t, w, http.StatusNoContent)
	d, err := repo.GetDonor(context.Background(), app.db, "d1")
	if err != nil || !d.HasPushToken() || *d.PushToken != "tok-1" {
		t.Fatalf("token not stored: %+v %v", d, err)
	}
}

func TestSearchDonors(t *testing.T) {
	app := newTestApp(t)
	seedDonor(t, app.db, "o-neg", domain.ONeg)
	seedDonor(t, app.db, "b-pos", domain.BPos)

	w := app.do(t, http.MethodGet, "/donors/search?blood_type=A%2B&lat=18.52&lng=73.85", anon, nil)
	wantStatus(t, w, http.StatusOK)
	res := decode[SearchDonorsResponse](t, w)
	if res.Count != 1 || res.Donors[0].ID != "o-neg" || res.Donors[0].DistanceKm == nil {
		t.Fatalf("geo search: %+v", res)
	}
	if strings.Contains(w.Body.String(), "example.org") {
		t.Fatalf("search leaked contact details: %s", w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/donors/search?city=pune", anon, nil)
	wantStatus(t, w, http.StatusOK)
	if res = decode[SearchDonorsResponse](t, w); res.Count != 2 {
		t.Fatalf("city search: %+v", res)
	}

	w = app.do(t, http.MethodGet, "/donors/search?lat=abc&lng=1", anon, nil)
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = app.do(t, http.MethodGet, "/donors/search", anon, nil)
	wantError(t, w, http.StatusBadRequest, ErrCodeValidation)
}

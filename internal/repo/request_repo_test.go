package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/domain"
)

func migrateRequests(t *testing.T) *gorm.DB {
	t.Helper()
	return newTestDB(t, &domain.Request{}, &domain.Response{})
}

func TestGetRequest_NotFoundAndPreloadOrder(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	if _, err := GetRequest(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	seedRequest(t, db, domain.Request{ID: "r1"})
	t0 := time.Now().UTC().Truncate(time.Second)
	if _, err := AppendResponse(ctx, db, "r1", "d2", t0); err != nil {
		t.Fatalf("append d2: %v", err)
	}
	if _, err := AppendResponse(ctx, db, "r1", "d1", t0.Add(time.Second)); err != nil {
		t.Fatalf("append d1: %v", err)
	}

	got, err := GetRequest(ctx, db, "r1")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if len(got.Responses) != 2 || got.Responses[0].DonorID != "d2" || got.Responses[1].DonorID != "d1" {
		t.Fatalf("responses not in response order: %+v", got.Responses)
	}
}

func TestListRequestsPage_FiltersAndUrgencyOrder(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	owner := "u1"

	seedRequest(t, db, domain.Request{ID: "normal-new", Urgency: domain.UrgencyNormal, CreatedAt: base.Add(3 * time.Hour)})
	seedRequest(t, db, domain.Request{ID: "critical", Urgency: domain.UrgencyCritical, CreatedAt: base, RequestedBy: &owner})
	seedRequest(t, db, domain.Request{ID: "urgent", Urgency: domain.UrgencyUrgent, CreatedAt: base.Add(time.Hour)})
	seedRequest(t, db, domain.Request{ID: "normal-old", Urgency: domain.UrgencyNormal, CreatedAt: base.Add(2 * time.Hour)})
	seedRequest(t, db, domain.Request{ID: "elsewhere", Urgency: domain.UrgencyCritical, City: "Delhi", BloodType: domain.ABNeg, Status: domain.RequestFulfilled, CreatedAt: base})

	page, err := ListRequestsPage(ctx, db, RequestFilter{City: "PUNE"}, 0, 10)
	if err != nil {
		t.Fatalf("ListRequestsPage: %v", err)
	}
	want := []string{"critical", "urgent", "normal-new", "normal-old"}
	if len(page) != len(want) {
		t.Fatalf("got %d rows, want %d", len(page), len(want))
	}
	for i, id := range want {
		if page[i].ID != id {
			t.Fatalf("row %d = %s, want %s", i, page[i].ID, id)
		}
	}

	page, _ = ListRequestsPage(ctx, db, RequestFilter{City: "pune"}, 1, 2)
	if len(page) != 2 || page[0].ID != "urgent" || page[1].ID != "normal-new" {
		t.Fatalf("offset/limit page wrong: %+v", page)
	}

	n, err := CountRequests(ctx, db, RequestFilter{Status: domain.RequestFulfilled, BloodType: domain.ABNeg})
	if err != nil || n != 1 {
		t.Fatalf("CountRequests status+type = %d, %v", n, err)
	}
	n, _ = CountRequests(ctx, db, RequestFilter{Urgency: domain.UrgencyCritical})
	if n != 2 {
		t.Fatalf("CountRequests urgency = %d, want 2", n)
	}
	n, _ = CountRequests(ctx, db, RequestFilter{RequestedBy: "u1"})
	if n != 1 {
		t.Fatalf("CountRequests requested_by = %d, want 1", n)
	}
}

func TestSetNotifiedDonors_Overwrites(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	seedRequest(t, db, domain.Request{ID: "r1"})

	if err := SetNotifiedDonors(ctx, db, "r1", []string{"a", "b"}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := SetNotifiedDonors(ctx, db, "r1", []string{"c"}); err != nil {
		t.Fatalf("second set: %v", err)
	}
	got, _ := GetRequest(ctx, db, "r1")
	if len(got.NotifiedDonors) != 1 || got.NotifiedDonors[0] != "c" {
		t.Fatalf("notified donors = %v, want [c]", got.NotifiedDonors)
	}

	if err := SetNotifiedDonors(ctx, db, "r1", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = GetRequest(ctx, db, "r1")
	if len(got.NotifiedDonors) != 0 {
		t.Fatalf("expected empty list, got %v", got.NotifiedDonors)
	}

	if err := SetNotifiedDonors(ctx, db, "ghost", []string{"x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionRequest_OnlyFromOpenPending(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRequest(t, db, domain.Request{ID: "open", ExpiresAt: now.Add(time.Hour)})
	seedRequest(t, db, domain.Request{ID: "lapsed", ExpiresAt: now.Add(-time.Minute)})

	if err := TransitionRequest(ctx, db, "open", domain.RequestFulfilled, now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := TransitionRequest(ctx, db, "open", domain.RequestCancelled, now); err != ErrConditionFailed {
		t.Fatalf("terminal request moved again: %v", err)
	}
	if err := TransitionRequest(ctx, db, "lapsed", domain.RequestFulfilled, now); err != ErrConditionFailed {
		t.Fatalf("lapsed request must not be fulfilled: %v", err)
	}
	got, _ := GetRequest(ctx, db, "open")
	if got.Status != domain.RequestFulfilled {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestExpireOverdueRequests(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRequest(t, db, domain.Request{ID: "old", ExpiresAt: now.Add(-2 * time.Hour)})
	seedRequest(t, db, domain.Request{ID: "older", ExpiresAt: now.Add(-3 * time.Hour)})
	seedRequest(t, db, domain.Request{ID: "fresh", ExpiresAt: now.Add(time.Hour)})
	seedRequest(t, db, domain.Request{ID: "done", ExpiresAt: now.Add(-time.Hour), Status: domain.RequestCancelled})

	expired, err := ExpireOverdueRequests(ctx, db, now, 1)
	if err != nil || len(expired) != 1 || expired[0] != "older" {
		t.Fatalf("first batch = %v, %v", expired, err)
	}
	expired, _ = ExpireOverdueRequests(ctx, db, now, 10)
	if len(expired) != 1 || expired[0] != "old" {
		t.Fatalf("second batch = %v", expired)
	}
	expired, _ = ExpireOverdueRequests(ctx, db, now, 10)
	if len(expired) != 0 {
		t.Fatalf("nothing left to expire, got %v", expired)
	}

	for id, want := range map[string]domain.RequestStatus{
		"old": domain.RequestExpired, "older": domain.RequestExpired,
		"fresh": domain.RequestPending, "done": domain.RequestCancelled,
	} {
		got, _ := GetRequest(ctx, db, id)
		if got.Status != want {
			t.Fatalf("%s status = %s, want %s", id, got.Status, want)
		}
	}
}

func TestAppendResponse_Errors(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRequest(t, db, domain.Request{ID: "r1", ExpiresAt: now.Add(time.Hour)})
	seedRequest(t, db, domain.Request{ID: "closed", Status: domain.RequestFulfilled, ExpiresAt: now.Add(time.Hour)})
	seedRequest(t, db, domain.Request{ID: "lapsed", ExpiresAt: now.Add(-time.Second)})

	resp, err := AppendResponse(ctx, db, "r1", "d1", now)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if resp.Status != domain.ResponseInterested || resp.ID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, err := AppendResponse(ctx, db, "r1", "d1", now); err != ErrDuplicate {
		t.Fatalf("second response from same donor: %v", err)
	}
	if _, err := AppendResponse(ctx, db, "closed", "d1", now); err != ErrConditionFailed {
		t.Fatalf("response to fulfilled request: %v", err)
	}
	if _, err := AppendResponse(ctx, db, "lapsed", "d1", now); err != ErrConditionFailed {
		t.Fatalf("response to expired request: %v", err)
	}
	if _, err := AppendResponse(ctx, db, "ghost", "d1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("response to unknown request: %v", err)
	}
}

func TestAppendResponse_ConcurrentDistinctDonors(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	seedRequest(t, db, domain.Request{ID: "r1"})

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := AppendResponse(ctx, db, "r1", fmt.Sprintf("d%02d", i), time.Now().UTC())
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent append: %v", err)
		}
	}

	got, _ := GetRequest(ctx, db, "r1")
	if len(got.Responses) != n {
		t.Fatalf("responses = %d, want %d", len(got.Responses), n)
	}
	seen := map[string]bool{}
	for _, r := range got.Responses {
		if seen[r.DonorID] {
			t.Fatalf("duplicate donor %s", r.DonorID)
		}
		seen[r.DonorID] = true
	}
}

func TestAppendResponse_ConcurrentSameDonor(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	seedRequest(t, db, domain.Request{ID: "r1"})

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount, dupCount := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := AppendResponse(ctx, db, "r1", "same", time.Now().UTC())
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				okCount++
			case ErrDuplicate:
				dupCount++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if okCount != 1 || dupCount != n-1 {
		t.Fatalf("ok=%d dup=%d, want 1 and %d", okCount, dupCount, n-1)
	}
}

func TestAdvanceResponse_ForwardOnly(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRequest(t, db, domain.Request{ID: "r1"})
	if _, err := AppendResponse(ctx, db, "r1", "d1", now); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := AdvanceResponse(ctx, db, "r1", "d1", domain.ResponseInterested, now); err != ErrConditionFailed {
		t.Fatalf("Interested is never a target: %v", err)
	}
	if err := AdvanceResponse(ctx, db, "r1", "d1", domain.ResponseConfirmed, now); err != nil {
		t.Fatalf("Interested -> Confirmed: %v", err)
	}
	if err := AdvanceResponse(ctx, db, "r1", "d1", domain.ResponseConfirmed, now); err != ErrConditionFailed {
		t.Fatalf("Confirmed -> Confirmed must fail: %v", err)
	}
	if err := AdvanceResponse(ctx, db, "r1", "d1", domain.ResponseCompleted, now); err != nil {
		t.Fatalf("Confirmed -> Completed: %v", err)
	}
	if err := AdvanceResponse(ctx, db, "r1", "d1", domain.ResponseConfirmed, now); err != ErrConditionFailed {
		t.Fatalf("Completed -> Confirmed must fail: %v", err)
	}
	if err := AdvanceResponse(ctx, db, "r1", "nobody", domain.ResponseCompleted, now); err != ErrConditionFailed {
		t.Fatalf("missing response: %v", err)
	}

	got, err := GetResponse(ctx, db, "r1", "d1")
	if err != nil || got.Status != domain.ResponseCompleted {
		t.Fatalf("GetResponse: %+v %v", got, err)
	}
	if _, err := GetResponse(ctx, db, "r1", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestFilter_PassiveExpiry(t *testing.T) {
	db := migrateRequests(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRequest(t, db, domain.Request{ID: "open", ExpiresAt: now.Add(time.Hour)})
	seedRequest(t, db, domain.Request{ID: "lapsed", ExpiresAt: now.Add(-time.Hour)})
	seedRequest(t, db, domain.Request{ID: "swept", Status: domain.RequestExpired, ExpiresAt: now.Add(-2 * time.Hour)})

	pending, _ := ListRequestsPage(ctx, db, RequestFilter{Status: domain.RequestPending, Now: now}, 0, 10)
	if len(pending) != 1 || pending[0].ID != "open" {
		t.Fatalf("pending = %+v", pending)
	}
	n, _ := CountRequests(ctx, db, RequestFilter{Status: domain.RequestExpired, Now: now})
	if n != 2 {
		t.Fatalf("expired count = %d, want 2", n)
	}
	// Without Now the stored status is used as-is.
	n, _ = CountRequests(ctx, db, RequestFilter{Status: domain.RequestPending})
	if n != 2 {
		t.Fatalf("stored pending count = %d, want 2", n)
	}
}

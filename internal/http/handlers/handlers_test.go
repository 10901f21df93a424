package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/http/middleware"
	"github.com/tbourn/lifeline-backend/internal/push"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"
	"github.com/tbourn/lifeline-backend/internal/services"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// testApp wires real services over an in-memory database.
type testApp struct {
	db     *gorm.DB
	events *realtime.Router
	engine *gin.Engine
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	rt := realtime.NewRouter(realtime.Options{})
	t.Cleanup(rt.Close)

	disp := services.NewDispatcher(push.Noop{}, time.Second)
	loc := services.NewLocator(db)
	donations, err := services.NewDonationService(db, rt, 1)
	if err != nil {
		t.Fatalf("donation service: %v", err)
	}
	h := New(Deps{
		Requests:  services.NewRequestService(db, services.NewMatcher(db, loc, disp, rt), rt),
		Responses: &services.ResponseService{DB: db, Events: rt, Dispatcher: disp},
		Donors:    services.NewDonorService(db, loc, rt),
		Admin:     &services.AdminService{DB: db, Events: rt, Dispatcher: disp},
		Donations: donations,
		Events:    rt,
		DB:        db,
	})

	r := gin.New()
	r.Use(middleware.Identity())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/donors", h.RegisterDonor)
	r.GET("/donors/me", h.GetMe)
	r.PATCH("/donors/me", h.UpdateMe)
	r.PUT("/donors/me/location", h.UpdateMyLocation)
	r.PUT("/donors/me/push-token", h.SetMyPushToken)
	r.GET("/donors/search", h.SearchDonors)
	r.POST("/requests", h.CreateRequest)
	r.GET("/requests", h.ListRequests)
	r.GET("/requests/mine", h.MyRequests)
	r.GET("/requests/:id", h.GetRequest)
	r.PATCH("/requests/:id/status", h.UpdateRequestStatus)
	r.POST("/requests/:id/responses", h.RespondToRequest)
	r.PATCH("/requests/:id/responses/:donorId", h.AdvanceResponse)
	r.GET("/admin/donors", h.ListDonorsForReview)
	r.POST("/admin/donors/:id/verify", h.VerifyDonor)
	r.POST("/admin/donors/:id/reject", h.RejectDonor)
	r.POST("/donations", h.RecordDonation)
	r.GET("/donations/mine", h.MyDonations)
	r.GET("/events", h.StreamEvents)
	r.POST("/events/:connId/subscriptions", h.Subscribe)
	r.DELETE("/events/:connId/subscriptions", h.Unsubscribe)

	return &testApp{db: db, events: rt, engine: r}
}

// as describes the caller of a test request.
type as struct {
	id   string
	role domain.Role
}

var anon = as{}

func (a *testApp) do(t *testing.T, method, path string, who as, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, isString := body.(string); isString {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who.id != "" {
		req.Header.Set(middleware.HeaderUserID, who.id)
	}
	if who.role != "" {
		req.Header.Set(middleware.HeaderUserRole, string(who.role))
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status=%d want %d body=%s", w.Code, code, w.Body.String())
	}
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	wantStatus(t, w, status)
	if got := decode[ErrorResponse](t, w).Code; got != code {
		t.Fatalf("code=%q want %q", got, code)
	}
}

// seedDonor inserts a verified, available donor in Pune with a location.
func seedDonor(t *testing.T, db *gorm.DB, id string, bt domain.BloodType) *domain.Donor {
	t.Helper()
	d := &domain.Donor{
		ID:                   id,
		Name:                 "Donor " + id,
		Email:                id + "@example.org",
		PasswordHash:         "x",
		Phone:                "+91-0000",
		BloodType:            bt,
		City:                 "Pune",
		Latitude:             18.5204,
		Longitude:            73.8567,
		HasLocation:          true,
		IsAvailable:          true,
		NotificationsEnabled: true,
		Status:               domain.DonorVerified,
	}
	if err := repo.CreateDonor(context.Background(), db, d); err != nil {
		t.Fatalf("seed donor: %v", err)
	}
	return d
}

func punePayload(bt string) map[string]any {
	return map[string]any{
		"blood_type":    bt,
		"patient_name":  "R. Sharma",
		"hospital_name": "Ruby Hall Clinic",
		"city":          "Pune",
		"latitude":      18.52,
		"longitude":     73.85,
		"contact_phone": "+91-20-6645-5100",
		"urgency":       "Critical",
	}
}

func (a *testApp) createRequest(t *testing.T, who as, bt string) *domain.Request {
	t.Helper()
	w := a.do(t, http.MethodPost, "/requests", who, punePayload(bt))
	wantStatus(t, w, http.StatusCreated)
	return decode[CreateRequestResponse](t, w).Request
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/lifeline-backend/internal/http/middleware"
	"github.com/tbourn/lifeline-backend/internal/services"
)

func envelopeEngine(pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(pre...)
	r.GET("/boom", func(c *gin.Context) { fail(c, http.StatusInternalServerError, ErrCodeInternal, "matcher unavailable") })
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found") })
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"status": "pending", "units": 2}) })
	r.DELETE("/gone", func(c *gin.Context) { noContent(c) })
	return r
}

func getWithID(r *gin.Engine, method, path, rid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Request-ID", rid)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFail_ServerErrorIsLoggedOnScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	scoped := zerolog.New(&buf).With().Str("scope", "test").Logger()
	r := envelopeEngine(func(c *gin.Context) {
		c.Set("logger", &scoped)
		c.Next()
	})

	w := getWithID(r, http.MethodGet, "/boom", "rid-500")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp != (ErrorResponse{RequestID: "rid-500", Code: ErrCodeInternal, Message: "matcher unavailable"}) {
		t.Fatalf("unexpected body: %+v", resp)
	}
	logs := buf.String()
	if !strings.Contains(logs, `"level":"error"`) || !strings.Contains(logs, `"scope":"test"`) {
		t.Fatalf("expected error on scoped logger, got: %s", logs)
	}
}

func TestFail_ClientErrorIsNotLogged(t *testing.T) {
	var buf bytes.Buffer
	scoped := zerolog.New(&buf)
	r := envelopeEngine(func(c *gin.Context) {
		c.Set("logger", &scoped)
		c.Next()
	})

	w := getWithID(r, http.MethodGet, "/missing", "rid-404")
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusNotFound || resp.RequestID != "rid-404" || resp.Code != ErrCodeNotFound {
		t.Fatalf("status=%d body=%+v", w.Code, resp)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not log: %s", buf.String())
	}
}

func TestSuccessHelpers(t *testing.T) {
	r := envelopeEngine()

	w := getWithID(r, http.MethodGet, "/ok", "rid-ok")
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusCreated || body["status"] != "pending" || body["units"] != float64(2) {
		t.Fatalf("status=%d body=%v", w.Code, body)
	}

	w = getWithID(r, http.MethodDelete, "/gone", "rid-gone")
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("status=%d len=%d", w.Code, w.Body.Len())
	}
}

func TestFailErr_MapsServiceErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{fmt.Errorf("%w: city is required", services.ErrValidation), http.StatusBadRequest, ErrCodeValidation, "city is required"},
		{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden, ""},
		{fmt.Errorf("load: %w", services.ErrRequestNotFound), http.StatusNotFound, ErrCodeNotFound, ""},
		{services.ErrDonorNotFound, http.StatusNotFound, ErrCodeNotFound, ""},
		{services.ErrResponseNotFound, http.StatusNotFound, ErrCodeNotFound, ""},
		{services.ErrDuplicateResponse, http.StatusConflict, ErrCodeDuplicateResponse, ""},
		{services.ErrRequestNotPending, http.StatusConflict, ErrCodeRequestNotPending, ""},
		{services.ErrInvalidTransition, http.StatusConflict, ErrCodeInvalidTransition, ""},
		{services.ErrEmailTaken, http.StatusConflict, ErrCodeEmailTaken, ""},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeCreateFailed, "disk on fire"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		failErr(c, tc.err, ErrCodeCreateFailed)

		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json: %v", err)
		}
		if w.Code != tc.status || resp.Code != tc.code {
			t.Fatalf("%v: status=%d code=%q, want %d %q", tc.err, w.Code, resp.Code, tc.status, tc.code)
		}
		if tc.msg != "" && resp.Message != tc.msg {
			t.Fatalf("%v: message=%q want %q", tc.err, resp.Message, tc.msg)
		}
	}
}

func TestValidationMessage(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("%w: blood_type: bad", services.ErrValidation): "blood_type: bad",
		errors.New("plain"): "plain",
		fmt.Errorf("create: %w: units_needed too large", services.ErrValidation): "create: validation failed: units_needed too large",
	}
	for err, want := range cases {
		if got := validationMessage(err); got != want {
			t.Errorf("validationMessage(%q) = %q, want %q", err, got, want)
		}
	}
}

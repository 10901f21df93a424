// Event stream handlers.
//
//   - GET  /events                             (Server-Sent Events stream)
//   - POST /events/{connId}/subscriptions      (join user, city, or blood type channels)
//   - DELETE /events/{connId}/subscriptions    (leave them)
//
// The first event on a stream is `connected` carrying the connection id the
// client uses to add subscriptions. Identified callers are joined to their
// private user channel on connect. Heartbeats come from the router.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/lifeline-backend/internal/domain"
	"github.com/tbourn/lifeline-backend/internal/http/middleware"
	"github.com/tbourn/lifeline-backend/internal/realtime"
)

// Connected is the payload of the first stream event.
type Connected struct {
	ConnectionID string   `json:"connectionId"`
	Channels     []string `json:"channels"`
}

// SubscribeRequest joins location and blood type channels. Join adds the
// caller's own user channel.
type SubscribeRequest struct {
	Join      bool   `json:"join,omitempty"`
	City      string `json:"city,omitempty" example:"Pune"`
	BloodType string `json:"blood_type,omitempty" example:"O-"`
}

// SubscribeResponse lists every channel the connection is now on.
type SubscribeResponse struct {
	ConnectionID string   `json:"connectionId"`
	Channels     []string `json:"channels"`
}

// locationChannels resolves city and blood type into channel names.
func locationChannels(city, bloodType string) ([]string, error) {
	var out []string
	if ch := realtime.CityChannel(city); ch != "" {
		out = append(out, ch)
	}
	if strings.TrimSpace(bloodType) != "" {
		bt, err := domain.ParseBloodType(bloodType)
		if err != nil {
			return nil, err
		}
		out = append(out, realtime.BloodTypeChannel(string(bt)))
	}
	return out, nil
}

func writeEvent(w io.Writer, ev realtime.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// StreamEvents godoc
// @ID          streamEvents
// @Summary     Subscribe to realtime events
// @Description Server-Sent Events. Optional city and blood_type join location channels at connect.
// @Tags        Events
// @Produce     text/event-stream
// @Param       X-User-ID   header  string  false "Caller id (joins user:<id>)"
// @Param       city        query   string  false "City channel"
// @Param       blood_type  query   string  false "Blood type channel"
// @Success     200  {string} string "event stream"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     503  {object} handlers.ErrorResponse "Realtime disabled"
// @Router      /events [get]
func (h *Handlers) StreamEvents(c *gin.Context) {
	if h.events == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "realtime disabled")
		return
	}
	extra, err := locationChannels(c.Query("city"), c.Query("blood_type"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	conn := h.events.Connect()
	defer h.events.Disconnect(conn)

	if ch := realtime.UserChannel(middleware.IdentityFrom(c).ID); ch != "" {
		h.events.Subscribe(conn, ch)
	}
	for _, ch := range extra {
		h.events.Subscribe(conn, ch)
	}

	// The server's WriteTimeout would cut the stream; it lives until the
	// client leaves or the router closes.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Debug().Err(err).Msg("event stream keeps server write deadline")
	}

	w := c.Writer
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := io.WriteString(w, "retry: 2000\n\n"); err != nil {
		return
	}
	hello := realtime.Event{
		Type: realtime.EventConnected,
		Data: Connected{ConnectionID: conn.ID(), Channels: h.events.Channels(conn)},
	}
	if err := writeEvent(w, hello); err != nil {
		return
	}
	w.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case ev := <-conn.Events():
			if err := writeEvent(w, ev); err != nil {
				return
			}
			w.Flush()
		}
	}
}

// Subscribe godoc
// @ID          subscribeEvents
// @Summary     Join more channels on an open stream
// @Tags        Events
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Caller id (required for join)"
// @Param       connId     path    string  true  "Connection id from the connected event"
// @Param       body       body    handlers.SubscribeRequest  true  "Channels to join"
// @Success     200  {object} handlers.SubscribeResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Identity required for join"
// @Failure     404  {object} handlers.ErrorResponse "Connection not found"
// @Router      /events/{connId}/subscriptions [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	conn, channels, found := h.subscriptionTarget(c)
	if !found {
		return
	}
	for _, ch := range channels {
		if !h.events.Subscribe(conn, ch) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "connection not found")
			return
		}
	}
	ok(c, http.StatusOK, SubscribeResponse{ConnectionID: conn.ID(), Channels: h.events.Channels(conn)})
}

// Unsubscribe godoc
// @ID          unsubscribeEvents
// @Summary     Leave channels on an open stream
// @Tags        Events
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Caller id (required for join)"
// @Param       connId     path    string  true  "Connection id from the connected event"
// @Param       body       body    handlers.SubscribeRequest  true  "Channels to leave"
// @Success     200  {object} handlers.SubscribeResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Identity required for join"
// @Failure     404  {object} handlers.ErrorResponse "Connection not found"
// @Router      /events/{connId}/subscriptions [delete]
func (h *Handlers) Unsubscribe(c *gin.Context) {
	conn, channels, found := h.subscriptionTarget(c)
	if !found {
		return
	}
	for _, ch := range channels {
		h.events.Unsubscribe(conn, ch)
	}
	ok(c, http.StatusOK, SubscribeResponse{ConnectionID: conn.ID(), Channels: h.events.Channels(conn)})
}

// subscriptionTarget resolves the connection and the channels named by the
// body. On false the error response has been written.
func (h *Handlers) subscriptionTarget(c *gin.Context) (*realtime.Conn, []string, bool) {
	if h.events == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "realtime disabled")
		return nil, nil, false
	}
	conn, found := h.events.Lookup(c.Param("connId"))
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "connection not found")
		return nil, nil, false
	}
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return nil, nil, false
	}
	channels, err := locationChannels(req.City, req.BloodType)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return nil, nil, false
	}
	if req.Join {
		who := middleware.IdentityFrom(c)
		if who.Anonymous() {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID required")
			return nil, nil, false
		}
		channels = append(channels, realtime.UserChannel(who.ID))
	}
	if len(channels) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no channels named")
		return nil, nil, false
	}
	return conn, channels, true
}

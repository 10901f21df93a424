package httpapi

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/lifeline-backend/internal/push"
	"github.com/tbourn/lifeline-backend/internal/realtime"
)

func TestEventStream_OutlivesServerWriteTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const writeTimeout = 150 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rt := realtime.NewRouter(realtime.Options{Heartbeat: 3 * writeTimeout})
	t.Cleanup(rt.Close)
	go rt.Run(ctx)

	cfg := baseConfig()
	deps, err := NewDeps(migratedDB(t), rt, push.Noop{}, cfg)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	r := gin.New()
	RegisterRoutes(r, cfg, deps)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: r, WriteTimeout: writeTimeout}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ln.Addr().String()+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	start := time.Now()
	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		ev := strings.TrimPrefix(line, "event: ")
		events = append(events, ev)
		if ev == realtime.EventPing {
			break
		}
	}
	if len(events) < 2 || events[0] != realtime.EventConnected || events[len(events)-1] != realtime.EventPing {
		t.Fatalf("events=%v err=%v", events, sc.Err())
	}
	if elapsed := time.Since(start); elapsed < writeTimeout {
		t.Fatalf("ping after %v, expected it past the %v write timeout", elapsed, writeTimeout)
	}
}

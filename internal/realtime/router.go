package realtime

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBuffer    = 32
	DefaultHeartbeat = 30 * time.Second
)

// Options configures a Router. Zero values take the defaults.
type Options struct {
	Buffer    int
	Heartbeat time.Duration
	Now       func() time.Time
}

// Forwarder receives every locally published event so it can be mirrored to
// other instances. Forward must not block.
type Forwarder interface {
	Forward(env Envelope)
}

// Envelope is an event together with its routing.
type Envelope struct {
	Origin    string   `json:"origin,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	Broadcast bool     `json:"broadcast,omitempty"`
	Event     Event    `json:"event"`
}

// Conn is one connected client. Events are read from Events() until Done()
// is closed; the events channel itself is never closed.
type Conn struct {
	id     string
	events chan Event
	done   chan struct{}
	once   sync.Once

	// guarded by Router.mu
	subs map[string]struct{}
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// Events returns the receive side of the connection buffer.
func (c *Conn) Events() <-chan Event { return c.events }

// Done is closed when the connection has been disconnected.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	default:
		droppedEvents.Inc()
		return false
	}
}

// Router maps channels to connections. It is safe for concurrent use.
// Sends happen outside the lock on a snapshot of the recipients.
type Router struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	channels map[string]map[string]*Conn
	relay    Forwarder
	closed   bool

	buffer    int
	heartbeat time.Duration
	now       func() time.Time

	quit      chan struct{}
	closeOnce sync.Once
}

// NewRouter creates an empty router.
func NewRouter(opts Options) *Router {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Router{
		conns:     make(map[string]*Conn),
		channels:  make(map[string]map[string]*Conn),
		buffer:    opts.Buffer,
		heartbeat: opts.Heartbeat,
		now:       opts.Now,
		quit:      make(chan struct{}),
	}
}

// SetRelay attaches a cross-instance forwarder. Pass nil to detach.
func (r *Router) SetRelay(f Forwarder) {
	r.mu.Lock()
	r.relay = f
	r.mu.Unlock()
}

// Connect registers a new connection. After Close it returns a connection
// that is already done.
func (r *Router) Connect() *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		events: make(chan Event, r.buffer),
		done:   make(chan struct{}),
		subs:   make(map[string]struct{}),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(c.done)
		return c
	}
	r.conns[c.id] = c
	connectionsGauge.Inc()
	return c
}

// Lookup returns the live connection with the given id.
func (r *Router) Lookup(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Subscribe adds c to channel. Subscribing twice is a no-op. It reports
// false when c is no longer connected or the channel name is empty.
func (r *Router) Subscribe(c *Conn, channel string) bool {
	channel = strings.TrimSpace(channel)
	if c == nil || channel == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.id]; !ok {
		return false
	}
	members := r.channels[channel]
	if members == nil {
		members = make(map[string]*Conn)
		r.channels[channel] = members
	}
	members[c.id] = c
	c.subs[channel] = struct{}{}
	return true
}

// Unsubscribe removes c from channel.
func (r *Router) Unsubscribe(c *Conn, channel string) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(c, channel)
}

func (r *Router) unsubscribeLocked(c *Conn, channel string) {
	delete(c.subs, channel)
	if members := r.channels[channel]; members != nil {
		delete(members, c.id)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
}

// Channels returns the sorted channel names c is subscribed to.
func (r *Router) Channels(c *Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Disconnect drops every subscription of c and closes its Done channel.
func (r *Router) Disconnect(c *Conn) {
	if c == nil {
		return
	}
	r.mu.Lock()
	if _, ok := r.conns[c.id]; ok {
		for ch := range c.subs {
			r.unsubscribeLocked(c, ch)
		}
		delete(r.conns, c.id)
		connectionsGauge.Dec()
	}
	r.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

// Count returns the number of live connections.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Publish delivers ev to every subscriber of channel.
func (r *Router) Publish(channel string, ev Event) {
	r.PublishMany([]string{channel}, ev)
}

// PublishMany delivers ev to the union of the subscribers of channels. A
// connection subscribed to several of them receives ev once.
func (r *Router) PublishMany(channels []string, ev Event) {
	chs := compact(channels)
	if len(chs) == 0 {
		return
	}
	r.deliver(chs, false, ev)
	r.forward(Envelope{Channels: chs, Event: ev})
}

// BroadcastAll delivers ev to every live connection.
func (r *Router) BroadcastAll(ev Event) {
	r.deliver(nil, true, ev)
	r.forward(Envelope{Broadcast: true, Event: ev})
}

// DeliverLocal routes an envelope received from another instance to local
// connections only.
func (r *Router) DeliverLocal(env Envelope) {
	if env.Broadcast {
		r.deliver(nil, true, env.Event)
		return
	}
	if chs := compact(env.Channels); len(chs) > 0 {
		r.deliver(chs, false, env.Event)
	}
}

func (r *Router) deliver(channels []string, broadcast bool, ev Event) int {
	r.mu.RLock()
	var targets []*Conn
	if broadcast {
		targets = make([]*Conn, 0, len(r.conns))
		for _, c := range r.conns {
			targets = append(targets, c)
		}
	} else {
		seen := make(map[string]struct{})
		for _, ch := range channels {
			for id, c := range r.channels[ch] {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				targets = append(targets, c)
			}
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.send(ev) {
			sent++
		}
	}
	return sent
}

func (r *Router) forward(env Envelope) {
	r.mu.RLock()
	f := r.relay
	r.mu.RUnlock()
	if f != nil {
		f.Forward(env)
	}
}

// Run emits a ping to every connection on each heartbeat tick until ctx is
// done or the router is closed. Pings are local and never relayed.
func (r *Router) Run(ctx context.Context) {
	t := time.NewTicker(r.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.quit:
			return
		case <-t.C:
			n := r.deliver(nil, true, Event{Type: EventPing, Data: Ping{Timestamp: r.now()}})
			log.Debug().Int("connections", n).Msg("realtime heartbeat")
		}
	}
}

// Close disconnects every client and stops Run. Further connections are
// born closed.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		conns := make([]*Conn, 0, len(r.conns))
		for _, c := range r.conns {
			conns = append(conns, c)
		}
		r.mu.Unlock()
		for _, c := range conns {
			r.Disconnect(c)
		}
		close(r.quit)
	})
}

func compact(channels []string) []string {
	out := make([]string, 0, len(channels))
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}

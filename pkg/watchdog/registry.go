// Package watchdog detects tasks that stop making progress.
//
// Tasks register once with a timeout and then Feed their Handle on every
// loop iteration, on the data path and on the timeout path alike. A Monitor
// scans the Registry periodically and raises one Alert per hang episode.
package watchdog

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the registry size used by the system.
const DefaultCapacity = 8

var (
	// ErrRegistryFull indicates all entries are in use.
	ErrRegistryFull = errors.New("watchdog: registry full")
	// ErrInvalidTimeout indicates a non-positive timeout.
	ErrInvalidTimeout = errors.New("watchdog: timeout must be positive")
)

// Handle identifies a registered entry.
type Handle int

// InvalidHandle is returned when registration fails. Feeding it is a no-op.
const InvalidHandle Handle = -1

// Valid reports whether h was returned by a successful Register.
func (h Handle) Valid() bool { return h >= 0 }

type entry struct {
	name       string
	timeout    time.Duration
	registered time.Duration

	// lastFeed and alertedAt are offsets from the registry epoch.
	// alertedAt holds lastFeed+1 of the feed an alert was raised for, so a
	// newer feed implicitly clears the alerted state.
	lastFeed  atomic.Int64
	alertedAt atomic.Int64
	alerts    atomic.Uint32
}

func (e *entry) alerted() bool {
	return e.alertedAt.Load() == e.lastFeed.Load()+1
}

// Status is a point-in-time view of an entry.
type Status struct {
	Handle   Handle
	Name     string
	Timeout  time.Duration
	Elapsed  time.Duration
	Alerted  bool
	Alerts   uint32
	LastFeed time.Time
}

// Registry is a fixed-capacity table of monitored tasks.
type Registry struct {
	now   func() time.Time
	epoch time.Time

	mu      sync.Mutex // serializes Register
	entries []entry
	count   atomic.Int32

	scanMu sync.Mutex
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry holding at most capacity entries.
func NewRegistry(capacity int, opts ...RegistryOption) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Registry{now: time.Now, entries: make([]entry, capacity)}
	for _, o := range opts {
		o(r)
	}
	r.epoch = r.now()
	return r
}

// Cap returns the registry capacity.
func (r *Registry) Cap() int { return len(r.entries) }

// Len returns the number of registered entries.
func (r *Registry) Len() int { return int(r.count.Load()) }

func (r *Registry) offset(t time.Time) time.Duration {
	return t.Sub(r.epoch)
}

// Register adds an entry with last-feed set to now.
func (r *Registry) Register(name string, timeout time.Duration) (Handle, error) {
	if timeout <= 0 {
		return InvalidHandle, ErrInvalidTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int(r.count.Load())
	if n >= len(r.entries) {
		return InvalidHandle, ErrRegistryFull
	}
	e := &r.entries[n]
	e.name = name
	e.timeout = timeout
	e.registered = r.offset(r.now())
	e.lastFeed.Store(int64(e.registered))
	e.alertedAt.Store(math.MinInt64)
	// publishes the entry to Feed and Scan
	r.count.Store(int32(n + 1))
	return Handle(n), nil
}

func (r *Registry) entry(h Handle) *entry {
	if h < 0 || int(h) >= int(r.count.Load()) {
		return nil
	}
	return &r.entries[h]
}

// Feed records that the task owning h is alive. It never blocks and ignores
// unknown handles.
func (r *Registry) Feed(h Handle) {
	e := r.entry(h)
	if e == nil {
		return
	}
	t := int64(r.offset(r.now()))
	for {
		last := e.lastFeed.Load()
		if t <= last || e.lastFeed.CompareAndSwap(last, t) {
			return
		}
	}
}

// Name returns the name registered for h.
func (r *Registry) Name(h Handle) string {
	if e := r.entry(h); e != nil {
		return e.name
	}
	return ""
}

// Entries returns the status of all registered entries.
func (r *Registry) Entries() []Status {
	now := r.offset(r.now())
	n := int(r.count.Load())
	out := make([]Status, 0, n)
	for i := 0; i < n; i++ {
		e := &r.entries[i]
		last := time.Duration(e.lastFeed.Load())
		out = append(out, Status{
			Handle:   Handle(i),
			Name:     e.name,
			Timeout:  e.timeout,
			Elapsed:  now - last,
			Alerted:  e.alerted(),
			Alerts:   e.alerts.Load(),
			LastFeed: r.epoch.Add(last),
		})
	}
	return out
}

// Scan checks every entry against now and returns an Alert for each entry
// that exceeded its timeout and was not already reported for the same feed.
func (r *Registry) Scan(now time.Time) []Alert {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	at := r.offset(now)
	n := int(r.count.Load())
	var alerts []Alert
	for i := 0; i < n; i++ {
		e := &r.entries[i]
		last := e.lastFeed.Load()
		elapsed := at - time.Duration(last)
		if elapsed <= e.timeout || e.alertedAt.Load() == last+1 {
			continue
		}
		e.alertedAt.Store(last + 1)
		alerts = append(alerts, Alert{
			Handle:  Handle(i),
			ID:      i,
			Name:    e.name,
			Elapsed: elapsed,
			Timeout: e.timeout,
			Count:   e.alerts.Add(1),
			At:      now,
			EventID: uuid.New(),
		})
	}
	return alerts
}

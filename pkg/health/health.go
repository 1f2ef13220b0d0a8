// Package health provides liveness and readiness probes for the API server.
//
// Probes run on a shared background ticker. A probe flips to failing only
// after three consecutive errors, and back to passing on the first success,
// so a single slow database ping does not bounce the pod out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// failureThreshold is the number of consecutive errors before a probe is
// reported as failing.
const failureThreshold = 3

// CheckFunc probes one component; nil means healthy.
type CheckFunc func(ctx context.Context) error

type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	failing atomic.Bool
	lastErr atomic.Pointer[error]

	// consecutive error count, touched only by the runner goroutine.
	fails int
}

func (p *probe) run(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(probeCtx)
	p.lastErr.Store(&err)

	if err != nil {
		p.fails++
		if p.fails >= failureThreshold {
			p.failing.Store(true)
		}
		return
	}
	p.fails = 0
	p.failing.Store(false)
}

func (p *probe) failure() (string, bool) {
	if !p.failing.Load() {
		return "", false
	}
	if errp := p.lastErr.Load(); errp != nil && *errp != nil {
		return (*errp).Error(), true
	}
	return "check failed", true
}

// Health manages the liveness and readiness probes of a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health in the not-ready state; call SetReady(true) once
// initialization finishes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe for /livez (is the process functioning).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, &probe{name: name, timeout: timeout, check: check})
}

// AddReadinessCheck registers a probe for /readyz (can the service take
// traffic, e.g. database connectivity).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, &probe{name: name, timeout: timeout, check: check})
}

// Start runs all registered probes on a background ticker until ctx is
// cancelled or Stop is called. Register probes before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	go func() {
		for _, p := range probes {
			p.run(ctx)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range probes {
					p.run(ctx)
				}
			}
		}
	}()
}

// Stop cancels the probe runner. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate: true after initialization, false
// when draining during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is manually marked ready and every
// readiness probe is passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.readiness {
		if p.failing.Load() {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 when all liveness probes pass, 503 with
// failure details otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := append([]*probe(nil), h.liveness...)
	h.mu.RUnlock()

	writeStatus(w, failures(probes))
}

// ReadyEndpoint serves /readyz: 200 only when the service is marked ready and
// all readiness probes pass.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := append([]*probe(nil), h.readiness...)
	h.mu.RUnlock()

	fs := failures(probes)
	if !h.ready.Load() {
		fs["_readiness"] = "service is not ready"
	}
	writeStatus(w, fs)
}

func failures(probes []*probe) map[string]string {
	fs := make(map[string]string)
	for _, p := range probes {
		if msg, failing := p.failure(); failing {
			fs[p.name] = msg
		}
	}
	return fs
}

func writeStatus(w http.ResponseWriter, fs map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	if len(fs) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(statusResponse{Status: "unhealthy", Checks: fs})
		return
	}
	_ = json.NewEncoder(w).Encode(statusResponse{Status: "ok"})
}

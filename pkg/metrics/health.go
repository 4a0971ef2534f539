package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Components that must be healthy before the seed reports ready
const (
	ComponentWhitelist = "whitelist"
	ComponentDNS       = "dns"
)

// Overall states reported by /health and /ready
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
	// StatusDegraded means the seed answers queries, but from data that is
	// not the result of its latest refresh attempt.
	StatusDegraded = "degraded"
)

// HealthStatus is the body of the /health and /ready endpoints
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Seed       SeedStatus        `json:"seed"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// SeedStatus describes the data the DNS server is answering with
type SeedStatus struct {
	WhitelistSize       int        `json:"whitelistSize"`
	LastRefresh         *time.Time `json:"lastRefresh,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	Restored            bool       `json:"restored"`
	RestoredRecords     int        `json:"restoredRecords,omitempty"`
	PersistError        string     `json:"persistError,omitempty"`
}

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker keeps the component states and the refresh history behind
// the health endpoints.
type HealthChecker struct {
	mu         sync.RWMutex
	clock      clock.Clock
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
	seed       SeedStatus
}

var healthChecker = NewHealthChecker(clock.New())

// NewHealthChecker creates a checker whose timestamps come from clk
func NewHealthChecker(clk clock.Clock) *HealthChecker {
	if clk == nil {
		clk = clock.New()
	}
	return &HealthChecker{
		clock:      clk,
		components: make(map[string]ComponentHealth),
		startTime:  clk.Now(),
	}
}

// DefaultHealthChecker returns the process-wide checker served by the
// package-level handlers.
func DefaultHealthChecker() *HealthChecker {
	return healthChecker
}

// SetVersion sets the version string for health responses
func (h *HealthChecker) SetVersion(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = version
}

// UpdateComponent sets the state of a component, registering it if needed
func (h *HealthChecker) UpdateComponent(name string, healthy bool, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setComponent(name, healthy, message)
}

func (h *HealthChecker) setComponent(name string, healthy bool, message string) {
	h.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: h.clock.Now(),
	}
}

// RecordRestore notes that a persisted master file with records entries is
// being served before any refresh ran.
func (h *HealthChecker) RecordRestore(records int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seed.Restored = true
	h.seed.RestoredRecords = records
}

// RecordRefresh notes a successful whitelist refresh of size peers
func (h *HealthChecker) RecordRefresh(size int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	h.seed.WhitelistSize = size
	h.seed.LastRefresh = &now
	h.seed.ConsecutiveFailures = 0
	h.seed.LastError = ""
	h.setComponent(ComponentWhitelist, true, "")
}

// RecordRefreshFailure notes a failed whitelist refresh. The whitelist
// component stays healthy if an earlier refresh or a restore left data to
// answer with.
func (h *HealthChecker) RecordRefreshFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seed.ConsecutiveFailures++
	h.seed.LastError = err.Error()
	serving := h.seed.LastRefresh != nil || h.seed.Restored
	h.setComponent(ComponentWhitelist, serving, err.Error())
}

// RecordPersist notes the outcome of writing the master file to disk
func (h *HealthChecker) RecordPersist(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.seed.PersistError = err.Error()
		return
	}
	h.seed.PersistError = ""
}

// Health returns the overall health status. Any unhealthy component makes
// the seed unhealthy; a refresh or persist error on top of served data makes
// it degraded.
func (h *HealthChecker) Health() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := StatusHealthy
	components := make(map[string]string)
	for name, comp := range h.components {
		if !comp.Healthy {
			status = StatusUnhealthy
			components[name] = "unhealthy: " + comp.Message
			continue
		}
		components[name] = "healthy"
	}

	message := ""
	if status == StatusHealthy {
		status, message = h.degradation(StatusHealthy)
	}
	return h.status(status, message, components)
}

// Readiness reports whether the seed can answer queries: the DNS server is
// listening and the whitelist has been refreshed or restored from disk.
func (h *HealthChecker) Readiness() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := StatusReady
	message := ""
	components := make(map[string]string)
	for _, name := range []string{ComponentWhitelist, ComponentDNS} {
		comp, ok := h.components[name]
		switch {
		case !ok:
			status = StatusNotReady
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.Healthy:
			status = StatusNotReady
			message = "waiting for " + name
			components[name] = "not ready: " + comp.Message
		default:
			components[name] = "ready"
		}
	}

	if status == StatusReady {
		status, message = h.degradation(StatusReady)
	}
	return h.status(status, message, components)
}

// degradation must be called with h.mu held
func (h *HealthChecker) degradation(ok string) (string, string) {
	switch {
	case h.seed.LastRefresh == nil && h.seed.Restored:
		return StatusDegraded, "serving restored master file, no refresh has succeeded yet"
	case h.seed.ConsecutiveFailures > 0:
		return StatusDegraded, "serving last good whitelist after failed refresh"
	case h.seed.PersistError != "":
		return StatusDegraded, "master file not persisted"
	}
	return ok, ""
}

func (h *HealthChecker) status(status, message string, components map[string]string) HealthStatus {
	seed := h.seed
	if seed.LastRefresh != nil {
		t := *seed.LastRefresh
		seed.LastRefresh = &t
	}
	return HealthStatus{
		Status:     status,
		Timestamp:  h.clock.Now(),
		Components: components,
		Seed:       seed,
		Message:    message,
		Version:    h.version,
		Uptime:     h.clock.Since(h.startTime).String(),
	}
}

// HealthHandler serves Health. Degraded is still 200.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.Health()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}

// ReadyHandler serves Readiness. A degraded seed still answers queries and
// is reported ready with a 200.
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := h.Readiness()
		code := http.StatusOK
		if readiness.Status == StatusNotReady {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, readiness)
	}
}

// LivenessHandler returns 200 as long as the process is running
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": h.clock.Since(h.startTime).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// SetVersion sets the version reported by the default checker
func SetVersion(version string) { healthChecker.SetVersion(version) }

// RegisterComponent registers a component on the default checker
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.UpdateComponent(name, healthy, message)
}

// UpdateComponent updates a component on the default checker
func UpdateComponent(name string, healthy bool, message string) {
	healthChecker.UpdateComponent(name, healthy, message)
}

// GetHealth returns the health of the default checker
func GetHealth() HealthStatus { return healthChecker.Health() }

// GetReadiness returns the readiness of the default checker
func GetReadiness() HealthStatus { return healthChecker.Readiness() }

// HealthHandler serves /health from the default checker
func HealthHandler() http.HandlerFunc { return healthChecker.HealthHandler() }

// ReadyHandler serves /ready from the default checker
func ReadyHandler() http.HandlerFunc { return healthChecker.ReadyHandler() }

// LivenessHandler serves /live from the default checker
func LivenessHandler() http.HandlerFunc { return healthChecker.LivenessHandler() }

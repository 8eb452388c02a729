package httpapi

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Checker reports whether one dependency is reachable.
type Checker func(ctx context.Context) error

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthReport struct {
	Status       string                 `json:"status"`
	Timestamp    time.Time              `json:"timestamp"`
	Uptime       string                 `json:"uptime"`
	Dependencies map[string]checkResult `json:"dependencies,omitempty"`
}

// Health runs every registered checker concurrently and answers 200 when
// all pass, 503 otherwise.
type Health struct {
	started  time.Time
	timeout  time.Duration
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewHealth(timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Health{started: time.Now(), timeout: timeout, checkers: make(map[string]Checker)}
}

// Register adds a named checker.
func (h *Health) Register(name string, c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = c
}

func (h *Health) names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := h.names()
	results := make([]checkResult, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		h.mu.RLock()
		check := h.checkers[name]
		h.mu.RUnlock()

		wg.Add(1)
		go func(i int, check Checker) {
			defer wg.Done()
			if err := check(ctx); err != nil {
				results[i] = checkResult{Status: "down", Error: err.Error()}
				return
			}
			results[i] = checkResult{Status: "up"}
		}(i, check)
	}
	wg.Wait()

	report := healthReport{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	}
	if len(names) > 0 {
		report.Dependencies = make(map[string]checkResult, len(names))
	}
	for i, name := range names {
		report.Dependencies[name] = results[i]
		if results[i].Status != "up" {
			report.Status = "unhealthy"
		}
	}

	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, envelope{
		StatusCode: status,
		Success:    status == http.StatusOK,
		Message:    "Service is " + report.Status,
		Data:       report,
	})
}

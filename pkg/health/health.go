package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Status health of one component
type Status struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// CheckFunc probes one dependency; nil means healthy.
type CheckFunc func(ctx context.Context) error

// Registry tracks component health for the readiness endpoint.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*Status
	checks     map[string]CheckFunc
	log        zerolog.Logger
	now        func() time.Time
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		components: make(map[string]*Status),
		checks:     make(map[string]CheckFunc),
		log:        log.With().Str("component", "health").Logger(),
		now:        time.Now,
	}
}

// Register adds a component with its probe. It stays unknown until checked.
func (r *Registry) Register(component string, check CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[component] = check
	r.components[component] = &Status{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: r.now(),
	}
}

// Update records a status; a transition away from healthy is logged.
func (r *Registry) Update(component, status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.components[component]
	if !ok {
		s = &Status{Component: component}
		r.components[component] = s
	}
	old := s.Status
	s.Status = status
	s.LastChecked = r.now()
	s.Message = message

	if old != status && status != StatusHealthy {
		r.log.Warn().Str("target", component).Str("status", status).Str("message", message).Msg("component degraded")
	}
}

// Get returns a copy of one component status, or nil.
func (r *Registry) Get(component string) *Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.components[component]; ok {
		cp := *s
		return &cp
	}
	return nil
}

// All returns every status sorted by component name.
func (r *Registry) All() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.components))
	for _, s := range r.components {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// Healthy reports whether every registered component passed its last check.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.components {
		if s.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// CheckAll runs every probe, each bounded by timeout.
func (r *Registry) CheckAll(ctx context.Context, timeout time.Duration) {
	r.mu.RLock()
	checks := make(map[string]CheckFunc, len(r.checks))
	for name, fn := range r.checks {
		checks[name] = fn
	}
	r.mu.RUnlock()

	for name, fn := range checks {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(cctx)
		cancel()
		if err != nil {
			r.Update(name, StatusUnhealthy, err.Error())
			continue
		}
		r.Update(name, StatusHealthy, "")
	}
}

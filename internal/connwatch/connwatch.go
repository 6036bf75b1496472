// Package connwatch tracks whether the model providers behind the
// assistant are reachable. Turns never fail on a provider outage (they
// degrade to an apology reply), so the watchers exist to make outages
// visible: in the logs, in /health and as a Prometheus gauge.
//
// A Watcher probes one provider. While the provider is down it retries
// with exponential backoff; once it is up it polls at a fixed interval.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks whether a provider is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Schedule controls probe timing.
type Schedule struct {
	// Retry is the first delay after a failed probe (default 2s). It
	// doubles per failure up to MaxRetry (default 60s).
	Retry    time.Duration
	MaxRetry time.Duration

	// Poll is the interval between probes of a healthy provider
	// (default 60s).
	Poll time.Duration

	// Timeout bounds a single probe (default 10s).
	Timeout time.Duration
}

// DefaultSchedule returns the probe timing used by the server.
func DefaultSchedule() Schedule {
	return Schedule{
		Retry:    2 * time.Second,
		MaxRetry: 60 * time.Second,
		Poll:     60 * time.Second,
		Timeout:  10 * time.Second,
	}
}

func (s Schedule) withDefaults() Schedule {
	d := DefaultSchedule()
	if s.Retry <= 0 {
		s.Retry = d.Retry
	}
	if s.MaxRetry < s.Retry {
		s.MaxRetry = max(d.MaxRetry, s.Retry)
	}
	if s.Poll <= 0 {
		s.Poll = d.Poll
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	return s
}

// Status is the health of one provider, as reported by /health.
type Status struct {
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
	Failures  int       `json:"consecutive_failures,omitempty"`
}

// Watcher monitors a single provider.
type Watcher struct {
	name     string
	probe    ProbeFunc
	schedule Schedule
	onChange func(name string, ready bool, err error)
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
	probed bool
}

// Status returns the current health of the provider.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.schedule.Retry
	for {
		ready := w.check(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := w.schedule.Poll
		if ready {
			delay = w.schedule.Retry
		} else {
			wait = delay
			delay = min(delay*2, w.schedule.MaxRetry)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// check runs one probe, records it and reports transitions. The first
// probe always counts as a transition.
func (w *Watcher) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.schedule.Timeout)
	err := w.probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return false
	}

	w.mu.Lock()
	first := !w.probed
	changed := first || w.status.Ready != (err == nil)
	w.probed = true
	w.status.Ready = err == nil
	w.status.LastCheck = time.Now()
	if err != nil {
		w.status.LastError = err.Error()
		w.status.Failures++
	} else {
		w.status.LastError = ""
		w.status.Failures = 0
	}
	failures := w.status.Failures
	w.mu.Unlock()

	switch {
	case err == nil && changed:
		w.logger.Info("provider reachable", "provider", w.name)
	case err != nil && changed:
		w.logger.Warn("provider unreachable", "provider", w.name, "error", err)
	case err != nil:
		w.logger.Debug("provider still unreachable", "provider", w.name, "failures", failures, "error", err)
	}
	if changed && w.onChange != nil {
		w.onChange(w.name, err == nil, err)
	}
	return err == nil
}

// Manager owns the watchers of all configured providers.
type Manager struct {
	schedule Schedule
	onChange func(name string, ready bool, err error)
	logger   *slog.Logger

	mu       sync.RWMutex
	watchers map[string]*Watcher
}

// NewManager creates a Manager. onChange, if non-nil, is called from
// the watcher goroutine on every transition and after the first probe.
func NewManager(schedule Schedule, onChange func(name string, ready bool, err error), logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		schedule: schedule.withDefaults(),
		onChange: onChange,
		logger:   logger.With("component", "connwatch"),
		watchers: make(map[string]*Watcher),
	}
}

// Watch starts probing a provider until ctx is cancelled or Stop is
// called. Watching a name twice replaces the earlier watcher.
//
// Panics if name is empty or probe is nil.
func (m *Manager) Watch(ctx context.Context, name string, probe ProbeFunc) *Watcher {
	if name == "" {
		panic("connwatch: name must not be empty")
	}
	if probe == nil {
		panic("connwatch: probe must not be nil")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		name:     name,
		probe:    probe,
		schedule: m.schedule,
		onChange: m.onChange,
		logger:   m.logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	old := m.watchers[name]
	m.watchers[name] = w
	m.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	go w.run(watchCtx)
	return w
}

// Status returns the health of every watched provider.
func (m *Manager) Status() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.watchers))
	for name, w := range m.watchers {
		out[name] = w.Status()
	}
	return out
}

// Stop shuts down all watchers and waits for their goroutines to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	watchers := make([]*Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}

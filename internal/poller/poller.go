package poller

import (
	"context"
	"sync"
	"time"

	"bilirelay/internal/logging"
	"bilirelay/internal/metrics"
)

// State is the poller lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// DefaultInterval matches the relay's inbox polling cadence.
const DefaultInterval = 30 * time.Second

// Poller drives a callback at a fixed interval. A single callback error
// permanently stops it; only an explicit Start restarts it. Ticks carry no
// overlap guard: each tick runs in its own goroutine, so a callback that
// outlives the interval overlaps the next tick.
type Poller struct {
	interval time.Duration
	callback func(context.Context) error

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
}

func New(interval time.Duration, callback func(context.Context) error) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{interval: interval, callback: callback, state: Idle}
}

// Start schedules the callback. No-op when already Running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Running {
		return
	}
	stop := make(chan struct{})
	p.stopCh = stop
	p.state = Running
	logging.Info("poller_start", map[string]any{"interval_ms": p.interval.Milliseconds()})
	go p.loop(ctx, stop)
}

// Stop cancels the timer and transitions to Stopped. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.state != Running {
		return
	}
	close(p.stopCh)
	p.stopCh = nil
	p.state = Stopped
	logging.Info("poller_stop", nil)
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) loop(ctx context.Context, stop chan struct{}) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			p.Stop()
			return
		case <-t.C:
			go p.runTick(ctx, stop)
		}
	}
}

func (p *Poller) runTick(ctx context.Context, stop chan struct{}) {
	select {
	case <-stop:
		return
	default:
	}
	start := time.Now()
	metrics.PollTicks.Inc()
	if err := p.callback(ctx); err != nil {
		metrics.PollErrors.Inc()
		logging.Error("poll_tick_error", map[string]any{"error": err.Error()})
		p.Stop()
		return
	}
	metrics.ObserveTickDuration(start)
}

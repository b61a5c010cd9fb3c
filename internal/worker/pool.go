package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Backoff bounds for acquire waits.
const (
	backoffBase = 50 * time.Millisecond
	backoffCap  = 500 * time.Millisecond
)

// Config tunes the pool.
type Config struct {
	MaxWorkers   int           // upper bound on live units
	IdleTimeout  time.Duration // idle age before a unit is reaped
	ReapInterval time.Duration // how often the reaper runs
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:   4,
		IdleTimeout:  60 * time.Second,
		ReapInterval: 30 * time.Second,
	}
}

type entry struct {
	w        *Worker
	busy     bool
	affinity string
	lastUsed time.Time
}

// Pool is a bounded set of isolated execution units. Units are created
// lazily up to MaxWorkers, preferentially reused for the plugin they last
// ran (a warm unit skips the module re-import), and reaped down to a floor
// of one after sitting idle.
type Pool struct {
	mu       sync.Mutex
	cfg      Config
	entries  []*entry
	emit     func(msg any)
	freed    chan struct{}
	reapDone chan struct{}
	closed   bool
}

// NewPool creates a pool and starts its idle reaper.
func NewPool(cfg Config, emit func(msg any)) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}

	p := &Pool{
		cfg:      cfg,
		emit:     emit,
		freed:    make(chan struct{}, 1),
		reapDone: make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Acquire checks out a unit for pluginID. Preference order: a free unit
// already bound to the plugin, then any free unit, then a fresh unit if the
// pool is below its bound. When everything is busy the caller suspends with
// exponential backoff (base 50ms, capped at 500ms, growing with
// oversubscription) and retries; an early nudge arrives whenever a unit is
// released. Pool exhaustion is resolved here, never surfaced as an error.
func (p *Pool) Acquire(ctx context.Context, pluginID string) (*Worker, error) {
	for attempt := 0; ; attempt++ {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if e := p.pickLocked(pluginID); e != nil {
			e.busy = true
			e.affinity = pluginID
			e.lastUsed = time.Now()
			w := e.w
			p.mu.Unlock()
			return w, nil
		}

		if len(p.entries) < p.cfg.MaxWorkers {
			// Reserve the slot first, then build the unit outside the
			// lock: VM construction takes milliseconds and must not
			// serialize concurrent acquires.
			e := &entry{busy: true, affinity: pluginID, lastUsed: time.Now()}
			p.entries = append(p.entries, e)
			p.mu.Unlock()

			w := NewWorker(p.emit)

			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				w.Kill()
				return nil, ErrPoolClosed
			}
			e.w = w
			p.mu.Unlock()
			return w, nil
		}
		p.mu.Unlock()

		timer := time.NewTimer(backoffDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-p.freed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// pickLocked finds a free unit, preferring one with matching affinity.
func (p *Pool) pickLocked(pluginID string) *entry {
	var free *entry
	for _, e := range p.entries {
		if e.busy {
			continue
		}
		if e.affinity == pluginID {
			return e
		}
		if free == nil {
			free = e
		}
	}
	return free
}

// Release returns a unit to the pool. Affinity sticks: the unit stays bound
// to its last plugin so a follow-up acquire for the same plugin lands on
// the warm VM.
func (p *Pool) Release(w *Worker) {
	p.mu.Lock()
	for _, e := range p.entries {
		if e.w == w {
			e.busy = false
			e.lastUsed = time.Now()
			break
		}
	}
	p.mu.Unlock()
	p.nudge()
}

// Discard terminates a unit and removes it from the pool, used for units
// that timed out or escaped with a fault. A replacement is created lazily
// by the next Acquire.
func (p *Pool) Discard(w *Worker) {
	p.mu.Lock()
	for i, e := range p.entries {
		if e.w == w {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	w.Kill()
	p.nudge()
}

// nudge wakes one backoff waiter early.
func (p *Pool) nudge() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// reapLoop periodically terminates idle units, keeping a floor of one so a
// quiet period does not pay a cold start on the next search.
func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.reapDone:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *Pool) reapIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var doomed []*Worker
	kept := p.entries[:0]
	for _, e := range p.entries {
		idle := !e.busy && e.lastUsed.Before(cutoff)
		if idle && len(p.entries)-len(doomed) > 1 {
			doomed = append(doomed, e.w)
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	p.mu.Unlock()

	for _, w := range doomed {
		w.Kill()
	}
}

// InFlight returns the number of units currently checked out.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.busy {
			n++
		}
	}
	return n
}

// Size returns the number of live units.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Stats returns pool statistics.
func (p *Pool) Stats() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	busy := 0
	for _, e := range p.entries {
		if e.busy {
			busy++
		}
	}
	return map[string]any{
		"size":   len(p.entries),
		"busy":   busy,
		"idle":   len(p.entries) - busy,
		"max":    p.cfg.MaxWorkers,
		"closed": p.closed,
	}
}

// Close terminates every unit and rejects further acquires.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	close(p.reapDone)
	for _, e := range entries {
		if e.w != nil {
			e.w.Kill()
		}
	}
	p.nudge()
}

// backoffDelay doubles per failed attempt from the base, capped.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase << attempt
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}

package ratelimit

import (
	"sync"
	"time"

	"artflow-sync/internal/domain"
)

// SendFunc forwards an operation to the channel's send path.
type SendFunc func(domain.Operation)

// Controller is what the bindings see: a rate-limited front for
// channel.Send with a teardown Flush so the last edit is never dropped.
type Controller interface {
	Send(op domain.Operation)
	Flush()
	Stop()
}

// Throttle emits at most one send per interval, leading plus trailing.
// Continuous pointer input (freehand strokes) goes through this at roughly
// one send per animation frame.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	send     SendFunc
	lastSent time.Time
	pending  *domain.Operation
	timer    *time.Timer
	stopped  bool
}

func NewThrottle(interval time.Duration, send SendFunc) *Throttle {
	return &Throttle{interval: interval, send: send}
}

func (t *Throttle) Send(op domain.Operation) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	now := time.Now()
	if now.Sub(t.lastSent) >= t.interval {
		// Leading edge: send immediately.
		t.lastSent = now
		t.mu.Unlock()
		t.send(op)
		return
	}

	// Inside the window: remember the latest operation and arm the
	// trailing timer once.
	t.pending = &op
	if t.timer == nil {
		wait := t.interval - now.Sub(t.lastSent)
		t.timer = time.AfterFunc(wait, t.fireTrailing)
	}
	t.mu.Unlock()
}

func (t *Throttle) fireTrailing() {
	t.mu.Lock()
	op := t.pending
	t.pending = nil
	t.timer = nil
	if op != nil {
		t.lastSent = time.Now()
	}
	t.mu.Unlock()

	if op != nil {
		t.send(*op)
	}
}

// Flush synchronously emits the pending trailing call, if any.
func (t *Throttle) Flush() {
	t.mu.Lock()
	op := t.pending
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if op != nil {
		t.lastSent = time.Now()
	}
	t.mu.Unlock()

	if op != nil {
		t.send(*op)
	}
}

// Stop flushes and refuses further sends. Called on artifact close.
func (t *Throttle) Stop() {
	t.Flush()
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Debounce holds operations until the producer has been quiet for the full
// period, then emits only the latest one. Batched text-content sync uses
// this so every keystroke does not hit the wire.
type Debounce struct {
	mu      sync.Mutex
	quiet   time.Duration
	send    SendFunc
	pending *domain.Operation
	timer   *time.Timer
	stopped bool
}

func NewDebounce(quiet time.Duration, send SendFunc) *Debounce {
	return &Debounce{quiet: quiet, send: send}
}

func (d *Debounce) Send(op domain.Operation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending = &op
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

func (d *Debounce) fire() {
	d.mu.Lock()
	op := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if op != nil {
		d.send(*op)
	}
}

// Flush synchronously emits the pending operation, if any.
func (d *Debounce) Flush() {
	d.mu.Lock()
	op := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if op != nil {
		d.send(*op)
	}
}

// Stop flushes and refuses further sends.
func (d *Debounce) Stop() {
	d.Flush()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

package phase

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown is the locally ticking per-second timer used for smooth UI
// feedback between authoritative timer events. It never goes below
// zero and fires its completion callback exactly once per run.
type Countdown struct {
	clock clockwork.Clock

	mu        sync.Mutex
	value     int
	running   bool
	completed bool
	gen       int

	onTick     func(value int)
	onComplete func()
}

// NewCountdown creates a countdown driven by the given clock.
func NewCountdown(clock clockwork.Clock) *Countdown {
	return &Countdown{clock: clock}
}

// OnTick registers a callback invoked after every decrement.
func (c *Countdown) OnTick(fn func(value int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

// OnComplete registers a callback invoked once when a run reaches zero.
func (c *Countdown) OnComplete(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// Start begins a new run from the given number of seconds. Any
// previous run is cancelled; the completion guard is re-armed.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	c.gen++
	gen := c.gen
	c.value = seconds
	c.completed = false
	c.running = seconds > 0
	run := c.running
	c.mu.Unlock()

	if run {
		go c.loop(gen)
	}
}

// Stop cancels the current run without firing the completion callback.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.running = false
}

// Set overrides the current value with an authoritative one. Reaching
// zero this way completes the run.
func (c *Countdown) Set(value int) {
	c.mu.Lock()
	if value < 0 {
		value = 0
	}
	c.value = value
	var complete func()
	if value == 0 && c.running && !c.completed {
		c.completed = true
		c.running = false
		c.gen++
		complete = c.onComplete
	}
	tick := c.onTick
	c.mu.Unlock()

	if tick != nil {
		tick(value)
	}
	if complete != nil {
		complete()
	}
}

// Value returns the current countdown value.
func (c *Countdown) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Running reports whether a run is in progress.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// loop decrements once per second until the run is cancelled or the
// value reaches zero. A generation token keeps a stale loop from
// ticking into a newer run.
func (c *Countdown) loop(gen int) {
	for {
		<-c.clock.After(time.Second)

		c.mu.Lock()
		if gen != c.gen || !c.running {
			c.mu.Unlock()
			return
		}
		if c.value > 0 {
			c.value--
		}
		value := c.value
		tick := c.onTick
		var complete func()
		if value == 0 {
			c.running = false
			if !c.completed {
				c.completed = true
				complete = c.onComplete
			}
		}
		c.mu.Unlock()

		if tick != nil {
			tick(value)
		}
		if complete != nil {
			complete()
			return
		}
		if value == 0 {
			return
		}
	}
}

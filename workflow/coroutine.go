package workflow

import (
	"runtime"
	"sync"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/promise"
)

type step struct {
	outcome promise.Outcome
	exit    bool
}

// coroutine runs fn on its own goroutine but only while the driver waits on
// it: every resume blocks the caller until fn suspends again or returns, so
// at most one side runs at a time.
type coroutine struct {
	name   string
	fn     func() (any, error)
	resume chan step
	yield  chan struct{}

	mu      sync.Mutex
	started bool
	running bool
	done    bool
	result  any
	err     error
}

func newCoroutine(name string, fn func() (any, error)) *coroutine {
	return &coroutine{
		name:   name,
		fn:     fn,
		resume: make(chan step),
		yield:  make(chan struct{}),
	}
}

// start runs fn until its first suspension or its end.
func (c *coroutine) start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
	c.send(step{})
}

func (c *coroutine) run() {
	exited := true
	defer func() {
		r := recover()
		c.mu.Lock()
		if r != nil {
			c.err = command.RecoverPanic(c.name, r)
		} else if exited {
			c.err = errCoroutineClosed
		}
		c.done = true
		c.running = false
		c.mu.Unlock()
		c.yield <- struct{}{}
	}()

	if s := <-c.resume; s.exit {
		runtime.Goexit()
	}
	c.setRunning(true)

	result, err := c.fn()
	exited = false

	c.mu.Lock()
	c.result = result
	c.err = err
	c.mu.Unlock()
}

// suspend hands control back to the driver and waits for the next outcome.
// Only fn may call it.
func (c *coroutine) suspend() promise.Outcome {
	c.setRunning(false)
	c.yield <- struct{}{}
	s := <-c.resume
	if s.exit {
		runtime.Goexit()
	}
	c.setRunning(true)
	return s.outcome
}

// next resumes a suspended coroutine with o.
func (c *coroutine) next(o promise.Outcome) {
	if !c.isSuspended() {
		return
	}
	c.send(step{outcome: o})
}

// close unwinds a suspended coroutine. Deferred calls in fn still run.
func (c *coroutine) close() {
	if !c.isSuspended() {
		return
	}
	c.send(step{exit: true})
}

func (c *coroutine) send(s step) {
	c.resume <- s
	<-c.yield
}

func (c *coroutine) isSuspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.done && !c.running
}

func (c *coroutine) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *coroutine) isDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *coroutine) outcome() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.err
}

func (c *coroutine) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

// Package loop models a script-owning context: a single goroutine that runs
// posted tasks in FIFO order. Platform goroutines never call into script
// state directly; they Post work here instead.
package loop

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
)

type hook struct {
	id uint64
	fn func()
}

// Context is one global script context. Tasks posted after Close, or still
// queued when Close runs, are dropped.
type Context struct {
	id  string
	log *logging.Logger

	mu       sync.Mutex
	queue    []func()
	hooks    []hook
	nextHook uint64

	wake  chan struct{}
	done  chan struct{}
	alive atomic.Bool
	once  sync.Once
}

// New starts a context with a random id.
func New(log *logging.Logger) *Context {
	c := &Context{
		id:   uuid.NewString(),
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	c.alive.Store(true)
	go c.run()
	return c
}

func (c *Context) ID() string { return c.id }

// Alive reports whether the context has not been closed yet.
func (c *Context) Alive() bool { return c != nil && c.alive.Load() }

// Post queues task for the context goroutine. It returns false when the
// context is already closed.
func (c *Context) Post(task func()) bool {
	if !c.Alive() {
		return false
	}
	c.mu.Lock()
	c.queue = append(c.queue, task)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func (c *Context) run() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			task := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.mu.Unlock()

			// Liveness is checked when the task runs, not when it was posted.
			if !c.alive.Load() {
				return
			}
			c.exec(task)
		}
	}
}

func (c *Context) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("loop %s: task panicked: %v", c.id, r)
		}
	}()
	task()
}

// Flush blocks until every task queued before the call has run. It must not
// be called from a task running on this context.
func (c *Context) Flush() {
	ch := make(chan struct{})
	if !c.Post(func() { close(ch) }) {
		return
	}
	select {
	case <-ch:
	case <-c.done:
	}
}

// OnClose registers fn to run when the context is closed. The returned
// function unregisters it. ok is false when the context is already closed;
// fn is then never called.
func (c *Context) OnClose(fn func()) (cancel func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Close clears alive before it takes the hook list under mu, so a hook
	// accepted here is always run.
	if !c.alive.Load() {
		return func() {}, false
	}
	c.nextHook++
	id := c.nextHook
	c.hooks = append(c.hooks, hook{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, h := range c.hooks {
			if h.id == id {
				c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
				return
			}
		}
	}, true
}

// Close marks the context dead, runs the teardown hooks in registration order
// on the calling goroutine, and discards queued tasks.
func (c *Context) Close() {
	c.once.Do(func() {
		c.alive.Store(false)

		c.mu.Lock()
		hooks := c.hooks
		c.hooks = nil
		c.mu.Unlock()
		for _, h := range hooks {
			h.fn()
		}

		c.mu.Lock()
		dropped := len(c.queue)
		c.queue = nil
		c.mu.Unlock()
		close(c.done)
		if dropped > 0 {
			c.log.Debugf("loop %s: dropped %d pending tasks on close", c.id, dropped)
		}
	})
}

// Done is closed once the context has been torn down.
func (c *Context) Done() <-chan struct{} { return c.done }

package refresh

import "sync"

// Flag names one piece of data that may need reloading.
type Flag string

const (
	FlagCommunity Flag = "community"
	FlagProfile   Flag = "profile"
)

// Coordinator is a set of named dirty flags with atomic check-and-clear.
// The zero value is not usable; call NewCoordinator.
type Coordinator struct {
	// notifyMu is held across a mutation and its watcher calls so watchers
	// observe transitions in the order they happened.
	notifyMu sync.Mutex
	mu       sync.Mutex
	flags    map[Flag]bool
	watchers map[uint64]func(Flag, bool)
	nextID   uint64
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		flags:    make(map[Flag]bool),
		watchers: make(map[uint64]func(Flag, bool)),
	}
}

// Mark sets flag. Marking an already set flag is not a transition and is not
// published.
func (c *Coordinator) Mark(flag Flag) {
	c.set(flag, true)
}

// Consume reports whether flag was set and clears it. Of two racing Consume
// calls after one Mark, exactly one sees true.
func (c *Coordinator) Consume(flag Flag) bool {
	return c.set(flag, false)
}

// Peek reports whether flag is set without clearing it.
func (c *Coordinator) Peek(flag Flag) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags[flag]
}

func (c *Coordinator) set(flag Flag, v bool) (prev bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	prev = c.flags[flag]
	if v {
		c.flags[flag] = true
	} else {
		delete(c.flags, flag)
	}
	var watchers []func(Flag, bool)
	if prev != v {
		watchers = make([]func(Flag, bool), 0, len(c.watchers))
		for _, fn := range c.watchers {
			watchers = append(watchers, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(flag, v)
	}
	return prev
}

// Watch registers fn for every flag transition. Callbacks run synchronously
// on the mutating goroutine and must not call Mark or Consume.
func (c *Coordinator) Watch(fn func(Flag, bool)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Coordinator) MarkCommunityNeedsRefresh()         { c.Mark(FlagCommunity) }
func (c *Coordinator) ConsumeCommunityNeedsRefresh() bool { return c.Consume(FlagCommunity) }
func (c *Coordinator) MarkProfileNeedsRefresh()           { c.Mark(FlagProfile) }
func (c *Coordinator) ConsumeProfileNeedsRefresh() bool   { return c.Consume(FlagProfile) }

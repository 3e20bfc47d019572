package crdt

// LogicalClock is a Lamport-style monotonic counter. It is owned by exactly
// one Store and never shared; convergence across stores is achieved purely
// through Update, not through any shared mutable state.
type LogicalClock struct {
	t uint64
}

func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// Tick advances the clock for a local event and returns the new value.
func (c *LogicalClock) Tick() uint64 {
	c.t++
	return c.t
}

// Update advances the clock for a remote event: the local clock jumps ahead
// of whatever the remote side had seen, then ticks once more.
func (c *LogicalClock) Update(remote uint64) uint64 {
	if remote > c.t {
		c.t = remote
	}
	c.t++
	return c.t
}

// Current is a pure read of the clock; it never advances it.
func (c *LogicalClock) Current() uint64 {
	return c.t
}

// advanceTo raises the clock to v if v is ahead, without ticking. Used only
// to seed a clock from pre-loaded changes at construction time.
func (c *LogicalClock) advanceTo(v uint64) {
	if v > c.t {
		c.t = v
	}
}

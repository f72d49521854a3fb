package app

// DefaultCountdownSeconds is the per-question answer window.
const DefaultCountdownSeconds = 15

// Countdown is the per-round clock. It only moves while armed.
type Countdown struct {
	start int
	left  int
	armed bool
}

func NewCountdown(start int) Countdown {
	if start <= 0 {
		start = DefaultCountdownSeconds
	}
	return Countdown{start: start, left: start}
}

// Rearm resets the clock to its start value and lets it run.
func (c *Countdown) Rearm() {
	c.left = c.start
	c.armed = true
}

// Disarm freezes the clock at its current value.
func (c *Countdown) Disarm() {
	c.armed = false
}

// Tick advances the clock by one second and reports whether it just expired.
// Expiry disarms the clock, so it fires at most once per arm.
func (c *Countdown) Tick() bool {
	if !c.armed {
		return false
	}
	if c.left > 0 {
		c.left--
	}
	if c.left == 0 {
		c.armed = false
		return true
	}
	return false
}

func (c Countdown) Left() int   { return c.left }
func (c Countdown) Armed() bool { return c.armed }

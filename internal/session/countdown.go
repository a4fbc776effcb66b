package session

import "time"

// Countdown delays counting after a session starts, giving the user time to
// get into position.
type Countdown struct {
	length time.Duration
	end    time.Time
	now    func() time.Time
}

// NewCountdown creates a countdown of the given length. It is done until
// Restart is called.
func NewCountdown(length time.Duration, now func() time.Time) *Countdown {
	if now == nil {
		now = time.Now
	}
	return &Countdown{length: length, now: now}
}

// Restart starts the countdown again from its full length.
func (c *Countdown) Restart() {
	c.end = c.now().Add(c.length)
}

// Remaining returns the time left, never negative.
func (c *Countdown) Remaining() time.Duration {
	d := c.end.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// Seconds returns the whole seconds left, rounded up, as shown on screen.
func (c *Countdown) Seconds() int {
	d := c.Remaining()
	return int((d + time.Second - 1) / time.Second)
}

// Done reports whether the countdown has elapsed.
func (c *Countdown) Done() bool {
	return c.Remaining() == 0
}

package parking

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TickInterval is the countdown resolution.
const TickInterval = time.Second

// Countdown emits a tick every TickInterval with the seconds left until the
// deadline, floored. A tick that would floor to zero before the deadline is
// skipped. After the tick that reports zero it stops by itself.
type Countdown struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// StartCountdown starts ticking toward deadline. The ticker is created before
// StartCountdown returns; onTick runs on the countdown goroutine.
func StartCountdown(clock clockwork.Clock, deadline time.Time, onTick func(remaining int)) *Countdown {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Countdown{cancel: cancel, done: make(chan struct{})}

	ticker := clock.NewTicker(TickInterval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				now := clock.Now()
				remaining := remainingSeconds(now, deadline)
				// Zero is only reported once the deadline itself has passed.
				if remaining == 0 && now.Before(deadline) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				onTick(remaining)
				if remaining == 0 {
					return
				}
			}
		}
	}()

	return c
}

// Stop cancels the countdown. It is safe to call more than once and from
// inside onTick.
func (c *Countdown) Stop() {
	c.stopOnce.Do(c.cancel)
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

func remainingSeconds(now, deadline time.Time) int {
	left := int(deadline.Sub(now) / time.Second)
	if left < 0 {
		return 0
	}
	return left
}

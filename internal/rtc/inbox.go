package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
)

// WaitForever makes Wait block until a command arrives.
const WaitForever time.Duration = -1

// Inbox is a subscriber's ordered queue of pending commands.
type Inbox struct {
	clock  clock.Clock
	mu     sync.Mutex
	queue  []Command
	notify chan struct{}
	closed bool
}

// NewInbox creates an empty inbox whose timeouts are measured on clk.
func NewInbox(clk clock.Clock) *Inbox {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Inbox{
		clock:  clk,
		notify: make(chan struct{}, 1),
	}
}

// Post appends a command. It returns false once the inbox is closed.
func (in *Inbox) Post(cmd Command) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return false
	}
	in.queue = append(in.queue, cmd)
	in.signal()
	return true
}

// Close rejects further commands. Already queued commands can still be drained.
func (in *Inbox) Close() {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()
}

// Pending returns the number of queued commands.
func (in *Inbox) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// Wait blocks up to timeout, or until at least one command is queued, and
// then drains queued commands in arrival order. Draining stops after the
// first terminal command. A zero timeout only drains; WaitForever never
// times out. Timing out returns an empty slice. Context cancellation
// returns the context error.
func (in *Inbox) Wait(ctx context.Context, timeout time.Duration) ([]Command, error) {
	if cmds := in.drain(); len(cmds) > 0 || timeout == 0 {
		return cmds, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := in.clock.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.Chan()
	}

	for {
		select {
		case <-in.notify:
			if cmds := in.drain(); len(cmds) > 0 {
				return cmds, nil
			}
		case <-expired:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (in *Inbox) drain() []Command {
	in.mu.Lock()
	defer in.mu.Unlock()

	n := len(in.queue)
	for i, cmd := range in.queue {
		if cmd.Terminal() {
			n = i + 1
			break
		}
	}

	cmds := make([]Command, n)
	copy(cmds, in.queue[:n])
	in.queue = in.queue[n:]
	if len(in.queue) > 0 {
		in.signal()
	}
	return cmds
}

// signal wakes a waiter; must be called with mu held.
func (in *Inbox) signal() {
	select {
	case in.notify <- struct{}{}:
	default:
	}
}

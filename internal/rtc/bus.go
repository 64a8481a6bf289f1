package rtc

import (
	"fmt"
	"sync"

	"github.com/juju/clock"
)

// Identity names a subscribing process, e.g. "housekeeper #1".
type Identity struct {
	ProcessType string
	ProcessNum  int
}

func (id Identity) String() string {
	return fmt.Sprintf("%s #%d", id.ProcessType, id.ProcessNum)
}

type subscription struct {
	kinds map[Command]bool
	inbox *Inbox
}

// Bus routes published commands to the inboxes of subscribed processes.
type Bus struct {
	clock clock.Clock
	mu    sync.RWMutex
	subs  map[Identity]*subscription
}

// NewBus creates a bus whose inboxes measure timeouts on clk.
func NewBus(clk clock.Clock) *Bus {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Bus{
		clock: clk,
		subs:  make(map[Identity]*subscription),
	}
}

// Subscribe registers id for the given command kinds and returns its inbox.
// Shutdown is always delivered. Subscribing an identity twice replaces the
// previous subscription and closes its inbox.
func (b *Bus) Subscribe(id Identity, kinds ...Command) *Inbox {
	sub := &subscription{
		kinds: map[Command]bool{CommandShutdown: true},
		inbox: NewInbox(b.clock),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		old.inbox.Close()
	}
	b.subs[id] = sub
	return sub.inbox
}

// Unsubscribe removes id and closes its inbox.
func (b *Bus) Unsubscribe(id Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		sub.inbox.Close()
		delete(b.subs, id)
	}
}

// Publish delivers cmd to every subscriber of its kind and returns the
// number of inboxes that accepted it.
func (b *Bus) Publish(cmd Command) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		if sub.kinds[cmd] && sub.inbox.Post(cmd) {
			delivered++
		}
	}
	return delivered
}

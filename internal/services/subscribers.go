package services

import (
	"sync"

	"github.com/lyallcooper/barscan/internal/types"
)

const subscriberBuffer = 10

// Update is one state change delivered to subscribers.
type Update struct {
	State types.ScanState
	// Scanned is set when the change was caused by a successful decode,
	// duplicate or not. UIs use it for scan feedback (vibration, sound).
	Scanned *types.ScanResult
}

// subscriber wraps a channel with safe close handling
type subscriber struct {
	mu     sync.Mutex
	ch     chan Update
	closed bool
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// send never blocks. When the buffer is full the oldest pending update is
// discarded so a slow reader still ends up with the latest state.
func (sub *subscriber) send(u Update) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- u:
		return true
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- u:
		return true
	default:
		return false
	}
}

// Subscribe returns a channel receiving every state change until
// Unsubscribe or Close.
func (c *Controller) Subscribe() <-chan Update {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	sub := &subscriber{ch: make(chan Update, subscriberBuffer)}
	if c.closed {
		sub.close()
		return sub.ch
	}
	c.subscribers = append(c.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes a subscriber and closes its channel
func (c *Controller) Unsubscribe(ch <-chan Update) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for i, sub := range c.subscribers {
		if sub.ch == ch {
			// Remove from slice first, then close safely
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			sub.close()
			break
		}
	}
}

// broadcast sends an update to all subscribers
func (c *Controller) broadcast(u Update) {
	c.subMu.RLock()
	// Copy to avoid holding the lock during send
	subs := make([]*subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(u)
	}
}

// closeSubscribers closes every subscriber channel
func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.closed = true
	for _, sub := range c.subscribers {
		sub.close()
	}
	c.subscribers = nil
}

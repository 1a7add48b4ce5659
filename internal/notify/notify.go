// Package notify fans out availability-change signals to in-process
// subscribers. Signals carry no payload; consumers re-query the store.
package notify

import "sync"

type Notifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func New() *Notifier {
	return &Notifier{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a listener. The channel is buffered so a slow consumer
// never blocks Broadcast; pending signals coalesce into one.
func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	if _, ok := n.subs[ch]; ok {
		delete(n.subs, ch)
		close(ch)
	}
	n.mu.Unlock()
}

// Broadcast signals every subscriber that availability changed. A full buffer
// means a signal is already pending, so the send is skipped.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	n.mu.Unlock()
}

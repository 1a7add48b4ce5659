package notify_test

import (
	"testing"

	"slotline/internal/notify"
)

func TestBroadcastReachesSubscribers(t *testing.T) {
	n := notify.New()
	a := n.Subscribe()
	b := n.Subscribe()
	n.Broadcast()
	for _, ch := range []chan struct{}{a, b} {
		select {
		case <-ch:
		default:
			t.Fatal("subscriber missed broadcast")
		}
	}
}

func TestBroadcastCoalesces(t *testing.T) {
	n := notify.New()
	ch := n.Subscribe()
	n.Broadcast()
	n.Broadcast()
	n.Broadcast()
	<-ch
	select {
	case <-ch:
		t.Fatal("signals did not coalesce")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := notify.New()
	ch := n.Subscribe()
	n.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel open after unsubscribe")
	}
	// broadcasting after unsubscribe must not panic on the closed channel
	n.Broadcast()
	// double unsubscribe is a no-op
	n.Unsubscribe(ch)
}

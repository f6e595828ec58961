// Package connectivity tracks whether the till believes it is online and
// notifies subscribers on each transition.
//
// The state is fed by platform network-status signals (Report). It is not
// a probe: IsOnline can be true while the remote backend is unreachable.
package connectivity

import (
	"sync"
)

// Event is a connectivity transition.
type Event int

const (
	BecameOnline Event = iota + 1
	BecameOffline
)

func (e Event) String() string {
	switch e {
	case BecameOnline:
		return "online"
	case BecameOffline:
		return "offline"
	default:
		return "unknown"
	}
}

type subscriber struct {
	id int
	fn func(Event)
}

// Oracle holds the connectivity state for one session.
type Oracle struct {
	mu     sync.Mutex
	online bool
	subs   []subscriber
	nextID int
}

// New returns an Oracle in the given initial state.
func New(initialOnline bool) *Oracle {
	return &Oracle{online: initialOnline}
}

// IsOnline returns the last reported state.
func (o *Oracle) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// Subscribe registers fn for transition events and returns a func that
// removes it. fn runs synchronously in the goroutine that called Report,
// so it must not block.
func (o *Oracle) Subscribe(fn func(Event)) (unsubscribe func()) {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Report records a platform network-status signal. Subscribers are
// notified only when the state actually changes.
func (o *Oracle) Report(online bool) {
	o.mu.Lock()
	if o.online == online {
		o.mu.Unlock()
		return
	}
	o.online = online
	subs := make([]subscriber, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	ev := BecameOffline
	if online {
		ev = BecameOnline
	}
	for _, s := range subs {
		s.fn(ev)
	}
}

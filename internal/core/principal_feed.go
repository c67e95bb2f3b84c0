// Package core provides shared building blocks for the companion client: the principal
// notification feed and the credential store.
package core

import (
	"slices"
	"sync"

	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/ports"
)

// PrincipalFeed fans principal changes out to subscribers.
//
// Notifications are delivered asynchronously, one at a time and in publish order, from a
// single dispatch goroutine. Handlers may therefore call back into the identity provider
// (including publishing) without deadlocking. Once the initial principal has been resolved,
// new subscribers receive the current value first.
type PrincipalFeed struct {
	mu       sync.Mutex
	current  *domainauth.Principal
	resolved bool
	subs     map[uint64]*feedSubscriber
	nextID   uint64
	queue    []feedEvent
	closed   bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type feedSubscriber struct {
	onChange ports.PrincipalHandler
	onError  func(error)
}

type feedEvent struct {
	target    uint64 // zero broadcasts
	principal *domainauth.Principal
	err       error
}

// NewPrincipalFeed starts the dispatch goroutine. Call Close to stop it.
func NewPrincipalFeed() *PrincipalFeed {
	f := &PrincipalFeed{
		subs: make(map[uint64]*feedSubscriber),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go f.run()
	return f
}

// Subscribe registers handlers and returns the cancellation handle.
func (f *PrincipalFeed) Subscribe(onChange ports.PrincipalHandler, onError func(error)) ports.Subscription {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[id] = &feedSubscriber{onChange: onChange, onError: onError}
	if f.resolved {
		f.queue = append(f.queue, feedEvent{target: id, principal: clonePrincipal(f.current)})
	}
	f.mu.Unlock()
	f.signal()

	return &feedSubscription{feed: f, id: id}
}

// Publish records p as the current principal (nil for signed out) and notifies subscribers.
func (f *PrincipalFeed) Publish(p *domainauth.Principal) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.current = clonePrincipal(p)
	f.resolved = true
	f.queue = append(f.queue, feedEvent{principal: clonePrincipal(p)})
	f.mu.Unlock()
	f.signal()
}

// PublishError forwards an observation failure to subscribers' error handlers.
func (f *PrincipalFeed) PublishError(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, feedEvent{err: err})
	f.mu.Unlock()
	f.signal()
}

// Current returns the last published principal. ok is false when none is signed in.
func (f *PrincipalFeed) Current() (domainauth.Principal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return domainauth.Principal{}, false
	}
	return *f.current, true
}

// Resolved reports whether the initial principal has been published.
func (f *PrincipalFeed) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

// Close stops dispatching. Pending notifications are dropped.
func (f *PrincipalFeed) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.queue = nil
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *PrincipalFeed) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *PrincipalFeed) run() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}
		for {
			ev, ok := f.pop()
			if !ok {
				break
			}
			f.deliver(ev)
		}
	}
}

func (f *PrincipalFeed) pop() (feedEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.queue) == 0 {
		return feedEvent{}, false
	}
	ev := f.queue[0]
	f.queue[0] = feedEvent{}
	f.queue = f.queue[1:]
	return ev, true
}

func (f *PrincipalFeed) deliver(ev feedEvent) {
	for _, id := range f.targets(ev.target) {
		sub, ok := f.live(id)
		if !ok {
			continue
		}
		if ev.err != nil {
			if sub.onError != nil {
				sub.onError(ev.err)
			}
			continue
		}
		if sub.onChange != nil {
			sub.onChange(clonePrincipal(ev.principal))
		}
	}
}

// targets lists subscriber ids for an event in subscription order.
func (f *PrincipalFeed) targets(id uint64) []uint64 {
	if id != 0 {
		return []uint64{id}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint64, 0, len(f.subs))
	for k := range f.subs {
		ids = append(ids, k)
	}
	slices.Sort(ids)
	return ids
}

// live looks a subscriber up right before delivery; cancelled subscribers are skipped.
func (f *PrincipalFeed) live(id uint64) (*feedSubscriber, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false
	}
	s, ok := f.subs[id]
	return s, ok
}

func (f *PrincipalFeed) unsubscribe(id uint64) {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
}

type feedSubscription struct {
	feed *PrincipalFeed
	id   uint64
	once sync.Once
}

func (s *feedSubscription) Cancel() {
	s.once.Do(func() { s.feed.unsubscribe(s.id) })
}

func clonePrincipal(p *domainauth.Principal) *domainauth.Principal {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

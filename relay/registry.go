package relay

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// subscriberQueueDepth bounds the per-subscriber datagram backlog. A
// subscriber that falls this far behind the publisher is dropped rather
// than allowed to apply backpressure to the whole route.
const subscriberQueueDepth = 256

// ErrPublisherExists is returned when a second publisher attaches to a
// stream ID that already has an active one.
var ErrPublisherExists = errors.New("relay: stream already has a publisher")

// subscriber is one attached receiver on a route. Datagrams are handed
// off through a bounded queue so a stalled receiver never blocks the
// publisher's read loop.
type subscriber struct {
	id    string
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func newSubscriber() *subscriber {
	return &subscriber{
		id:    uuid.NewString(),
		queue: make(chan []byte, subscriberQueueDepth),
		done:  make(chan struct{}),
	}
}

// push enqueues a datagram without blocking. It reports false when the
// subscriber's queue is full or the subscriber is closed.
func (s *subscriber) push(pkt []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- pkt:
		return true
	default:
		return false
	}
}

// next blocks until a datagram is available or the subscriber is closed.
func (s *subscriber) next() ([]byte, bool) {
	select {
	case pkt := <-s.queue:
		return pkt, true
	case <-s.done:
		// Drain anything enqueued before the close won the race.
		select {
		case pkt := <-s.queue:
			return pkt, true
		default:
			return nil, false
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// route fans one publisher's datagram stream out to every subscriber of
// the same stream ID.
type route struct {
	mu         sync.RWMutex
	publishing bool
	subs       map[string]*subscriber

	bytes     atomic.Uint64
	datagrams atomic.Uint64
	dropped   atomic.Uint64
}

func newRoute() *route {
	return &route{subs: make(map[string]*subscriber)}
}

// RouteStats is a point-in-time snapshot of one route's forwarding
// counters.
type RouteStats struct {
	StreamID       string
	Publishing     bool
	Subscribers    int
	BytesForwarded uint64
	Datagrams      uint64
	DroppedSlow    uint64
}

// Registry tracks every active route by stream ID. Routes are created on
// demand by whichever side attaches first and removed when the publisher
// leaves.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]*route
}

// NewRegistry creates an empty route registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]*route)}
}

func (r *Registry) route(id string) *route {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[id]
	if !ok {
		rt = newRoute()
		r.routes[id] = rt
	}
	return rt
}

// Publish claims the publisher slot on the given stream ID. Only one
// publisher per route is allowed at a time.
func (r *Registry) Publish(id string) error {
	rt := r.route(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.publishing {
		return ErrPublisherExists
	}
	rt.publishing = true
	return nil
}

// Unpublish releases the publisher slot and closes every subscriber of
// the route. The route itself is removed from the registry.
func (r *Registry) Unpublish(id string) {
	r.mu.Lock()
	rt, ok := r.routes[id]
	if ok {
		delete(r.routes, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.publishing = false
	for _, sub := range rt.subs {
		sub.close()
	}
	rt.subs = make(map[string]*subscriber)
}

// Publishing reports whether the stream ID currently has a publisher.
func (r *Registry) Publishing(id string) bool {
	r.mu.RLock()
	rt, ok := r.routes[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.publishing
}

// Subscribe attaches a new subscriber to the stream ID, creating the
// route if the publisher has not arrived yet.
func (r *Registry) Subscribe(id string) *subscriber {
	rt := r.route(id)
	sub := newSubscriber()
	rt.mu.Lock()
	rt.subs[sub.id] = sub
	rt.mu.Unlock()
	return sub
}

// Unsubscribe detaches and closes one subscriber.
func (r *Registry) Unsubscribe(id string, sub *subscriber) {
	r.mu.RLock()
	rt, ok := r.routes[id]
	r.mu.RUnlock()
	if ok {
		rt.mu.Lock()
		delete(rt.subs, sub.id)
		rt.mu.Unlock()
	}
	sub.close()
}

// Forward copies one datagram from the publisher to every subscriber of
// the stream ID. Subscribers whose queues are full miss the datagram and
// have their drop counter bumped; the caller decides whether to evict
// them.
func (r *Registry) Forward(id string, pkt []byte) {
	r.mu.RLock()
	rt, ok := r.routes[id]
	r.mu.RUnlock()
	if !ok {
		return
	}

	// One shared copy per datagram; subscribers only read it.
	buf := make([]byte, len(pkt))
	copy(buf, pkt)

	rt.datagrams.Add(1)
	rt.bytes.Add(uint64(len(buf)))

	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for _, sub := range rt.subs {
		if !sub.push(buf) {
			rt.dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the route's counters, or false when the
// stream ID has no route.
func (r *Registry) Stats(id string) (RouteStats, bool) {
	r.mu.RLock()
	rt, ok := r.routes[id]
	r.mu.RUnlock()
	if !ok {
		return RouteStats{}, false
	}

	rt.mu.RLock()
	subs := len(rt.subs)
	publishing := rt.publishing
	rt.mu.RUnlock()

	return RouteStats{
		StreamID:       id,
		Publishing:     publishing,
		Subscribers:    subs,
		BytesForwarded: rt.bytes.Load(),
		Datagrams:      rt.datagrams.Load(),
		DroppedSlow:    rt.dropped.Load(),
	}, true
}

// StreamIDs lists every stream ID with an active route.
func (r *Registry) StreamIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.routes))
	for id := range r.routes {
		ids = append(ids, id)
	}
	return ids
}

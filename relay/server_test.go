package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// pipeLink is an in-memory datagram connection: writes land in the out
// channel, reads drain the in channel.
type pipeLink struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newPipeLink() *pipeLink {
	return &pipeLink{
		in:   make(chan []byte, 64),
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (p *pipeLink) WritePacket(b []byte) error {
	// A buffered out channel is usually ready, so the closed check must
	// come first or a write on a closed link could still succeed.
	select {
	case <-p.done:
		return errors.New("link closed")
	default:
	}

	pkt := make([]byte, len(b))
	copy(pkt, b)
	select {
	case p.out <- pkt:
		return nil
	case <-p.done:
		return errors.New("link closed")
	}
}

func (p *pipeLink) ReadPacket(buf []byte) (int, error) {
	select {
	case pkt := <-p.in:
		return copy(buf, pkt), nil
	case <-p.done:
		return 0, io.EOF
	}
}

func (p *pipeLink) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *pipeLink) receive(t *testing.T) []byte {
	t.Helper()
	select {
	case pkt := <-p.out:
		return pkt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for forwarded datagram")
		return nil
	}
}

func TestServerForwardsPublisherToSubscribers(t *testing.T) {
	t.Parallel()

	srv := NewServer(Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subA := newPipeLink()
	subB := newPipeLink()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); srv.serveSubscriber(ctx, subA, "screen-1") }()
	go func() { defer wg.Done(); srv.serveSubscriber(ctx, subB, "screen-1") }()

	// Wait for both subscribers to attach before the publisher speaks.
	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, ok := srv.Registry().Stats("screen-1")
		if ok && stats.Subscribers == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscribers never attached")
		}
		time.Sleep(time.Millisecond)
	}

	pub := newPipeLink()
	pub.in <- []byte("first")
	pub.in <- []byte("second")

	wg.Add(1)
	go func() { defer wg.Done(); srv.servePublisher(ctx, pub, "screen-1") }()

	for _, sub := range []*pipeLink{subA, subB} {
		if got := sub.receive(t); !bytes.Equal(got, []byte("first")) {
			t.Fatalf("first forwarded datagram = %q", got)
		}
		if got := sub.receive(t); !bytes.Equal(got, []byte("second")) {
			t.Fatalf("second forwarded datagram = %q", got)
		}
	}

	// Publisher disconnect tears the route down and ends both
	// subscriber loops.
	pub.Close()
	wg.Wait()

	if _, ok := srv.Registry().Stats("screen-1"); ok {
		t.Error("route survived publisher disconnect")
	}
}

func TestServerRejectsSecondPublisher(t *testing.T) {
	t.Parallel()

	srv := NewServer(Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := newPipeLink()
	go srv.servePublisher(ctx, first, "screen-1")

	deadline := time.Now().Add(5 * time.Second)
	for !srv.Registry().Publishing("screen-1") {
		if time.Now().After(deadline) {
			t.Fatal("first publisher never claimed the route")
		}
		time.Sleep(time.Millisecond)
	}

	// The second publisher's loop must return immediately, closing its
	// connection without touching the route.
	second := newPipeLink()
	srv.servePublisher(ctx, second, "screen-1")

	select {
	case <-second.done:
	default:
		t.Error("rejected publisher connection left open")
	}
	if !srv.Registry().Publishing("screen-1") {
		t.Error("route lost its publisher after rejection")
	}
}

func TestServerSubscriberWriteErrorDetaches(t *testing.T) {
	t.Parallel()

	srv := NewServer(Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newPipeLink()
	sub.Close()

	done := make(chan struct{})
	go func() {
		srv.serveSubscriber(ctx, sub, "screen-1")
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, ok := srv.Registry().Stats("screen-1")
		if ok && stats.Subscribers == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never attached")
		}
		time.Sleep(time.Millisecond)
	}
	srv.Registry().Forward("screen-1", []byte("datagram"))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber loop did not exit on write error")
	}

	if stats, ok := srv.Registry().Stats("screen-1"); ok && stats.Subscribers != 0 {
		t.Errorf("Subscribers = %d after detach, want 0", stats.Subscribers)
	}
}

func TestServerContextCancelUnblocksIdleSubscriber(t *testing.T) {
	t.Parallel()

	srv := NewServer(Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	sub := newPipeLink()
	done := make(chan struct{})
	go func() {
		srv.serveSubscriber(ctx, sub, "screen-1")
		close(done)
	}()

	// No publisher ever arrives; cancellation alone must end the loop.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber loop did not exit on context cancel")
	}
}

package transport

import (
	"sync"

	"github.com/zsiec/mirror/media"
)

// adapterSink is the receiver session's handoff surface: the network thread
// pushes filtered buffers in, the embedding application's decode threads
// pop them out. Implementations are MixedAdapter and SplitAdapter.
type adapterSink interface {
	// push hands one buffer to the consumer side. It blocks while the
	// queue is full and returns false once the adapter is closed.
	push(buf media.Buffer) bool

	// shutdown closes the adapter, unblocking every waiter. Idempotent.
	shutdown()
}

// MixedAdapter carries both stream types on a single queue, tagged by
// StreamType. Use it when one consumer thread demultiplexes audio and
// video itself.
type MixedAdapter struct {
	ch   chan media.Buffer
	done chan struct{}
	once sync.Once
}

// NewMixedAdapter creates a mixed adapter with a queue sized for both
// streams.
func NewMixedAdapter() *MixedAdapter {
	return &MixedAdapter{
		ch:   make(chan media.Buffer, media.VideoBufferSize+media.AudioBufferSize),
		done: make(chan struct{}),
	}
}

// Next blocks until the next buffer arrives, in wire arrival order across
// both streams. It returns ok=false once the adapter is closed; buffers
// still queued at close time are discarded, which is acceptable for a live
// stream.
func (a *MixedAdapter) Next() (media.Buffer, bool) {
	select {
	case buf := <-a.ch:
		return buf, true
	case <-a.done:
		return media.Buffer{}, false
	}
}

func (a *MixedAdapter) push(buf media.Buffer) bool {
	select {
	case a.ch <- buf:
		return true
	case <-a.done:
		return false
	}
}

func (a *MixedAdapter) shutdown() {
	a.once.Do(func() { close(a.done) })
}

// SplitAdapter carries audio and video on independent queues so each can be
// consumed from its own decode thread.
type SplitAdapter struct {
	video chan media.Buffer
	audio chan media.Buffer
	done  chan struct{}
	once  sync.Once
}

// NewSplitAdapter creates a split adapter with per-stream queues.
func NewSplitAdapter() *SplitAdapter {
	return &SplitAdapter{
		video: make(chan media.Buffer, media.VideoBufferSize),
		audio: make(chan media.Buffer, media.AudioBufferSize),
		done:  make(chan struct{}),
	}
}

// Next blocks until the next buffer of the given stream arrives. It returns
// ok=false once the adapter is closed.
func (a *SplitAdapter) Next(stream media.StreamType) (media.Buffer, bool) {
	ch := a.audio
	if stream == media.StreamVideo {
		ch = a.video
	}

	select {
	case buf := <-ch:
		return buf, true
	case <-a.done:
		return media.Buffer{}, false
	}
}

func (a *SplitAdapter) push(buf media.Buffer) bool {
	ch := a.audio
	if buf.Stream == media.StreamVideo {
		ch = a.video
	}

	select {
	case ch <- buf:
		return true
	case <-a.done:
		return false
	}
}

func (a *SplitAdapter) shutdown() {
	a.once.Do(func() { close(a.done) })
}

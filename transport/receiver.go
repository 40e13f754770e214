package transport

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/mirror/transport/multicast"
	"github.com/zsiec/mirror/transport/srt"
)

// minReadBufferSize is the floor for the read loop's buffer; the actual
// size follows the session MTU so jumbo-frame fragments are not truncated.
const minReadBufferSize = 2048

// Receiver is the consume side of a mirroring session. A background read
// loop pulls fragment datagrams off the channel, reassembles them, runs the
// stream consumer filter, and pushes surviving buffers onto the adapter's
// queues. The adapter's Next is the blocking surface the embedding
// application's decode threads consume from.
type Receiver struct {
	log     *slog.Logger
	conn    PacketConn
	adapter adapterSink
	bufSize int

	closeOnce sync.Once
	onClose   func()
}

func readBufferSize(mtu int) int {
	if mtu < minReadBufferSize {
		return minReadBufferSize
	}
	return mtu
}

// NewMixedReceiver creates a receiver whose buffers arrive on a single
// demultiplexed queue. onClose, if non-nil, is invoked exactly once when
// the session transitions to Closed asynchronously. If log is nil,
// slog.Default() is used.
func NewMixedReceiver(id string, opts TransportOptions, onClose func(), log *slog.Logger) (*Receiver, *MixedAdapter, error) {
	adapter := NewMixedAdapter()
	r, err := newReceiver(id, opts, adapter, onClose, log)
	if err != nil {
		return nil, nil, err
	}
	return r, adapter, nil
}

// NewSplitReceiver creates a receiver with independent audio and video
// queues, for consuming each stream from its own thread.
func NewSplitReceiver(id string, opts TransportOptions, onClose func(), log *slog.Logger) (*Receiver, *SplitAdapter, error) {
	adapter := NewSplitAdapter()
	r, err := newReceiver(id, opts, adapter, onClose, log)
	if err != nil {
		return nil, nil, err
	}
	return r, adapter, nil
}

func newReceiver(id string, opts TransportOptions, adapter adapterSink, onClose func(), log *slog.Logger) (*Receiver, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "receiver",
		"stream", id, "strategy", opts.Strategy.Kind)

	var conn PacketConn
	switch opts.Strategy.Kind {
	case StrategyDirect, StrategyRelay:
		c, err := srt.Dial(opts.Strategy.Address,
			srt.StreamInfo{ID: id, Role: srt.RoleSubscriber}, srtOptions(opts))
		if err != nil {
			return nil, err
		}
		conn = c

	case StrategyMulticast:
		c, err := multicast.ListenGroup(opts.Strategy.Address, opts.MTU, multicast.DefaultDelay, log)
		if err != nil {
			return nil, err
		}
		conn = c

	default:
		return nil, fmt.Errorf("transport: unknown strategy %v", opts.Strategy.Kind)
	}

	r := &Receiver{
		log:     log,
		conn:    conn,
		adapter: adapter,
		bufSize: readBufferSize(opts.MTU),
		onClose: onClose,
	}

	go r.readLoop()
	r.log.Info("receiver created", "addr", opts.Strategy.Address)
	return r, nil
}

// newReceiverWithConn wires a receiver directly onto an existing channel;
// used by tests to drive sessions over an in-memory link.
func newReceiverWithConn(conn PacketConn, adapter adapterSink, mtu int, onClose func(), log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	r := &Receiver{
		log:     log.With("component", "receiver"),
		conn:    conn,
		adapter: adapter,
		bufSize: readBufferSize(mtu),
		onClose: onClose,
	}
	go r.readLoop()
	return r
}

func (r *Receiver) readLoop() {
	defer r.markClosed()

	decoder := NewFragmentDecoder()
	consumer := NewStreamConsumer(r.log)
	buf := make([]byte, r.bufSize)

	for {
		n, err := r.conn.ReadPacket(buf)
		if err != nil || n == 0 {
			r.log.Debug("read loop exiting", "error", err)
			return
		}

		msg, ok := decoder.Decode(buf[:n])
		if !ok {
			continue
		}

		buffer, ok := consumer.Filter(msg)
		if !ok {
			continue
		}

		if !r.adapter.push(buffer) {
			return
		}
	}
}

// Close closes the underlying channel synchronously, which unblocks the
// read loop and in turn every consumer waiting on the adapter. Idempotent.
func (r *Receiver) Close() {
	r.conn.Close()
	r.markClosed()
}

func (r *Receiver) markClosed() {
	r.closeOnce.Do(func() {
		r.conn.Close()
		r.adapter.shutdown()
		r.log.Info("receiver closed")

		if r.onClose != nil {
			r.onClose()
		}
	})
}

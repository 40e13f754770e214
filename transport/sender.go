package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/mirror/media"
	"github.com/zsiec/mirror/transport/multicast"
	"github.com/zsiec/mirror/transport/srt"
)

// ErrNetworkDown is returned by Sender.Send once the underlying channel has
// closed. The session does not reconnect; the embedding application decides
// whether to recreate it.
var ErrNetworkDown = errors.New("transport: network channel is down")

// PacketConn is the uniform datagram interface both channel strategies
// expose to the session layer: one wire fragment per WritePacket and per
// ReadPacket, boundaries preserved.
type PacketConn interface {
	WritePacket(b []byte) error
	ReadPacket(buf []byte) (int, error)
	Close() error
}

// lossRater is implemented by connections that expose live packet-loss
// statistics (the SRT channel).
type lossRater interface {
	PacketLossRate() float64
}

// connSlot is a single-slot registry for the sender's current peer
// connection: the accept loop writes it, Send reads it, and replacing a
// connection closes the old one. An empty slot makes sends no-op rather
// than fail.
type connSlot struct {
	mu   sync.Mutex
	conn PacketConn
}

func (s *connSlot) get() PacketConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *connSlot) swap(conn PacketConn) {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// clear empties the slot only if it still holds conn. The accept loop may
// have swapped in a fresh peer between a get and a failed write; that peer
// must survive the stale error path.
func (s *connSlot) clear(conn PacketConn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	conn.Close()
}

// Sender is the transmit side of a mirroring session. It runs every logical
// buffer through the producer filter, fragments the resulting wire packets,
// and writes the fragments to the current channel. For the Direct strategy
// it owns an SRT listener and a background accept loop that swaps in the
// most recently connected subscriber.
type Sender struct {
	log      *slog.Logger
	id       string
	producer *StreamProducer
	encoder  *FragmentEncoder

	mu       sync.Mutex // serializes Send
	slot     connSlot
	listener *srt.Listener
	working  atomic.Bool

	closeOnce sync.Once
	onClose   func()
}

// NewSender creates a sender session for the given stream ID and transport
// options. onClose, if non-nil, is invoked exactly once when the session
// transitions to Closed asynchronously. If log is nil, slog.Default() is
// used. Construction fails synchronously on bind/connect errors; steady
// state errors are only observable through onClose and ErrNetworkDown.
func NewSender(id string, opts TransportOptions, onClose func(), log *slog.Logger) (*Sender, error) {
	if log == nil {
		log = slog.Default()
	}

	encoder, err := NewFragmentEncoder(opts.MTU)
	if err != nil {
		return nil, err
	}

	s := &Sender{
		log: log.With("component", "sender",
			"stream", id, "strategy", opts.Strategy.Kind),
		id:       id,
		producer: NewStreamProducer(),
		encoder:  encoder,
		onClose:  onClose,
	}
	s.working.Store(true)

	switch opts.Strategy.Kind {
	case StrategyDirect:
		listener, err := srt.Listen(opts.Strategy.Address, srtOptions(opts))
		if err != nil {
			return nil, err
		}
		s.listener = listener
		go s.acceptLoop()

	case StrategyRelay:
		conn, err := srt.Dial(opts.Strategy.Address,
			srt.StreamInfo{ID: id, Role: srt.RolePublisher}, srtOptions(opts))
		if err != nil {
			return nil, err
		}
		s.slot.swap(conn)

	case StrategyMulticast:
		conn, err := multicast.DialGroup(opts.Strategy.Address)
		if err != nil {
			return nil, err
		}
		s.slot.swap(conn)

	default:
		return nil, fmt.Errorf("transport: unknown strategy %v", opts.Strategy.Kind)
	}

	s.log.Info("sender created", "addr", opts.Strategy.Address)
	return s, nil
}

// newSenderWithConn wires a sender directly onto an existing channel; used
// by tests to drive sessions over an in-memory link.
func newSenderWithConn(conn PacketConn, mtu int, onClose func(), log *slog.Logger) (*Sender, error) {
	if log == nil {
		log = slog.Default()
	}

	encoder, err := NewFragmentEncoder(mtu)
	if err != nil {
		return nil, err
	}

	s := &Sender{
		log:      log.With("component", "sender"),
		producer: NewStreamProducer(),
		encoder:  encoder,
		onClose:  onClose,
	}
	s.working.Store(true)
	s.slot.swap(conn)
	return s, nil
}

// acceptLoop swaps the most recently accepted subscriber into the current
// connection slot. A listener error ends the session.
func (s *Sender) acceptLoop() {
	for {
		conn, info, err := s.listener.Accept()
		if err != nil {
			s.log.Debug("accept loop exiting", "error", err)
			break
		}

		if info.Role != srt.RoleSubscriber || info.ID != s.id {
			s.log.Warn("rejecting peer with wrong stream info",
				"peer_stream", info.ID, "role", info.Role)
			conn.Close()
			continue
		}

		s.log.Info("subscriber connected")
		s.slot.swap(conn)
	}

	s.markClosed()
}

// Send runs one logical buffer through the producer filter and transmits
// the resulting fragments. An empty buffer is a no-op. If no peer is
// currently connected the send succeeds as a no-op; the producer still
// observes the buffer so the config cache and sequencing stay correct. A
// mid-send socket error clears the current connection and is not returned
// to the caller. Send returns ErrNetworkDown once the session is closed.
func (s *Sender) Send(buf media.Buffer) error {
	if !s.working.Load() {
		return ErrNetworkDown
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pkts := s.producer.Filter(buf)
	conn := s.slot.get()
	if conn == nil {
		return nil
	}

	for _, pkt := range pkts {
		for _, frag := range s.encoder.Encode(pkt) {
			if err := conn.WritePacket(frag); err != nil {
				s.log.Warn("send failed, dropping peer connection", "error", err)
				s.slot.clear(conn)
				if s.listener == nil {
					// Dialed channels have no path to a new peer.
					s.markClosed()
				}
				return nil
			}
		}
	}

	return nil
}

// PacketLossRate reports the reliable channel's dropped/sent ratio, rounded
// to one decimal place. Strategies without local statistics report 0.
func (s *Sender) PacketLossRate() float64 {
	if conn, ok := s.slot.get().(lossRater); ok {
		return conn.PacketLossRate()
	}
	return 0
}

// Close tears the session down: the listener (if any) and the current
// connection are closed synchronously and later sends return
// ErrNetworkDown. Idempotent.
func (s *Sender) Close() {
	s.markClosed()
}

func (s *Sender) markClosed() {
	s.closeOnce.Do(func() {
		s.working.Store(false)
		if s.listener != nil {
			s.listener.Close()
		}
		s.slot.swap(nil)
		s.log.Info("sender closed")

		if s.onClose != nil {
			s.onClose()
		}
	})
}

// srtOptions maps the session-level transport options onto the SRT channel
// knobs.
func srtOptions(opts TransportOptions) srt.Options {
	return srt.Options{
		MTU:               opts.MTU,
		MaxBandwidth:      opts.MaxBandwidth,
		LatencyMS:         opts.LatencyMS,
		TimeoutMS:         opts.TimeoutMS,
		FlowControlWindow: opts.FlowControlWindow,
		FEC:               opts.FEC,
	}
}

// Package multicast implements the best-effort group channel behind the
// Multicast strategy: the sender pushes one datagram per wire fragment to
// an IPv4 multicast group, and the receiver absorbs minor UDP reordering
// through a bounded reorder-with-delay queue before handing fragments up
// to the reassembly layer. There is no handshake and no reliability.
package multicast

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
)

// packetHeaderSize is the per-datagram ordering header: a u64 sequence
// number, big-endian. It exists only so the receive side can reorder; the
// fragment codec never sees it.
const packetHeaderSize = 8

// DefaultDelay is the default reorder lookahead window, in packets.
const DefaultDelay = 20

// receiveBufferSize is the kernel receive buffer requested on the receiver
// socket; bursts of fragments for a large keyframe arrive back to back.
const receiveBufferSize = 4 * 1024 * 1024

// readQueueDepth bounds the channel between the socket goroutine and
// ReadPacket callers.
const readQueueDepth = 64

// minDatagramBuffer is the floor for the read loop's buffer; the actual
// size follows the session MTU plus the ordering header.
const minDatagramBuffer = 2048

// ErrClosed is returned by ReadPacket and WritePacket after Close.
var ErrClosed = errors.New("multicast: use of closed socket")

func resolveGroup(group string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("multicast: resolve group %s: %w", group, err)
	}
	if !addr.IP.IsMulticast() {
		return nil, fmt.Errorf("multicast: %s is not a multicast address", group)
	}
	return addr, nil
}

// Sender sends wire fragments to a multicast group, one datagram per
// fragment, each prefixed with a monotonically increasing u64 so receivers
// can reorder.
type Sender struct {
	mu       sync.Mutex
	conn     net.PacketConn
	group    *net.UDPAddr
	sequence uint64
	buf      []byte
	closed   bool
}

// DialGroup binds a local UDP socket and targets the given multicast group
// (e.g. "239.0.0.1:8080"). Multicast loopback is disabled so a sender and
// receiver on the same host do not short-circuit.
func DialGroup(group string) (*Sender, error) {
	addr, err := resolveGroup(group)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("multicast: bind sender socket: %w", err)
	}

	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("multicast: disable loopback: %w", err)
	}
	if err := p.SetMulticastTTL(1); err != nil {
		conn.Close()
		return nil, fmt.Errorf("multicast: set ttl: %w", err)
	}

	return &Sender{conn: conn, group: addr}, nil
}

// WritePacket sends one fragment datagram to the group. Loss and
// reordering past the receiver's lookahead window are possible.
func (s *Sender) WritePacket(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.buf = binary.BigEndian.AppendUint64(s.buf[:0], s.sequence)
	s.buf = append(s.buf, b...)
	s.sequence++

	if _, err := s.conn.WriteTo(s.buf, s.group); err != nil {
		return fmt.Errorf("multicast: send: %w", err)
	}
	return nil
}

// ReadPacket is not supported on the send side.
func (s *Sender) ReadPacket([]byte) (int, error) {
	return 0, errors.New("multicast: sender is write-only")
}

// Close closes the socket. Idempotent.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Receiver joins a multicast group and yields fragment datagrams in
// sequence order, as far as the reorder window allows.
type Receiver struct {
	log       *slog.Logger
	conn      net.PacketConn
	packets   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// ListenGroup joins the multicast group on the wildcard address and starts
// the background read loop. mtu bounds the datagram size the reader must
// hold; delay is the reorder lookahead window in packets, 0 selects
// DefaultDelay. If log is nil, slog.Default() is used.
func ListenGroup(group string, mtu, delay int, log *slog.Logger) (*Receiver, error) {
	if log == nil {
		log = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}

	addr, err := resolveGroup(group)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", addr.Port))
	if err != nil {
		return nil, fmt.Errorf("multicast: bind receiver socket: %w", err)
	}

	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(nil, &net.UDPAddr{IP: addr.IP}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("multicast: join group %s: %w", group, err)
	}
	if err := conn.(*net.UDPConn).SetReadBuffer(receiveBufferSize); err != nil {
		log.Warn("could not grow receive buffer", "error", err)
	}

	r := &Receiver{
		log:     log.With("component", "multicast-receiver", "group", group),
		conn:    conn,
		packets: make(chan []byte, readQueueDepth),
		done:    make(chan struct{}),
	}

	bufSize := packetHeaderSize + mtu
	if bufSize < minDatagramBuffer {
		bufSize = minDatagramBuffer
	}
	go r.readLoop(delay, bufSize)
	return r, nil
}

func (r *Receiver) readLoop(delay, bufSize int) {
	defer close(r.packets)

	queue := newReorderQueue(delay)
	buf := make([]byte, bufSize)

	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			r.log.Debug("read loop exiting", "error", err)
			return
		}
		if n < packetHeaderSize {
			continue
		}

		payload := make([]byte, n-packetHeaderSize)
		copy(payload, buf[packetHeaderSize:n])
		queue.Push(binary.BigEndian.Uint64(buf), payload)

		for {
			pkt, ok := queue.Pop()
			if !ok {
				break
			}
			select {
			case r.packets <- pkt:
			case <-r.done:
				return
			}
		}
	}
}

// ReadPacket blocks until the next in-order fragment datagram is available
// and copies it into buf. It returns io.EOF after Close.
func (r *Receiver) ReadPacket(buf []byte) (int, error) {
	pkt, ok := <-r.packets
	if !ok {
		return 0, io.EOF
	}
	if len(pkt) > len(buf) {
		return 0, fmt.Errorf("multicast: datagram of %d bytes exceeds read buffer", len(pkt))
	}
	return copy(buf, pkt), nil
}

// WritePacket is not supported on the receive side.
func (r *Receiver) WritePacket([]byte) error {
	return errors.New("multicast: receiver is read-only")
}

// Close leaves the group and closes the socket, unblocking ReadPacket.
// Idempotent.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.conn.Close()
	})
	return err
}

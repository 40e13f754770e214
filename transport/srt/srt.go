package srt

import (
	"fmt"
	"math"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// Options carries the channel knobs applied to an SRT socket at bind or
// connect time. Zero values fall back to the library defaults.
type Options struct {
	// MTU is the maximum segment size in bytes.
	MTU int
	// MaxBandwidth caps the send rate in bytes per second; -1 is unlimited.
	MaxBandwidth int64
	// LatencyMS is the receive latency buffer in milliseconds.
	LatencyMS int
	// TimeoutMS is the peer idle timeout in milliseconds.
	TimeoutMS int
	// FlowControlWindow is the flow control window size in packets.
	FlowControlWindow int
	// FEC is the packet filter descriptor, passed through verbatim.
	FEC string
	// StreamID announces the caller's identity; empty on listeners.
	StreamID string
}

func (o Options) config() srtgo.Config {
	cfg := srtgo.DefaultConfig()
	if o.LatencyMS > 0 {
		cfg.Latency = time.Duration(o.LatencyMS) * time.Millisecond
	}
	if o.MTU > 0 {
		cfg.MSS = o.MTU
	}
	if o.MaxBandwidth != 0 {
		cfg.MaxBW = o.MaxBandwidth
	}
	if o.TimeoutMS > 0 {
		cfg.PeerIdleTimeout = time.Duration(o.TimeoutMS) * time.Millisecond
	}
	if o.FlowControlWindow > 0 {
		cfg.FC = o.FlowControlWindow
	}
	if o.FEC != "" {
		cfg.PacketFilter = o.FEC
	}
	cfg.StreamID = o.StreamID
	return cfg
}

// Conn is one SRT connection in live mode. Each WritePacket sends one SRT
// message and each ReadPacket receives one, preserving the datagram
// boundaries the fragment codec depends on.
type Conn struct {
	conn *srtgo.Conn
}

// WritePacket sends one datagram. The payload must fit within the
// negotiated MTU; larger messages are fragmented by the caller.
func (c *Conn) WritePacket(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// ReadPacket blocks until one datagram arrives and copies it into buf.
func (c *Conn) ReadPacket(buf []byte) (int, error) {
	return c.conn.Read(buf)
}

// Close closes the connection. Blocked reads return an error.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// StreamInfo returns the identity the peer announced when connecting.
func (c *Conn) StreamInfo() (StreamInfo, error) {
	return ParseStreamInfo(c.conn.StreamID())
}

// PacketLossRate reports dropped/sent from the socket's live statistics,
// rounded to one decimal place. It is an observability signal only; flow
// control stays inside the SRT library. Idle sockets read as 0.
func (c *Conn) PacketLossRate() float64 {
	return lossRate(c.conn.Stats(false))
}

func lossRate(stats srtgo.ConnStats) float64 {
	if stats.SentPackets == 0 {
		return 0
	}

	rate := float64(stats.SentDropped) / float64(stats.SentPackets)
	return math.Round(rate*10) / 10
}

// Dial connects to an SRT listener in live mode, announcing the given
// stream info through the streamid.
func Dial(addr string, info StreamInfo, opts Options) (*Conn, error) {
	opts.StreamID = info.String()

	conn, err := srtgo.Dial(addr, opts.config())
	if err != nil {
		return nil, fmt.Errorf("SRT dial %s: %w", addr, err)
	}

	return &Conn{conn: conn}, nil
}

// Listener accepts SRT connections on a bound address. Peers that do not
// announce a parseable stream info are rejected during the handshake.
type Listener struct {
	l *srtgo.Listener
}

// Listen binds an SRT listener with the given options applied to every
// accepted socket.
func Listen(addr string, opts Options) (*Listener, error) {
	l, err := srtgo.Listen(addr, opts.config())
	if err != nil {
		return nil, fmt.Errorf("SRT listen on %s: %w", addr, err)
	}

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if _, err := ParseStreamInfo(req.StreamID); err != nil {
			return srtgo.RejPeer
		}
		return 0
	})

	return &Listener{l: l}, nil
}

// Accept blocks until a peer connects, returning the connection and its
// announced stream info.
func (l *Listener) Accept() (*Conn, StreamInfo, error) {
	conn, err := l.l.Accept()
	if err != nil {
		return nil, StreamInfo{}, err
	}

	info, err := ParseStreamInfo(conn.StreamID())
	if err != nil {
		// The reject func already vetted the streamid; a parse failure
		// here means the handshake raced a listener reconfiguration.
		conn.Close()
		return nil, StreamInfo{}, err
	}

	return &Conn{conn: conn}, info, nil
}

// Addr returns the listener's bound address string.
func (l *Listener) Addr() string {
	return l.l.Addr().String()
}

// Close stops accepting connections. Blocked Accept calls return an error.
func (l *Listener) Close() error {
	return l.l.Close()
}

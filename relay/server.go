// Package relay implements the middle box for relay-mode sessions: an SRT
// listener that forwards a publisher's raw datagram stream to every
// subscriber announcing the same stream ID.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zsiec/mirror/transport/srt"
)

// relayReadBufferSize covers one full Ethernet-MTU datagram per read.
const relayReadBufferSize = 1500

// link is the datagram connection surface the forwarding loops need.
// *srt.Conn satisfies it; tests substitute in-memory pipes.
type link interface {
	WritePacket(b []byte) error
	ReadPacket(buf []byte) (int, error)
	Close() error
}

// Options configures the relay service.
type Options struct {
	// Addr is the SRT bind address, host:port.
	Addr string
	// SRT carries the socket knobs applied to every accepted connection.
	SRT srt.Options
}

// Server accepts SRT publisher and subscriber connections and forwards
// each publisher's datagrams to the subscribers of its stream ID.
type Server struct {
	log      *slog.Logger
	opts     Options
	registry *Registry
}

// NewServer creates a relay server. If log is nil, slog.Default() is used.
func NewServer(opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "relay"),
		opts:     opts,
		registry: NewRegistry(),
	}
}

// Registry exposes the route registry for stats inspection.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start binds the listener and accepts connections until the context is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	l, err := srt.Listen(s.opts.Addr, s.opts.SRT)
	if err != nil {
		return fmt.Errorf("relay listen: %w", err)
	}
	s.log.Info("listening", "addr", l.Addr())

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, info, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		switch info.Role {
		case srt.RolePublisher:
			go s.servePublisher(ctx, conn, info.ID)
		case srt.RoleSubscriber:
			go s.serveSubscriber(ctx, conn, info.ID)
		default:
			s.log.Warn("unknown role", "stream_id", info.ID, "role", info.Role)
			conn.Close()
		}
	}
}

// servePublisher claims the route's publisher slot and pumps datagrams
// into the fan-out until the connection drops.
func (s *Server) servePublisher(ctx context.Context, conn link, id string) {
	defer conn.Close()

	if err := s.registry.Publish(id); err != nil {
		s.log.Warn("publisher rejected", "stream_id", id, "error", err)
		return
	}
	s.log.Info("publish", "stream_id", id)

	buf := make([]byte, relayReadBufferSize)
	for ctx.Err() == nil {
		n, err := conn.ReadPacket(buf)
		if err != nil || n == 0 {
			s.log.Debug("publisher read ended", "stream_id", id, "error", err)
			break
		}
		s.registry.Forward(id, buf[:n])
	}

	stats, _ := s.registry.Stats(id)
	s.registry.Unpublish(id)
	s.log.Info("publisher closed", "stream_id", id,
		"bytes", stats.BytesForwarded,
		"datagrams", stats.Datagrams,
		"dropped_slow", stats.DroppedSlow)
}

// serveSubscriber attaches a subscriber to the route and drains its queue
// onto the wire. A write error or a publisher disconnect ends the loop.
func (s *Server) serveSubscriber(ctx context.Context, conn link, id string) {
	defer conn.Close()

	sub := s.registry.Subscribe(id)
	defer s.registry.Unsubscribe(id, sub)
	stop := context.AfterFunc(ctx, sub.close)
	defer stop()
	s.log.Info("subscribe", "stream_id", id, "subscriber", sub.id)

	for ctx.Err() == nil {
		pkt, ok := sub.next()
		if !ok {
			s.log.Debug("route closed", "stream_id", id, "subscriber", sub.id)
			return
		}
		if err := conn.WritePacket(pkt); err != nil {
			s.log.Debug("subscriber write ended",
				"stream_id", id, "subscriber", sub.id, "error", err)
			return
		}
	}
}

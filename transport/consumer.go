package transport

import (
	"log/slog"

	"github.com/zsiec/mirror/media"
)

// packetFilter is the per-stream gating state machine on the receive side.
//
// A stream starts uninitialized and admits nothing until the first Config
// unit arrives. Video additionally stays unreadable until a keyframe is
// observed, and is knocked back to unreadable whenever transport-level loss
// is detected; delivery then pauses until the sender's next keyframe.
type packetFilter struct {
	stream      media.StreamType
	initialized bool
	readable    bool
}

func (f *packetFilter) admit(kind media.BufferKind) bool {
	// The decoder cannot be initialized by anything but a config unit, so
	// everything else is dropped until one arrives.
	if !f.initialized {
		if kind != media.KindConfig {
			return false
		}

		f.initialized = true
		return true
	}

	// An already-initialized audio decoder gains nothing from repeated
	// config units; only the first one matters.
	if f.stream == media.StreamAudio && kind == media.KindConfig {
		return false
	}

	if f.stream == media.StreamVideo {
		// Video config always passes so the decoder's parameter sets stay
		// current, and a keyframe flips the stream back to readable.
		if kind == media.KindConfig {
			return true
		}

		if !f.readable {
			if kind != media.KindKeyFrame {
				return false
			}

			f.readable = true
		}
	}

	return true
}

func (f *packetFilter) signalLoss() {
	f.readable = false
}

// StreamConsumer gates which received wire packets are forwarded to the
// decoder and detects transport-level loss through the outer envelope
// sequence number. The sequence is connection-wide: both streams draw from
// one producer counter, so any discontinuity means a wire packet was lost
// somewhere. On a gap the video stream is paused until the next keyframe;
// audio tolerates loss and keeps flowing.
//
// One consumer per logical connection, driven by a single network thread;
// no internal locking.
type StreamConsumer struct {
	log     *slog.Logger
	started bool
	lastSeq uint32
	video   packetFilter
	audio   packetFilter
}

// NewStreamConsumer creates a consumer with both streams uninitialized.
// If log is nil, slog.Default() is used.
func NewStreamConsumer(log *slog.Logger) *StreamConsumer {
	if log == nil {
		log = slog.Default()
	}
	return &StreamConsumer{
		log:   log.With("component", "stream-consumer"),
		video: packetFilter{stream: media.StreamVideo},
		audio: packetFilter{stream: media.StreamAudio},
	}
}

// Filter consumes one reassembled wire packet. It returns the decoded
// buffer and true when the packet should be handed to the decoder now, or
// false when it is dropped. Malformed packets are dropped and counted as a
// loss signal; a single bad buffer must not kill the session.
func (c *StreamConsumer) Filter(pkt []byte) (media.Buffer, bool) {
	sequence, buf, err := DecodeEnvelope(pkt)
	if err != nil {
		c.log.Warn("dropping malformed packet", "error", err)
		c.video.signalLoss()
		return media.Buffer{}, false
	}

	if c.started && sequence != c.lastSeq+1 {
		c.log.Warn("packet loss at the transport layer, pausing video until next keyframe",
			"expected", c.lastSeq+1, "got", sequence)
		c.video.signalLoss()
	}
	c.lastSeq = sequence
	c.started = true

	if buf.Empty() {
		return media.Buffer{}, false
	}

	filter := &c.audio
	if buf.Stream == media.StreamVideo {
		filter = &c.video
	}
	if !filter.admit(buf.Kind) {
		return media.Buffer{}, false
	}

	return buf, true
}

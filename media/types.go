// Package media defines the logical buffer types that flow through the
// mirror transport pipeline, from the encoder-facing sender to the
// decoder-facing receiver queues.
package media

// Channel buffer sizes used by the receiver adapters to decouple the network
// read loop from the consuming decode threads. Sized to absorb jitter without
// excessive memory: ~2 seconds of video, ~2.5s of audio.
const (
	VideoBufferSize = 60
	AudioBufferSize = 120
)

// StreamType identifies which logical stream a buffer belongs to.
type StreamType uint8

const (
	StreamVideo StreamType = iota
	StreamAudio
)

// String returns the string representation of StreamType.
func (s StreamType) String() string {
	switch s {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Valid reports whether the value is a known stream type. Used by the wire
// decoder to reject corrupted envelopes.
func (s StreamType) Valid() bool {
	return s == StreamVideo || s == StreamAudio
}

// BufferKind classifies one encoded media access unit.
//
// Partial is ordinary mid-stream data that needs prior context to decode.
// KeyFrame is a self-contained decodable unit (video only). Config is
// out-of-band decoder-initialization data such as H.264 parameter sets or
// an Opus identification header.
type BufferKind uint8

const (
	KindPartial BufferKind = iota
	KindKeyFrame
	KindConfig
)

// String returns the string representation of BufferKind.
func (k BufferKind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindKeyFrame:
		return "keyframe"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Valid reports whether the value is a known buffer kind.
func (k BufferKind) Valid() bool {
	return k <= KindConfig
}

// Buffer is one encoded media access unit plus its transport metadata.
// Timestamp is in monotonic capture-time units; the transport never
// interprets it.
type Buffer struct {
	Stream    StreamType
	Kind      BufferKind
	Timestamp uint64
	Payload   []byte
}

// Empty reports whether the buffer carries no payload. Empty buffers are
// filtered out before they reach the wire.
func (b Buffer) Empty() bool {
	return len(b.Payload) == 0
}

// Clone returns a deep copy of the buffer. The sender's config cache keeps
// clones so that later re-injection is unaffected by callers reusing the
// original payload slice.
func (b Buffer) Clone() Buffer {
	c := b
	c.Payload = make([]byte, len(b.Payload))
	copy(c.Payload, b.Payload)
	return c
}

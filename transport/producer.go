package transport

import (
	"github.com/zsiec/mirror/media"
)

// AudioConfigInterval is how many audio buffers pass between periodic
// re-injections of the cached audio configuration unit. Receivers joining
// mid-stream see a decoder-initialization header within roughly one
// interval of audio.
const AudioConfigInterval = 30

// StreamProducer decides what actually goes on the wire for one logical
// media buffer. It caches the most recent configuration unit per stream so
// that a cloned copy can be re-injected ahead of every video keyframe and
// periodically into the audio stream; a receiver that joins mid-stream is
// then guaranteed to observe decoder-initialization data before any unit
// that depends on it.
//
// The producer owns the outer wire sequence counter: every emitted unit,
// re-injected configs included, is numbered from it at envelope-encode
// time. The receiver's gap detection depends on this numbering being
// contiguous across both streams.
//
// Owned and driven by a single sender thread; no internal locking.
type StreamProducer struct {
	sequence    uint32
	audioCount  int
	videoConfig *media.Buffer
	audioConfig *media.Buffer
}

// NewStreamProducer creates an empty producer. One producer per sender
// session; state never crosses sessions.
func NewStreamProducer() *StreamProducer {
	return &StreamProducer{}
}

// Filter maps one logical buffer to the wire packets that should be sent
// for it, in order: zero packets for an empty buffer, otherwise the buffer
// itself, possibly preceded by a re-injected config unit carrying the
// current buffer's timestamp.
func (p *StreamProducer) Filter(buf media.Buffer) [][]byte {
	if buf.Empty() {
		return nil
	}

	pkts := make([][]byte, 0, 2)

	switch buf.Stream {
	case media.StreamVideo:
		if buf.Kind == media.KindConfig {
			c := buf.Clone()
			p.videoConfig = &c
		}

		// Decoding any inter frame needs the parameter sets, and a late
		// joiner starts consuming at an arbitrary point in the stream, so
		// every keyframe is preceded by a fresh copy of the config unit.
		if buf.Kind == media.KindKeyFrame && p.videoConfig != nil {
			pkts = append(pkts, p.encode(media.Buffer{
				Stream:    media.StreamVideo,
				Kind:      media.KindConfig,
				Timestamp: buf.Timestamp,
				Payload:   p.videoConfig.Payload,
			}))
		}

	case media.StreamAudio:
		if buf.Kind == media.KindConfig {
			c := buf.Clone()
			p.audioConfig = &c
		}

		// Audio has no keyframe concept, so the config unit is re-injected
		// on a fixed cadence instead.
		if p.audioCount == AudioConfigInterval {
			p.audioCount = 0
			if p.audioConfig != nil {
				pkts = append(pkts, p.encode(media.Buffer{
					Stream:    media.StreamAudio,
					Kind:      media.KindConfig,
					Timestamp: buf.Timestamp,
					Payload:   p.audioConfig.Payload,
				}))
			}
		} else {
			p.audioCount++
		}
	}

	return append(pkts, p.encode(buf))
}

func (p *StreamProducer) encode(buf media.Buffer) []byte {
	pkt := EncodeEnvelope(make([]byte, 0, EnvelopeSize+len(buf.Payload)), p.sequence, buf)
	p.sequence++
	return pkt
}

package transport

import (
	"encoding/binary"
	"errors"

	"github.com/zsiec/mirror/media"
)

// EnvelopeSize is the fixed wire header prepended to every logical buffer:
// u32 sequence, u8 stream type, u8 buffer kind, u64 timestamp. All fields
// big-endian. This layout is the interoperability contract between any
// sender and receiver and must stay bit-exact.
const EnvelopeSize = 14

var (
	// ErrEnvelopeTooShort is returned when a wire packet is smaller than
	// the fixed envelope header.
	ErrEnvelopeTooShort = errors.New("transport: envelope too short")

	// ErrEnvelopeCorrupt is returned when the stream type or buffer kind
	// byte is outside the known range.
	ErrEnvelopeCorrupt = errors.New("transport: envelope stream or kind byte invalid")
)

// EncodeEnvelope appends the envelope header and payload of buf to dst and
// returns the extended slice. Callers pre-allocate dst with
// EnvelopeSize+len(payload) capacity so the payload is copied exactly once.
func EncodeEnvelope(dst []byte, sequence uint32, buf media.Buffer) []byte {
	dst = binary.BigEndian.AppendUint32(dst, sequence)
	dst = append(dst, byte(buf.Stream), byte(buf.Kind))
	dst = binary.BigEndian.AppendUint64(dst, buf.Timestamp)
	return append(dst, buf.Payload...)
}

// DecodeEnvelope parses a wire packet into its outer sequence number and
// logical buffer. The returned payload aliases pkt; callers that retain the
// buffer beyond the life of pkt must copy it. There is no checksum:
// integrity is delegated to the underlying transport.
func DecodeEnvelope(pkt []byte) (uint32, media.Buffer, error) {
	if len(pkt) < EnvelopeSize {
		return 0, media.Buffer{}, ErrEnvelopeTooShort
	}

	stream := media.StreamType(pkt[4])
	kind := media.BufferKind(pkt[5])
	if !stream.Valid() || !kind.Valid() {
		return 0, media.Buffer{}, ErrEnvelopeCorrupt
	}

	return binary.BigEndian.Uint32(pkt), media.Buffer{
		Stream:    stream,
		Kind:      kind,
		Timestamp: binary.BigEndian.Uint64(pkt[6:]),
		Payload:   pkt[EnvelopeSize:],
	}, nil
}

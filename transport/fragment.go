package transport

import (
	"encoding/binary"
	"fmt"
)

const (
	// fragmentHeaderSize is the per-fragment header: u32 message sequence
	// plus u32 total message size, both big-endian.
	fragmentHeaderSize = 8

	// transportOverhead is the fixed per-datagram protocol overhead
	// deducted from the MTU when sizing fragments. SRT's live-mode payload
	// budget for a 1500-byte MTU is 1316 bytes, so 184 bytes of headroom
	// keeps every fragment deliverable on either channel strategy.
	transportOverhead = 1500 - 1316

	// decoderBufferSize is the initial reassembly buffer capacity.
	decoderBufferSize = 4 * 1024 * 1024
)

// FragmentEncoder splits arbitrary-length messages into wire-sized
// fragments. Every fragment of one Encode call carries the same message
// sequence number; the counter advances once per call, after all fragments
// are produced. Fragment storage is reused across calls, so returned slices
// are only valid until the next Encode.
//
// Not safe for concurrent use.
type FragmentEncoder struct {
	maxPacketSize int
	packets       [][]byte
	sequence      uint32
}

// NewFragmentEncoder creates an encoder sized for the given MTU. The MTU
// must leave room for at least one payload byte after the transport
// overhead and fragment header are deducted.
func NewFragmentEncoder(mtu int) (*FragmentEncoder, error) {
	if mtu <= transportOverhead+fragmentHeaderSize {
		return nil, fmt.Errorf("transport: mtu %d too small, need more than %d",
			mtu, transportOverhead+fragmentHeaderSize)
	}

	return &FragmentEncoder{maxPacketSize: mtu - transportOverhead}, nil
}

// MaxPacketSize returns the largest fragment the encoder will produce,
// header included.
func (e *FragmentEncoder) MaxPacketSize() int {
	return e.maxPacketSize
}

// Encode splits bytes into fragments tagged with the current message
// sequence number. The returned slices share storage with the encoder and
// must be written out before the next call.
func (e *FragmentEncoder) Encode(bytes []byte) [][]byte {
	if len(bytes) == 0 {
		return nil
	}

	chunkSize := e.maxPacketSize - fragmentHeaderSize
	count := (len(bytes) + chunkSize - 1) / chunkSize
	for len(e.packets) < count {
		e.packets = append(e.packets, make([]byte, 0, e.maxPacketSize))
	}

	total := uint32(len(bytes))
	for i := 0; i < count; i++ {
		chunk := bytes[i*chunkSize:]
		if len(chunk) > chunkSize {
			chunk = chunk[:chunkSize]
		}

		pkt := e.packets[i][:0]
		pkt = binary.BigEndian.AppendUint32(pkt, e.sequence)
		pkt = binary.BigEndian.AppendUint32(pkt, total)
		e.packets[i] = append(pkt, chunk...)
	}

	e.sequence++
	return e.packets[:count]
}

// FragmentDecoder reassembles fragments back into complete messages. It is
// a one-message-lookahead reassembler: an accumulated message is only
// emitted when the first fragment of the next message arrives. The trailing
// message of a session is therefore never emitted, which is acceptable for
// continuous live streams.
//
// The decoder relies on the channel delivering fragments of one message in
// order and un-interleaved; there is no per-fragment offset field.
//
// Not safe for concurrent use.
type FragmentDecoder struct {
	bytes    []byte
	started  bool
	lastSeq  uint32
	lastSize int
}

// NewFragmentDecoder creates a decoder with a pre-grown reassembly buffer.
func NewFragmentDecoder() *FragmentDecoder {
	return &FragmentDecoder{bytes: make([]byte, 0, decoderBufferSize)}
}

// Decode consumes one fragment datagram. When the fragment begins a new
// message and the previous message accumulated completely, that message is
// returned (as a fresh copy) with ok=true. Incomplete previous messages are
// silently discarded. Datagrams shorter than the fragment header are
// rejected.
func (d *FragmentDecoder) Decode(pkt []byte) ([]byte, bool) {
	if len(pkt) < fragmentHeaderSize {
		return nil, false
	}

	sequence := binary.BigEndian.Uint32(pkt)
	size := int(binary.BigEndian.Uint32(pkt[4:]))

	var msg []byte
	if !d.started || sequence != d.lastSeq {
		if len(d.bytes) > 0 && len(d.bytes) >= d.lastSize {
			msg = make([]byte, d.lastSize)
			copy(msg, d.bytes)
		}

		d.bytes = d.bytes[:0]
	}

	d.bytes = append(d.bytes, pkt[fragmentHeaderSize:]...)
	d.lastSeq = sequence
	d.lastSize = size
	d.started = true

	return msg, msg != nil
}

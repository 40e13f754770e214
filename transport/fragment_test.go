package transport

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"
)

// pump feeds every fragment of one encoded message to the decoder and
// returns whatever completed message the decoder releases along the way.
func pump(t *testing.T, dec *FragmentDecoder, frags [][]byte) []byte {
	t.Helper()

	var out []byte
	for _, f := range frags {
		if msg, ok := dec.Decode(f); ok {
			if out != nil {
				t.Fatal("decoder emitted more than one message")
			}
			out = msg
		}
	}
	return out
}

func TestFragmentRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))

	for _, mtu := range []int{576, 1200, 1500, 9000} {
		for _, size := range []int{1, 100, 1309, 65536, 1 << 20} {
			enc, err := NewFragmentEncoder(mtu)
			if err != nil {
				t.Fatalf("mtu %d: %v", mtu, err)
			}
			dec := NewFragmentDecoder()

			msg := make([]byte, size)
			rng.Read(msg)

			if got := pump(t, dec, enc.Encode(msg)); got != nil {
				t.Fatalf("mtu %d size %d: message released before lookahead", mtu, size)
			}

			// One-message-lookahead: the message is only released when the
			// next message's first fragment arrives.
			got := pump(t, dec, enc.Encode([]byte{0}))
			if !bytes.Equal(got, msg) {
				t.Fatalf("mtu %d size %d: round trip mismatch (got %d bytes)", mtu, size, len(got))
			}
		}
	}
}

func TestFragmentSizeBound(t *testing.T) {
	t.Parallel()

	for _, mtu := range []int{576, 1500, 9000} {
		enc, err := NewFragmentEncoder(mtu)
		if err != nil {
			t.Fatalf("mtu %d: %v", mtu, err)
		}

		for _, frag := range enc.Encode(make([]byte, 1<<20)) {
			if len(frag) > mtu-transportOverhead {
				t.Fatalf("mtu %d: fragment of %d bytes exceeds budget %d",
					mtu, len(frag), mtu-transportOverhead)
			}
		}
	}
}

func TestFragmentEncoderSequencePerCall(t *testing.T) {
	t.Parallel()

	enc, err := NewFragmentEncoder(1500)
	if err != nil {
		t.Fatal(err)
	}

	first := enc.Encode(make([]byte, 5000))
	seq := binary.BigEndian.Uint32(first[0])
	for i, f := range first {
		if got := binary.BigEndian.Uint32(f); got != seq {
			t.Errorf("fragment %d sequence = %d, want %d", i, got, seq)
		}
	}

	second := enc.Encode([]byte{1})
	if got := binary.BigEndian.Uint32(second[0]); got != seq+1 {
		t.Errorf("next call sequence = %d, want %d", got, seq+1)
	}
}

func TestFragmentEncoderTooSmallMTU(t *testing.T) {
	t.Parallel()

	if _, err := NewFragmentEncoder(transportOverhead + fragmentHeaderSize); err == nil {
		t.Error("expected error for MTU with no payload room")
	}
}

func TestFragmentDecoderDiscardsIncompleteMessage(t *testing.T) {
	t.Parallel()

	enc, err := NewFragmentEncoder(1500)
	if err != nil {
		t.Fatal(err)
	}
	dec := NewFragmentDecoder()

	// Drop the tail fragment of the first message; the second message must
	// supersede it and still decode cleanly.
	lost := enc.Encode(bytes.Repeat([]byte{0xaa}, 5000))
	for _, f := range lost[:len(lost)-1] {
		if _, ok := dec.Decode(f); ok {
			t.Fatal("incomplete message released")
		}
	}

	next := []byte("replacement")
	if got := pump(t, dec, enc.Encode(next)); got != nil {
		t.Fatalf("truncated predecessor emitted: %d bytes", len(got))
	}

	got := pump(t, dec, enc.Encode([]byte{0}))
	if !bytes.Equal(got, next) {
		t.Fatalf("replacement message = %q, want %q", got, next)
	}
}

func TestFragmentDecoderRejectsShortDatagram(t *testing.T) {
	t.Parallel()

	dec := NewFragmentDecoder()
	if _, ok := dec.Decode([]byte{1, 2, 3}); ok {
		t.Error("short datagram accepted")
	}
}

func TestFragmentDecoderEmitsCopy(t *testing.T) {
	t.Parallel()

	enc, err := NewFragmentEncoder(1500)
	if err != nil {
		t.Fatal(err)
	}
	dec := NewFragmentDecoder()

	pump(t, dec, enc.Encode([]byte("first")))
	got := pump(t, dec, enc.Encode([]byte("second")))
	pump(t, dec, enc.Encode([]byte("third")))

	if !bytes.Equal(got, []byte("first")) {
		t.Fatalf("released message %q mutated by later decode", got)
	}
}

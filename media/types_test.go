package media

import (
	"bytes"
	"testing"
)

func TestStreamTypeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    StreamType
		want string
	}{
		{name: "video", s: StreamVideo, want: "video"},
		{name: "audio", s: StreamAudio, want: "audio"},
		{name: "out of range", s: StreamType(9), want: "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.s.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBufferKindValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		k    BufferKind
		want bool
	}{
		{name: "partial", k: KindPartial, want: true},
		{name: "keyframe", k: KindKeyFrame, want: true},
		{name: "config", k: KindConfig, want: true},
		{name: "out of range", k: BufferKind(3), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.k.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBufferClone(t *testing.T) {
	t.Parallel()

	orig := Buffer{
		Stream:    StreamVideo,
		Kind:      KindConfig,
		Timestamp: 42,
		Payload:   []byte{1, 2, 3},
	}

	clone := orig.Clone()
	if !bytes.Equal(clone.Payload, orig.Payload) {
		t.Fatalf("clone payload = %v, want %v", clone.Payload, orig.Payload)
	}

	// The clone must survive the caller scribbling over the original slice.
	orig.Payload[0] = 99
	if clone.Payload[0] != 1 {
		t.Errorf("clone shares payload storage with the original")
	}
}

func TestBufferEmpty(t *testing.T) {
	t.Parallel()

	if !(Buffer{}).Empty() {
		t.Error("zero buffer should be empty")
	}
	if (Buffer{Payload: []byte{0}}).Empty() {
		t.Error("buffer with payload should not be empty")
	}
}

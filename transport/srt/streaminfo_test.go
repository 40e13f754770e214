package srt

import "testing"

func TestParseStreamInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamID string
		want     StreamInfo
		wantErr  bool
	}{
		{name: "subscriber", streamID: "#!::i=display-1,k=0", want: StreamInfo{ID: "display-1", Role: RoleSubscriber}},
		{name: "publisher", streamID: "#!::i=display-1,k=1", want: StreamInfo{ID: "display-1", Role: RolePublisher}},
		{name: "unknown keys ignored", streamID: "#!::i=a,x=y,k=1", want: StreamInfo{ID: "a", Role: RolePublisher}},
		{name: "missing role defaults subscriber", streamID: "#!::i=a", want: StreamInfo{ID: "a", Role: RoleSubscriber}},
		{name: "no prefix", streamID: "i=a,k=1", wantErr: true},
		{name: "empty", streamID: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseStreamInfo(tc.streamID)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseStreamInfo(%q) succeeded, want error", tc.streamID)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStreamInfo(%q) error: %v", tc.streamID, err)
			}
			if got != tc.want {
				t.Errorf("ParseStreamInfo(%q) = %+v, want %+v", tc.streamID, got, tc.want)
			}
		})
	}
}

func TestStreamInfoRoundTrip(t *testing.T) {
	t.Parallel()

	for _, info := range []StreamInfo{
		{ID: "display-1", Role: RolePublisher},
		{ID: "a", Role: RoleSubscriber},
	} {
		got, err := ParseStreamInfo(info.String())
		if err != nil {
			t.Fatalf("round trip of %+v failed: %v", info, err)
		}
		if got != info {
			t.Errorf("round trip of %+v = %+v", info, got)
		}
	}
}

package srt

import (
	"fmt"
	"strings"
)

// Role distinguishes the two sides of a relayed stream.
type Role uint8

const (
	// RoleSubscriber receives a stream.
	RoleSubscriber Role = 0
	// RolePublisher originates a stream.
	RolePublisher Role = 1
)

// String returns the string representation of Role.
func (r Role) String() string {
	switch r {
	case RoleSubscriber:
		return "subscriber"
	case RolePublisher:
		return "publisher"
	default:
		return "unknown"
	}
}

// StreamInfo is the identity a connecting peer announces through the SRT
// streamid: which stream it wants and whether it publishes or subscribes.
type StreamInfo struct {
	ID   string
	Role Role
}

// streamInfoPrefix is the SRT access-control streamid marker.
const streamInfoPrefix = "#!::"

// String encodes the info in the SRT streamid access syntax,
// e.g. "#!::i=display-1,k=1".
func (s StreamInfo) String() string {
	return fmt.Sprintf("%si=%s,k=%d", streamInfoPrefix, s.ID, s.Role)
}

// ParseStreamInfo parses a streamid in the access syntax. Unknown keys are
// ignored; a missing or malformed prefix is an error.
func ParseStreamInfo(streamID string) (StreamInfo, error) {
	if !strings.HasPrefix(streamID, streamInfoPrefix) {
		return StreamInfo{}, fmt.Errorf("srt: invalid stream info %q", streamID)
	}

	var info StreamInfo
	for _, item := range strings.Split(streamID[len(streamInfoPrefix):], ",") {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		switch k {
		case "i":
			info.ID = v
		case "k":
			if v == "1" {
				info.Role = RolePublisher
			}
		}
	}

	return info, nil
}

package transport

// StrategyKind selects the channel kind a session is built on.
type StrategyKind uint8

const (
	// StrategyDirect runs a reliable point-to-point channel where the
	// sender binds an SRT listener and receivers connect straight to it.
	StrategyDirect StrategyKind = iota
	// StrategyRelay runs the same reliable channel, but both ends connect
	// to a relay service that forwards the publisher's stream to every
	// subscriber.
	StrategyRelay
	// StrategyMulticast sends best-effort datagrams to a UDP multicast
	// group; no handshake, no reliability.
	StrategyMulticast
)

// String returns the string representation of StrategyKind.
func (k StrategyKind) String() string {
	switch k {
	case StrategyDirect:
		return "direct"
	case StrategyRelay:
		return "relay"
	case StrategyMulticast:
		return "multicast"
	default:
		return "unknown"
	}
}

// TransportStrategy pairs a channel kind with its network address. For
// Direct the sender uses it as a bind address and the receiver as the
// sender's address; for Relay it is the relay service address; for
// Multicast it is the group address and port shared by both ends.
type TransportStrategy struct {
	Kind    StrategyKind
	Address string
}

// Direct returns a Direct strategy for the given address.
func Direct(addr string) TransportStrategy {
	return TransportStrategy{Kind: StrategyDirect, Address: addr}
}

// Relay returns a Relay strategy for the given relay service address.
func Relay(addr string) TransportStrategy {
	return TransportStrategy{Kind: StrategyRelay, Address: addr}
}

// Multicast returns a Multicast strategy for the given group address.
func Multicast(addr string) TransportStrategy {
	return TransportStrategy{Kind: StrategyMulticast, Address: addr}
}

// TransportOptions configures a session's underlying channel. Constructed
// once at session creation and immutable afterwards.
type TransportOptions struct {
	Strategy TransportStrategy

	// MTU bounds the wire size of every fragment, including the fixed
	// protocol overhead deduction.
	MTU int

	// MaxBandwidth caps the reliable channel's send rate in bytes per
	// second; -1 means unlimited.
	MaxBandwidth int64

	// LatencyMS is the reliable channel's receive latency buffer in
	// milliseconds.
	LatencyMS int

	// TimeoutMS is the peer idle timeout in milliseconds, enforced by the
	// reliable transport and surfaced as a socket error on expiry.
	TimeoutMS int

	// FlowControlWindow is the reliable channel's flow control window
	// size in packets.
	FlowControlWindow int

	// FEC is a forward-error-correction descriptor passed through
	// verbatim to the reliable transport.
	FEC string
}

// DefaultTransportOptions returns the option set used by the reference
// deployment: live-mode SRT with staircase FEC and a 60ms latency buffer.
func DefaultTransportOptions(strategy TransportStrategy) TransportOptions {
	return TransportOptions{
		Strategy:          strategy,
		MTU:               1500,
		MaxBandwidth:      -1,
		LatencyMS:         60,
		TimeoutMS:         2000,
		FlowControlWindow: 25600,
		FEC:               "fec,layout:staircase,rows:2,cols:10,arq:onreq",
	}
}

// Package srt binds the mirror transport to SRT (Secure Reliable
// Transport), the reliable low-latency channel behind the Direct and Relay
// strategies. It wraps listener-mode (Server role, accepting subscriber
// connections) and caller-mode (Dial) sockets behind the shared
// packet-conn contract, and carries the stream identity in the SRT
// streamid access syntax.
package srt

// Package transport implements the mirror wire protocol: the buffer
// envelope, the fragment codec that fits arbitrary media buffers into
// MTU-sized datagrams, the sender/receiver stream filters that recover
// decodability after packet loss, and the session layer that binds them
// to a concrete channel (SRT point-to-point or UDP multicast).
package transport

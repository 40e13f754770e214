package multicast

import "container/heap"

// reorderQueue absorbs minor UDP reordering by holding datagrams in a
// bounded lookahead window and releasing them in sequence order. A packet
// is released as soon as it is the next expected one, or once the queue
// holds more than delay packets (at which point the gap is conceded and the
// smallest held sequence is released). Packets arriving behind the release
// watermark are dropped — this is best-effort mitigation, not a guarantee.
type reorderQueue struct {
	delay   int
	started bool
	next    uint64
	heap    packetHeap
}

type queuedPacket struct {
	sequence uint64
	payload  []byte
}

func newReorderQueue(delay int) *reorderQueue {
	return &reorderQueue{delay: delay}
}

// Push inserts one datagram. Late packets (already conceded) are dropped.
func (q *reorderQueue) Push(sequence uint64, payload []byte) {
	if q.started && sequence < q.next {
		return
	}

	heap.Push(&q.heap, queuedPacket{sequence: sequence, payload: payload})
}

// Pop releases the next in-order datagram, or returns false when every held
// packet is still inside the lookahead window.
func (q *reorderQueue) Pop() ([]byte, bool) {
	if q.heap.Len() == 0 {
		return nil, false
	}

	head := q.heap[0]
	if q.started && head.sequence != q.next && q.heap.Len() <= q.delay {
		return nil, false
	}

	heap.Pop(&q.heap)
	q.next = head.sequence + 1
	q.started = true
	return head.payload, true
}

type packetHeap []queuedPacket

func (h packetHeap) Len() int           { return len(h) }
func (h packetHeap) Less(i, j int) bool { return h[i].sequence < h[j].sequence }
func (h packetHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *packetHeap) Push(x any)        { *h = append(*h, x.(queuedPacket)) }
func (h *packetHeap) Pop() any {
	old := *h
	n := len(old)
	pkt := old[n-1]
	*h = old[:n-1]
	return pkt
}

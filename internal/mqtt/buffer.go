package mqtt

import "log/slog"

// bufferedMsg is one serialized box or system message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds the most recent messages published while the broker is
// unreachable. When full, the oldest message is overwritten.
// Not safe for concurrent use; the caller synchronizes.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // overwritten since the last drain
	log     *slog.Logger
}

func newRingBuffer(capacity int, log *slog.Logger) *ringBuffer {
	if log == nil {
		log = slog.Default()
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity), log: log}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}
	if r.dropped == 0 {
		r.log.Warn("mqtt buffer full, dropping oldest", "capacity", len(r.buf))
	}
	r.dropped++
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		r.dropped = 0
		return nil
	}
	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.head, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}

package subproc

import "sync"

// Deque buffers the most recent bytes of a stream. Once limit bytes are
// held, appending drops the oldest ones. A limit of zero or less keeps
// everything. It is safe for concurrent use.
type Deque struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

// NewDeque returns an empty Deque holding at most limit bytes.
func NewDeque(limit int) *Deque {
	return &Deque{limit: limit}
}

// Append adds b, dropping the oldest bytes beyond the limit.
func (d *Deque) Append(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.limit > 0 && len(b) >= d.limit {
		d.buf = append(d.buf[:0], b[len(b)-d.limit:]...)
		return
	}
	d.buf = append(d.buf, b...)
	if d.limit > 0 && len(d.buf) > d.limit {
		d.buf = append(d.buf[:0:0], d.buf[len(d.buf)-d.limit:]...)
	}
}

// Bytes returns a copy of the buffered bytes.
func (d *Deque) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buf...)
}

// Take returns the buffered bytes and empties the buffer in one step.
func (d *Deque) Take() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.buf
	d.buf = nil
	return out
}

// Clear drops the buffered bytes.
func (d *Deque) Clear() {
	d.mu.Lock()
	d.buf = nil
	d.mu.Unlock()
}

// Len is the number of buffered bytes.
func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

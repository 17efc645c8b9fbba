package link

// Accumulator collects serial bytes into the next outbound frame.
type Accumulator struct {
	buf   []byte
	limit int
}

// NewAccumulator creates an Accumulator holding at most limit bytes.
func NewAccumulator(limit int) *Accumulator {
	return &Accumulator{buf: make([]byte, 0, limit), limit: limit}
}

// Len is the number of bytes accumulated.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Limit is the maximum number of bytes held.
func (a *Accumulator) Limit() int {
	return a.limit
}

// Room is the number of bytes which can still be appended.
func (a *Accumulator) Room() int {
	return a.limit - len(a.buf)
}

// Append appends as much of p as fits and returns the number of bytes
// dropped.
func (a *Accumulator) Append(p []byte) (dropped int) {
	if room := a.Room(); len(p) > room {
		dropped = len(p) - room
		p = p[:room]
	}
	a.buf = append(a.buf, p...)
	return
}

// Take returns the accumulated frame and empties the accumulator.
func (a *Accumulator) Take() []byte {
	if len(a.buf) == 0 {
		return nil
	}
	frame := make([]byte, len(a.buf))
	copy(frame, a.buf)
	a.buf = a.buf[:0]
	return frame
}

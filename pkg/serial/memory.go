package serial

import (
	"bytes"
	"sync"
)

// Memory is an in-memory serial port. Input is fed by Feed and output is
// collected until taken.
type Memory struct {
	lock sync.Mutex
	in   []byte
	out  bytes.Buffer
}

// Feed appends bytes to the input as if they arrived on the line.
func (m *Memory) Feed(p []byte) {
	m.lock.Lock()
	m.in = append(m.in, p...)
	m.lock.Unlock()
}

// BytesAvailable returns the number of input bytes not yet read.
func (m *Memory) BytesAvailable() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.in)
}

// ReadUpTo removes and returns at most n input bytes.
func (m *Memory) ReadUpTo(n int) []byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	if n > len(m.in) {
		n = len(m.in)
	}
	if n <= 0 {
		return nil
	}
	p := append([]byte(nil), m.in[:n]...)
	m.in = m.in[n:]
	return p
}

// Write implements io.Writer.
func (m *Memory) Write(p []byte) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.out.Write(p)
}

// TakeOutput returns and clears the bytes written so far.
func (m *Memory) TakeOutput() []byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	p := append([]byte(nil), m.out.Bytes()...)
	m.out.Reset()
	return p
}

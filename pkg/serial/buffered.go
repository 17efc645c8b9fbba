package serial

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/lorabridge/pkg/framework"
)

// DefaultMaxBuffered bounds bytes read but not yet consumed.
const DefaultMaxBuffered = 4096

// Buffered reads a blocking stream in the background so the consumer can
// poll it without blocking.
type Buffered struct {
	ReadWriter  io.ReadWriter
	MaxBuffered int
	// OnData is called from the reader goroutine after new bytes are
	// buffered. It must not block.
	OnData func()

	lock    sync.Mutex
	buf     []byte
	dropped uint64
}

// NewBuffered wraps rw.
func NewBuffered(rw io.ReadWriter) *Buffered {
	return &Buffered{ReadWriter: rw, MaxBuffered: DefaultMaxBuffered}
}

// BytesAvailable returns the number of buffered bytes.
func (b *Buffered) BytesAvailable() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.buf)
}

// ReadUpTo removes and returns at most n buffered bytes.
func (b *Buffered) ReadUpTo(n int) []byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	if n > len(b.buf) {
		n = len(b.buf)
	}
	if n <= 0 {
		return nil
	}
	p := make([]byte, n)
	copy(p, b.buf)
	b.buf = b.buf[:copy(b.buf, b.buf[n:])]
	return p
}

// Write writes to the underlying stream.
func (b *Buffered) Write(p []byte) (int, error) {
	return b.ReadWriter.Write(p)
}

// Dropped is the number of bytes discarded because the buffer was full.
func (b *Buffered) Dropped() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.dropped
}

// Run implements framework.Runnable. It returns when the stream fails or
// ctx is canceled; a closable stream is closed on cancel.
func (b *Buffered) Run(ctx context.Context) error {
	if closer, ok := b.ReadWriter.(io.Closer); ok {
		return fx.RunWithContextCloser(ctx, closer, b.readLoop)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.readLoop()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (b *Buffered) readLoop() error {
	buf := make([]byte, 256)
	for {
		n, err := b.ReadWriter.Read(buf)
		if n > 0 {
			b.push(buf[:n])
		}
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
}

func (b *Buffered) push(p []byte) {
	limit := b.MaxBuffered
	if limit <= 0 {
		limit = DefaultMaxBuffered
	}
	b.lock.Lock()
	var dropped int
	if room := limit - len(b.buf); len(p) > room {
		dropped = len(p) - room
		p = p[:room]
	}
	b.buf = append(b.buf, p...)
	b.dropped += uint64(dropped)
	b.lock.Unlock()
	if dropped > 0 {
		glog.Warningf("serial input buffer full, dropped %d bytes", dropped)
	}
	if fn := b.OnData; fn != nil && len(p) > 0 {
		fn()
	}
}

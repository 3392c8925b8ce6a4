package process

import "sync"

// maxCapture bounds how much of each output stream is retained.
const maxCapture = 256 * 1024

// captureBuffer is an io.Writer that keeps the most recent maxCapture bytes.
// exec.Cmd copies the child's pipes into it on its own goroutines, so the
// child never blocks on a full pipe.
type captureBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	if over := len(c.buf) - maxCapture; over > 0 {
		c.buf = append(c.buf[:0], c.buf[over:]...)
	}
	return len(p), nil
}

func (c *captureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

package ioqueue

import (
	"sync"

	"github.com/lumadb/luma/pkg/lumaerr"
)

// bufferPool is the fixed-size registered buffer pool from the original's
// num_buffers/buffer_size config: pre-allocated slices handed out to reads
// and returned by the caller after consuming a Completion.
type bufferPool struct {
	mu   sync.Mutex
	free [][]byte
	size int
}

func newBufferPool(n, size int) *bufferPool {
	p := &bufferPool{size: size}
	for i := 0; i < n; i++ {
		p.free = append(p.free, make([]byte, size))
	}
	return p
}

// acquire returns a buffer able to hold length bytes: a pooled buffer when
// length fits, sliced to length, or a freshly allocated one when length
// exceeds the pool's buffer size. When length fits but every pooled buffer
// is taken it returns lumaerr.ResourceExhausted instead of allocating.
func (p *bufferPool) acquire(length int) ([]byte, error) {
	if length > p.size {
		return make([]byte, length), nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil, lumaerr.New("ioqueue.bufferPool.acquire", lumaerr.ResourceExhausted)
	}
	buf := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return buf[:length], nil
}

func (p *bufferPool) release(buf []byte) {
	if cap(buf) != p.size {
		return // not one of ours (oversized one-off allocation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, buf[:cap(buf)])
}

// Package pool recycles render buffers on the live event path.
package pool

import (
	"bytes"
	"sync"
)

// maxPooledBuffer bounds the capacity of buffers returned to the pool.
const maxPooledBuffer = 64 * 1024

var buffers = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// GetBuffer retrieves an empty buffer from the pool.
func GetBuffer() *bytes.Buffer {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool. Oversized buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	buffers.Put(buf)
}

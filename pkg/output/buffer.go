// Package output provides the capture buffers that collect a sandbox's
// standard output and standard error while evaluation is in flight.
package output

import (
	"bytes"
	"sync"
)

// Buffer is a growable, concurrency-safe capture buffer. The sandbox writes
// into it from the evaluation goroutine while the lifecycle engine reads
// point-in-time snapshots from another.
type Buffer struct {
	mu  sync.RWMutex
	buf bytes.Buffer
}

// NewBuffer creates an empty capture buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write implements io.Writer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns a snapshot of everything written so far.
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buf.String()
}

// Len returns the number of bytes captured so far.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buf.Len()
}

// Reset discards the captured content.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// Pair bundles the stdout and stderr buffers for one evaluation.
type Pair struct {
	Stdout *Buffer
	Stderr *Buffer
}

// NewPair creates a fresh stdout/stderr buffer pair.
func NewPair() *Pair {
	return &Pair{Stdout: NewBuffer(), Stderr: NewBuffer()}
}

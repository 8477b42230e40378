// Object pools for the rewriter and job service hot paths
//
// - Byte buffers for assembling rewritten G-code lines
// - Field maps for job notifications
//
// Usage:
//
//	buf := pool.GetByteBuffer()
//	defer pool.PutByteBuffer(buf)
//	buf.WriteString("G1 ")
//
// Copyright (C) 2026 Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
	"sync/atomic"
)

// maxPooledLine bounds the buffers kept in the pool. G-code lines are
// short; a buffer that grew past this held something unusual.
const maxPooledLine = 4096

// ByteBuffer is an append-only byte slice reused between lines.
type ByteBuffer struct {
	buf []byte
}

var byteBufferPool = sync.Pool{
	New: func() any {
		allocs.Add(1)
		return &ByteBuffer{buf: make([]byte, 0, 96)}
	},
}

var (
	gets   atomic.Uint64
	allocs atomic.Uint64
)

// GetByteBuffer gets an empty byte buffer from the pool
func GetByteBuffer() *ByteBuffer {
	gets.Add(1)
	b := byteBufferPool.Get().(*ByteBuffer)
	b.buf = b.buf[:0]
	return b
}

// PutByteBuffer returns a byte buffer to the pool
func PutByteBuffer(b *ByteBuffer) {
	if b == nil || cap(b.buf) > maxPooledLine {
		return
	}
	byteBufferPool.Put(b)
}

// Bytes returns the buffer contents. The slice is only valid until the
// buffer is modified or returned to the pool.
func (b *ByteBuffer) Bytes() []byte {
	return b.buf
}

// Write appends bytes to the buffer
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte
func (b *ByteBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// WriteString appends a string
func (b *ByteBuffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// Len returns the buffer length
func (b *ByteBuffer) Len() int {
	return len(b.buf)
}

// Reset clears the buffer
func (b *ByteBuffer) Reset() {
	b.buf = b.buf[:0]
}

// fieldMapPool holds maps used as JSON-RPC notification params.
var fieldMapPool = sync.Pool{
	New: func() any {
		return make(map[string]any, 8)
	},
}

// GetFieldMap gets an empty map from the pool
func GetFieldMap() map[string]any {
	return fieldMapPool.Get().(map[string]any)
}

// PutFieldMap clears m and returns it to the pool
func PutFieldMap(m map[string]any) {
	if m == nil {
		return
	}
	clear(m)
	fieldMapPool.Put(m)
}

// Stats reports how many buffers were requested and how many of those
// needed a fresh allocation.
type Stats struct {
	Gets   uint64
	Allocs uint64
}

// BufferStats returns the byte buffer pool counters.
func BufferStats() Stats {
	return Stats{Gets: gets.Load(), Allocs: allocs.Load()}
}

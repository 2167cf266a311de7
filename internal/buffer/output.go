// Package buffer holds the terminal's decoded output.
package buffer

import (
	"bytes"
	"sync"
	"unicode/utf8"
)

// DefaultCap is the default OutputBuffer capacity in bytes.
const DefaultCap = 1_000_000

// Output is an append-only circular byte buffer bounded to a fixed capacity.
// When an append would exceed the capacity the oldest bytes are dropped, so
// Len never exceeds Cap.
//
// Appends come from the terminal's tick loop; snapshots may be taken from
// other goroutines.
type Output struct {
	mu      sync.RWMutex
	data    []byte
	head    int // index of the oldest byte
	length  int
	evicted uint64
}

// NewOutput creates a buffer holding at most capacity bytes.
func NewOutput(capacity int) *Output {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Output{data: make([]byte, capacity)}
}

// Write appends p, evicting the oldest bytes as needed. It never fails.
func (b *Output) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// Append appends p and returns the number of bytes evicted to make room.
func (b *Output) Append(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.data)
	n := len(p)
	dropped := 0

	// Only the last size bytes of p can survive.
	if n >= size {
		dropped = b.length + n - size
		copy(b.data, p[n-size:])
		b.head = 0
		b.length = size
		b.evicted += uint64(dropped)
		return dropped
	}

	if over := b.length + n - size; over > 0 {
		b.head = (b.head + over) % size
		b.length -= over
		dropped = over
	}

	tail := (b.head + b.length) % size
	first := copy(b.data[tail:], p)
	copy(b.data, p[first:])
	b.length += n
	b.evicted += uint64(dropped)
	return dropped
}

// AppendString appends s.
func (b *Output) AppendString(s string) int {
	return b.Append([]byte(s))
}

// Bytes returns a copy of the buffered bytes, oldest first. A UTF-8
// sequence cut in half by eviction is trimmed from the front.
func (b *Output) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.copyFrom(0)
}

// Tail returns a copy of the buffered bytes following the n-th newline from
// the end, that is the last n lines. Only that suffix is copied, so a frame
// showing a few rows does not pay for the whole buffer. When n <= 0 or fewer
// than n newlines are buffered Tail is equivalent to Bytes.
func (b *Output) Tail(n int) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 {
		return b.copyFrom(0)
	}

	// The ring holds the logical contents as first followed by second.
	first := b.data[b.head:min(b.head+b.length, len(b.data))]
	second := b.data[:b.length-len(first)]

	end := len(second)
	for ; n > 0 && end > 0; n-- {
		i := bytes.LastIndexByte(second[:end], '\n')
		if i < 0 {
			end = 0
			break
		}
		end = i
	}
	if n == 0 {
		return bytes.Clone(second[end+1:])
	}

	end = len(first)
	for ; n > 0; n-- {
		i := bytes.LastIndexByte(first[:end], '\n')
		if i < 0 {
			return b.copyFrom(0)
		}
		end = i
	}
	return b.copyFrom(end + 1)
}

// copyFrom copies the logical bytes from offset off to the end. The caller
// holds the read lock.
func (b *Output) copyFrom(off int) []byte {
	out := make([]byte, b.length-off)
	if len(out) == 0 {
		return out
	}
	start := (b.head + off) % len(b.data)
	first := copy(out, b.data[start:min(start+len(out), len(b.data))])
	copy(out[first:], b.data[:len(out)-first])

	if off == 0 && b.evicted > 0 {
		i := 0
		for i < len(out) && i < utf8.UTFMax && !utf8.RuneStart(out[i]) {
			i++
		}
		out = out[i:]
	}
	return out
}

// String returns the buffered text.
func (b *Output) String() string {
	return string(b.Bytes())
}

// Len returns the number of buffered bytes.
func (b *Output) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.length
}

// Cap returns the capacity.
func (b *Output) Cap() int {
	return len(b.data)
}

// Evicted returns the total number of bytes dropped since creation.
func (b *Output) Evicted() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}

// Reset empties the buffer.
func (b *Output) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.length = 0
}

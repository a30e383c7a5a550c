// Package inbuf reads an entire input stream into one bounded, contiguous buffer.
package inbuf

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
)

const (
	// ChunkSize is the size of a single read from the input stream.
	ChunkSize = 4096
	// Increment is how much capacity is added each time the buffer grows.
	Increment = ChunkSize * 10
	// Max is the capacity ceiling. Growing to or past it fails the read.
	Max = 100 * 1024 * 1024
)

// ErrCapacityExceeded is returned when the input does not fit below the capacity ceiling.
var ErrCapacityExceeded = errors.New("input exceeds maximum buffer capacity")

// Limits controls chunking and growth of a Buffer.
type Limits struct {
	ChunkSize int
	Increment int
	Max       int
}

// DefaultLimits returns the limits used for standard input.
func DefaultLimits() Limits {
	return Limits{
		ChunkSize: ChunkSize,
		Increment: Increment,
		Max:       Max,
	}
}

func (l Limits) normalize() Limits {
	def := DefaultLimits()
	if l.ChunkSize <= 0 {
		l.ChunkSize = def.ChunkSize
	}
	if l.Increment <= 0 {
		l.Increment = def.Increment
	}
	if l.Max <= 0 {
		l.Max = def.Max
	}
	return l
}

// MaxPayload returns the largest input length that can be read under l,
// or -1 when not even empty input fits.
func (l Limits) MaxPayload() int {
	l = l.normalize()
	largest := ((l.Max - 1) / l.Increment) * l.Increment
	return largest - 1
}

// Buffer is a growable byte buffer with a hard capacity ceiling.
//
// Capacity grows in whole Increments and is never allowed to reach Max.
// A failed read discards everything accumulated so far.
type Buffer struct {
	data     []byte
	capacity int
	limits   Limits
}

// NewBuffer creates an empty buffer. Zero fields in limits take their defaults.
func NewBuffer(limits Limits) *Buffer {
	return &Buffer{limits: limits.normalize()}
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the capacity reserved so far, always a whole number of Increments.
func (b *Buffer) Cap() int { return b.capacity }

// Bytes returns the buffered bytes. The slice aliases the buffer's storage.
func (b *Buffer) Bytes() []byte { return b.data }

// Reset releases the buffer's storage.
func (b *Buffer) Reset() {
	b.data = nil
	b.capacity = 0
}

// ReadFrom reads r until EOF, appending to the buffer.
//
// On any failure the buffer is reset, so callers never observe a partial payload.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	chunk := make([]byte, b.limits.ChunkSize)
	var total int64

	for {
		n, err := r.Read(chunk)
		if n > 0 || b.data == nil {
			if growErr := b.reserve(n); growErr != nil {
				b.Reset()
				return total, growErr
			}
			b.data = append(b.data, chunk[:n]...)
			total += int64(n)
		}

		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			b.Reset()
			return total, fmt.Errorf("failed to read input: %w", err)
		}
	}
}

// reserve grows capacity until n more bytes fit with room to spare.
// The backing slice grows separately through append.
func (b *Buffer) reserve(n int) error {
	capacity := b.capacity
	for len(b.data)+n >= capacity {
		capacity += b.limits.Increment
		if capacity >= b.limits.Max {
			return fmt.Errorf("%w (%s)", ErrCapacityExceeded, humanize.IBytes(uint64(b.limits.Max)))
		}
	}
	b.capacity = capacity
	if b.data == nil {
		b.data = make([]byte, 0, min(capacity, b.limits.Increment))
	}
	return nil
}

// ReadAll reads r to EOF under the given limits.
//
// Empty input yields a zero-length, non-nil slice. On failure the returned
// slice is nil.
func ReadAll(r io.Reader, limits Limits) ([]byte, error) {
	buf := NewBuffer(limits)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns the base64 encoded BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

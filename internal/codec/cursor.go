// Package codec provides the byte-level reading primitives shared by the
// metadata decoders: a little-endian cursor over a byte slice and a minimal
// MessagePack subset reader for duplicacy's unframed entry records.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a read would run past the end of the
// underlying buffer.
var ErrTruncated = errors.New("truncated input")

// Cursor reads little-endian integers and length-prefixed byte runs from a
// fixed buffer, tracking its own read position.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential reading starting at position 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	return len(c.buf) - c.pos
}

// Done reports whether the cursor has consumed the whole buffer.
func (c *Cursor) Done() bool {
	return c.pos >= len(c.buf)
}

// Pos returns the current read offset.
func (c *Cursor) Pos() int {
	return c.pos
}

// ReadExact returns the next n bytes, advancing the cursor.
func (c *Cursor) ReadExact(n int) ([]byte, error) {
	if n < 0 || c.Len() < n {
		return nil, fmt.Errorf("read %d bytes at offset %d: %w", n, c.pos, ErrTruncated)
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

// ReadU8 reads a single byte.
func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU32LE reads a little-endian uint32.
func (c *Cursor) ReadU32LE() (uint32, error) {
	b, err := c.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64LE reads a little-endian uint64.
func (c *Cursor) ReadU64LE() (uint64, error) {
	b, err := c.ReadExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Remaining returns every byte not yet consumed, without advancing the cursor.
func (c *Cursor) Remaining() []byte {
	return c.buf[c.pos:]
}

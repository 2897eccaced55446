package codec

import (
	"fmt"
)

// MessagePack type-prefix bytes needed by the subset this engine consumes.
// See https://github.com/msgpack/msgpack/blob/master/spec.md.
const (
	mpFixstrMin = 0xa0
	mpFixstrMax = 0xbf
	mpUint8     = 0xcc
	mpUint16    = 0xcd
	mpUint32    = 0xce
	mpUint64    = 0xcf
	mpInt8      = 0xd0
	mpInt16     = 0xd1
	mpInt32     = 0xd2
	mpInt64     = 0xd3
	mpStr8      = 0xd9
	mpStr16     = 0xda
	mpStr32     = 0xdb
	mpNegFixMin = 0xe0
)

// MsgpackReader decodes a minimal MessagePack subset from records that carry
// no outer array or map framing: duplicacy writes its entry attributes as a
// flat, fixed-order sequence of fields, so the reader never infers structure
// from the wire — callers consume fields in the order the format dictates
// and stop when the cursor is exhausted.
type MsgpackReader struct {
	c *Cursor
}

// NewMsgpackReader wraps buf for sequential unframed MessagePack decoding.
func NewMsgpackReader(buf []byte) *MsgpackReader {
	return &MsgpackReader{c: NewCursor(buf)}
}

// Done reports whether every byte of the record has been consumed.
func (r *MsgpackReader) Done() bool {
	return r.c.Done()
}

// ReadStr reads a fixstr/str8/str16/str32 value and returns its bytes as a
// string without UTF-8 validation — duplicacy's "hash" field is ASCII hex,
// but its attribute values may be arbitrary binary smuggled through a str
// header, so validating here would reject legitimate records.
func (r *MsgpackReader) ReadStr() (string, error) {
	n, err := r.ReadStrLen()
	if err != nil {
		return "", err
	}
	raw, err := r.c.ReadExact(n)
	if err != nil {
		return "", fmt.Errorf("msgpack: truncated string body: %w", err)
	}
	return string(raw), nil
}

// ReadStrLen reads only the string-type header and returns the declared
// byte length, leaving the string body for the caller to consume directly
// (used for duplicacy attribute values, which are read as raw bytes).
func (r *MsgpackReader) ReadStrLen() (int, error) {
	tag, err := r.c.ReadU8()
	if err != nil {
		return 0, fmt.Errorf("msgpack: missing string header: %w", err)
	}
	switch {
	case tag >= mpFixstrMin && tag <= mpFixstrMax:
		return int(tag - mpFixstrMin), nil
	case tag == mpStr8:
		n, err := r.c.ReadU8()
		if err != nil {
			return 0, fmt.Errorf("msgpack: truncated str8 length: %w", err)
		}
		return int(n), nil
	case tag == mpStr16:
		hi, err := r.c.ReadU8()
		if err != nil {
			return 0, fmt.Errorf("msgpack: truncated str16 length: %w", err)
		}
		lo, err := r.c.ReadU8()
		if err != nil {
			return 0, fmt.Errorf("msgpack: truncated str16 length: %w", err)
		}
		return int(hi)<<8 | int(lo), nil
	case tag == mpStr32:
		b, err := r.c.ReadExact(4)
		if err != nil {
			return 0, fmt.Errorf("msgpack: truncated str32 length: %w", err)
		}
		return int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3]), nil
	default:
		return 0, fmt.Errorf("msgpack: unexpected type tag 0x%02x for string", tag)
	}
}

// ReadInt reads any of the positive-fixint / uint8..64 / negative-fixint /
// int8..64 families and returns the value as a signed int64, which is
// sufficient range for every integer field duplicacy's entries carry.
func (r *MsgpackReader) ReadInt() (int64, error) {
	tag, err := r.c.ReadU8()
	if err != nil {
		return 0, fmt.Errorf("msgpack: missing int header: %w", err)
	}
	switch {
	case tag <= 0x7f:
		return int64(tag), nil
	case tag >= mpNegFixMin:
		return int64(int8(tag)), nil
	case tag == mpUint8:
		v, err := r.c.ReadU8()
		return int64(v), err
	case tag == mpUint16:
		b, err := r.c.ReadExact(2)
		if err != nil {
			return 0, fmt.Errorf("msgpack: truncated uint16: %w", err)
		}
		return int64(uint16(b[0])<<8 | uint16(b[1])), nil
	case tag == mpUint32:
		b, err := r.c.ReadExact(4)
		if err != nil {
			return 0, fmt.Errorf("msgpack: truncated uint32: %w", err)
		}
		return int64(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])), nil
	case tag == mpUint64:
		v, err := r.readU64BE()
		return int64(v), err
	case tag == mpInt8:
		v, err := r.c.ReadU8()
		return int64(int8(v)), err
	case tag == mpInt16:
		b, err := r.c.ReadExact(2)
		if err != nil {
			return 0, fmt.Errorf("msgpack: truncated int16: %w", err)
		}
		return int64(int16(uint16(b[0])<<8 | uint16(b[1]))), nil
	case tag == mpInt32:
		b, err := r.c.ReadExact(4)
		if err != nil {
			return 0, fmt.Errorf("msgpack: truncated int32: %w", err)
		}
		return int64(int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))), nil
	case tag == mpInt64:
		v, err := r.readU64BE()
		return int64(v), err
	default:
		return 0, fmt.Errorf("msgpack: unexpected type tag 0x%02x for int", tag)
	}
}

// ReadRaw consumes exactly n bytes as an opaque value, used for duplicacy
// attribute values once their declared length has been read with ReadStrLen.
func (r *MsgpackReader) ReadRaw(n int) ([]byte, error) {
	b, err := r.c.ReadExact(n)
	if err != nil {
		return nil, fmt.Errorf("msgpack: truncated raw value: %w", err)
	}
	return b, nil
}

func (r *MsgpackReader) readU64BE() (uint64, error) {
	b, err := r.c.ReadExact(8)
	if err != nil {
		return 0, fmt.Errorf("msgpack: truncated 64-bit value: %w", err)
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

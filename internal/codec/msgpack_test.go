package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMsgpackReaderReadStrFixstr(t *testing.T) {
	t.Parallel()

	r := NewMsgpackReader([]byte{0xa3, 'a', 'b', 'c'})
	s, err := r.ReadStr()
	require.NoError(t, err)
	require.Equal(t, "abc", s)
	require.True(t, r.Done())
}

func TestMsgpackReaderReadStrEmpty(t *testing.T) {
	t.Parallel()

	r := NewMsgpackReader([]byte{0xa0})
	s, err := r.ReadStr()
	require.NoError(t, err)
	require.Equal(t, "", s)
}

func TestMsgpackReaderReadStrStr8(t *testing.T) {
	t.Parallel()

	data := append([]byte{0xd9, 0x05}, []byte("hello")...)
	r := NewMsgpackReader(data)
	s, err := r.ReadStr()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestMsgpackReaderReadIntPositiveFixint(t *testing.T) {
	t.Parallel()

	r := NewMsgpackReader([]byte{0x05})
	v, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func TestMsgpackReaderReadIntNegativeFixint(t *testing.T) {
	t.Parallel()

	r := NewMsgpackReader([]byte{0xfb}) // int8(0xfb) == -5
	v, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(-5), v)
}

func TestMsgpackReaderReadIntUint8(t *testing.T) {
	t.Parallel()

	r := NewMsgpackReader([]byte{0xcc, 200})
	v, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(200), v)
}

func TestMsgpackReaderReadIntInt16Negative(t *testing.T) {
	t.Parallel()

	// -300 as big-endian int16: 0xFE, 0xD4.
	r := NewMsgpackReader([]byte{0xd1, 0xfe, 0xd4})
	v, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(-300), v)
}

func TestMsgpackReaderReadIntUint64(t *testing.T) {
	t.Parallel()

	r := NewMsgpackReader([]byte{0xcf, 0, 0, 0, 0, 0, 0, 1, 0})
	v, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(256), v)
}

func TestMsgpackReaderReadRawValue(t *testing.T) {
	t.Parallel()

	// A str8 header naming the length, followed by raw (non-UTF8-checked) bytes.
	data := append([]byte{0xd9, 0x03}, 0xff, 0x00, 0xfe)
	r := NewMsgpackReader(data)
	n, err := r.ReadStrLen()
	require.NoError(t, err)
	require.Equal(t, 3, n)
	raw, err := r.ReadRaw(n)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0x00, 0xfe}, raw)
}

func TestMsgpackReaderSequentialRecordsNoFraming(t *testing.T) {
	t.Parallel()

	// Two bare positive fixints back to back, no array/map wrapper.
	r := NewMsgpackReader([]byte{0x01, 0x02})
	first, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(1), first)
	require.False(t, r.Done())

	second, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(2), second)
	require.True(t, r.Done())
}

func TestMsgpackReaderTruncated(t *testing.T) {
	t.Parallel()

	r := NewMsgpackReader([]byte{0xcc})
	_, err := r.ReadInt()
	require.Error(t, err)
}

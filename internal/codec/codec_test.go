package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripPrimitives(t *testing.T) {
	s := NewSerializer()
	s.WriteByte(7)
	s.WriteUint16(1337)
	s.WriteUint32(1 << 20)
	s.WriteString("main")
	s.WriteFixedString("sync", 12)
	s.WriteData([]byte{1, 2, 3, 4})

	d := NewDeserializer(s.Bytes())

	b, err := d.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(7), b)

	u16, err := d.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(1337), u16)

	u32, err := d.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(1<<20), u32)

	str, err := d.ReadString()
	require.NoError(t, err)
	require.Equal(t, "main", str)

	fixed, err := d.ReadFixedString(12)
	require.NoError(t, err)
	require.Equal(t, "sync", fixed)

	data, err := d.ReadData()
	require.NoError(t, err)
	require.Equal(t, "\x01\x02\x03\x04", string(data))

	require.False(t, d.Remaining(), "expected buffer fully consumed")
}

func TestShortBuffer(t *testing.T) {
	d := NewDeserializer([]byte{1, 2})
	_, err := d.ReadUint32()
	require.Equal(t, ErrShortBuffer, err)
}

func TestFixedStringTrimsNULs(t *testing.T) {
	s := NewSerializer()
	s.WriteFixedString("hi", 5)
	d := NewDeserializer(s.Bytes())
	v, err := d.ReadFixedString(5)
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}

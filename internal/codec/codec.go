// Package codec implements the fixed-endian primitive wire encoding used
// by the p2p wire protocol (internal/wire): bytes,
// u16/u32 big-endian integers, length-prefixed strings and byte strings,
// and NUL-padded fixed-width strings.
package codec

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned whenever a Deserializer is asked to read more
// bytes than remain in its buffer, or a string/data field's declared length
// overruns the buffer.
var ErrShortBuffer = errors.New("codec: short buffer")

// Serializer accumulates encoded fragments and produces the final byte
// string with Bytes.
type Serializer struct {
	buf []byte
}

// NewSerializer returns an empty Serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// WriteByte appends a single byte.
func (s *Serializer) WriteByte(v byte) {
	s.buf = append(s.buf, v)
}

// WriteUint16 appends a big-endian u16.
func (s *Serializer) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	s.buf = append(s.buf, tmp[:]...)
}

// WriteUint32 appends a big-endian u32.
func (s *Serializer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	s.buf = append(s.buf, tmp[:]...)
}

// WriteString appends a length-prefixed (one byte length) ASCII string.
// The string must be at most 255 bytes.
func (s *Serializer) WriteString(v string) {
	s.buf = append(s.buf, byte(len(v)))
	s.buf = append(s.buf, v...)
}

// WriteFixedString appends v NUL-padded (or truncated expectation checked by
// the caller) to exactly size bytes.
func (s *Serializer) WriteFixedString(v string, size int) {
	tmp := make([]byte, size)
	copy(tmp, v)
	s.buf = append(s.buf, tmp...)
}

// WriteData appends a u16 length prefix followed by the raw bytes.
func (s *Serializer) WriteData(v []byte) {
	s.WriteUint16(uint16(len(v)))
	s.buf = append(s.buf, v...)
}

// Append appends raw bytes verbatim, with no length prefix.
func (s *Serializer) Append(v []byte) {
	s.buf = append(s.buf, v...)
}

// Bytes returns the accumulated encoding.
func (s *Serializer) Bytes() []byte {
	return s.buf
}

// Deserializer consumes primitives from the front of a byte buffer.
type Deserializer struct {
	buf []byte
}

// NewDeserializer wraps data for sequential reads.
func NewDeserializer(data []byte) *Deserializer {
	return &Deserializer{buf: data}
}

// Remaining reports whether any bytes are left unconsumed.
func (d *Deserializer) Remaining() bool {
	return len(d.buf) > 0
}

// RemainingData returns whatever bytes have not yet been consumed.
func (d *Deserializer) RemainingData() []byte {
	return d.buf
}

// ReadByte consumes a single byte.
func (d *Deserializer) ReadByte() (byte, error) {
	if len(d.buf) < 1 {
		return 0, ErrShortBuffer
	}
	v := d.buf[0]
	d.buf = d.buf[1:]
	return v, nil
}

// ReadUint16 consumes a big-endian u16.
func (d *Deserializer) ReadUint16() (uint16, error) {
	if len(d.buf) < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint16(d.buf[:2])
	d.buf = d.buf[2:]
	return v, nil
}

// ReadUint32 consumes a big-endian u32.
func (d *Deserializer) ReadUint32() (uint32, error) {
	if len(d.buf) < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(d.buf[:4])
	d.buf = d.buf[4:]
	return v, nil
}

// ReadString consumes a one-byte-length-prefixed string.
func (d *Deserializer) ReadString() (string, error) {
	if len(d.buf) < 1 {
		return "", ErrShortBuffer
	}
	size := int(d.buf[0])
	if len(d.buf) < 1+size {
		return "", ErrShortBuffer
	}
	v := string(d.buf[1 : 1+size])
	d.buf = d.buf[1+size:]
	return v, nil
}

// ReadFixedString consumes exactly size bytes and trims trailing NULs.
func (d *Deserializer) ReadFixedString(size int) (string, error) {
	if len(d.buf) < size {
		return "", ErrShortBuffer
	}
	raw := d.buf[:size]
	d.buf = d.buf[size:]
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end]), nil
}

// ReadData consumes a u16-length-prefixed byte string.
func (d *Deserializer) ReadData() ([]byte, error) {
	size, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	if len(d.buf) < int(size) {
		return nil, ErrShortBuffer
	}
	v := d.buf[:size]
	d.buf = d.buf[size:]
	return v, nil
}

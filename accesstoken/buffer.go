// Binary packing primitives

package accesstoken

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"
)

// Returned by the reader when a field runs past the end of the data
var ErrShortBuffer = errors.New("accesstoken: unexpected end of data")

// Initial capacity of a new buffer
const defaultBufferCapacity = 256

// Growable little-endian byte buffer
type ByteBuffer struct {
	data []byte
}

// Creates new instance of ByteBuffer
func NewByteBuffer() *ByteBuffer {
	return &ByteBuffer{
		data: make([]byte, 0, defaultBufferCapacity),
	}
}

// Writes a 16 bit unsigned integer
func (buf *ByteBuffer) PutUint16(v uint16) *ByteBuffer {
	buf.data = binary.LittleEndian.AppendUint16(buf.data, v)
	return buf
}

// Writes a 32 bit unsigned integer
func (buf *ByteBuffer) PutUint32(v uint32) *ByteBuffer {
	buf.data = binary.LittleEndian.AppendUint32(buf.data, v)
	return buf
}

// Writes a byte string, prefixed by its length as uint16.
// Byte strings longer than 65535 cannot be represented and cause a panic.
func (buf *ByteBuffer) PutBytes(b []byte) *ByteBuffer {
	if len(b) > math.MaxUint16 {
		panic("accesstoken: byte string too long to be packed")
	}

	buf.PutUint16(uint16(len(b)))
	buf.data = append(buf.data, b...)

	return buf
}

// Writes an UTF-8 string, prefixed by its length as uint16
func (buf *ByteBuffer) PutString(s string) *ByteBuffer {
	return buf.PutBytes([]byte(s))
}

// Writes a privilege map: count, followed by
// (uint16 key, uint32 value) pairs in ascending key order.
// Maps with more than 65535 entries cannot be represented and cause a panic.
func (buf *ByteBuffer) PutPrivileges(privileges map[uint16]uint32) *ByteBuffer {
	if len(privileges) > math.MaxUint16 {
		panic("accesstoken: too many privileges to be packed")
	}

	buf.PutUint16(uint16(len(privileges)))

	for _, k := range sortedPrivilegeKeys(privileges) {
		buf.PutUint16(k)
		buf.PutUint32(privileges[k])
	}

	return buf
}

// Appends raw bytes, with no length prefix
func (buf *ByteBuffer) PutRaw(b []byte) *ByteBuffer {
	buf.data = append(buf.data, b...)
	return buf
}

// Returns the bytes written so far
func (buf *ByteBuffer) Pack() []byte {
	return buf.data
}

// Gets the privilege keys in ascending order
func sortedPrivilegeKeys(privileges map[uint16]uint32) []uint16 {
	keys := make([]uint16, 0, len(privileges))

	for k := range privileges {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})

	return keys
}

// Reader for data written with ByteBuffer
type ByteReader struct {
	// Data
	data []byte

	// Current position
	pos int
}

// Creates new instance of ByteReader
func NewByteReader(data []byte) *ByteReader {
	return &ByteReader{
		data: data,
		pos:  0,
	}
}

// Number of bytes left to read
func (r *ByteReader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *ByteReader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrShortBuffer
	}

	b := r.data[r.pos : r.pos+n]
	r.pos += n

	return b, nil
}

// Reads a 16 bit unsigned integer
func (r *ByteReader) GetUint16() (uint16, error) {
	b, err := r.take(2)

	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

// Reads a 32 bit unsigned integer
func (r *ByteReader) GetUint32() (uint32, error) {
	b, err := r.take(4)

	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

// Reads a length-prefixed byte string.
// The result is a copy, safe to keep after the reader is gone.
func (r *ByteReader) GetBytes() ([]byte, error) {
	l, err := r.GetUint16()

	if err != nil {
		return nil, err
	}

	b, err := r.take(int(l))

	if err != nil {
		return nil, err
	}

	res := make([]byte, len(b))
	copy(res, b)

	return res, nil
}

// Reads a length-prefixed string
func (r *ByteReader) GetString() (string, error) {
	b, err := r.GetBytes()

	if err != nil {
		return "", err
	}

	return string(b), nil
}

// Reads a privilege map
func (r *ByteReader) GetPrivileges() (map[uint16]uint32, error) {
	count, err := r.GetUint16()

	if err != nil {
		return nil, err
	}

	privileges := make(map[uint16]uint32, count)

	for i := 0; i < int(count); i++ {
		k, err := r.GetUint16()

		if err != nil {
			return nil, err
		}

		v, err := r.GetUint32()

		if err != nil {
			return nil, err
		}

		privileges[k] = v
	}

	return privileges, nil
}

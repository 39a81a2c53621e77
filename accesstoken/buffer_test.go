// Tests for the binary packing primitives

package accesstoken

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestByteBufferLittleEndian(t *testing.T) {
	data := NewByteBuffer().PutUint16(0x0102).PutUint32(0x03040506).Pack()

	expected := []byte{0x02, 0x01, 0x06, 0x05, 0x04, 0x03}

	if !bytes.Equal(data, expected) {
		t.Errorf("Unexpected packed data. Expected %v, but found %v", expected, data)
	}
}

func TestByteBufferLengthPrefix(t *testing.T) {
	data := NewByteBuffer().PutString("abc").PutBytes(nil).Pack()

	expected := []byte{0x03, 0x00, 'a', 'b', 'c', 0x00, 0x00}

	if !bytes.Equal(data, expected) {
		t.Errorf("Unexpected packed data. Expected %v, but found %v", expected, data)
	}
}

func TestByteBufferPrivilegesSorted(t *testing.T) {
	privileges := map[uint16]uint32{
		4: 40,
		1: 10,
		3: 30,
		2: 20,
	}

	data := NewByteBuffer().PutPrivileges(privileges).Pack()

	expected := []byte{
		0x04, 0x00,
		0x01, 0x00, 10, 0x00, 0x00, 0x00,
		0x02, 0x00, 20, 0x00, 0x00, 0x00,
		0x03, 0x00, 30, 0x00, 0x00, 0x00,
		0x04, 0x00, 40, 0x00, 0x00, 0x00,
	}

	if !bytes.Equal(data, expected) {
		t.Errorf("Unexpected packed data. Expected %v, but found %v", expected, data)
	}
}

func TestByteBufferGrows(t *testing.T) {
	long := strings.Repeat("x", 10*defaultBufferCapacity)

	buf := NewByteBuffer().PutString(long).PutUint32(7)

	if len(buf.Pack()) != 2+len(long)+4 {
		t.Errorf("Unexpected packed length: %v", len(buf.Pack()))
	}
}

func TestByteBufferTooLong(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected panic for a byte string over 65535 bytes")
		}
	}()

	NewByteBuffer().PutBytes(make([]byte, 65536))
}

func TestByteBufferTooManyPrivileges(t *testing.T) {
	privileges := make(map[uint16]uint32, 65536)

	for i := 0; i <= 65535; i++ {
		privileges[uint16(i)] = 1
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Expected panic for a privilege map with 65536 entries")
		}
	}()

	NewByteBuffer().PutPrivileges(privileges)
}

func TestByteReaderRoundTrip(t *testing.T) {
	privileges := map[uint16]uint32{1: 1700000000, 2: 1700003600}

	data := NewByteBuffer().
		PutUint16(65535).
		PutUint32(4000000000).
		PutString("lesson-42").
		PutPrivileges(privileges).
		Pack()

	r := NewByteReader(data)

	u16, err := r.GetUint16()
	if err != nil || u16 != 65535 {
		t.Errorf("GetUint16 = %v, %v", u16, err)
	}

	u32, err := r.GetUint32()
	if err != nil || u32 != 4000000000 {
		t.Errorf("GetUint32 = %v, %v", u32, err)
	}

	s, err := r.GetString()
	if err != nil || s != "lesson-42" {
		t.Errorf("GetString = %v, %v", s, err)
	}

	p, err := r.GetPrivileges()
	if err != nil {
		t.Fatal(err)
	}

	if len(p) != len(privileges) {
		t.Errorf("Expected %v privileges, but found %v", len(privileges), len(p))
	}

	for k, v := range privileges {
		if p[k] != v {
			t.Errorf("Privilege %v: expected %v, but found %v", k, v, p[k])
		}
	}

	if r.Remaining() != 0 {
		t.Errorf("Expected all data consumed, remaining: %v", r.Remaining())
	}
}

func TestByteReaderShortBuffer(t *testing.T) {
	r := NewByteReader([]byte{0x05, 0x00, 'a', 'b'})

	_, err := r.GetString()

	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer, but found %v", err)
	}

	r = NewByteReader([]byte{0x01})

	_, err = r.GetUint16()

	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer, but found %v", err)
	}

	r = NewByteReader([]byte{0x02, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00})

	_, err = r.GetPrivileges()

	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer, but found %v", err)
	}
}

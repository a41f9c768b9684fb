package rad

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Type ids for the fixed-width unsigned integer encodings a barcode, UMI, or
// file-level tag value can use on the wire.
const (
	TypeU8  byte = 1
	TypeU16 byte = 2
	TypeU32 byte = 3
	TypeU64 byte = 4
)

// IntTypeDescriptor describes how to read and write one of the fixed-width
// integer encodings used for barcodes, UMIs and file tag values.
type IntTypeDescriptor struct {
	ID   byte
	Name string
	Size int
}

// DecodeIntTypeTag resolves a wire type id to its IntTypeDescriptor (spec
// §6.1's decode_int_type_tag).
func DecodeIntTypeTag(id byte) (IntTypeDescriptor, error) {
	switch id {
	case TypeU8:
		return IntTypeDescriptor{ID: id, Name: "u8", Size: 1}, nil
	case TypeU16:
		return IntTypeDescriptor{ID: id, Name: "u16", Size: 2}, nil
	case TypeU32:
		return IntTypeDescriptor{ID: id, Name: "u32", Size: 4}, nil
	case TypeU64:
		return IntTypeDescriptor{ID: id, Name: "u64", Size: 8}, nil
	default:
		return IntTypeDescriptor{}, fmt.Errorf("rad: unknown int type id %d", id)
	}
}

// ReadValue reads one value of this descriptor's width from r, widened to a
// uint64.
func (d IntTypeDescriptor) ReadValue(r io.Reader) (uint64, error) {
	switch d.Size {
	case 1:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case 2:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case 4:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case 8:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	default:
		return 0, fmt.Errorf("rad: bad int type width %d", d.Size)
	}
}

// WriteValue writes v, truncated to this descriptor's width, to w.
func (d IntTypeDescriptor) WriteValue(w io.Writer, v uint64) error {
	switch d.Size {
	case 1:
		return binary.Write(w, binary.LittleEndian, uint8(v))
	case 2:
		return binary.Write(w, binary.LittleEndian, uint16(v))
	case 4:
		return binary.Write(w, binary.LittleEndian, uint32(v))
	case 8:
		return binary.Write(w, binary.LittleEndian, v)
	default:
		return fmt.Errorf("rad: bad int type width %d", d.Size)
	}
}

package rad

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RadHeader is the fixed-layout prefix of a RAD file (spec §3).
//
// Wire layout (little-endian):
//
//	is_paired  uint8
//	ref_count  uint64
//	ref_names  [ref_count]string   // each: uint16 length, then bytes
//	num_chunks uint64
type RadHeader struct {
	IsPaired  bool
	RefNames  []string
	NumChunks uint64
}

// ReadHeader reads a RadHeader from r and returns it along with the number of
// bytes consumed. Callers that need to later patch the NumChunks field in a
// raw byte copy of the header can do so at offset n-8.
func ReadHeader(r io.Reader) (*RadHeader, int64, error) {
	cr := newCountingReader(r)

	var isPaired uint8
	if err := binary.Read(cr, binary.LittleEndian, &isPaired); err != nil {
		return nil, 0, fmt.Errorf("rad: read is_paired: %w", err)
	}

	var refCount uint64
	if err := binary.Read(cr, binary.LittleEndian, &refCount); err != nil {
		return nil, 0, fmt.Errorf("rad: read ref_count: %w", err)
	}

	names := make([]string, refCount)
	for i := range names {
		name, err := readLenPrefixedString(cr)
		if err != nil {
			return nil, 0, fmt.Errorf("rad: read ref_name[%d]: %w", i, err)
		}
		names[i] = name
	}

	var numChunks uint64
	if err := binary.Read(cr, binary.LittleEndian, &numChunks); err != nil {
		return nil, 0, fmt.Errorf("rad: read num_chunks: %w", err)
	}

	hdr := &RadHeader{
		IsPaired:  isPaired != 0,
		RefNames:  names,
		NumChunks: numChunks,
	}
	return hdr, cr.N(), nil
}

func readLenPrefixedString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

package rad

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ChunkHeaderSize is the size, in bytes, of a chunk's (n_bytes, n_records)
// framing header. n_bytes includes these 8 bytes.
const ChunkHeaderSize = 8

// ReadChunkHeader reads the 8-byte (n_bytes, n_records) header that precedes
// every chunk's records (spec §4.4 step 1). n_bytes counts the header itself,
// so a chunk's record payload is n_bytes-ChunkHeaderSize bytes long.
func ReadChunkHeader(r io.Reader) (nBytes, nRecords uint32, err error) {
	var hdr [ChunkHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, fmt.Errorf("rad: read chunk header: %w", err)
	}
	nBytes = binary.LittleEndian.Uint32(hdr[0:4])
	nRecords = binary.LittleEndian.Uint32(hdr[4:8])
	if nRecords == 0 || nBytes < ChunkHeaderSize {
		return 0, 0, fmt.Errorf("rad: malformed chunk header (n_bytes=%d, n_records=%d)", nBytes, nRecords)
	}
	return nBytes, nRecords, nil
}

// PutChunkHeader encodes (n_bytes, n_records) into the first 8 bytes of buf.
func PutChunkHeader(buf []byte, nBytes, nRecords uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], nBytes)
	binary.LittleEndian.PutUint32(buf[4:8], nRecords)
}

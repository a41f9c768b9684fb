package rad

import (
	"encoding/binary"
	"fmt"
	"io"
)

// orientationBit marks the high bit of a packed alignment id as the strand
// the alignment was recorded against; the remaining bits are the reference id.
const orientationBit = uint32(1) << 31

// MinRecordLen is the smallest possible on-wire size of a record: an 8-byte
// barcode, an 8-byte UMI, a 4-byte alignment count and one 4-byte alignment
// (spec §3, §4.3).
const MinRecordLen = 24

// MaxRecordSize returns the largest possible on-wire size of a record given
// the most_ambig_record bound on alignment multiplicity (spec §3):
//
//	24 + 4*(most_ambig_record-1)
func MaxRecordSize(mostAmbigRecord uint64) int {
	if mostAmbigRecord == 0 {
		mostAmbigRecord = 1
	}
	return MinRecordLen + 4*(int(mostAmbigRecord)-1)
}

// Record is one decoded RAD record (spec §3): a corrected-or-raw barcode, a
// UMI, and a set of packed alignment ids (reference id plus orientation
// sign bit).
type Record struct {
	Barcode    uint64
	UMI        uint64
	Alignments []uint32
}

// DecodeRecord reads one record using bcType/umiType to size the barcode and
// UMI fields, and returns the record plus the number of bytes consumed.
func DecodeRecord(r io.Reader, bcType, umiType IntTypeDescriptor) (*Record, int, error) {
	n := 0

	bc, err := bcType.ReadValue(r)
	if err != nil {
		return nil, 0, fmt.Errorf("rad: decode record barcode: %w", err)
	}
	n += bcType.Size

	umi, err := umiType.ReadValue(r)
	if err != nil {
		return nil, 0, fmt.Errorf("rad: decode record umi: %w", err)
	}
	n += umiType.Size

	var numAln uint32
	if err := binary.Read(r, binary.LittleEndian, &numAln); err != nil {
		return nil, 0, fmt.Errorf("rad: decode record alignment count: %w", err)
	}
	n += 4

	alns := make([]uint32, numAln)
	for i := range alns {
		if err := binary.Read(r, binary.LittleEndian, &alns[i]); err != nil {
			return nil, 0, fmt.Errorf("rad: decode record alignment[%d]: %w", i, err)
		}
		n += 4
	}

	return &Record{Barcode: bc, UMI: umi, Alignments: alns}, n, nil
}

// EncodeRecord writes rec using bcType/umiType to size the barcode and UMI
// fields, and returns the number of bytes written.
func EncodeRecord(w io.Writer, rec *Record, bcType, umiType IntTypeDescriptor) (int, error) {
	n := 0
	if err := bcType.WriteValue(w, rec.Barcode); err != nil {
		return 0, fmt.Errorf("rad: encode record barcode: %w", err)
	}
	n += bcType.Size

	if err := umiType.WriteValue(w, rec.UMI); err != nil {
		return 0, fmt.Errorf("rad: encode record umi: %w", err)
	}
	n += umiType.Size

	if err := binary.Write(w, binary.LittleEndian, uint32(len(rec.Alignments))); err != nil {
		return 0, fmt.Errorf("rad: encode record alignment count: %w", err)
	}
	n += 4

	for _, a := range rec.Alignments {
		if err := binary.Write(w, binary.LittleEndian, a); err != nil {
			return 0, fmt.Errorf("rad: encode record alignment: %w", err)
		}
		n += 4
	}
	return n, nil
}

// EncodedLen returns the number of bytes EncodeRecord would write for rec.
func EncodedLen(rec *Record, bcType, umiType IntTypeDescriptor) int {
	return bcType.Size + umiType.Size + 4 + 4*len(rec.Alignments)
}

// NormalizeOrientation canonicalizes a packed alignment id's orientation bit
// to ori. Unstranded orientation leaves the alignment id untouched (spec §9's
// "Open question — orientation normalization": expected_ori is read only from
// the upstream JSON, never from a deprecated parameter path).
func NormalizeOrientation(alnID uint32, ori Strand) uint32 {
	switch ori {
	case StrandForward:
		return alnID &^ orientationBit
	case StrandReverse:
		return alnID | orientationBit
	default:
		return alnID
	}
}

// RefID extracts the reference id portion of a packed alignment id.
func RefID(alnID uint32) uint32 {
	return alnID &^ orientationBit
}

// IsReverse reports whether a packed alignment id's orientation bit is set.
func IsReverse(alnID uint32) bool {
	return alnID&orientationBit != 0
}

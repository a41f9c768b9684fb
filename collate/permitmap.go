package collate

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// permitFileVersion is the compile-time PERMIT_FILE_VER ceiling spec §6.2
// describes: "if permit_freq.bin's first u64 exceeds a compile-time
// constant PERMIT_FILE_VER, abort with a fatal error".
const permitFileVersion uint64 = 1

// readBincodeU64Map decodes the wire format Rust's default
// bincode::serialize_into produces for a HashMap<u64,u64>: an 8-byte
// little-endian entry count followed by that many (key,value) pairs, each
// a fixed-width 8-byte little-endian integer. bincode's default integer
// encoding is fixed-width (its variable-length "varint" mode is opt-in and
// not used by the upstream writer), so this is the literal wire format,
// not an approximation of one.
func readBincodeU64Map(r io.Reader) (map[uint64]uint64, error) {
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("collate: read map entry count: %w", err)
	}
	m := make(map[uint64]uint64, count)
	for i := uint64(0); i < count; i++ {
		var k, v uint64
		if err := binary.Read(r, binary.LittleEndian, &k); err != nil {
			return nil, fmt.Errorf("collate: read map key[%d]: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, fmt.Errorf("collate: read map value[%d]: %w", i, err)
		}
		m[k] = v
	}
	return m, nil
}

// writeBincodeU64U32Map encodes a HashMap<u64,u32> in the same bincode
// layout, used when serializing unmapped_bc_count_collated.bin (spec §6.2).
func writeBincodeU64U32Map(w io.Writer, m map[uint64]uint32) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(m))); err != nil {
		return fmt.Errorf("collate: write map entry count: %w", err)
	}
	// Map iteration order is unspecified by Go; spec §4.7/§6.2 place no
	// ordering requirement on this file's entries.
	for k, v := range m {
		if err := binary.Write(w, binary.LittleEndian, k); err != nil {
			return fmt.Errorf("collate: write map key: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("collate: write map value: %w", err)
		}
	}
	return nil
}

// loadFrequencyMap reads permit_freq.bin (spec §4.1 input, §6.2 layout):
// an 8-byte version, an 8-byte barcode length (consumed, not otherwise
// used by this core), then a bincode HashMap<u64,u64> of corrected
// barcode to record count. It returns the map, the count sorted in
// descending order the bucket planner requires, and their sum
// (total_to_collate).
func loadFrequencyMap(inputDir string) (map[uint64]uint64, []BarcodeCount, uint64, error) {
	path := filepath.Join(inputDir, "permit_freq.bin")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, 0, newErr(KindMissingArtifact, path, "permit_freq.bin not found", err)
		}
		return nil, nil, 0, newErr(KindIOError, path, "open permit_freq.bin", err)
	}
	defer f.Close()

	var fileVersion uint64
	if err := binary.Read(f, binary.LittleEndian, &fileVersion); err != nil {
		return nil, nil, 0, newErr(KindMalformedMetadata, path, "read permit_freq.bin version", err)
	}
	if fileVersion > permitFileVersion {
		return nil, nil, 0, newErr(KindVersionMismatch, path,
			fmt.Sprintf("permit_freq.bin version %d exceeds supported version %d", fileVersion, permitFileVersion), nil)
	}

	var bcLen uint64
	if err := binary.Read(f, binary.LittleEndian, &bcLen); err != nil {
		return nil, nil, 0, newErr(KindMalformedMetadata, path, "read permit_freq.bin barcode length", err)
	}

	freq, err := readBincodeU64Map(f)
	if err != nil {
		return nil, nil, 0, newErr(KindMalformedMetadata, path, "decode permit_freq.bin frequency map", err)
	}

	sortedDesc := make([]BarcodeCount, 0, len(freq))
	var total uint64
	for bc, count := range freq {
		sortedDesc = append(sortedDesc, BarcodeCount{Barcode: bc, Count: count})
		total += count
	}
	sort.Slice(sortedDesc, func(i, j int) bool {
		if sortedDesc[i].Count != sortedDesc[j].Count {
			return sortedDesc[i].Count > sortedDesc[j].Count
		}
		return sortedDesc[i].Barcode < sortedDesc[j].Barcode
	})

	return freq, sortedDesc, total, nil
}

// loadCorrectionMap reads permit_map.bin: a bare bincode HashMap<u64,u64>
// mapping raw barcode to corrected barcode (spec §6.2), with no version
// header.
func loadCorrectionMap(inputDir string) (map[uint64]uint64, error) {
	path := filepath.Join(inputDir, "permit_map.bin")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(KindMissingArtifact, path, "permit_map.bin not found", err)
		}
		return nil, newErr(KindIOError, path, "open permit_map.bin", err)
	}
	defer f.Close()

	m, err := readBincodeU64Map(f)
	if err != nil {
		return nil, newErr(KindMalformedMetadata, path, "decode permit_map.bin correction map", err)
	}
	return m, nil
}

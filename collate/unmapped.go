package collate

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/grailbio/base/log"
)

// ReduceUnmappedCounts implements spec §4.7 (C7): folds the raw-barcode
// unmapped-read counts in unmapped_bc_count.bin through correctionMap into
// a corrected-barcode accumulator, and serializes the result to
// unmapped_bc_count_collated.bin. Raw barcodes absent from correctionMap
// are dropped, exactly like a discarded scatter record (spec §4.4 step 2).
//
// Grounded on collate.rs's correct_unmapped_counts: a single linear pass
// reading (u64,u32) pairs until EOF, with no bincode framing on the input
// (only the output map is bincode-encoded).
func ReduceUnmappedCounts(inputDir string, correctionMap map[uint64]uint64) error {
	inPath := filepath.Join(inputDir, "unmapped_bc_count.bin")
	in, err := os.Open(inPath)
	if err != nil {
		if os.IsNotExist(err) {
			return newErr(KindMissingArtifact, inPath, "unmapped_bc_count.bin not found", err)
		}
		return newErr(KindIOError, inPath, "open unmapped_bc_count.bin", err)
	}
	defer in.Close()

	accum := make(map[uint64]uint32)
	var read, dropped int

	for {
		var rawBC uint64
		if err := binary.Read(in, binary.LittleEndian, &rawBC); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return newErr(KindIOError, inPath, "read unmapped barcode", err)
		}
		var count uint32
		if err := binary.Read(in, binary.LittleEndian, &count); err != nil {
			return newErr(KindIOError, inPath, "read unmapped count", err)
		}
		read++

		corrected, ok := correctionMap[rawBC]
		if !ok {
			dropped++
			continue
		}
		accum[corrected] += count
	}
	log.Debug.Printf("unmapped-count fold: %d barcodes read, %d uncorrectable and dropped, %d corrected barcodes in output", read, dropped, len(accum))

	outPath := filepath.Join(inputDir, "unmapped_bc_count_collated.bin")
	if err := removeIfExists(outPath); err != nil {
		return err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return newErr(KindIOError, outPath, "create unmapped_bc_count_collated.bin", err)
	}
	defer out.Close()

	if err := writeBincodeU64U32Map(out, accum); err != nil {
		return newErr(KindIOError, outPath, "write unmapped_bc_count_collated.bin", err)
	}
	return nil
}

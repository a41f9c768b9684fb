// Package collate implements the scatter/gather collation engine described
// in spec §2: it reads an unordered RAD file and produces a RAD file whose
// records are grouped by corrected cell barcode, using a bounded amount of
// extra disk space and a worker-pool pipeline on each side of a barrier.
package collate

import (
	"bufio"
	"path/filepath"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/combine-lab/radcollate/encoding/rad"
)

// Options is the single entry point's parameter struct (spec §6.3),
// mirroring sorter.SortOptions's plain-struct convention (sort.go) rather
// than a builder or functional-options API.
type Options struct {
	// InputDir holds generate_permit_list.json, permit_freq.bin,
	// permit_map.bin, unmapped_bc_count.bin, and is where collate.json
	// and the final collated RAD file are written (and where temp
	// bucket files live during the run).
	InputDir string
	// RadDir holds the unsorted input RAD file, map.rad.
	RadDir string
	// NumThreads is the total thread budget; W = max(1, NumThreads-1)
	// workers run in each of the scatter and gather phases (spec §5).
	NumThreads int
	// MaxRecords is the external-memory budget driving bucket planning
	// (spec §4.1) and scatter buffer sizing (spec §4.3).
	MaxRecords uint32
	// CompressOut wraps the header and every gathered chunk in an
	// independent Snappy frame (spec §4.5/§4.6).
	CompressOut bool
	// Cmdline is recorded verbatim in collate.json for provenance.
	Cmdline string
	// VersionStr is the caller's own internal version, checked for
	// compatibility against generate_permit_list.json's version_str
	// (spec §4.8).
	VersionStr string
}

// Collate drives components C1 through C8 in the order spec §2 specifies:
// planner before scatter, scatter fully drained before gather begins (a
// hard barrier), and the rewritten header written to the output before
// gather emits any chunk. Orchestration
// shape is grounded on cmd/bio-bam-sort/main.go's sort()/BAMFromSortShards
// sequencing and Sorter.Close()'s "drain workers, then merge, then
// cleanup" order.
func Collate(opts Options) error {
	numWorkers := 1
	if opts.NumThreads > 1 {
		numWorkers = opts.NumThreads - 1
	}

	if err := checkLegacyPermitFreq(opts.InputDir); err != nil {
		return err
	}

	gpl, err := loadGPLMetadata(opts.InputDir)
	if err != nil {
		return err
	}

	callingVer, err := ParseVersion(opts.VersionStr)
	if err != nil {
		return newErr(KindVersionMismatch, "", "parse caller version", err)
	}
	upstreamVer, err := ParseVersion(gpl.VersionStr)
	if err != nil {
		return newErr(KindVersionMismatch, opts.InputDir, "parse generate_permit_list.json version_str", err)
	}
	if err := callingVer.IsCompatibleWith(upstreamVer); err != nil {
		return newErr(KindVersionMismatch, opts.InputDir, err.Error(), nil)
	}

	expectedOri, err := gpl.strand()
	if err != nil {
		return newErr(KindMalformedMetadata, opts.InputDir, "parse expected_ori", err)
	}

	log.Debug.Printf("filter_type = %s", gpl.PermitListType)
	if opts.CompressOut {
		log.Debug.Printf("collated rad file will be compressed")
	} else {
		log.Debug.Printf("collated rad file will not be compressed")
	}

	freqMap, sortedDesc, totalToCollate, err := loadFrequencyMap(opts.InputDir)
	if err != nil {
		return err
	}

	correctionMap, err := loadCorrectionMap(opts.InputDir)
	if err != nil {
		return err
	}
	log.Debug.Printf("deserialized correction map of length %d", len(correctionMap))

	if err := ReduceUnmappedCounts(opts.InputDir, correctionMap); err != nil {
		return err
	}

	assignment, buckets, err := PlanBuckets(sortedDesc, numWorkers, opts.MaxRecords, opts.InputDir)
	if err != nil {
		return err
	}
	var plannedTotal uint64
	for _, b := range buckets {
		plannedTotal += uint64(b.PlannedRecords)
	}
	if plannedTotal != totalToCollate {
		return newErr(KindInvariantViolation, "", "sum of planned bucket records does not equal total_to_collate", nil)
	}

	ctx := vcontext.Background()
	radPath := filepath.Join(opts.RadDir, "map.rad")
	inFile, err := file.Open(ctx, radPath)
	if err != nil {
		return newErr(KindMissingArtifact, radPath, "open input RAD file", err)
	}
	br := bufio.NewReader(inFile.Reader(ctx))

	prefix, err := rad.ReadPrefix(br)
	if err != nil {
		inFile.Close(ctx)
		return newErr(KindMalformedRad, radPath, "read RAD header/tag prefix", err)
	}
	log.Debug.Printf("paired=%v ref_count=%d num_chunks=%d expected_ori=%s",
		prefix.Header.IsPaired, len(prefix.Header.RefNames), prefix.Header.NumChunks, expectedOri)

	scStats, err := scatterChunks(br, prefix.Header.NumChunks, prefix.BCType, prefix.UMIType,
		correctionMap, expectedOri, assignment, buckets, numWorkers, opts.MaxRecords, gpl.MaxAmbigRecord)
	if closeErr := inFile.Close(ctx); err == nil {
		err = closeErr
	}
	if err != nil {
		return newErr(KindMalformedRad, radPath, "scatter phase", err)
	}
	log.Debug.Printf("scatter: %d chunks read, %d records routed, %d records dropped (uncorrectable)",
		scStats.chunksRead, scStats.recordsRouted, scStats.recordsDropped)

	for _, b := range buckets {
		if b.RecordsWritten() != uint64(b.PlannedRecords) {
			return newErr(KindInvariantViolation, b.Path(),
				"bucket records_written does not match planned_records after scatter", nil)
		}
		size, err := b.FileSize()
		if err != nil {
			return err
		}
		if uint64(size) != b.BytesWritten() {
			return newErr(KindInvariantViolation, b.Path(),
				"bucket file size does not match bytes_written after scatter", nil)
		}
		// The write-side handle is no longer needed; gather reopens each
		// bucket for reading independently.
		if err := b.Close(); err != nil {
			return err
		}
	}

	outName := outputFileName(gpl.VeloMode, opts.CompressOut)
	outPath := filepath.Join(opts.InputDir, outName)
	if err := removeIfExists(outPath); err != nil {
		return err
	}
	sink, err := newOutputSink(outPath, opts.CompressOut)
	if err != nil {
		return err
	}

	expectedOutputChunks := uint64(len(sortedDesc))
	if err := sink.WriteHeaderPrefix(prefix.RewrittenNumChunks(expectedOutputChunks)); err != nil {
		return err
	}

	gStats, err := runGather(buckets, prefix.BCType, prefix.UMIType, sink, numWorkers)
	if err != nil {
		sink.Close()
		return err
	}
	log.Debug.Printf("gather: %d chunks emitted, %d records emitted", gStats.chunksEmitted, gStats.recordsEmitted)

	if sink.ChunksWritten() != expectedOutputChunks {
		sink.Close()
		return newErr(KindInvariantViolation, outPath,
			"output chunk count does not match the number of distinct corrected barcodes", nil)
	}
	if err := sink.Close(); err != nil {
		return err
	}

	if err := writeCollateJSON(opts.InputDir, opts.Cmdline, opts.VersionStr, opts.CompressOut); err != nil {
		return err
	}

	log.Debug.Printf("collation complete: %d barcodes, %d total records, output %s", len(freqMap), totalToCollate, outPath)
	return nil
}

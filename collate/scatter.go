package collate

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"

	"github.com/combine-lab/radcollate/encoding/rad"
	"github.com/combine-lab/radcollate/queue"
)

// chunkJob is one (chunk_index, raw_payload) unit of scatter work, as read
// off the input file by the scatter reader thread (spec §4.4 step 1). raw is
// the chunk's record payload only; the 8-byte framing header has already
// been consumed and is not reproduced here since a chunk's origin in the
// unordered file carries no meaning downstream.
type chunkJob struct {
	index int
	raw   []byte
}

// scatterStats is the set of scatter-side counters Collate logs once the
// scatter phase ends. The post-scatter sanity check (spec §3 invariant 3)
// does not read them; it uses each Bucket's own record and byte counters.
type scatterStats struct {
	chunksRead     uint64
	recordsRouted  uint64
	recordsDropped uint64 // raw barcodes with no entry in the correction map
}

// scatterChunks implements spec §4.4 (C4): a single reader goroutine feeds a
// bounded queue.Ring of whole chunks, and numWorkers worker goroutines drain
// it, correcting and re-orienting each record before routing its re-encoded
// bytes into the bucket its corrected barcode was assigned to.
//
// The goroutine/WaitGroup/atomic-countdown shape is grounded on
// cmd/bio-bam-sort/sorter.Sorter's worker pool (sort.go's bgSorterCh
// goroutines draining a shared channel under a sync.WaitGroup) and on
// collate.rs's thread::spawn scatter workers, adapted from a blocking
// channel to the non-blocking queue.Ring spec §9 calls for.
func scatterChunks(
	r *bufio.Reader,
	numChunks uint64,
	bcType, umiType rad.IntTypeDescriptor,
	correctionMap map[uint64]uint64,
	expectedOri rad.Strand,
	assignment map[uint64]*Bucket,
	buckets []*Bucket,
	numWorkers int,
	maxRecords uint32,
	mostAmbigRecord uint64,
) (scatterStats, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	q := queue.NewRing(4 * numWorkers)
	errOnce := &errors.Once{}
	var stats scatterStats
	var chunksRemaining int64 = int64(numChunks)
	var readerDone int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer atomic.StoreInt32(&readerDone, 1)
		for i := 0; i < int(numChunks); i++ {
			nBytes, nRecords, err := rad.ReadChunkHeader(r)
			if err != nil {
				errOnce.Set(newErr(KindMalformedRad, "", "read chunk header", err))
				return
			}
			payload := make([]byte, nBytes-rad.ChunkHeaderSize)
			if _, err := io.ReadFull(r, payload); err != nil {
				errOnce.Set(newErr(KindMalformedRad, "", "read chunk payload", err))
				return
			}
			_ = nRecords
			q.SpinPush(chunkJob{index: i, raw: payload})
			atomic.AddUint64(&stats.chunksRead, 1)
		}
	}()

	slotSize := locBufferSize(maxRecords, len(buckets), numWorkers, mostAmbigRecord)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errOnce.Set(newErr(KindWorkerPanic, "", fmt.Sprintf("scatter worker panicked: %v", p), nil))
				}
			}()
			arena := newWorkerArena(slotSize, len(buckets))
			scratch := &bytes.Buffer{}

			flush := func(i int) {
				if arena.isEmpty(i) {
					return
				}
				if err := buckets[i].Write(arena.filled(i), uint32(arena.records(i))); err != nil {
					errOnce.Set(err)
				}
				arena.reset(i)
			}

			for {
				job, ok := q.TryPop()
				if !ok {
					if atomic.LoadInt32(&readerDone) == 1 && atomic.LoadInt64(&chunksRemaining) <= 0 {
						for i := range buckets {
							flush(i)
						}
						return
					}
					if errOnce.Err() != nil {
						return
					}
					continue
				}
				cj := job.(chunkJob)
				body := bytes.NewReader(cj.raw)

				for body.Len() > 0 {
					rec, _, err := rad.DecodeRecord(body, bcType, umiType)
					if err != nil {
						errOnce.Set(newErr(KindMalformedRad, "", "decode scatter record", err))
						return
					}

					corrected, ok := correctionMap[rec.Barcode]
					if !ok {
						atomic.AddUint64(&stats.recordsDropped, 1)
						continue
					}
					rec.Barcode = corrected
					for i, a := range rec.Alignments {
						rec.Alignments[i] = rad.NormalizeOrientation(a, expectedOri)
					}

					b, ok := assignment[corrected]
					if !ok {
						errOnce.Set(newErr(KindInvariantViolation, "",
							"corrected barcode has no bucket assignment", nil))
						return
					}

					scratch.Reset()
					if _, err := rad.EncodeRecord(scratch, rec, bcType, umiType); err != nil {
						errOnce.Set(newErr(KindMalformedRad, "", "encode scatter record", err))
						return
					}

					bi := int(b.ID)
					if !arena.fits(bi, scratch.Len()) {
						flush(bi)
					}
					if !arena.fits(bi, scratch.Len()) {
						// a single record larger than its slot: write it
						// straight through rather than looping forever.
						if err := buckets[bi].Write(scratch.Bytes(), 1); err != nil {
							errOnce.Set(err)
							return
						}
					} else {
						arena.append(bi, scratch.Bytes())
					}
					atomic.AddUint64(&stats.recordsRouted, 1)
				}

				atomic.AddInt64(&chunksRemaining, -1)
			}
		}()
	}

	wg.Wait()

	for i := range buckets {
		if err := buckets[i].Flush(); err != nil {
			errOnce.Set(err)
		}
	}

	if err := errOnce.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

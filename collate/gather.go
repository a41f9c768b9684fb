package collate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	grerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"

	"github.com/combine-lab/radcollate/encoding/rad"
	"github.com/combine-lab/radcollate/queue"
)

// gatheredChunk is one fully-assembled, corrected-barcode output chunk
// waiting to be handed to the shared outputSink.
type gatheredChunk struct {
	barcode  uint64
	nRecords uint32
	body     []byte
}

// tempCellInfo accumulates, per corrected barcode present in one bucket,
// the information pass 1 of spec §4.5's two-pass algorithm needs to lay
// out pass 2's assembly buffer with zero reallocation.
type tempCellInfo struct {
	count  uint32
	nbytes uint32
	offset uint32
}

// gatherBucket implements spec §4.5's two-pass per-bucket algorithm: pass 1
// sizes every corrected barcode's eventual chunk, pass 2 re-reads the
// bucket and places each record directly at its final offset in a single
// assembled buffer, then emits one gatheredChunk per barcode.
//
// Grounded on collate.rs's TempCellInfo/collate_temporary_bucket_twopass;
// the shared-writer-under-one-lock handoff at the end mirrors
// sorter.mergeShards's single owriter acquisition in sort.go.
func gatherBucket(b *Bucket, bcType, umiType rad.IntTypeDescriptor) ([]gatheredChunk, error) {
	ctx := vcontext.Background()

	// Pass 1: size every barcode's eventual chunk.
	f1, r1, err := openBucketForRead(ctx, b.Path())
	if err != nil {
		return nil, err
	}
	cells := make(map[uint64]*tempCellInfo)
	var order []uint64
	for {
		rec, _, derr := rad.DecodeRecord(r1, bcType, umiType)
		if derr != nil {
			if errors.Is(derr, io.EOF) {
				break
			}
			f1.Close(ctx)
			return nil, newErr(KindMalformedRad, b.Path(), "decode bucket record (pass 1)", derr)
		}
		info, ok := cells[rec.Barcode]
		if !ok {
			info = &tempCellInfo{}
			cells[rec.Barcode] = info
			order = append(order, rec.Barcode)
		}
		info.count++
		info.nbytes += uint32(rad.EncodedLen(rec, bcType, umiType))
	}
	if err := f1.Close(ctx); err != nil {
		return nil, newErr(KindIOError, b.Path(), "close bucket after pass 1", err)
	}

	if len(order) == 0 {
		return nil, nil
	}

	var total uint32
	for _, bc := range order {
		cells[bc].offset = total
		total += cells[bc].nbytes
	}
	assembled := make([]byte, total)
	cursor := make(map[uint64]uint32, len(cells))
	for bc, info := range cells {
		cursor[bc] = info.offset
	}

	// Pass 2: place every record at its final offset.
	f2, r2, err := openBucketForRead(ctx, b.Path())
	if err != nil {
		return nil, err
	}
	scratch := &bytes.Buffer{}
	for {
		rec, _, derr := rad.DecodeRecord(r2, bcType, umiType)
		if derr != nil {
			if errors.Is(derr, io.EOF) {
				break
			}
			f2.Close(ctx)
			return nil, newErr(KindMalformedRad, b.Path(), "decode bucket record (pass 2)", derr)
		}
		scratch.Reset()
		if _, err := rad.EncodeRecord(scratch, rec, bcType, umiType); err != nil {
			f2.Close(ctx)
			return nil, newErr(KindMalformedRad, b.Path(), "re-encode bucket record (pass 2)", err)
		}
		c := cursor[rec.Barcode]
		copy(assembled[c:], scratch.Bytes())
		cursor[rec.Barcode] = c + uint32(scratch.Len())
	}
	if err := f2.Close(ctx); err != nil {
		return nil, newErr(KindIOError, b.Path(), "close bucket after pass 2", err)
	}

	chunks := make([]gatheredChunk, 0, len(order))
	for _, bc := range order {
		info := cells[bc]
		chunks = append(chunks, gatheredChunk{
			barcode:  bc,
			nRecords: info.count,
			body:     assembled[info.offset : info.offset+info.nbytes],
		})
	}
	return chunks, nil
}

// gatherStats mirrors scatterStats for the gather side: Collate logs it, and
// the output chunk-count check uses the sink's own counter instead. Both
// fields are updated with
// sync/atomic since every gather worker goroutine writes to the same
// instance.
type gatherStats struct {
	chunksEmitted  uint64
	recordsEmitted uint64
}

// runGather drains a bounded queue of buckets with numWorkers goroutines,
// each applying gatherBucket and handing its chunks to the shared sink
// under one lock acquisition, then deleting the bucket's temp file (spec
// §4.5 "After a bucket is fully emitted, its temp file is deleted").
//
// Queue capacity W+max(1,W/2) and the worker-pool shape follow spec §4.5/§9
// exactly, using the same queue.Ring type as the scatter phase. As in
// collate.rs (workers spawned at line 678, buckets pushed starting at line
// 740), the buckets are fed onto the queue by a producer goroutine that
// runs concurrently with the workers, never before them: pushing every
// bucket up front with nothing yet draining the queue would spin forever
// once the bucket count exceeds the queue's capacity.
func runGather(buckets []*Bucket, bcType, umiType rad.IntTypeDescriptor, sink *outputSink, numWorkers int) (gatherStats, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	halfWorkers := numWorkers / 2
	if halfWorkers < 1 {
		halfWorkers = 1
	}
	q := queue.NewRing(numWorkers + halfWorkers)

	errOnce := &grerrors.Once{}
	var stats gatherStats
	remaining := int64(len(buckets))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errOnce.Set(newErr(KindWorkerPanic, "", fmt.Sprintf("gather worker panicked: %v", p), nil))
				}
			}()
			for {
				item, ok := q.TryPop()
				if !ok {
					if atomic.LoadInt64(&remaining) <= 0 {
						return
					}
					if errOnce.Err() != nil {
						return
					}
					continue
				}
				b := item.(*Bucket)

				chunks, err := gatherBucket(b, bcType, umiType)
				if err != nil {
					errOnce.Set(err)
					atomic.AddInt64(&remaining, -1)
					continue
				}
				if len(chunks) > 0 {
					if err := sink.WriteChunksLocked(chunks); err != nil {
						errOnce.Set(err)
						atomic.AddInt64(&remaining, -1)
						continue
					}
				}
				var nRec uint64
				for _, c := range chunks {
					nRec += uint64(c.nRecords)
				}
				atomic.AddUint64(&stats.chunksEmitted, uint64(len(chunks)))
				atomic.AddUint64(&stats.recordsEmitted, nRec)
				if err := b.Remove(); err != nil {
					errOnce.Set(err)
				}
				atomic.AddInt64(&remaining, -1)
			}
		}()
	}

	go func() {
		for _, b := range buckets {
			if errOnce.Err() != nil {
				return
			}
			q.SpinPush(b)
		}
	}()

	wg.Wait()

	if err := errOnce.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

package collate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
)

// Bucket is a numbered temp file plus the atomic counters and serialized
// writer spec §4.2 (C2) describes. Multiple scatter workers may hold a
// reference to the same Bucket (one bucket is typically assigned many
// barcodes); the mutex around the writer is what lets that be safe.
type Bucket struct {
	ID             uint32
	PlannedRecords uint32
	PlannedChunks  uint32

	path string

	mu sync.Mutex
	f  file.File
	w  *bufio.Writer

	recordsWritten uint64 // atomic
	bytesWritten   uint64 // atomic
}

// NewBucket creates bucket_{id}.tmp under dir and opens it for writing,
// grounded on the teacher's file.Create(ctx, path)/out.Writer(ctx) idiom
// (markduplicates/mark_duplicates.go, pileup/snp/output.go) rather than a
// bare os.Create, so temp buckets go through the same storage abstraction
// the rest of the teacher's pipeline does.
func NewBucket(id uint32, dir string) (*Bucket, error) {
	ctx := vcontext.Background()
	path := filepath.Join(dir, fmt.Sprintf("bucket_%d.tmp", id))
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, newErr(KindIOError, path, "create temp bucket", err)
	}
	return &Bucket{
		ID:   id,
		path: path,
		f:    f,
		w:    bufio.NewWriter(f.Writer(ctx)),
	}, nil
}

// Path returns the bucket's file path.
func (b *Bucket) Path() string { return b.path }

// Write appends p to the bucket under the bucket's lock and updates the
// atomic record/byte counters. nRecords is the number of whole records
// contained in p (a scatter flush may carry several).
func (b *Bucket) Write(p []byte, nRecords uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.w.Write(p); err != nil {
		return newErr(KindIOError, b.path, "write temp bucket", err)
	}
	atomic.AddUint64(&b.recordsWritten, uint64(nRecords))
	atomic.AddUint64(&b.bytesWritten, uint64(len(p)))
	return nil
}

// Flush flushes the bucket's buffered writer to disk.
func (b *Bucket) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.w.Flush(); err != nil {
		return newErr(KindIOError, b.path, "flush temp bucket", err)
	}
	return nil
}

// Close flushes and closes the bucket's file handle.
func (b *Bucket) Close() error {
	if err := b.Flush(); err != nil {
		return err
	}
	if err := b.f.Close(vcontext.Background()); err != nil {
		return newErr(KindIOError, b.path, "close temp bucket", err)
	}
	return nil
}

// RecordsWritten returns the current value of the atomic record counter.
func (b *Bucket) RecordsWritten() uint64 {
	return atomic.LoadUint64(&b.recordsWritten)
}

// BytesWritten returns the current value of the atomic byte counter.
func (b *Bucket) BytesWritten() uint64 {
	return atomic.LoadUint64(&b.bytesWritten)
}

// Remove deletes the bucket's temp file. Called once gather has fully
// consumed it (spec §3's temp bucket lifecycle).
func (b *Bucket) Remove() error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return newErr(KindIOError, b.path, "remove temp bucket", err)
	}
	return nil
}

// FileSize stats the bucket's on-disk file size, used by the post-scatter
// sanity check (spec §3 invariant 3).
func (b *Bucket) FileSize() (int64, error) {
	fi, err := os.Stat(b.path)
	if err != nil {
		return 0, newErr(KindIOError, b.path, "stat temp bucket", err)
	}
	return fi.Size(), nil
}

// openBucketForRead opens an already-written bucket for one of the gather
// phase's two read passes (spec §4.5). The caller is responsible for
// closing the returned file.File once done with its Reader, mirroring
// sortShardReader's rawIn/Reader(ctx) pairing in sortshard.go.
func openBucketForRead(ctx context.Context, path string) (file.File, io.Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, newErr(KindIOError, path, "open temp bucket for read", err)
	}
	return f, f.Reader(ctx), nil
}

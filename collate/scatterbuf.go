package collate

import "github.com/combine-lab/radcollate/encoding/rad"

const (
	minRecLen        = rad.MinRecordLen
	locBufferFloor   = 1000
	locBufferCeiling = 262_144 // 256 KiB
)

// locBufferSize implements spec §4.3's formula for the size of one bucket's
// slice within a worker's scatter arena:
//
//	clamp(max(1000, (min_rec_len*max_records)/(nbuckets*nthreads)),
//	      max_record_size, 262_144)
func locBufferSize(maxRecords uint32, nBuckets, nThreads int, mostAmbigRecord uint64) int {
	if nBuckets < 1 {
		nBuckets = 1
	}
	if nThreads < 1 {
		nThreads = 1
	}
	size := (minRecLen * int(maxRecords)) / (nBuckets * nThreads)
	if size < locBufferFloor {
		size = locBufferFloor
	}
	if size > locBufferCeiling {
		size = locBufferCeiling
	}
	if floor := rad.MaxRecordSize(mostAmbigRecord); size < floor {
		size = floor
	}
	return size
}

// workerArena is one scatter worker's contiguous byte arena (spec §4.3, C3):
// a single backing allocation logically split into one fixed-size slice per
// bucket, each with its own write cursor.
type workerArena struct {
	backing    []byte
	slotSize   int
	numBuckets int
	cursor     []int
	recCount   []int
}

func newWorkerArena(slotSize, numBuckets int) *workerArena {
	return &workerArena{
		backing:    make([]byte, slotSize*numBuckets),
		slotSize:   slotSize,
		numBuckets: numBuckets,
		cursor:     make([]int, numBuckets),
		recCount:   make([]int, numBuckets),
	}
}

// slot returns the full-capacity byte slice backing bucket index i.
func (a *workerArena) slot(i int) []byte {
	return a.backing[i*a.slotSize : (i+1)*a.slotSize]
}

// filled returns the written prefix of bucket index i's slot.
func (a *workerArena) filled(i int) []byte {
	return a.slot(i)[:a.cursor[i]]
}

// fits reports whether a record of size n fits in bucket index i's
// remaining space without a flush.
func (a *workerArena) fits(i, n int) bool {
	return a.cursor[i]+n <= a.slotSize
}

// append copies rec into bucket index i's slot, advancing its cursor.
// REQUIRES: a.fits(i, len(rec)).
func (a *workerArena) append(i int, rec []byte) {
	c := a.cursor[i]
	copy(a.slot(i)[c:], rec)
	a.cursor[i] = c + len(rec)
	a.recCount[i]++
}

func (a *workerArena) reset(i int) {
	a.cursor[i] = 0
	a.recCount[i] = 0
}

func (a *workerArena) records(i int) int {
	return a.recCount[i]
}

func (a *workerArena) isEmpty(i int) bool {
	return a.cursor[i] == 0
}

package collate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPlanBucketsSpillsAcrossBuckets is the worked example from spec §8
// scenario 4: 10 barcodes each with 1000 records, max_records=2000, 2
// workers. per_worker_budget = floor(2000/2)+1 = 1001, so each bucket
// closes once its running sum reaches 1001 records. One 1000-record
// barcode is not enough (1000 < 1001), so a second barcode is pulled in
// and the bucket closes at 2000 >= 1001: five buckets of two barcodes.
func TestPlanBucketsSpillsAcrossBuckets(t *testing.T) {
	dir := t.TempDir()
	var freq []BarcodeCount
	for i := 0; i < 10; i++ {
		freq = append(freq, BarcodeCount{Barcode: uint64(i), Count: 1000})
	}

	assignment, buckets, err := PlanBuckets(freq, 2, 2000, dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(buckets), 5)
	require.Len(t, assignment, 10)

	var totalPlanned uint64
	for _, b := range buckets {
		totalPlanned += uint64(b.PlannedRecords)
	}
	require.Equal(t, uint64(10_000), totalPlanned)

	// every barcode's bucket assignment must agree with the bucket list.
	seen := make(map[uint32]bool)
	for _, bc := range freq {
		b, ok := assignment[bc.Barcode]
		require.True(t, ok)
		seen[b.ID] = true
	}
	require.Equal(t, len(seen), countNonEmpty(buckets))
}

func countNonEmpty(buckets []*Bucket) int {
	n := 0
	for _, b := range buckets {
		if b.PlannedChunks > 0 {
			n++
		}
	}
	return n
}

func TestPlanBucketsLargestBarcodeAlone(t *testing.T) {
	dir := t.TempDir()
	freq := []BarcodeCount{
		{Barcode: 1, Count: 5000},
		{Barcode: 2, Count: 10},
		{Barcode: 3, Count: 10},
	}
	assignment, buckets, err := PlanBuckets(freq, 1, 100, dir)
	require.NoError(t, err)
	// the largest barcode alone exceeds the threshold and is permitted to.
	require.Equal(t, assignment[uint64(1)], buckets[0])
	require.Equal(t, uint32(5000), buckets[0].PlannedRecords)
}

func TestPlanBucketsSingleBucket(t *testing.T) {
	dir := t.TempDir()
	freq := []BarcodeCount{{Barcode: 0xAA, Count: 3}}
	assignment, buckets, err := PlanBuckets(freq, 4, 100, dir)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, uint32(3), buckets[0].PlannedRecords)
	require.Equal(t, uint32(1), buckets[0].PlannedChunks)
	require.Equal(t, buckets[0].ID, assignment[uint64(0xAA)].ID)
}

package collate

// BarcodeCount is one (corrected_barcode, count) entry from the frequency
// map (spec §3's FrequencyMap), as consumed by the bucket planner.
type BarcodeCount struct {
	Barcode uint64
	Count   uint64
}

// PlanBuckets assigns each corrected barcode in sortedDesc to a temp bucket
// using the greedy, descending-count threshold-packing algorithm of spec
// §4.1. sortedDesc must already be sorted in descending order of Count; the
// largest barcode is always placed first and is always permitted to exceed
// the threshold by itself.
//
// It returns the bucket assignment map and the ordered list of buckets
// (still open, ready to receive writes).
func PlanBuckets(sortedDesc []BarcodeCount, numWorkers int, maxRecords uint32, dir string) (map[uint64]*Bucket, []*Bucket, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	perWorkerBudget := uint64(maxRecords)/uint64(numWorkers) + 1

	assignment := make(map[uint64]*Bucket, len(sortedDesc))
	var buckets []*Bucket

	cur, err := NewBucket(uint32(len(buckets)), dir)
	if err != nil {
		return nil, nil, err
	}
	buckets = append(buckets, cur)

	var curRecords uint64
	var curChunks uint32

	for _, bc := range sortedDesc {
		assignment[bc.Barcode] = cur
		curRecords += bc.Count
		curChunks++

		if curRecords >= perWorkerBudget {
			cur.PlannedRecords = uint32(curRecords)
			cur.PlannedChunks = curChunks

			next, err := NewBucket(uint32(len(buckets)), dir)
			if err != nil {
				return nil, nil, err
			}
			buckets = append(buckets, next)
			cur = next
			curRecords = 0
			curChunks = 0
		}
	}
	if curChunks > 0 {
		cur.PlannedRecords = uint32(curRecords)
		cur.PlannedChunks = curChunks
	}

	return assignment, buckets, nil
}

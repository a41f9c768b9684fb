package collate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/combine-lab/radcollate/encoding/rad"
)

func writeLenPrefixed(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

// buildRadInput assembles a complete, unordered map.rad fixture: header, the
// three tag sections (no file-level tags, barcode u64 and umi u32
// read-level tags, no alignment-level tags), zero file tag values, then one
// chunk per entry in chunks.
// Each chunk's records use raw (uncorrected) barcodes.
func buildRadInput(t *testing.T, chunks [][]*rad.Record) []byte {
	t.Helper()
	var buf bytes.Buffer

	buf.WriteByte(0) // is_paired = false
	binary.Write(&buf, binary.LittleEndian, uint64(1))
	writeLenPrefixed(&buf, "chr1")
	binary.Write(&buf, binary.LittleEndian, uint64(len(chunks)))

	// file-level tags: none.
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	// read-level tags: barcode (u64), umi (u32).
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	writeLenPrefixed(&buf, "b")
	buf.WriteByte(rad.TypeU64)
	writeLenPrefixed(&buf, "u")
	buf.WriteByte(rad.TypeU32)

	// alignment-level tags: none.
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	// no file tags, so no file tag values follow.

	for _, recs := range chunks {
		var body bytes.Buffer
		for _, r := range recs {
			_, err := rad.EncodeRecord(&body, r, bcU64, umiU32)
			require.NoError(t, err)
		}
		hdr := make([]byte, rad.ChunkHeaderSize)
		rad.PutChunkHeader(hdr, uint32(len(hdr)+body.Len()), uint32(len(recs)))
		buf.Write(hdr)
		buf.Write(body.Bytes())
	}

	return buf.Bytes()
}

func writeBincodeU64MapFile(t *testing.T, path string, m map[uint64]uint64) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(m))))
	for k, v := range m {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, k))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// setupCollateFixture builds a minimal but complete input_dir/rad_dir pair:
// three raw barcodes (10, 11, 20) correcting to two permitted barcodes (1
// with two raw barcodes folded in, 2 standalone), spread across two input
// chunks, plus one uncorrectable raw barcode (99) that must be dropped.
func setupCollateFixture(t *testing.T) (inputDir, radDir string) {
	t.Helper()
	inputDir = t.TempDir()
	radDir = t.TempDir()

	writeFile(t, filepath.Join(inputDir, "generate_permit_list.json"), `{
		"version_str": "0.8.1",
		"velo_mode": false,
		"expected_ori": "fw"
	}`)

	writePermitFreqFixture(t, filepath.Join(inputDir, "permit_freq.bin"), 1, 16, map[uint64]uint64{
		1: 2,
		2: 1,
	})
	writeBincodeU64MapFile(t, filepath.Join(inputDir, "permit_map.bin"), map[uint64]uint64{
		10: 1,
		11: 1,
		20: 2,
	})

	var unmapped bytes.Buffer
	require.NoError(t, binary.Write(&unmapped, binary.LittleEndian, uint64(99)))
	require.NoError(t, binary.Write(&unmapped, binary.LittleEndian, uint32(5)))
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "unmapped_bc_count.bin"), unmapped.Bytes(), 0o644))

	chunks := [][]*rad.Record{
		{
			{Barcode: 10, UMI: 1, Alignments: []uint32{1}},
			{Barcode: 99, UMI: 2, Alignments: []uint32{2}},
		},
		{
			{Barcode: 11, UMI: 3, Alignments: []uint32{3}},
			{Barcode: 20, UMI: 4, Alignments: []uint32{4}},
		},
	}
	require.NoError(t, os.WriteFile(filepath.Join(radDir, "map.rad"), buildRadInput(t, chunks), 0o644))

	return inputDir, radDir
}

func TestCollateEndToEnd(t *testing.T) {
	inputDir, radDir := setupCollateFixture(t)

	err := Collate(Options{
		InputDir:   inputDir,
		RadDir:     radDir,
		NumThreads: 3,
		MaxRecords: 1000,
		Cmdline:    "radcollate -test",
		VersionStr: "0.8.1",
	})
	require.NoError(t, err)

	outPath := filepath.Join(inputDir, "map.collated.rad")
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	r := bytes.NewReader(data)
	hdr, _, err := rad.ReadHeader(r)
	require.NoError(t, err)
	require.Equal(t, uint64(2), hdr.NumChunks, "one chunk per distinct corrected barcode")

	fileTags, err := rad.ReadTagSection(r)
	require.NoError(t, err)
	require.Len(t, fileTags.Tags, 0)
	readTags, err := rad.ReadTagSection(r)
	require.NoError(t, err)
	require.Len(t, readTags.Tags, 2)
	alnTags, err := rad.ReadTagSection(r)
	require.NoError(t, err)
	require.Len(t, alnTags.Tags, 0)

	seen := map[uint64]int{}
	for {
		nBytes, nRecords, err := rad.ReadChunkHeader(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
		}
		body := make([]byte, nBytes-rad.ChunkHeaderSize)
		_, err = io.ReadFull(r, body)
		require.NoError(t, err)

		br := bytes.NewReader(body)
		var count int
		for br.Len() > 0 {
			rec, _, err := rad.DecodeRecord(br, bcU64, umiU32)
			require.NoError(t, err)
			require.NotEqual(t, uint64(99), rec.Barcode, "uncorrectable barcode must never reach the output")
			seen[rec.Barcode]++
			count++
		}
		require.Equal(t, int(nRecords), count)
	}
	require.Equal(t, 2, seen[1], "barcodes 10 and 11 both correct to 1")
	require.Equal(t, 1, seen[2])

	// temp buckets must not survive a successful run.
	entries, err := os.ReadDir(inputDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), "bucket_", "no temp bucket files should remain")
	}

	unmappedOut, err := os.ReadFile(filepath.Join(inputDir, "unmapped_bc_count_collated.bin"))
	require.NoError(t, err)
	require.Empty(t, unmappedOut[8:], "raw barcode 99 is uncorrectable and must be dropped, leaving an empty map")

	collateJSON, err := os.ReadFile(filepath.Join(inputDir, "collate.json"))
	require.NoError(t, err)
	require.Contains(t, string(collateJSON), "radcollate -test")
}

func TestCollateCompressedOutput(t *testing.T) {
	inputDir, radDir := setupCollateFixture(t)

	err := Collate(Options{
		InputDir:    inputDir,
		RadDir:      radDir,
		NumThreads:  2,
		MaxRecords:  1000,
		CompressOut: true,
		Cmdline:     "radcollate -test -compress",
		VersionStr:  "0.8.1",
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(inputDir, "map.collated.rad.sz"))
	require.NoError(t, err)
}

func TestCollateVersionMismatch(t *testing.T) {
	inputDir, radDir := setupCollateFixture(t)

	err := Collate(Options{
		InputDir:   inputDir,
		RadDir:     radDir,
		NumThreads: 2,
		MaxRecords: 1000,
		VersionStr: "2.0.0",
	})
	require.Error(t, err)
	var collErr *Error
	require.ErrorAs(t, err, &collErr)
	require.Equal(t, KindVersionMismatch, collErr.Kind)
}

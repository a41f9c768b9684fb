// radcollate groups an unordered RAD file's records by corrected cell
// barcode, using a scatter/gather external-memory algorithm bounded by a
// caller-supplied record budget.
//
// Usage: radcollate -input-dir <dir> -rad-dir <dir> [flags]
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/combine-lab/radcollate/collate"
)

const version = "0.1.0"

var (
	inputDirFlag    = flag.String("input-dir", "", "directory holding generate_permit_list.json, permit_freq.bin, permit_map.bin, and unmapped_bc_count.bin; also where outputs are written")
	radDirFlag      = flag.String("rad-dir", "", "directory holding the unsorted input RAD file, map.rad")
	threadsFlag     = flag.Int("threads", 4, "total thread budget; max(1, threads-1) workers run in each of the scatter and gather phases")
	maxRecordsFlag  = flag.Uint("max-records", 100_000_000, "external-memory budget driving bucket planning and scatter buffer sizing")
	compressOutFlag = flag.Bool("compress", false, "wrap the collated output's header and chunks in Snappy frames")
)

func main() {
	flag.Usage = func() {
		os.Stderr.WriteString(`Usage: radcollate -input-dir <dir> -rad-dir <dir> [flags]

Reads the unordered RAD file in -rad-dir and writes a barcode-grouped RAD
file into -input-dir, using the permit list, correction map, and frequency
map already produced there by an earlier generate-permit-list step.
`)
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	if *inputDirFlag == "" || *radDirFlag == "" {
		flag.Usage()
		os.Exit(1)
	}

	opts := collate.Options{
		InputDir:    *inputDirFlag,
		RadDir:      *radDirFlag,
		NumThreads:  *threadsFlag,
		MaxRecords:  uint32(*maxRecordsFlag),
		CompressOut: *compressOutFlag,
		Cmdline:     strings.Join(os.Args, " "),
		VersionStr:  version,
	}

	if err := collate.Collate(opts); err != nil {
		log.Panicf("radcollate: %v", err)
	}
	fmt.Fprintln(os.Stderr, "radcollate: done")
}

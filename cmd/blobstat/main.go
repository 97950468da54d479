// blobstat reports per-family and per-triple statistics about an extracted
// blob cache, independent of the full synthfw pipeline.
//
// Usage: blobstat [-v] <objects-dir>
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/armgen/synthfw/internal/blob"
)

var verbose = flag.BoolP("verbose", "v", false, "list every triple within each family")

var errUsage = errors.New("usage: blobstat [-v] <objects-dir>")

func run(stdout *os.File, objectsDir string, verbose bool) error {
	idx, err := blob.Scan(objectsDir)
	if err != nil {
		return err
	}
	if idx.IsEmpty() {
		return fmt.Errorf("no blobs found under %s", objectsDir)
	}

	families := idx.Families()
	totalBlobs := 0
	totalBytes := int64(0)

	for _, fam := range families {
		blobs := idx.GetBlobs(fam)
		famBytes := int64(0)
		triples := map[string]int{}
		for _, b := range blobs {
			famBytes += b.Size
			triples[b.Triple]++
		}
		totalBlobs += len(blobs)
		totalBytes += famBytes

		fmt.Fprintf(stdout, "%-15s %5d blobs  %10s\n", fam, len(blobs), humanize.Bytes(uint64(famBytes)))
		if verbose {
			tripleNames := make([]string, 0, len(triples))
			for t := range triples {
				tripleNames = append(tripleNames, t)
			}
			sort.Strings(tripleNames)
			for _, t := range tripleNames {
				fmt.Fprintf(stdout, "    %-40s %5d\n", t, triples[t])
			}
		}
	}

	fmt.Fprintf(stdout, "---\n%d families, %d blobs, %s total\n", len(families), totalBlobs, humanize.Bytes(uint64(totalBytes)))
	return nil
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, errUsage)
		os.Exit(2)
	}
	if err := run(os.Stdout, args[0], *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "blobstat:", err)
		os.Exit(1)
	}
}

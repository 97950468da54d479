// Package blob indexes the raw machine-code blobs produced by extract and
// serves them to the layout engine and assembler.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/armgen/synthfw/internal/log"
	"github.com/armgen/synthfw/internal/rng"
)

// Info describes one indexed blob file.
type Info struct {
	Path    string
	Family  string
	Triple  string
	Config  string
	Program string
	Size    int64
}

// Index is a read-only, in-memory catalog of every `.bin` blob under an
// objects directory, keyed by ISA family. Built once per run; concurrent
// reads (GetRandomBlob, GetBlobData, ...) are safe since Index is never
// mutated after Scan returns.
type Index struct {
	objectsDir    string
	blobsByFamily map[string][]Info
}

// Scan walks objectsDir for `{family}/{triple}/{config}/{program}.bin`
// files and builds an Index. Zero-byte files are skipped, matching the
// extractor's own empty-output cleanup. Traversal order is sorted so the
// resulting per-family slices are deterministic across runs and platforms.
func Scan(objectsDir string) (*Index, error) {
	idx := &Index{
		objectsDir:    objectsDir,
		blobsByFamily: make(map[string][]Info),
	}

	if _, err := os.Stat(objectsDir); os.IsNotExist(err) {
		log.Warnf("objects directory does not exist: %s", objectsDir)
		return idx, nil
	}

	var found []string
	err := filepath.WalkDir(objectsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".bin") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", objectsDir, err)
	}
	sort.Strings(found)

	for _, path := range found {
		rel, err := filepath.Rel(objectsDir, path)
		if err != nil {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 4 {
			continue
		}

		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			continue
		}

		family := parts[0]
		triple := parts[1]
		config := parts[2]
		program := strings.TrimSuffix(filepath.Base(path), ".bin")

		idx.blobsByFamily[family] = append(idx.blobsByFamily[family], Info{
			Path:    path,
			Family:  family,
			Triple:  triple,
			Config:  config,
			Program: program,
			Size:    info.Size(),
		})
	}

	total := 0
	for _, v := range idx.blobsByFamily {
		total += len(v)
	}
	log.Infof("indexed %d blobs across %d families", total, len(idx.blobsByFamily))

	return idx, nil
}

// Families lists every ISA family with at least one blob, sorted.
func (idx *Index) Families() []string {
	names := make([]string, 0, len(idx.blobsByFamily))
	for f := range idx.blobsByFamily {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// BlobCount returns the number of blobs indexed for family.
func (idx *Index) BlobCount(family string) int {
	return len(idx.blobsByFamily[family])
}

// GetBlobs returns every blob indexed for family, in scan order.
func (idx *Index) GetBlobs(family string) []Info {
	return idx.blobsByFamily[family]
}

// GetRandomBlob returns a uniformly random blob for family, or false if
// none are indexed.
func (idx *Index) GetRandomBlob(family string, r *rng.Rand) (Info, bool) {
	blobs := idx.blobsByFamily[family]
	if len(blobs) == 0 {
		return Info{}, false
	}
	return rng.ChoiceInt(r, blobs), true
}

// GetBlobData reads the raw bytes backing blob.
func GetBlobData(b Info) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", b.Path, err)
	}
	return data, nil
}

// Summary returns family -> blob count, for manifest/CLI reporting.
func (idx *Index) Summary() map[string]int {
	out := make(map[string]int, len(idx.blobsByFamily))
	for f, blobs := range idx.blobsByFamily {
		out[f] = len(blobs)
	}
	return out
}

// IsEmpty reports whether the index has no blobs at all, across every
// family. Callers use this to abort a batch before layout/assembly begin.
func (idx *Index) IsEmpty() bool {
	for _, blobs := range idx.blobsByFamily {
		if len(blobs) > 0 {
			return false
		}
	}
	return true
}

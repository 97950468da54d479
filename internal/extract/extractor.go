// Package extract turns a tree of compiled object files into a tree of raw
// machine-code blobs, one per {triple}/{config}/{program}.o input, keyed by
// ISA family.
package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/armgen/synthfw/internal/isafamily"
	"github.com/armgen/synthfw/internal/log"
	"github.com/armgen/synthfw/internal/pool"
)

// perFileTimeout bounds a single objcopy invocation, per the extraction
// contract: a hung or slow toolchain must never stall the whole batch.
const perFileTimeout = 30 * time.Second

// Objcopy extracts the .text section of elfPath into outPath as a raw
// binary. Implementations must respect ctx's deadline.
type Objcopy func(ctx context.Context, elfPath, outPath string) error

// LLVMObjcopy shells out to llvm-objcopy, mirroring the reference tool's
// invocation: `llvm-objcopy -O binary --only-section=.text <in> <out>`.
func LLVMObjcopy(binary string) Objcopy {
	if binary == "" {
		binary = "llvm-objcopy"
	}
	return func(ctx context.Context, elfPath, outPath string) error {
		cmd := exec.CommandContext(ctx, binary, "-O", "binary", "--only-section=.text", elfPath, outPath)
		out, err := cmd.CombinedOutput()
		if err != nil {
			msg := strings.TrimSpace(string(out))
			if len(msg) > 200 {
				msg = msg[:200]
			}
			if msg == "" {
				msg = err.Error()
			}
			return fmt.Errorf("%s", msg)
		}
		return nil
	}
}

// Result describes the outcome of extracting a single .o file.
type Result struct {
	Source  string
	Output  string
	Success bool
	Cached  bool
	Error   error
	Size    int64
}

// task is one (input, output) pair found by discover.
type task struct {
	elfPath string
	outPath string
}

// Extractor extracts raw machine code from compiled object files using an
// external objcopy-like tool.
type Extractor struct {
	Objcopy Objcopy
}

// NewExtractor builds an Extractor around objcopy. A nil objcopy uses
// LLVMObjcopy("llvm-objcopy").
func NewExtractor(objcopy Objcopy) *Extractor {
	if objcopy == nil {
		objcopy = LLVMObjcopy("")
	}
	return &Extractor{Objcopy: objcopy}
}

// discover walks oracleOutputDir for `{triple}/{config}/{program}.o` files,
// mapping each to its `{objectsDir}/{family}/{triple}/{config}/{program}.bin`
// destination. Triples that are excluded or unknown to isafamily are
// skipped. Traversal order is sorted for determinism.
func discover(oracleOutputDir, objectsDir string) ([]task, error) {
	var found []string
	err := filepath.WalkDir(oracleOutputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".o") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", oracleOutputDir, err)
	}
	sort.Strings(found)

	var tasks []task
	for _, elfPath := range found {
		rel, err := filepath.Rel(oracleOutputDir, elfPath)
		if err != nil {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 3 {
			continue
		}
		triple := parts[0]
		family := isafamily.ForTriple(triple)
		if family == "" {
			continue
		}
		outRel := strings.TrimSuffix(rel, ".o") + ".bin"
		outPath := filepath.Join(objectsDir, family, outRel)
		tasks = append(tasks, task{elfPath: elfPath, outPath: outPath})
	}
	return tasks, nil
}

// extractOne extracts a single object file, honoring the cache-freshness
// rule: if force is false and outPath already exists, is newer than
// elfPath, and is non-empty, the extraction is skipped.
func (e *Extractor) extractOne(ctx context.Context, t task, force bool) Result {
	res := Result{Source: t.elfPath, Output: t.outPath}

	if !force {
		if outInfo, err := os.Stat(t.outPath); err == nil && outInfo.Size() > 0 {
			if elfInfo, err := os.Stat(t.elfPath); err == nil && !outInfo.ModTime().Before(elfInfo.ModTime()) {
				res.Success = true
				res.Cached = true
				res.Size = outInfo.Size()
				return res
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(t.outPath), 0o755); err != nil {
		res.Error = fmt.Errorf("mkdir: %w", err)
		return res
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, perFileTimeout)
	defer cancel()

	if err := e.Objcopy(timeoutCtx, t.elfPath, t.outPath); err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			res.Error = fmt.Errorf("%s: timeout", t.elfPath)
		} else {
			res.Error = fmt.Errorf("%s: %w", t.elfPath, err)
		}
		return res
	}

	info, err := os.Stat(t.outPath)
	if err != nil || info.Size() == 0 {
		// Empty .text is a soft failure: remove the zero-byte artifact and
		// count it as an error, per the extraction contract.
		os.Remove(t.outPath)
		res.Error = fmt.Errorf("%s: empty .text section", t.elfPath)
		return res
	}

	res.Success = true
	res.Size = info.Size()
	return res
}

// Summary reports aggregate counts from a batch extraction.
type Summary struct {
	Total   int
	Success int
	Cached  int
	Failed  int
}

// ExtractAll batch-extracts every .o file under oracleOutputDir into
// objectsDir, using up to jobs worker goroutines. It returns a Summary plus
// a non-nil *multierror.Error aggregating every per-file failure (nil if
// none failed) so callers can inspect every failure, not just the first.
// The batch itself only fails outright (zero blobs produced) is left for
// the caller to detect via Summary.Success == 0.
func (e *Extractor) ExtractAll(ctx context.Context, oracleOutputDir, objectsDir string, jobs int, force bool) (Summary, error) {
	tasks, err := discover(oracleOutputDir, objectsDir)
	if err != nil {
		return Summary{}, err
	}
	if len(tasks) == 0 {
		log.Warnf("no .o files found in %s", oracleOutputDir)
		return Summary{}, nil
	}
	if jobs < 1 {
		jobs = 1
	}

	log.Infof("extracting %d objects with %d workers...", len(tasks), jobs)

	results := pool.Run(tasks, jobs, func(t task) Result {
		return e.extractOne(ctx, t, force)
	})

	var summary Summary
	var errs *multierror.Error
	for _, r := range results {
		summary.Total++
		if r.Success {
			summary.Success++
			if r.Cached {
				summary.Cached++
			}
		} else {
			summary.Failed++
			errs = multierror.Append(errs, r.Error)
		}
	}

	log.Infof("extraction complete: %d total, %d success (%d cached), %d failed",
		summary.Total, summary.Success, summary.Cached, summary.Failed)

	return summary, errs.ErrorOrNil()
}

// Package generate implements `synthfw generate`: the full extract (unless
// skipped) → index → layout → assemble pipeline.
package generate

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/armgen/synthfw/cmd/synthfw/commands"
	"github.com/armgen/synthfw/internal/assemble"
	"github.com/armgen/synthfw/internal/blob"
	"github.com/armgen/synthfw/internal/extract"
	"github.com/armgen/synthfw/internal/genconfig"
	"github.com/armgen/synthfw/internal/layout"
	"github.com/armgen/synthfw/internal/log"
	"github.com/armgen/synthfw/internal/manifest"
	"github.com/armgen/synthfw/internal/pool"
)

var _ commands.Command = (*Command)(nil)

// Command implements `synthfw generate`.
type Command struct {
	OracleOutputDir     string   `description:"source of compiled .o files" long:"oracle-output" default:"../output"`
	ObjectsDir          string   `description:"extraction cache directory" long:"objects-dir" default:"../objects"`
	FirmwareDir         string   `description:"output directory for firmware images" long:"firmware-dir" default:"../firmware"`
	NumImages           int      `description:"number of firmware images to generate" long:"num-images" short:"n" default:"1000"`
	Seed                int64    `description:"master seed for deterministic generation" long:"seed" default:"42"`
	MinSize             int      `description:"minimum firmware image size in bytes" long:"min-size" default:"4096"`
	MaxSize             int      `description:"maximum firmware image size in bytes" long:"max-size" default:"16777216"`
	MultiISAProbability float64  `description:"probability of generating multi-ISA images" long:"multi-isa-probability" default:"0.15"`
	Families            []string `description:"limit to specific ISA families" long:"families"`
	ImagesPerCombo      int      `description:"minimum images per ISA combination" long:"images-per-combo" default:"20"`
	Jobs                int      `description:"number of parallel workers" long:"jobs" short:"j" default:"8"`
	ExtractOnly         bool     `description:"only extract blobs, don't generate firmware" long:"extract-only"`
	SkipExtraction      bool     `description:"skip extraction, use existing objects cache" long:"skip-extraction"`
	ForceExtract        bool     `description:"force re-extraction even if cache exists" long:"force-extract"`
	DryRun              bool     `description:"generate layouts but don't write firmware images" long:"dry-run"`
	Verbose             bool     `description:"verbose output" long:"verbose" short:"v"`
}

// ShortDescription explains what this command does in one line.
func (cmd *Command) ShortDescription() string {
	return "run the full extract → index → layout → assemble pipeline"
}

// LongDescription explains what this verb does in full.
func (cmd *Command) LongDescription() string {
	return "Extracts machine code from compiled objects (unless skipped), indexes the blob cache, " +
		"plans a batch of firmware image layouts, and assembles them with ground-truth JSON sidecars."
}

// Execute runs the pipeline end to end.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("generate takes no positional arguments")}
	}
	log.SetVerbose(cmd.Verbose)

	cfg := genconfig.Config{
		Seed:                cmd.Seed,
		NumImages:           cmd.NumImages,
		MinSize:             cmd.MinSize,
		MaxSize:             cmd.MaxSize,
		MultiISAProbability: cmd.MultiISAProbability,
		ParallelJobs:        cmd.Jobs,
		OracleOutputDir:     cmd.OracleOutputDir,
		ObjectsDir:          cmd.ObjectsDir,
		FirmwareDir:         cmd.FirmwareDir,
		Families:            cmd.Families,
		MinImagesPerCombo:   cmd.ImagesPerCombo,
		ForceExtract:        cmd.ForceExtract,
		Verbose:             cmd.Verbose,
	}

	if !cmd.SkipExtraction {
		log.Infof("phase 1: extracting binary blobs from %s", cfg.OracleOutputDir)
		extractor := extract.NewExtractor(nil)
		summary, err := extractor.ExtractAll(context.Background(), cfg.OracleOutputDir, cfg.ObjectsDir, cfg.ParallelJobs, cfg.ForceExtract)
		if err != nil {
			log.Warnf("extraction finished with failures: %v", err)
		}
		log.Infof("extraction complete: %d total, %d success (%d cached), %d failed",
			summary.Total, summary.Success, summary.Cached, summary.Total-summary.Success)
		if cmd.ExtractOnly {
			return nil
		}
	} else {
		log.Infof("phase 1: skipping extraction (using existing cache)")
	}

	log.Infof("phase 2: indexing blob cache at %s", cfg.ObjectsDir)
	idx, err := blob.Scan(cfg.ObjectsDir)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", cfg.ObjectsDir, err)
	}
	if idx.IsEmpty() {
		return fmt.Errorf("no blobs found under %s; run extraction first", cfg.ObjectsDir)
	}

	summary := idx.Summary()
	total := 0
	for _, c := range summary {
		total += c
	}
	log.Infof("blob index: %d families, %d total blobs", len(summary), total)

	if len(cfg.Families) > 0 {
		available := map[string]bool{}
		for _, f := range idx.Families() {
			available[f] = true
		}
		for _, want := range cfg.Families {
			if !available[want] {
				log.Warnf("requested family not available: %s", want)
			}
		}
	}

	log.Infof("phase 3: generating %d image layouts (seed=%d)", cfg.NumImages, cfg.Seed)
	engine, err := layout.NewEngine(idx, cfg)
	if err != nil {
		return fmt.Errorf("building layout engine: %w", err)
	}
	layouts := engine.GenerateBatch(cfg.NumImages)

	multiCount := 0
	totalCode := 0
	totalSize := 0
	for _, l := range layouts {
		if l.IsMultiISA() {
			multiCount++
		}
		totalCode += l.CodeBytes()
		totalSize += l.TotalSize
	}
	log.Infof("layouts: %d images, %d multi-ISA, %s total",
		len(layouts), multiCount, humanize.Bytes(uint64(totalSize)))

	if cmd.DryRun {
		log.Infof("=== DRY RUN — not writing firmware images ===")
		dirCounts := map[string]int{}
		for _, l := range layouts {
			dirCounts[l.ISALabel()]++
		}
		labels := make([]string, 0, len(dirCounts))
		for l := range dirCounts {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		log.Infof("directory distribution (%d directories):", len(dirCounts))
		for _, l := range labels {
			log.Infof("  %-30s %4d images", l+"/", dirCounts[l])
		}
		return nil
	}

	log.Infof("phase 4: generating firmware images with %d workers", cfg.ParallelJobs)
	if err := os.MkdirAll(cfg.FirmwareDir, 0o755); err != nil {
		return fmt.Errorf("creating firmware dir: %w", err)
	}

	assembler := &assemble.Assembler{Index: idx, ObjectsDir: cfg.ObjectsDir, FirmwareDir: cfg.FirmwareDir}

	type outcome struct {
		res assemble.Result
		err error
	}
	outcomes := pool.Run(layouts, cfg.ParallelJobs, func(img layout.Image) (o outcome) {
		defer func() {
			if p := recover(); p != nil {
				o = outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		res, err := assembler.Assemble(img)
		return outcome{res: res, err: err}
	})

	builder := manifest.NewBuilder()
	for i, o := range outcomes {
		if o.err != nil {
			log.Errorf("image %s failed: %v", layouts[i].ImageID, o.err)
			builder.AddFailure(layouts[i].ImageID, o.err)
			continue
		}
		builder.AddResult(o.res)
	}

	log.Infof("saving manifest...")
	if err := builder.Save(cfg.FirmwareDir, cfg); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}

	ok, failed := builder.Counts()
	log.Infof("=== generation complete ===")
	log.Infof("images: %d generated, %d failed", ok, failed)
	fmt.Println(builder.SummaryTable())

	return nil
}

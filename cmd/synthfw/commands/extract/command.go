// Package extract implements `synthfw extract`: pulls raw machine code out
// of compiled .o files into the blob cache.
package extract

import (
	"context"
	"fmt"

	"github.com/armgen/synthfw/cmd/synthfw/commands"
	"github.com/armgen/synthfw/internal/extract"
	"github.com/armgen/synthfw/internal/log"
)

var _ commands.Command = (*Command)(nil)

// Command implements `synthfw extract`.
type Command struct {
	OracleOutputDir string `description:"directory of compiled .o files" required:"true" long:"oracle-output"`
	ObjectsDir      string `description:"output directory for extracted blobs" required:"true" long:"objects-dir"`
	Jobs            int    `description:"number of parallel extraction workers" long:"jobs" short:"j" default:"8"`
	Force           bool   `description:"re-extract even if the cache is fresh" long:"force"`
}

// ShortDescription explains what this command does in one line.
func (cmd *Command) ShortDescription() string {
	return "extract raw machine code blobs from compiled object files"
}

// LongDescription explains what this verb does in full.
func (cmd *Command) LongDescription() string {
	return "Walks oracle-output for {triple}/{config}/{program}.o files, extracts each one's " +
		".text section with llvm-objcopy, and caches the result under objects-dir."
}

// Execute runs the extraction batch.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("extract takes no positional arguments")}
	}

	extractor := extract.NewExtractor(nil)
	summary, err := extractor.ExtractAll(context.Background(), cmd.OracleOutputDir, cmd.ObjectsDir, cmd.Jobs, cmd.Force)
	if err != nil {
		log.Warnf("extraction finished with failures: %v", err)
	}
	if summary.Success == 0 {
		return fmt.Errorf("no blobs extracted from %s", cmd.OracleOutputDir)
	}
	return nil
}

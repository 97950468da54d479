// Package index implements `synthfw index`: reports what is currently
// cached in the blob index without generating anything.
package index

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/armgen/synthfw/cmd/synthfw/commands"
	"github.com/armgen/synthfw/internal/blob"
)

var _ commands.Command = (*Command)(nil)

// Command implements `synthfw index`.
type Command struct {
	ObjectsDir string `description:"directory of extracted blobs to index" required:"true" long:"objects-dir"`
}

// ShortDescription explains what this command does in one line.
func (cmd *Command) ShortDescription() string {
	return "print a summary of the cached blob index"
}

// LongDescription explains what this verb does in full.
func (cmd *Command) LongDescription() string {
	return "Scans objects-dir and prints a per-family blob count table, without generating any firmware images."
}

// Execute scans the blob index and prints its summary.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("index takes no positional arguments")}
	}

	idx, err := blob.Scan(cmd.ObjectsDir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", cmd.ObjectsDir, err)
	}
	if idx.IsEmpty() {
		return fmt.Errorf("no blobs found under %s; run `synthfw extract` first", cmd.ObjectsDir)
	}

	summary := idx.Summary()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ISA Family", "Blobs"})
	total := 0
	for _, fam := range idx.Families() {
		count := summary[fam]
		total += count
		t.AppendRow(table.Row{fam, count})
	}
	t.AppendFooter(table.Row{"TOTAL", total})
	fmt.Println(t.Render())

	return nil
}

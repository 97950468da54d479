// Package commands declares the verb-command interface shared by every
// synthfw subcommand.
package commands

import (
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Command is the interface every synthfw verb (generate, extract, index)
// implements.
type Command interface {
	flags.Commander

	// ShortDescription explains what this command does in one line.
	ShortDescription() string

	// LongDescription explains what this verb does in full.
	LongDescription() string
}

// ErrArgs means the command's positional arguments were invalid.
type ErrArgs struct {
	Err error
}

func (err ErrArgs) Error() string {
	return fmt.Sprintf("invalid arguments: %v", err.Err)
}

func (err ErrArgs) Unwrap() error {
	return err.Err
}

// synthfw synthesizes ground-truth-labeled firmware images for training
// ISA-detection models.
//
// Synopsis:
//
//	synthfw extract --oracle-output DIR --objects-dir DIR
//	synthfw index --objects-dir DIR
//	synthfw generate --objects-dir DIR --firmware-dir DIR -n 1000
package main

import (
	"log"

	"github.com/jessevdk/go-flags"

	"github.com/armgen/synthfw/cmd/synthfw/commands"
	"github.com/armgen/synthfw/cmd/synthfw/commands/extract"
	"github.com/armgen/synthfw/cmd/synthfw/commands/generate"
	"github.com/armgen/synthfw/cmd/synthfw/commands/index"
)

var knownCommands = map[string]commands.Command{
	"generate": &generate.Command{},
	"extract":  &extract.Command{},
	"index":    &index.Command{},
}

func main() {
	flagsParser := flags.NewParser(nil, flags.Default)
	for name, cmd := range knownCommands {
		if _, err := flagsParser.AddCommand(name, cmd.ShortDescription(), cmd.LongDescription(), cmd); err != nil {
			panic(err)
		}
	}

	if _, err := flagsParser.Parse(); err != nil {
		log.Fatal(err)
	}
}

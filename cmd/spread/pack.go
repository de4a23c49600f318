package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/spread-install/spread/cmd"
	"github.com/spread-install/spread/pkg/dirmap"
)

func packMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("invalid number of arguments (expected a single directory path)")
	}
	root := arguments[0]

	scanned, err := dirmap.Scan(root)
	if err != nil {
		return errors.Wrap(err, "unable to scan directory")
	}

	if packConfiguration.list {
		for _, entry := range scanned.Entries() {
			fmt.Printf("%s\t%s\n", entry.Hash, entry.Path)
		}
	}
	fmt.Println(scanned.Hash())

	return nil
}

var packCommand = &cobra.Command{
	Use:   "pack <directory>",
	Short: "Computes the directory hash Spread would use to name a directory's contents",
	Run:   cmd.Mainify(packMain),
}

var packConfiguration struct {
	list bool
}

func init() {
	flags := packCommand.Flags()
	flags.BoolVar(&packConfiguration.list, "list", false, "List every file's individual path and hash")
}

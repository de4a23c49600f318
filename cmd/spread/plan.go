package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/spread-install/spread/cmd"
	"github.com/spread-install/spread/pkg/installfinder"
	"github.com/spread-install/spread/pkg/layout"
)

func planMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 2 {
		return errors.New("invalid number of arguments (expected a hash and a destination path)")
	}
	h, err := parseHashArgument("hash", arguments[0])
	if err != nil {
		return err
	}
	destination := arguments[1]

	finder, err := planConfiguration.loadFinder([]string{destination})
	if err != nil {
		return err
	}
	cache, err := planConfiguration.openCache(planConfiguration.logger())
	if err != nil {
		return err
	}

	actions, complete, err := installfinder.Resolve(
		cache, finder, layout.SameFile,
		[]installfinder.Dependency{{Destination: destination, Hash: h}},
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "unable to resolve plan")
	}

	for hash, action := range actions {
		switch action.Kind {
		case installfinder.KindCopy:
			fmt.Printf("%s: copy from %s -> %v\n", hash, action.From, action.Destinations)
		case installfinder.KindApplyRule:
			fmt.Printf("%s: apply rule %q -> %v\n", hash, action.Rule.RuleString, action.Destinations)
		case installfinder.KindNone:
			fmt.Printf("%s: no known rule -> %v\n", hash, action.Destinations)
		}
	}

	if !complete {
		cmd.Warning("plan is incomplete: some hashes have no known rule")
	}

	return nil
}

var planCommand = &cobra.Command{
	Use:   "plan <hash> <destination>",
	Short: "Shows how a hash would be resolved without installing anything",
	Run:   cmd.Mainify(planMain),
}

var planConfiguration commonConfiguration

func init() {
	planConfiguration.register(planCommand.Flags())
}

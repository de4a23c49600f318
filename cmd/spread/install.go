package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/spread-install/spread/cmd"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/layout"
	"github.com/spread-install/spread/pkg/must"
	"github.com/spread-install/spread/pkg/spreadlib"
)

func installMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 2 {
		return errors.New("invalid number of arguments (expected a hash and a destination path)")
	}
	target, err := parseHashArgument("hash", arguments[0])
	if err != nil {
		return err
	}
	destination := arguments[1]

	var replaces hash.Hash
	if installConfiguration.replaces != "" {
		replaces, err = parseHashArgument("--replaces", installConfiguration.replaces)
		if err != nil {
			return err
		}
	}

	logger := installConfiguration.logger()
	layoutCfg, err := loadLayoutConfig()
	if err != nil {
		return err
	}
	ask := installConfiguration.ask
	if !command.Flags().Changed("ask") {
		ask = layoutCfg.Ask
	}

	// Hold the data directory lock for the whole install: the cache index,
	// its backing file, and the content store are shared across processes.
	locker, err := layout.AcquireLock()
	if err != nil {
		return errors.Wrap(err, "unable to open data directory lock")
	}
	defer must.Close(locker, logger)
	if err := locker.Lock(true); err != nil {
		return errors.Wrap(err, "unable to acquire data directory lock")
	}
	defer must.Unlock(locker, logger)

	finder, err := installConfiguration.loadFinder([]string{destination})
	if err != nil {
		return err
	}
	cache, err := installConfiguration.openCache(logger)
	if err != nil {
		return err
	}

	facade := spreadlib.New(spreadlib.Config{
		Finder:      finder,
		Cache:       cache,
		Logger:      logger,
		AskEnabled:  ask,
		Interactive: ask,
	})

	plan := spreadlib.Plan{
		AddDirHashes: []spreadlib.HashEntry{{Hash: target, Subpath: ""}},
	}
	if replaces.IsSet() {
		plan.RemDirHashes = []spreadlib.HashEntry{{Hash: replaces, Subpath: ""}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, cmd.TerminationSignals...)
	go func() {
		<-signals
		cancel()
	}()

	statusLine := &cmd.StatusLinePrinter{}
	statusLine.Print("installing...")
	err = facade.Install(ctx, destination, plan)
	statusLine.Clear()
	if err != nil {
		return errors.Wrap(err, "install failed")
	}

	return nil
}

var installCommand = &cobra.Command{
	Use:   "install <hash> <destination>",
	Short: "Installs (or upgrades) the directory named by hash at destination",
	Run:   cmd.Mainify(installMain),
}

var installConfiguration struct {
	commonConfiguration
	replaces string
	ask      bool
}

func init() {
	flags := installCommand.Flags()
	installConfiguration.register(flags)
	flags.StringVar(&installConfiguration.replaces, "replaces", "", "Hash of the previously-installed directory, for an upgrade")
	flags.BoolVar(&installConfiguration.ask, "ask", false, "Prompt interactively to resolve conflicts instead of using defaults")
}

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/spread-install/spread/cmd"
)

var cacheCommand = &cobra.Command{
	Use:   "cache",
	Short: "Inspects and maintains the local cache index",
}

var cacheConfiguration commonConfiguration

func cacheVerifyMain(command *cobra.Command, arguments []string) error {
	if err := cmd.DisallowArguments(command, arguments); err != nil {
		return err
	}
	cache, err := cacheConfiguration.openCache(cacheConfiguration.logger())
	if err != nil {
		return err
	}
	if err := cache.Verify(); err != nil {
		return errors.Wrap(err, "unable to verify cache index")
	}
	fmt.Println("cache index verified")
	return nil
}

func cacheListMain(command *cobra.Command, arguments []string) error {
	if err := cmd.DisallowArguments(command, arguments); err != nil {
		return err
	}
	cache, err := cacheConfiguration.openCache(cacheConfiguration.logger())
	if err != nil {
		return err
	}
	entries, err := cache.GetEntries()
	if err != nil {
		return errors.Wrap(err, "unable to list cache index")
	}
	for _, entry := range entries.Entries() {
		fmt.Printf("%s\t%s\n", entry.Hash, entry.Path)
	}
	return nil
}

func cacheGCMain(command *cobra.Command, arguments []string) error {
	if err := cmd.DisallowArguments(command, arguments); err != nil {
		return err
	}
	// The cache index doesn't separately track reference counts, so
	// reclaiming stale entries is the same reconciliation pass Verify
	// performs: any entry whose underlying file has disappeared is
	// dropped from the index.
	cache, err := cacheConfiguration.openCache(cacheConfiguration.logger())
	if err != nil {
		return err
	}
	if err := cache.Verify(); err != nil {
		return errors.Wrap(err, "unable to reclaim cache index")
	}
	fmt.Println("stale cache entries reclaimed")
	return nil
}

var cacheVerifyCommand = &cobra.Command{
	Use:   "verify",
	Short: "Reconciles the cache index against the files it references",
	Run:   cmd.Mainify(cacheVerifyMain),
}

var cacheListCommand = &cobra.Command{
	Use:   "list",
	Short: "Lists every path tracked by the cache index",
	Run:   cmd.Mainify(cacheListMain),
}

var cacheGCCommand = &cobra.Command{
	Use:   "gc",
	Short: "Reclaims cache index entries whose files no longer exist",
	Run:   cmd.Mainify(cacheGCMain),
}

func init() {
	for _, sub := range []*cobra.Command{cacheVerifyCommand, cacheListCommand, cacheGCCommand} {
		flags := sub.Flags()
		flags.StringVar(&cacheConfiguration.cacheIndex, "cache-index", "", "Path to the cache index file (defaults to the standard data directory location)")
		flags.BoolVar(&cacheConfiguration.verbose, "verbose", false, "Enable verbose logging")
	}
	cacheCommand.AddCommand(cacheVerifyCommand, cacheListCommand, cacheGCCommand)
}

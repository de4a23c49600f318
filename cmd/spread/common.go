package main

import (
	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/cacheindex"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/layout"
	"github.com/spread-install/spread/pkg/logging"
	"github.com/spread-install/spread/pkg/rules"
)

// defaultCacheIndexPath is the cache index location used when no --cache-index
// flag is given: a fixed name inside Spread's caches directory.
func defaultCacheIndexPath() (string, error) {
	return layout.Path(true, layout.CachesDirectoryName, "index")
}

// loadLayoutConfig reads the optional spread.yaml from the data directory
// and applies its directory overrides. Flags still take precedence over
// anything it sets.
func loadLayoutConfig() (layout.Config, error) {
	cfg, err := layout.LoadConfig()
	if err != nil {
		return layout.Config{}, errors.Wrap(err, "unable to load configuration")
	}
	cfg.Apply()
	return cfg, nil
}

// commonConfiguration holds flags shared by every subcommand that needs to
// resolve hashes: the rule file naming how to obtain content, and the
// cache index tracking what's already on disk.
type commonConfiguration struct {
	rulesFile  string
	cacheIndex string
	verbose    bool
}

func (c *commonConfiguration) register(flags interface {
	StringVar(*string, string, string, string)
	BoolVar(*bool, string, bool, string)
}) {
	flags.StringVar(&c.rulesFile, "rules", "rules.yaml", "Path to the rule-set file")
	flags.StringVar(&c.cacheIndex, "cache-index", "", "Path to the cache index file (defaults to the standard data directory location)")
	flags.BoolVar(&c.verbose, "verbose", false, "Enable verbose logging")
}

// loadFinder reads the configured rule file and applies any pattern-based
// hints against requestedPaths.
func (c *commonConfiguration) loadFinder(requestedPaths []string) (*rules.StaticRuleFinder, error) {
	_, finder, hints, err := rules.LoadFile(c.rulesFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load rule file")
	}
	rules.ApplyPatternHints(finder, hints, requestedPaths)
	return finder, nil
}

// openCache opens (creating if necessary) the cache index at the
// configured path, the spread.yaml override, or the default location under
// the Spread data directory, in that precedence order.
func (c *commonConfiguration) openCache(logger *logging.Logger) (*cacheindex.Index, error) {
	cfg, err := loadLayoutConfig()
	if err != nil {
		return nil, err
	}
	path := c.cacheIndex
	if path == "" {
		path = cfg.CacheIndex
	}
	if path == "" {
		defaultPath, err := defaultCacheIndexPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	idx := cacheindex.New(logger)
	if err := idx.Load(path); err != nil {
		return nil, errors.Wrap(err, "unable to load cache index")
	}
	return idx, nil
}

func (c *commonConfiguration) logger() *logging.Logger {
	level := logging.LevelInfo
	if c.verbose {
		level = logging.LevelDebug
	}
	return logging.NewRoot(level)
}

// parseHashArgument parses a single hash given on the command line,
// wrapping the error with the argument's name for a clearer message.
func parseHashArgument(name, text string) (hash.Hash, error) {
	h, err := hash.Parse(text)
	if err != nil {
		return hash.Hash{}, errors.Wrapf(err, "invalid %s", name)
	}
	return h, nil
}

package layout

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of Spread's optional top-level configuration
// file inside the data directory.
const ConfigFileName = "spread.yaml"

// Config is Spread's top-level configuration. Every field is optional; the
// zero value means "use the built-in defaults". Command-line flags take
// precedence over anything set here.
type Config struct {
	// DataDirectory relocates Spread's data directory (cache index,
	// content store, lock file) away from the default under the user's
	// home.
	DataDirectory string `yaml:"dataDirectory"`
	// CacheIndex overrides the cache index file location.
	CacheIndex string `yaml:"cacheIndex"`
	// Ask enables interactive conflict resolution by default.
	Ask bool `yaml:"ask"`
}

// LoadConfig reads the configuration file from the current data directory.
// A missing file is not an error; it yields the zero Config.
func LoadConfig() (Config, error) {
	return loadConfigFrom(filepath.Join(DataDirectoryPath, ConfigFileName))
}

func loadConfigFrom(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	} else if err != nil {
		return Config{}, errors.Wrap(err, "unable to read configuration file")
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unable to parse configuration file")
	}
	return cfg, nil
}

// Apply makes cfg's directory overrides effective for subsequent Path /
// CachedFilePath / AcquireLock calls.
func (cfg Config) Apply() {
	if cfg.DataDirectory != "" {
		DataDirectoryPath = cfg.DataDirectory
		LockFilePath = filepath.Join(DataDirectoryPath, LockFileName)
	}
}

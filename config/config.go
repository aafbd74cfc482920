// Package config loads the optional bagger.toml settings file.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds defaults the CLI applies when the corresponding flags are not
// given.
type Config struct {
	// DigestAlgorithms are the default algorithms for new bags.
	DigestAlgorithms []string `toml:"digest_algorithms"`

	// Workers bounds the digest worker pool.
	Workers int `toml:"workers"`

	// BagInfo tags are seeded into every new bag's bag-info.txt.
	BagInfo map[string]string `toml:"bag_info"`
}

// Load reads the config file at path. A missing file is not an error; the
// zero Config is returned.
func Load(path string) (Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	return c, nil
}

// Package config implements loading an optional on-disk defaults file for
// the CLI front end, in the same "read whole file, then decode" shape the
// teacher uses for its own project configuration files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LoadYAML reads path and strictly decodes it into value. A missing file is
// reported via the returned bool (false means "no file, use flag defaults
// as-is") rather than as an error, since --config is optional.
func LoadYAML(path string, value interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("unable to read config %q: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, value); err != nil {
		return false, fmt.Errorf("malformed config %q: %w", path, err)
	}
	return true, nil
}

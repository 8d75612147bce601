package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/lmgate/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. LMGATE_GATEWAY_UPSTREAM.
const EnvPrefix = "LMGATE"

// InitViper returns a viper instance resolving, from highest to lowest:
// bound flags (see BindRegisteredFlags), LMGATE_* environment variables,
// config.toml in the resolved .lmgate/ directory, built-in defaults.
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	if target != "" {
		path := filepath.Join(target, configFile)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func setDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("version", d.Version)
	// Every key needs a default, even an empty one, for AutomaticEnv to see it.
	for _, key := range ValidConfigKeys() {
		v.SetDefault(key, configKeys[key].get(d))
	}
}

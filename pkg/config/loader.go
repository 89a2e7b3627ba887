package config

import (
	"strings"

	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/spf13/viper"
)

// LoadAccessConfig loads an access configuration from a YAML, JSON or TOML
// file. Environment variables with the STRATUM_ prefix override file
// values, so STRATUM_CONNECTOR=mem beats a connector key in the file.
func LoadAccessConfig(path string) (*AccessConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STRATUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("connector", DefaultConnectorName())

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to read config file %s", path)
	}

	cfg := NewAccessConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to parse config file %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

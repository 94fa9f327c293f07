package config

import "github.com/shelltide/shelltide/internal/migrate"

// KeyDefaultSourceEnv is the only settable configuration key.
const KeyDefaultSourceEnv = "default.source_env"

// SetKey updates a configuration key on the loaded config.
func (c *Config) SetKey(key, value string) error {
	switch key {
	case KeyDefaultSourceEnv:
		if _, ok := c.Environments[value]; !ok {
			return migrate.Configf("environment %q not found", value)
		}
		c.DefaultSourceEnv = value
		return nil
	default:
		return migrate.Configf("unknown configuration key %q (available: %s)", key, KeyDefaultSourceEnv)
	}
}

// GetKey reads a configuration key; ok is false when the key is valid but
// unset.
func (c *Config) GetKey(key string) (value string, ok bool, err error) {
	switch key {
	case KeyDefaultSourceEnv:
		return c.DefaultSourceEnv, c.DefaultSourceEnv != "", nil
	default:
		return "", false, migrate.Configf("unknown configuration key %q (available: %s)", key, KeyDefaultSourceEnv)
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/shelltide/shelltide/internal/migrate"
)

// ConfigFileName is the file inside the config directory.
const ConfigFileName = "config.toml"

// Credentials holds platform authentication state.
type Credentials struct {
	URL            string `toml:"url"`
	ServiceAccount string `toml:"service_account"`
	ServiceKey     string `toml:"service_key,omitempty"`
	AccessToken    string `toml:"access_token"`
}

// Environment maps a local alias to a platform (project, instance) pair.
type Environment struct {
	Project  string `toml:"project"`
	Instance string `toml:"instance"`
}

// Config is the application configuration stored in ~/.shelltide/config.toml.
type Config struct {
	DefaultSourceEnv string                 `toml:"default_source_env,omitempty"`
	Credentials      *Credentials           `toml:"credentials,omitempty"`
	Environments     map[string]Environment `toml:"environments,omitempty"`
}

// GetCredentials returns the stored credentials or a config error telling
// the user to log in.
func (c *Config) GetCredentials() (*Credentials, error) {
	if c.Credentials == nil || c.Credentials.URL == "" {
		return nil, migrate.Configf("no credentials found: run `shelltide login` first")
	}
	return c.Credentials, nil
}

// Resolve maps a DatabaseRef to its platform coordinates.
func (c *Config) Resolve(ref migrate.DatabaseRef) (migrate.Coordinates, error) {
	env, ok := c.Environments[ref.Env]
	if !ok {
		return migrate.Coordinates{}, migrate.Configf("environment %q not found in configuration", ref.Env)
	}
	return migrate.Coordinates{
		Project:  env.Project,
		Instance: env.Instance,
		Database: ref.Database,
	}, nil
}

// SourceEnv returns the configured default source environment.
func (c *Config) SourceEnv() (string, Environment, error) {
	if c.DefaultSourceEnv == "" {
		return "", Environment{}, migrate.Configf("default.source_env not set: run `shelltide config set default.source_env <env-name>`")
	}
	env, ok := c.Environments[c.DefaultSourceEnv]
	if !ok {
		return "", Environment{}, migrate.Configf("default source environment %q not found: set a valid one with `shelltide config set default.source_env <env-name>`", c.DefaultSourceEnv)
	}
	return c.DefaultSourceEnv, env, nil
}

// EnvNames returns the configured environment aliases, sorted.
func (c *Config) EnvNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store loads and saves the configuration; commands take it as an interface
// so tests can point it at a temp directory.
type Store interface {
	Load() (*Config, error)
	Save(*Config) error
	Dir() string
}

// FileStore persists the config under a directory, ~/.shelltide by default.
type FileStore struct {
	BaseDir string
}

// DefaultStore returns a FileStore rooted at ~/.shelltide.
func DefaultStore() (*FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, migrate.Configf("failed to find home directory: %v", err)
	}
	return &FileStore{BaseDir: filepath.Join(home, ".shelltide")}, nil
}

func (s *FileStore) Dir() string { return s.BaseDir }

func (s *FileStore) path() string { return filepath.Join(s.BaseDir, ConfigFileName) }

// Load reads the config file, returning an empty config when it does not
// exist yet. Credential fields may be overridden through the environment or
// a .env file in the working directory (SHELLTIDE_URL, SHELLTIDE_TOKEN).
func (s *FileStore) Load() (*Config, error) {
	cfg := &Config{Environments: map[string]Environment{}}

	data, err := os.ReadFile(s.path())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file at %s: %w", s.path(), err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file at %s: %w", s.path(), err)
		}
		if cfg.Environments == nil {
			cfg.Environments = map[string]Environment{}
		}
	}

	cfg.applyOverrides(readDotenv())
	return cfg, nil
}

// Save writes the config atomically (tmp + rename).
func (s *FileStore) Save(cfg *Config) error {
	if err := os.MkdirAll(s.BaseDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory at %s: %w", s.BaseDir, err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// readDotenv merges a .env file in the working directory (if any) with the
// process environment; process environment wins.
func readDotenv() map[string]string {
	values := map[string]string{}
	if fileValues, err := godotenv.Read(".env"); err == nil {
		for k, v := range fileValues {
			values[k] = v
		}
	}
	for _, key := range []string{"SHELLTIDE_URL", "SHELLTIDE_TOKEN", "SHELLTIDE_SOURCE_ENV"} {
		if v := os.Getenv(key); v != "" {
			values[key] = v
		}
	}
	return values
}

func (c *Config) applyOverrides(values map[string]string) {
	if v := values["SHELLTIDE_URL"]; v != "" {
		if c.Credentials == nil {
			c.Credentials = &Credentials{}
		}
		c.Credentials.URL = v
	}
	if v := values["SHELLTIDE_TOKEN"]; v != "" {
		if c.Credentials == nil {
			c.Credentials = &Credentials{}
		}
		c.Credentials.AccessToken = v
	}
	if v := values["SHELLTIDE_SOURCE_ENV"]; v != "" {
		c.DefaultSourceEnv = v
	}
}

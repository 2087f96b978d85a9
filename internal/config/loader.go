package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vasilistotskas/recommendation-engine/internal/rerrors"
)

// Loader layers config.base.yaml -> config.{env}.yaml ->
// config.{env}.local.yaml through viper, grounded on the teacher's
// pkg/config/loader.go ConfigLoader.
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader returns a Loader rooted at configPath (a directory
// containing config.base.yaml and its environment overlays).
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return &Loader{configPath: configPath, viper: v}
}

// Load reads config.base.yaml, merges config.{environment}.yaml and
// config.{environment}.local.yaml if present, then unmarshals onto a
// copy of Default().
func (l *Loader) Load(environment string) (*Config, error) {
	if environment == "" {
		environment = os.Getenv("ENVIRONMENT")
	}
	if environment == "" {
		environment = "development"
	}

	base := filepath.Join(l.configPath, "config.base.yaml")
	if err := l.mergeFile(base); err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindConfigError, "failed to load base config")
	}

	envFile := filepath.Join(l.configPath, fmt.Sprintf("config.%s.yaml", environment))
	if _, err := os.Stat(envFile); err == nil {
		if err := l.mergeFile(envFile); err != nil {
			return nil, rerrors.Wrap(err, rerrors.KindConfigError, "failed to load environment config")
		}
	}

	localFile := filepath.Join(l.configPath, fmt.Sprintf("config.%s.local.yaml", environment))
	if _, err := os.Stat(localFile); err == nil {
		if err := l.mergeFile(localFile); err != nil {
			return nil, rerrors.Wrap(err, rerrors.KindConfigError, "failed to load local override config")
		}
	}

	cfg := Default()
	cfg.Environment = environment
	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindConfigError, "failed to unmarshal config")
	}
	return cfg, nil
}

// mergeFile reads a YAML file, expands ${VAR} environment references,
// and merges it into the accumulated viper state.
func (l *Loader) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := os.ExpandEnv(string(data))

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return err
	}
	return l.viper.MergeConfigMap(raw)
}

// Validate checks the minimum required fields for environment to run,
// grounded on the teacher's pkg/config/loader.go ValidateConfig.
func Validate(cfg *Config, environment string) error {
	var missing []string
	if cfg.Server.ListenAddress == "" {
		missing = append(missing, "server.listen_address")
	}
	if cfg.Database.Driver() == "" {
		missing = append(missing, "database.dsn or database.host+database")
	}

	switch environment {
	case "production", "staging":
		if cfg.Database.Host == "" {
			missing = append(missing, "database.host")
		}
		if cfg.Cache.RedisAddress == "" {
			missing = append(missing, "cache.redis_address")
		}
	}

	if len(missing) > 0 {
		return rerrors.Newf(rerrors.KindConfigError, "missing required configuration fields: %v", missing)
	}
	return nil
}

// Driver is a convenience predicate: non-empty if enough information
// is present to attempt a database connection.
func (d DatabaseConfig) Driver() string {
	if d.DSN != "" || (d.Host != "" && d.Database != "") {
		return "postgres"
	}
	return ""
}

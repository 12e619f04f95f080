package cli

import (
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/denismitr/tern/v4/internal/source"
	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const DefaultConfigFile = "./tern.yaml"

var ErrInvalidVersionFormat = errors.New("version format must be one of timestamp, datetime, numeric or any")

const configFileStub = `version: "4"
migrations:
  # %%NAME%% reads the value from the NAME environment variable
  database_url: "%%TERN_DATABASE_URL%%"
  local_folder: "./migrations"
  version_format: "timestamp"
  table: "migration_versions"
metrics:
  # Prometheus text format, for the node exporter textfile collector
  file: ""
`

type (
	// Config is read from the yaml file first, environment variables
	// override the file and flags override both
	Config struct {
		DatabaseURL      string `env:"TERN_DATABASE_URL"`
		MigrationsFolder string `env:"TERN_MIGRATIONS_FOLDER"`
		VersionFormat    string `env:"TERN_VERSION_FORMAT"`
		MigrationsTable  string `env:"TERN_MIGRATIONS_TABLE"`
		MetricsFile      string `env:"TERN_METRICS_FILE"`
	}

	migrations struct {
		LocalFolder   string `yaml:"local_folder"`
		DatabaseURL   string `yaml:"database_url"`
		VersionFormat string `yaml:"version_format"`
		Table         string `yaml:"table"`
	}

	metricsSection struct {
		File string `yaml:"file"`
	}

	configFile struct {
		Version    string         `yaml:"version"`
		Migrations migrations     `yaml:"migrations"`
		Metrics    metricsSection `yaml:"metrics"`
	}
)

var allowedVersionFormats = []migration.VersionFormat{
	migration.TimestampFormat,
	migration.DatetimeFormat,
	migration.NumericFormat,
	migration.AnyFormat,
}

// LoadConfig reads the configuration file when it exists and applies the
// environment on top of it. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" && FileExists(path) {
		fromFile, err := createConfigFromYaml(path)
		if err != nil {
			return cfg, err
		}
		cfg = fromFile
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "could not parse tern environment variables")
	}

	if cfg.MigrationsFolder == "" {
		cfg.MigrationsFolder = source.DefaultMigrationsFolder
	}

	if cfg.VersionFormat == "" {
		cfg.VersionFormat = string(migration.TimestampFormat)
	}

	if _, err := cfg.Format(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Format of the migration versions
func (cfg Config) Format() (migration.VersionFormat, error) {
	for _, format := range allowedVersionFormats {
		if string(format) == strings.ToLower(cfg.VersionFormat) {
			return format, nil
		}
	}

	return "", errors.Wrapf(ErrInvalidVersionFormat, "got [%s]", cfg.VersionFormat)
}

func createConfigFromYaml(path string) (Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read tern configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return cfg, errors.Wrap(err, "could not parse tern configuration file")
	}

	cfg.DatabaseURL = fromEnv(cfgFile.Migrations.DatabaseURL)
	cfg.MigrationsFolder = fromEnv(cfgFile.Migrations.LocalFolder)
	cfg.VersionFormat = fromEnv(cfgFile.Migrations.VersionFormat)
	cfg.MigrationsTable = fromEnv(cfgFile.Migrations.Table)
	cfg.MetricsFile = fromEnv(cfgFile.Metrics.File)

	return cfg, nil
}

// fromEnv resolves a %%NAME%% value to the NAME environment variable
func fromEnv(value string) string {
	if len(value) > 4 && strings.HasPrefix(value, "%%") && strings.HasSuffix(value, "%%") {
		return os.Getenv(strings.Trim(value, "%"))
	}

	return value
}

// InitCfg writes a configuration file stub, an existing file is kept
func InitCfg(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrap(err, "could not create config file")
	}

	if _, err := f.WriteString(configFileStub); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "could not write config file")
	}

	return f.Close()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

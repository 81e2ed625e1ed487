package config

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/dust"
	"github.com/gaze-network/dust-indexer/internal/postgres"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/gaze-network/dust-indexer/pkg/middleware/requestlogger"
	"github.com/gaze-network/dust-indexer/pkg/reportingclient"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DriverFile     = "file"
	DriverCSV      = "csv"
	DriverPostgres = "postgres"
)

var (
	configOnce sync.Once
	config     = &Config{}
)

type Config struct {
	Logger     logger.Config          `mapstructure:"logger"`
	Network    common.Network         `mapstructure:"network"`
	RPC        RPCConfig              `mapstructure:"rpc"`
	Dust       DustConfig             `mapstructure:"dust"`
	Scanner    ScannerConfig          `mapstructure:"scanner"`
	Checkpoint CheckpointConfig       `mapstructure:"checkpoint"`
	Sink       SinkConfig             `mapstructure:"sink"`
	Postgres   postgres.Config        `mapstructure:"postgres"`
	HTTPServer HTTPServerConfig       `mapstructure:"http_server"`
	Reporting  reportingclient.Config `mapstructure:"reporting"`
}

type RPCConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Debug   bool          `mapstructure:"debug"`
}

// DustConfig holds the dust band bounds in ether, as decimal strings.
type DustConfig struct {
	Min string `mapstructure:"min"`
	Max string `mapstructure:"max"`
}

type ScannerConfig struct {
	Workers      int           `mapstructure:"workers"`
	Follow       bool          `mapstructure:"follow"`
	LogEvery     int           `mapstructure:"log_every"`
	DefaultLag   uint64        `mapstructure:"default_lag"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Start        *uint64       `mapstructure:"start"`
	End          *uint64       `mapstructure:"end"`
}

type CheckpointConfig struct {
	Driver      string `mapstructure:"driver"`
	File        string `mapstructure:"file"`
	PostgresKey string `mapstructure:"postgres_key"`
}

type SinkConfig struct {
	Driver   string             `mapstructure:"driver"`
	CSV      CSVSinkConfig      `mapstructure:"csv"`
	Postgres PostgresSinkConfig `mapstructure:"postgres"`
}

type CSVSinkConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresSinkConfig struct {
	Dedup bool `mapstructure:"dedup"`
}

type HTTPServerConfig struct {
	Enabled bool                 `mapstructure:"enabled"`
	Port    int                  `mapstructure:"port"`
	Logger  requestlogger.Config `mapstructure:"logger"`
}

var defaults = map[string]any{
	"logger.output":           "TEXT",
	"rpc.timeout":             90 * time.Second,
	"dust.min":                "0.00001",
	"dust.max":                "0.01",
	"scanner.workers":         8,
	"scanner.follow":          false,
	"scanner.log_every":       10,
	"scanner.default_lag":     1000,
	"scanner.poll_interval":   5 * time.Second,
	"checkpoint.driver":       DriverFile,
	"checkpoint.file":         "state/last_block.txt",
	"checkpoint.postgres_key": "last_block",
	"sink.driver":             DriverCSV,
	"sink.csv.path":           "results/dust_records.csv",
	"sink.postgres.dedup":     false,
	"http_server.enabled":     false,
	"http_server.port":        8080,
	"reporting.enabled":       false,
}

// envAliases are environment variable names accepted in addition to the
// automatic `section_key` names.
var envAliases = map[string][]string{
	"rpc.url":           {"RPC_URL", "WEB3_PROVIDER", "ETH_RPC_URL"},
	"dust.min":          {"DUST_MIN"},
	"dust.max":          {"DUST_MAX"},
	"scanner.workers":   {"SCANNER_WORKERS", "WORKERS"},
	"scanner.follow":    {"SCANNER_FOLLOW", "FOLLOW"},
	"scanner.log_every": {"SCANNER_LOG_EVERY", "LOG_EVERY"},
	"scanner.start":     {"SCANNER_START"},
	"scanner.end":       {"SCANNER_END"},
	"network":           {"NETWORK"},
}

// Parse parse the configuration from config file, .env file and environment variables
func Parse(configFile ...string) Config {
	ctx := logger.WithContext(context.Background(), slog.String("package", "config"))

	if err := godotenv.Load(); err != nil {
		logger.DebugContext(ctx, ".env file not loaded", slogx.Error(err))
	}

	if len(configFile) > 0 && configFile[0] != "" {
		viper.SetConfigFile(configFile[0])
	} else {
		viper.AddConfigPath("./")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	for key, envs := range envAliases {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			logger.PanicContext(ctx, "Something went wrong, can't bind env", slogx.String("key", key), slogx.Error(err))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var errNotfound viper.ConfigFileNotFoundError
		if errors.As(err, &errNotfound) {
			logger.WarnContext(ctx, "Config file not found, use default value", slogx.Error(err))
		} else {
			logger.PanicContext(ctx, "Invalid config file", slogx.Error(err))
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		logger.PanicContext(ctx, "Something went wrong, failed to unmarshal config", slogx.Error(err))
	}

	return *config
}

// Load returns the loaded configuration
func Load() Config {
	configOnce.Do(func() {
		if err := viper.Unmarshal(&config); err != nil {
			logger.Panic("Something went wrong, failed to unmarshal config", slogx.Error(err))
		}
	})
	return *config
}

// BindPFlag binds a specific key to a pflag (as used by cobra).
// Example (where serverCmd is a Cobra instance):
//
//	serverCmd.Flags().Int("port", 1138, "Port to run Application server on")
//	Viper.BindPFlag("port", serverCmd.Flags().Lookup("port"))
func BindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		logger.Panic("Something went wrong, failed to bind flag for config", slog.String("package", "config"), slogx.Error(err))
	}
}

// SetDefault sets the default value for this key.
// Default only used when no value is provided by the user via flag, config or ENV.
func SetDefault(key string, value any) {
	viper.SetDefault(key, value)
}

// Filter builds the dust filter from the configured band.
func (c DustConfig) Filter() (*dust.Filter, error) {
	min, err := decimal.NewFromString(c.Min)
	if err != nil {
		return nil, errors.Wrapf(errs.InvalidArgument, "invalid dust.min %q", c.Min)
	}
	max, err := decimal.NewFromString(c.Max)
	if err != nil {
		return nil, errors.Wrapf(errs.InvalidArgument, "invalid dust.max %q", c.Max)
	}
	return dust.NewFilter(min, max)
}

// Validate checks the configuration for values the indexer can't run with.
func (c Config) Validate() error {
	if c.RPC.URL == "" {
		return errors.Wrap(errs.InvalidArgument, "rpc.url is required (set RPC_URL, WEB3_PROVIDER or ETH_RPC_URL)")
	}
	if !c.Network.IsSupported() {
		return errors.Wrapf(errs.Unsupported, "unsupported network %q", c.Network)
	}
	if _, err := c.Dust.Filter(); err != nil {
		return errors.WithStack(err)
	}
	if c.Scanner.Workers < 1 {
		return errors.Wrapf(errs.InvalidArgument, "scanner.workers must be at least 1, got %d", c.Scanner.Workers)
	}
	if c.Scanner.LogEvery < 1 {
		return errors.Wrapf(errs.InvalidArgument, "scanner.log_every must be at least 1, got %d", c.Scanner.LogEvery)
	}
	if c.Scanner.PollInterval <= 0 {
		return errors.Wrapf(errs.InvalidArgument, "scanner.poll_interval must be positive, got %s", c.Scanner.PollInterval)
	}
	if c.Scanner.Start != nil && c.Scanner.End != nil && *c.Scanner.Start > *c.Scanner.End {
		return errors.Wrapf(errs.InvalidArgument, "scanner.start %d is greater than scanner.end %d", *c.Scanner.Start, *c.Scanner.End)
	}
	if c.Scanner.Follow && c.Scanner.End != nil {
		return errors.Wrap(errs.ConflictSetting, "scanner.end can't be used with scanner.follow")
	}

	switch c.Checkpoint.Driver {
	case DriverFile:
		if c.Checkpoint.File == "" {
			return errors.Wrap(errs.InvalidArgument, "checkpoint.file is required for the file checkpoint driver")
		}
	case DriverPostgres:
		if c.Checkpoint.PostgresKey == "" {
			return errors.Wrap(errs.InvalidArgument, "checkpoint.postgres_key is required for the postgres checkpoint driver")
		}
	default:
		return errors.Wrapf(errs.Unsupported, "unsupported checkpoint driver %q", c.Checkpoint.Driver)
	}

	switch c.Sink.Driver {
	case DriverCSV:
		if c.Sink.CSV.Path == "" {
			return errors.Wrap(errs.InvalidArgument, "sink.csv.path is required for the csv sink driver")
		}
	case DriverPostgres:
	default:
		return errors.Wrapf(errs.Unsupported, "unsupported sink driver %q", c.Sink.Driver)
	}

	if c.HTTPServer.Enabled && (c.HTTPServer.Port <= 0 || c.HTTPServer.Port > 65535) {
		return errors.Wrapf(errs.InvalidArgument, "invalid http_server.port %d", c.HTTPServer.Port)
	}
	return nil
}

// UsesPostgres reports whether any component needs a postgres connection.
func (c Config) UsesPostgres() bool {
	return c.Checkpoint.Driver == DriverPostgres || c.Sink.Driver == DriverPostgres
}

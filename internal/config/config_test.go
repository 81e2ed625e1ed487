package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		RPC:  RPCConfig{URL: "http://localhost:8545", Timeout: time.Second},
		Dust: DustConfig{Min: "0.00001", Max: "0.01"},
		Scanner: ScannerConfig{
			Workers:      8,
			LogEvery:     10,
			DefaultLag:   1000,
			PollInterval: 5 * time.Second,
		},
		Checkpoint: CheckpointConfig{Driver: DriverFile, File: "state/last_block.txt"},
		Sink:       SinkConfig{Driver: DriverCSV, CSV: CSVSinkConfig{Path: "results/dust_records.csv"}},
	}
}

func ptr(v uint64) *uint64 { return &v }

func TestParse(t *testing.T) {
	t.Run("defaults and legacy env", func(t *testing.T) {
		viper.Reset()
		config = &Config{}
		t.Setenv("ETH_RPC_URL", "http://node:8545")
		t.Setenv("WORKERS", "16")
		t.Setenv("FOLLOW", "1")
		t.Setenv("DUST_MAX", "0.005")

		conf := Parse(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Equal(t, "http://node:8545", conf.RPC.URL)
		assert.Equal(t, 16, conf.Scanner.Workers)
		assert.True(t, conf.Scanner.Follow)
		assert.Equal(t, "0.00001", conf.Dust.Min)
		assert.Equal(t, "0.005", conf.Dust.Max)
		assert.Equal(t, 10, conf.Scanner.LogEvery)
		assert.EqualValues(t, 1000, conf.Scanner.DefaultLag)
		assert.Equal(t, 5*time.Second, conf.Scanner.PollInterval)
		assert.Equal(t, DriverFile, conf.Checkpoint.Driver)
		assert.Equal(t, "state/last_block.txt", conf.Checkpoint.File)
		assert.Equal(t, DriverCSV, conf.Sink.Driver)
		assert.Nil(t, conf.Scanner.Start)
		assert.Nil(t, conf.Scanner.End)
		assert.NoError(t, conf.Validate())
	})
	t.Run("config file", func(t *testing.T) {
		viper.Reset()
		config = &Config{}
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
network: sepolia
rpc:
  url: http://file:8545
scanner:
  workers: 4
  start: 100
  end: 200
sink:
  driver: postgres
  postgres:
    dedup: true
`), 0o600))

		conf := Parse(path)
		assert.Equal(t, "http://file:8545", conf.RPC.URL)
		assert.Equal(t, 4, conf.Scanner.Workers)
		require.NotNil(t, conf.Scanner.Start)
		require.NotNil(t, conf.Scanner.End)
		assert.EqualValues(t, 100, *conf.Scanner.Start)
		assert.EqualValues(t, 200, *conf.Scanner.End)
		assert.Equal(t, DriverPostgres, conf.Sink.Driver)
		assert.True(t, conf.Sink.Postgres.Dedup)
		assert.True(t, conf.UsesPostgres())
		assert.NoError(t, conf.Validate())
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{name: "valid"},
		{name: "missing rpc url", modify: func(c *Config) { c.RPC.URL = "" }, err: errs.InvalidArgument},
		{name: "unsupported network", modify: func(c *Config) { c.Network = "goerli" }, err: errs.Unsupported},
		{name: "invalid dust min", modify: func(c *Config) { c.Dust.Min = "abc" }, err: errs.InvalidArgument},
		{name: "inverted dust band", modify: func(c *Config) { c.Dust.Min, c.Dust.Max = "0.1", "0.01" }, err: errs.InvalidArgument},
		{name: "zero workers", modify: func(c *Config) { c.Scanner.Workers = 0 }, err: errs.InvalidArgument},
		{name: "zero log every", modify: func(c *Config) { c.Scanner.LogEvery = 0 }, err: errs.InvalidArgument},
		{name: "zero poll interval", modify: func(c *Config) { c.Scanner.PollInterval = 0 }, err: errs.InvalidArgument},
		{name: "start after end", modify: func(c *Config) { c.Scanner.Start, c.Scanner.End = ptr(10), ptr(5) }, err: errs.InvalidArgument},
		{name: "end with follow", modify: func(c *Config) { c.Scanner.Follow, c.Scanner.End = true, ptr(5) }, err: errs.ConflictSetting},
		{name: "unknown checkpoint driver", modify: func(c *Config) { c.Checkpoint.Driver = "redis" }, err: errs.Unsupported},
		{name: "missing checkpoint file", modify: func(c *Config) { c.Checkpoint.File = "" }, err: errs.InvalidArgument},
		{name: "postgres checkpoint without key", modify: func(c *Config) { c.Checkpoint = CheckpointConfig{Driver: DriverPostgres} }, err: errs.InvalidArgument},
		{name: "unknown sink driver", modify: func(c *Config) { c.Sink.Driver = "kafka" }, err: errs.Unsupported},
		{name: "missing csv path", modify: func(c *Config) { c.Sink.CSV.Path = "" }, err: errs.InvalidArgument},
		{name: "invalid http port", modify: func(c *Config) { c.HTTPServer = HTTPServerConfig{Enabled: true, Port: 70000} }, err: errs.InvalidArgument},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := validConfig()
			if tc.modify != nil {
				tc.modify(&conf)
			}
			err := conf.Validate()
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDustFilter(t *testing.T) {
	f, err := DustConfig{Min: "0.001", Max: "0.002"}.Filter()
	require.NoError(t, err)
	assert.Equal(t, "0.001", f.Min().String())
	assert.Equal(t, "0.002", f.Max().String())
}

package postgres

import (
	"context"
	"net"
	"net/url"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	pgxslog "github.com/mcosta74/pgx-slog"
)

const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = "5432"
	DefaultDBName   = "postgres"
	DefaultSSLMode  = "prefer"
	DefaultMaxConns = 16
	DefaultMinConns = 0
)

// Config holds the connection settings. URL takes precedence over the individual fields.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	URL      string `mapstructure:"url"`

	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`

	// Debug traces every query.
	Debug bool `mapstructure:"debug"`
}

// NewPool opens a connection pool and pings the database once.
func NewPool(ctx context.Context, conf Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(conf.ConnString())
	if err != nil {
		return nil, errors.Wrap(err, "can't parse postgres connection string")
	}
	poolConfig.MaxConns = utils.Default(conf.MaxConns, DefaultMaxConns)
	poolConfig.MinConns = utils.Default(conf.MinConns, DefaultMinConns)
	poolConfig.ConnConfig.Tracer = conf.QueryTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "can't create postgres connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "can't reach postgres")
	}
	return pool, nil
}

// ConnString returns URL as is, or a postgres:// URL built from the individual fields.
// It is accepted by both pgx and golang-migrate.
func (conf Config) ConnString() string {
	if conf.URL != "" {
		return conf.URL
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(utils.Default(conf.Host, DefaultHost), utils.Default(conf.Port, DefaultPort)),
		Path:     "/" + utils.Default(conf.DBName, DefaultDBName),
		RawQuery: url.Values{"sslmode": {utils.Default(conf.SSLMode, DefaultSSLMode)}}.Encode(),
	}
	switch {
	case conf.User != "" && conf.Password != "":
		u.User = url.UserPassword(conf.User, conf.Password)
	case conf.User != "":
		u.User = url.User(conf.User)
	}
	return u.String()
}

// QueryTracer logs failed queries, or every query in debug mode.
func (conf Config) QueryTracer() pgx.QueryTracer {
	level := tracelog.LogLevelError
	if conf.Debug {
		level = tracelog.LogLevelTrace
	}
	return &tracelog.TraceLog{
		Logger:   pgxslog.NewLogger(logger.With("package", "postgres")),
		LogLevel: level,
	}
}

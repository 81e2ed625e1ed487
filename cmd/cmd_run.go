package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/checkpoint"
	"github.com/gaze-network/dust-indexer/core/constants"
	"github.com/gaze-network/dust-indexer/core/datasources"
	"github.com/gaze-network/dust-indexer/core/indexer"
	"github.com/gaze-network/dust-indexer/core/scanner"
	"github.com/gaze-network/dust-indexer/core/sink"
	"github.com/gaze-network/dust-indexer/internal/api"
	"github.com/gaze-network/dust-indexer/internal/api/httphandler"
	"github.com/gaze-network/dust-indexer/internal/config"
	"github.com/gaze-network/dust-indexer/internal/postgres"
	"github.com/gaze-network/dust-indexer/pkg/automaxprocs"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/gaze-network/dust-indexer/pkg/metrics"
	"github.com/gaze-network/dust-indexer/pkg/reportingclient"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func NewRunCommand() *cobra.Command {
	// Create command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start dust-indexer scanner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := automaxprocs.Init(); err != nil {
				logger.Error("Failed to set GOMAXPROCS", slogx.Error(err))
			}
			return runHandler(cmd, args)
		},
	}

	// Add local flags
	flags := runCmd.Flags()
	flags.Bool("follow", false, "Keep following the chain head after the first range")
	flags.Int("workers", 0, "Number of concurrent block fetches. The batch size is at least 8")
	flags.Uint64("start", 0, "Scan from this position instead of the checkpoint")
	flags.Uint64("end", 0, "Stop the bounded scan at this position instead of the head")

	// Bind flags to configuration
	config.BindPFlag("scanner.follow", flags.Lookup("follow"))
	config.BindPFlag("scanner.workers", flags.Lookup("workers"))

	return runCmd
}

const (
	shutdownTimeout = 60 * time.Second
)

func runHandler(cmd *cobra.Command, _ []string) error {
	conf := config.Load()

	// Explicit range overrides, only when set on the command line
	flags := cmd.Flags()
	if flags.Changed("start") {
		start, _ := flags.GetUint64("start")
		conf.Scanner.Start = &start
	}
	if flags.Changed("end") {
		end, _ := flags.GetUint64("end")
		conf.Scanner.End = &end
	}

	// Validate inputs and configurations
	if err := conf.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	// Initialize application process context
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, slogx.Stringer("network", conf.Network))

	injector := do.New()
	do.ProvideValue(injector, conf)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	do.ProvideValue(injector, registry)
	do.Provide(injector, func(i do.Injector) (*metrics.Metrics, error) {
		conf := do.MustInvoke[config.Config](i)
		m, err := metrics.NewWithLabels(do.MustInvoke[*prometheus.Registry](i), metrics.Labels{Network: conf.Network.String()})
		return m, errors.WithStack(err)
	})

	// Initialize EVM node datasource
	do.Provide(injector, func(i do.Injector) (*datasources.EVMNodeDatasource, error) {
		conf := do.MustInvoke[config.Config](i)

		datasource, err := datasources.NewEVMNodeDatasource(datasources.EVMNodeConfig{
			URL:     conf.RPC.URL,
			Timeout: conf.RPC.Timeout,
			Debug:   conf.RPC.Debug,
		}, do.MustInvoke[*metrics.Metrics](i))
		if err != nil {
			return nil, errors.Wrap(err, "invalid rpc configuration")
		}

		// Check EVM node connection and network
		start := time.Now()
		logger.InfoContext(ctx, "Connecting to EVM node...")
		chainID, err := datasource.ChainID(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "can't connect to EVM node")
		}
		logger.InfoContext(ctx, "Connected to EVM node", slogx.Uint64("chain_id", chainID), slog.Duration("latency", time.Since(start)))

		if expected, ok := conf.Network.ChainID(); ok && expected != chainID {
			return nil, errors.Wrapf(errs.ConflictSetting, "network %q expects chain id %d, but node reports %d", conf.Network, expected, chainID)
		}
		return datasource, nil
	})

	// Initialize postgres connection pool, only used by the postgres drivers
	var pool *pgxpool.Pool
	defer func() {
		if pool != nil {
			pool.Close()
		}
	}()
	do.Provide(injector, func(i do.Injector) (*pgxpool.Pool, error) {
		conf := do.MustInvoke[config.Config](i)
		p, err := postgres.NewPool(ctx, conf.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, "can't create postgres connection pool")
		}
		pool = p
		return p, nil
	})

	// Initialize checkpoint store
	do.Provide(injector, func(i do.Injector) (checkpoint.Store, error) {
		conf := do.MustInvoke[config.Config](i)
		switch conf.Checkpoint.Driver {
		case config.DriverPostgres:
			return checkpoint.NewPostgresStore(do.MustInvoke[*pgxpool.Pool](i), conf.Checkpoint.PostgresKey), nil
		default:
			return checkpoint.NewFileStore(conf.Checkpoint.File), nil
		}
	})

	// Initialize dust sink
	var out sink.Sink
	do.Provide(injector, func(i do.Injector) (sink.Sink, error) {
		conf := do.MustInvoke[config.Config](i)
		switch conf.Sink.Driver {
		case config.DriverPostgres:
			out = sink.NewPostgresSink(do.MustInvoke[*pgxpool.Pool](i), conf.Sink.Postgres.Dedup)
		default:
			csvSink, err := sink.NewCSVSink(conf.Sink.CSV.Path)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			out = csvSink
		}
		return out, nil
	})

	// Initialize reporting client
	do.Provide(injector, func(i do.Injector) (*reportingclient.ReportingClient, error) {
		conf := do.MustInvoke[config.Config](i)
		if !conf.Reporting.Enabled {
			return nil, nil
		}

		reportingClient, err := reportingclient.New(conf.Reporting, constants.Version, conf.Network)
		if err != nil {
			if errors.Is(err, errs.InvalidArgument) {
				return nil, errors.Wrap(err, "invalid reporting configuration")
			}
			return nil, errors.Wrap(err, "can't create reporting client")
		}
		return reportingClient, nil
	})

	// Initialize scanner
	do.Provide(injector, func(i do.Injector) (*scanner.Scanner, error) {
		conf := do.MustInvoke[config.Config](i)
		filter, err := conf.Dust.Filter()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		m := do.MustInvoke[*metrics.Metrics](i)

		opts := []scanner.Option{
			scanner.WithWorkers(conf.Scanner.Workers),
			scanner.WithLogEvery(conf.Scanner.LogEvery),
			scanner.WithFetchTimeout(conf.RPC.Timeout),
			scanner.WithMetrics(m),
		}
		if reportingClient := do.MustInvoke[*reportingclient.ReportingClient](i); reportingClient != nil {
			opts = append(opts, scanner.WithBatchReporter(reportingClient))
		}

		return scanner.New(
			do.MustInvoke[*datasources.EVMNodeDatasource](i),
			filter,
			do.MustInvoke[sink.Sink](i),
			do.MustInvoke[checkpoint.Store](i),
			opts...,
		), nil
	})

	// Initialize indexer
	do.Provide(injector, func(i do.Injector) (*indexer.Indexer, error) {
		conf := do.MustInvoke[config.Config](i)
		ix := indexer.New(
			do.MustInvoke[*scanner.Scanner](i),
			do.MustInvoke[*datasources.EVMNodeDatasource](i),
			do.MustInvoke[checkpoint.Store](i),
			indexer.Config{
				Follow:       conf.Scanner.Follow,
				DefaultLag:   conf.Scanner.DefaultLag,
				PollInterval: conf.Scanner.PollInterval,
				Start:        conf.Scanner.Start,
				End:          conf.Scanner.End,
			},
		)
		ix.Metrics = do.MustInvoke[*metrics.Metrics](i)
		return ix, nil
	})

	// Initialize HTTP server
	do.Provide(injector, func(i do.Injector) (*fiber.App, error) {
		conf := do.MustInvoke[config.Config](i)
		handler := httphandler.New(
			conf.Network,
			do.MustInvoke[*indexer.Indexer](i),
			do.MustInvoke[*scanner.Scanner](i),
			do.MustInvoke[*prometheus.Registry](i),
		)
		return api.NewApp(handler, conf.HTTPServer.Logger), nil
	})

	ix, err := do.Invoke[*indexer.Indexer](injector)
	if err != nil {
		return errors.Wrap(err, "can't initialize indexer")
	}

	// Report node to the reporting service
	if reportingClient := do.MustInvoke[*reportingclient.ReportingClient](injector); reportingClient != nil {
		chainID, err := do.MustInvoke[*datasources.EVMNodeDatasource](injector).ChainID(ctx)
		if err == nil {
			err = reportingClient.SubmitNodeReport(ctx, chainID)
		}
		if err != nil {
			logger.WarnContext(ctx, "Failed to submit node report", slogx.Error(err))
		}
	}

	// Initialize worker context to separate worker's lifecycle from main process
	ctxWorker, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	// Run Indexer
	runErr := make(chan error, 1)
	go func() {
		// stop main process if indexer stopped
		defer stop()

		logger.InfoContext(ctxWorker, "Starting Dust Indexer", slogx.String("version", constants.Version))
		err := ix.Run(ctxWorker)
		if err != nil {
			logger.ErrorContext(ctxWorker, "Something went wrong, error during running indexer", slogx.Error(err))
		}
		runErr <- err
	}()

	// Run API server
	if conf.HTTPServer.Enabled {
		httpServer := do.MustInvoke[*fiber.App](injector)
		go func() {
			// stop main process if API stopped
			defer stop()

			logger.InfoContext(ctx, "Started HTTP server", slog.Int("port", conf.HTTPServer.Port))
			if err := httpServer.Listen(fmt.Sprintf(":%d", conf.HTTPServer.Port)); err != nil {
				logger.ErrorContext(ctx, "Something went wrong, error during running HTTP server", slogx.Error(err))
			}
		}()
	}

	// Wait for interrupt signal or indexer completion
	<-ctx.Done()

	// Force shutdown if timeout exceeded or got signal again
	go func() {
		defer os.Exit(1)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			logger.FatalContext(ctx, "Received exit signal again. Force shutdown...")
		case <-time.After(shutdownTimeout + 15*time.Second):
			logger.FatalContext(ctx, "Shutdown timeout exceeded. Force shutdown...")
		}
	}()

	// Stop the indexer first, the in-flight batch completes before it returns
	if err := ix.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.ErrorContext(ctx, "Failed while gracefully shutting down indexer", slogx.Error(err))
	}
	err = <-runErr

	// Flush and close the sink after the last batch, the pool is closed on return
	if out != nil {
		if err := out.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close sink", slogx.String("sink", out.Name()), slogx.Error(err))
		}
	}
	if err := injector.Shutdown(); err != nil {
		logger.ErrorContext(ctx, "Failed while gracefully shutting down", slogx.Error(err))
	}

	logger.InfoContext(ctx, "Dust Indexer stopped")
	return errors.WithStack(err)
}

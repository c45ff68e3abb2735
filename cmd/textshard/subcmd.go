package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/gitlab-org/textshard/internal/config"
	"gitlab.com/gitlab-org/textshard/internal/coordinator"
	"gitlab.com/gitlab-org/textshard/internal/index"
	"gitlab.com/gitlab-org/textshard/internal/metrics"
	"gitlab.com/gitlab-org/textshard/internal/replication"
	"gitlab.com/gitlab-org/textshard/internal/sentry"
	"gitlab.com/gitlab-org/textshard/internal/storage"
	"gitlab.com/gitlab-org/textshard/internal/version"
)

type subcmd interface {
	FlagSet() *flag.FlagSet
	Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error
}

const openDBTimeout = 30 * time.Second

var subcommands = map[string]subcmd{
	buildCmdName:             newBuildSubcommand(os.Stdin, os.Stdout),
	addShardCmdName:          newAddShardSubcommand(os.Stdout),
	removeShardCmdName:       newRemoveShardSubcommand(os.Stdout),
	addReplicationCmdName:    newAddReplicationSubcommand(os.Stdout),
	removeReplicationCmdName: newRemoveReplicationSubcommand(os.Stdout),
	syncCmdName:              newSyncSubcommand(os.Stdout),
	getShardCmdName:          newGetShardSubcommand(os.Stdout),
	listShardsCmdName:        newListShardsSubcommand(os.Stdout),
	statusCmdName:            newStatusSubcommand(os.Stdout),
	catCmdName:               newCatSubcommand(os.Stdout),
}

type unexpectedPositionalArgsError struct{ Command string }

func (err unexpectedPositionalArgsError) Error() string {
	return fmt.Sprintf("%s doesn't accept positional arguments", err.Command)
}

// subCommand returns an exit code, to be fed into os.Exit.
func subCommand(conf config.Config, arg0 string, argRest []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	go func() {
		select {
		case <-interrupt:
			cancel()
		case <-ctx.Done():
		}
	}()

	cmd, ok := subcommands[arg0]
	if !ok {
		printfErr("%s: unknown subcommand: %q\n", progname, arg0)
		return 1
	}

	reporter := sentry.ConfigureSentry(logger, version.GetVersion(), conf.Sentry)

	if err := runSubcommand(ctx, conf, prometheus.NewRegistry(), cmd, argRest); err != nil {
		reporter.Report(arg0, err)
		printfErr("%s: %s\n", arg0, err)

		if errors.Is(err, context.Canceled) {
			return 130 // indicates program was interrupted
		}
		return 1
	}

	return 0
}

// runSubcommand parses args, runs cmd against the data directory configured in conf and exports
// the collected metrics if a textfile is configured.
func runSubcommand(ctx context.Context, conf config.Config, registry *prometheus.Registry, cmd subcmd, args []string) (returnedErr error) {
	flags := cmd.FlagSet()
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() > 0 {
		return unexpectedPositionalArgsError{Command: flags.Name()}
	}

	m := metrics.NewOperationMetrics(conf.Prometheus.LatencyBuckets)
	if err := m.Register(registry); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	c, clean, err := openCoordinator(ctx, conf, m)
	if err != nil {
		return err
	}
	defer clean()

	if conf.Prometheus.Textfile != "" {
		defer func() {
			if err := metrics.WriteTextfile(conf.Prometheus.Textfile, registry); err != nil && returnedErr == nil {
				returnedErr = fmt.Errorf("writing metrics: %w", err)
			}
		}()
	}

	return cmd.Exec(ctx, flags, c)
}

func openCoordinator(ctx context.Context, conf config.Config, m *metrics.OperationMetrics) (*coordinator.Coordinator, func(), error) {
	store, clean, err := openStore(ctx, conf)
	if err != nil {
		return nil, nil, err
	}

	disk, err := storage.NewDisk(conf.DataDir, conf.CacheSize)
	if err != nil {
		clean()
		return nil, nil, fmt.Errorf("opening data directory: %w", err)
	}

	replicas := replication.NewManager(disk,
		replication.WithLogger(logger),
		replication.WithConcurrency(conf.Concurrency),
	)

	c := coordinator.New(store, disk, replicas,
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
		coordinator.WithConcurrency(conf.Concurrency),
	)

	return c, clean, nil
}

func openStore(ctx context.Context, conf config.Config) (index.Store, func(), error) {
	switch conf.Index.Backend {
	case config.IndexBackendMemory:
		return index.NewMemoryStore(), func() {}, nil
	case config.IndexBackendPostgres:
		openCtx, cancel := context.WithTimeout(ctx, openDBTimeout)
		defer cancel()

		db, err := index.OpenDB(openCtx, conf.Index.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}

		clean := func() {
			if err := db.Close(); err != nil {
				printfErr("sql close: %v\n", err)
			}
		}

		if n, err := index.Migrate(db); err != nil {
			clean()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		} else if n > 0 {
			logger.WithField("migrations", n).Info("applied database migrations")
		}

		return index.NewPostgresStore(db), clean, nil
	default:
		return index.NewJSONStore(conf.IndexPath()), func() {}, nil
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Irkaa10/ensdir/config"
	"github.com/Irkaa10/ensdir/directory"
	"github.com/Irkaa10/ensdir/models"
	"github.com/Irkaa10/ensdir/server"
	"github.com/Irkaa10/ensdir/snapshot"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args, os.Stdout); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	app := cli.App{
		Name:   "ensdir",
		Usage:  "static ENS name to address lookup service",
		Writer: out,
		Flags:  append(commonFlags(), serveFlags()...),
		Commands: []*cli.Command{
			serveCmd,
			resolveCmd,
			snapshotCmd,
		},
		Action: runServe,
	}

	return app.Run(args)
}

// commonFlags are accepted before or after the subcommand name; read them
// with flagString so a value set at either level wins over a default.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "profile",
			Usage:   "deployment mode; \"dev\" serves the mock dataset, anything else production",
			Value:   config.DevProfile,
			EnvVars: []string{"PROFILE"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "directory holding dataset files",
			Value:   config.DefaultDataDir,
			EnvVars: []string{"ENSDIR_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"ENSDIR_LOG_LEVEL", "LOG_LEVEL"},
		},
	}
}

// flagString returns the value of the innermost context where name was set
// on the command line or from the environment, else the flag's default.
func flagString(cctx *cli.Context, name string) string {
	for _, c := range cctx.Lineage() {
		if c.IsSet(name) {
			return c.String(name)
		}
	}
	return cctx.String(name)
}

// serveFlags are registered on both the app and the serve command, since
// serving is also the default action.
func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "local IP/port to bind the API to",
			Value:   ":8000",
			EnvVars: []string{"ENSDIR_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP/port for the prometheus metrics endpoint; empty disables it",
			Value:   ":8001",
			EnvVars: []string{"ENSDIR_METRICS_LISTEN"},
		},
	}
}

var serveCmd = &cli.Command{
	Name:   "serve",
	Usage:  "load the dataset and run the HTTP API (default)",
	Flags:  append(commonFlags(), serveFlags()...),
	Action: runServe,
}

var resolveCmd = &cli.Command{
	Name:      "resolve",
	Usage:     "resolve names against a dataset without starting the server",
	ArgsUsage: "<name> [<name>...]",
	Flags: append(commonFlags(),
		&cli.StringFlag{
			Name:    "dataset",
			Usage:   "dataset file; defaults to the one selected by --profile",
			EnvVars: []string{"ENSDIR_DATASET"},
		},
	),
	Action: runResolve,
}

var snapshotCmd = &cli.Command{
	Name:  "snapshot",
	Usage: "build a new dataset from the ENS subgraph",
	Flags: append(commonFlags(),
		&cli.StringFlag{
			Name:    "subgraph-url",
			Usage:   "ENS subgraph GraphQL endpoint",
			Value:   snapshot.DefaultSubgraphURL,
			EnvVars: []string{"ENSDIR_SUBGRAPH_URL"},
		},
		&cli.IntFlag{
			Name:    "page-size",
			Usage:   "domains requested per subgraph query",
			Value:   1000,
			EnvVars: []string{"ENSDIR_PAGE_SIZE"},
		},
		&cli.IntFlag{
			Name:    "parallelism",
			Usage:   "number of keyspace partitions fetched concurrently",
			Value:   8,
			EnvVars: []string{"ENSDIR_SNAPSHOT_PARALLELISM"},
		},
		&cli.StringFlag{
			Name:    "push-gateway",
			Usage:   "prometheus pushgateway URL to push fetch metrics to when done; empty disables",
			EnvVars: []string{"ENSDIR_PUSH_GATEWAY"},
		},
	),
	Action: runSnapshot,
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(flagString(cctx, "log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func runServe(cctx *cli.Context) error {
	logger := configLogger(cctx, os.Stdout)

	cfg := config.LoadConfig(
		flagString(cctx, "profile"),
		flagString(cctx, "data-dir"),
		flagString(cctx, "bind"),
		flagString(cctx, "metrics-listen"),
	)
	path := config.DatasetPath(cfg.DataDir, cfg.Profile)
	logger.Info("loading directory", "profile", cfg.Profile, "path", path)

	dir, err := directory.Load(path, logger)
	if err != nil {
		return fmt.Errorf("loading directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(dir, cfg, logger).Run(ctx)
}

func runResolve(cctx *cli.Context) error {
	logger := configLogger(cctx, os.Stderr)

	if cctx.Args().Len() == 0 {
		return errors.New("need at least one name to resolve")
	}
	path := cctx.String("dataset")
	if path == "" {
		path = config.DatasetPath(flagString(cctx, "data-dir"), flagString(cctx, "profile"))
	}

	dir, err := directory.Load(path, logger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cctx.App.Writer)
	for _, name := range cctx.Args().Slice() {
		addr, found, err := dir.Resolve(name)
		if err != nil {
			return err
		}
		resp := models.ResolveResponse{}
		if found {
			resp.Address = &addr
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return nil
}

func runSnapshot(cctx *cli.Context) error {
	logger := configLogger(cctx, os.Stdout)

	res, err := snapshot.Build(cctx.Context, snapshot.Config{
		SubgraphURL: cctx.String("subgraph-url"),
		PageSize:    cctx.Int("page-size"),
		Parallelism: cctx.Int("parallelism"),
		DataDir:     flagString(cctx, "data-dir"),
		PushGateway: cctx.String("push-gateway"),
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	logger.Info("snapshot written", "path", res.Path, "domains", res.Record.DomainCount, "failed_partitions", res.Failed)
	return nil
}

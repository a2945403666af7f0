package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/AINative-Studio/rewardsy/internal/ai"
	"github.com/AINative-Studio/rewardsy/internal/analytics"
	"github.com/AINative-Studio/rewardsy/internal/api"
	"github.com/AINative-Studio/rewardsy/internal/auth"
	"github.com/AINative-Studio/rewardsy/internal/config"
	"github.com/AINative-Studio/rewardsy/internal/db"
	"github.com/AINative-Studio/rewardsy/internal/events"
	"github.com/AINative-Studio/rewardsy/internal/logutils"
	"github.com/AINative-Studio/rewardsy/internal/tasks"
	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

// Populated at build-time via -ldflags.
var version = "dev"

func build() string {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				return mv
			}
		}
	}
	return version
}

type flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	Pretty     bool
}

func main() {
	ctx := context.Background()

	var (
		f         flags
		cfg       *config.Config
		logCloser func()
		client    zerodb.Client
	)

	// openClient picks the data backend named by the config.
	openClient := func(ctx context.Context) (zerodb.Client, error) {
		switch cfg.Backend {
		case config.BackendRemote:
			return zerodb.NewHTTPClient(zerodb.HTTPConfig{
				BaseURL:   cfg.ZeroDB.BaseURL,
				APIKey:    cfg.ZeroDB.APIKey,
				ProjectID: cfg.ZeroDB.ProjectID,
				Secret:    cfg.ZeroDB.Secret,
				Subject:   cfg.ZeroDB.Subject,
				Email:     cfg.ZeroDB.Email,
				Timeout:   cfg.ZeroDB.Timeout,
			}, log.Logger)
		case config.BackendPostgres:
			return db.Open(ctx, db.DriverPostgres, cfg.ConnString())
		case config.BackendSQLite:
			return db.Open(ctx, db.DriverSQLite, cfg.Database.Path)
		default:
			return zerodb.NewMemoryClient(), nil
		}
	}

	app := &cli.Command{
		Name:    "rewardsy",
		Usage:   "To-do list API that rewards finished tasks",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("REWARDSY_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to stderr)",
				Sources:     cli.EnvVars("REWARDSY_LOG_FILE"),
				Destination: &f.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to YAML config file",
				Sources:     cli.EnvVars("REWARDSY_CONFIG"),
				Destination: &f.ConfigPath,
			},
			&cli.BoolFlag{
				Name:        "pretty",
				Usage:       "human readable console logs",
				Sources:     cli.EnvVars("REWARDSY_LOG_PRETTY"),
				Destination: &f.Pretty,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, closer, err := logutils.New(f.LogLevel, f.LogFile, f.Pretty)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err = config.Load(f.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid config: %w", err)
			}

			cl, err := openClient(ctx)
			if err != nil {
				return ctx, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
			}
			client = cl
			log.Info().Str("backend", cfg.Backend).Msg("data backend ready")
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if client != nil {
				if err := client.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close data backend")
				}
			}
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	serve := func(ctx context.Context, c *cli.Command) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		hub := events.NewHub(log.Logger)
		live := events.NewPublisher(client, hub)

		users, err := auth.NewUsers(live, log.Logger)
		if err != nil {
			return err
		}
		defer users.Close()

		tracker := analytics.NewTracker(live, log.Logger)
		svc := tasks.NewService(live, ai.NewEngine(live, log.Logger), tracker, log.Logger)

		handler := api.NewRouter(api.Deps{
			Client:         live,
			Users:          users,
			Tasks:          svc,
			Tracker:        tracker,
			Hub:            hub,
			JWTSecret:      []byte(cfg.Auth.JWTSecret),
			TokenTTL:       cfg.Auth.TokenTTL,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Version:        build(),
			Logger:         log.Logger,
		})

		return api.Serve(ctx, api.ServerConfig{
			Addr:            cfg.Addr(),
			MaxConnections:  cfg.Server.MaxConnections,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, handler, log.Logger, hub.Close)
	}

	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP API",
			Action: serve,
		},
		{
			Name:  "status",
			Usage: "print the data backend status as JSON",
			Action: func(ctx context.Context, c *cli.Command) error {
				st, err := client.GetDatabaseStatus(ctx)
				if err != nil {
					return fmt.Errorf("database status: %w", err)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			},
		},
	}

	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'rewardsy --help' for usage", c.Args().First())
		}
		return serve(ctx, c)
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("rewardsy exited")
		os.Exit(1)
	}
}

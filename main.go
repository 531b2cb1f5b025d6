package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fedragon/go-sidecar/internal"
	"github.com/fedragon/go-sidecar/internal/config"
	"github.com/fedragon/go-sidecar/internal/report"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		stop()
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "go-sidecar",
		Usage:     "restore capture time, location and captions from photo export sidecars",
		Writer:    stdout,
		ErrWriter: stderr,
		// exit codes are decided by main
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "TOML configuration file",
				EnvVars: []string{"SIDECAR_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "journal",
				Usage:   "path of the run journal",
				EnvVars: []string{"SIDECAR_JOURNAL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"SIDECAR_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "auto, console or json",
				EnvVars: []string{"SIDECAR_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			restoreCommand(),
			{
				Name:  "report",
				Usage: "print what the journal knows about previous runs",
				Action: func(c *cli.Context) error {
					cfg, logger, err := setup(c, false)
					if err != nil {
						return err
					}
					defer func() {
						_ = logger.Sync()
					}()

					entries, err := internal.ListJournal(logger, cfg)
					if err != nil {
						return fail(logger, "Cannot read journal", err)
					}

					fmt.Fprintln(c.App.Writer, report.JournalTable(entries))
					return nil
				},
			},
			{
				Name:  "sweep",
				Usage: "drop journal entries of sidecars that no longer exist",
				Action: func(c *cli.Context) error {
					cfg, logger, err := setup(c, false)
					if err != nil {
						return err
					}
					defer func() {
						_ = logger.Sync()
					}()

					if _, err := internal.SweepJournal(logger, cfg); err != nil {
						return fail(logger, "Cannot sweep journal", err)
					}
					return nil
				},
			},
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "match sidecars to media files and write their metadata back",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "export directory to scan", EnvVars: []string{"SIDECAR_SOURCE"}},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "copy into a YYYY/MM tree here instead of writing in place", EnvVars: []string{"SIDECAR_OUTPUT"}},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "concurrent exiftool processes (1-32)", EnvVars: []string{"SIDECAR_WORKERS"}},
			&cli.StringSliceFlag{Name: "ext", Usage: "media file extension to consider, repeatable"},
			&cli.StringFlag{Name: "exiftool", Usage: "exiftool binary", EnvVars: []string{"SIDECAR_EXIFTOOL"}},
			&cli.DurationFlag{Name: "tool-timeout", Usage: "limit for a single exiftool invocation, 0 disables it"},
			&cli.StringFlag{Name: "backup", Usage: "what to do with exiftool's _original files: keep, delete or rename"},
			&cli.BoolFlag{Name: "no-backup", Usage: "let exiftool overwrite files without keeping a backup"},
			&cli.BoolFlag{Name: "dry-run", Usage: "match and plan without copying or writing anything"},
			&cli.BoolFlag{Name: "resume", Usage: "skip sidecars restored by a previous run and unchanged since"},
			&cli.IntFlag{Name: "prefix-chars", Usage: "characters compared by the prefix strategy"},
			&cli.IntFlag{Name: "substring-chars", Usage: "characters compared by the substring strategy"},
			&cli.DurationFlag{Name: "timestamp-tolerance", Usage: "maximum distance for the timestamp strategy"},
			&cli.StringFlag{Name: "report-dir", Usage: "directory receiving the CSV manifests, empty disables them", EnvVars: []string{"SIDECAR_REPORT_DIR"}},
			&cli.StringFlag{Name: "metrics-file", Usage: "write Prometheus metrics to this textfile", EnvVars: []string{"SIDECAR_METRICS_FILE"}},
			&cli.BoolFlag{Name: "progress", Usage: "draw a progress bar when stderr is a terminal"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c, true)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			var opts []internal.Option
			if c.Bool("progress") {
				opts = append(opts, internal.WithProgress(c.App.ErrWriter))
			}

			rep, err := internal.NewRunner(logger, cfg, opts...).Run(c.Context)
			if err != nil {
				return fail(logger, "Restore failed", err)
			}

			fmt.Fprintln(c.App.Writer, rep.Summary().Table())
			return nil
		},
	}
}

// setup loads the configuration, applies the flags that were set and builds
// the logger.
func setup(c *cli.Context, restore bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}

	setString(c, "journal", &cfg.Paths.Journal)
	setString(c, "log-level", &cfg.Logging.Level)
	setString(c, "log-format", &cfg.Logging.Format)
	if restore {
		if err := applyRestoreFlags(c, cfg); err != nil {
			return nil, nil, cli.Exit(err.Error(), 1)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}

	logger, err := newLogger(cfg.Logging.Level, cfg.Logging.Format, c.App.ErrWriter)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}

	return cfg, logger, nil
}

func applyRestoreFlags(c *cli.Context, cfg *config.Config) error {
	setString(c, "source", &cfg.Paths.Source)
	setString(c, "output", &cfg.Paths.Output)
	setString(c, "report-dir", &cfg.Paths.ReportDir)
	setString(c, "metrics-file", &cfg.Paths.MetricsFile)
	setString(c, "exiftool", &cfg.Exiftool.Binary)
	setString(c, "backup", &cfg.Restore.Backup)

	setInt(c, "workers", &cfg.Restore.Workers)
	setInt(c, "prefix-chars", &cfg.Matching.PrefixChars)
	setInt(c, "substring-chars", &cfg.Matching.SubstringChars)

	setBool(c, "no-backup", &cfg.Restore.NoBackup)
	setBool(c, "dry-run", &cfg.Restore.DryRun)
	setBool(c, "resume", &cfg.Restore.Resume)

	if c.IsSet("ext") {
		cfg.Restore.Extensions = c.StringSlice("ext")
	}
	if err := setSeconds(c, "tool-timeout", &cfg.Exiftool.TimeoutSeconds); err != nil {
		return err
	}
	return setSeconds(c, "timestamp-tolerance", &cfg.Matching.TimestampToleranceSeconds)
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func setInt(c *cli.Context, name string, dst *int) {
	if c.IsSet(name) {
		*dst = c.Int(name)
	}
}

func setBool(c *cli.Context, name string, dst *bool) {
	if c.IsSet(name) {
		*dst = c.Bool(name)
	}
}

// setSeconds stores a duration flag as whole seconds, the unit the
// configuration file uses.
func setSeconds(c *cli.Context, name string, dst *int) error {
	if !c.IsSet(name) {
		return nil
	}
	secs, err := wholeSeconds(c.Duration(name))
	if err != nil {
		return fmt.Errorf("--%v: %w", name, err)
	}
	*dst = secs
	return nil
}

func wholeSeconds(d time.Duration) (int, error) {
	if d%time.Second != 0 {
		return 0, fmt.Errorf("%v is not a whole number of seconds", d)
	}
	return int(d / time.Second), nil
}

func fail(logger *zap.Logger, msg string, err error) error {
	logger.Error(msg, zap.Error(err))
	return cli.Exit("", 1)
}

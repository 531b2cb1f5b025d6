package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fedragon/go-sidecar/internal/builder"
	"github.com/fedragon/go-sidecar/internal/config"
	"github.com/fedragon/go-sidecar/internal/core"
	sidedb "github.com/fedragon/go-sidecar/internal/db"
	"github.com/fedragon/go-sidecar/internal/exiftool"
	"github.com/fedragon/go-sidecar/internal/filetype"
	"github.com/fedragon/go-sidecar/internal/fs"
	"github.com/fedragon/go-sidecar/internal/index"
	"github.com/fedragon/go-sidecar/internal/metrics"
	"github.com/fedragon/go-sidecar/internal/models"
	"github.com/fedragon/go-sidecar/internal/report"
	"github.com/fedragon/go-sidecar/internal/resolver"
	"github.com/fedragon/go-sidecar/internal/sidecar"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrLocked = errors.New("another run is writing into the same tree")

type Runner struct {
	logger   *zap.Logger
	cfg      *config.Config
	runID    string
	tool     core.Tool
	detector filetype.Detector
	progress io.Writer
}

type Option func(r *Runner)

// WithTool replaces the exiftool binary, skipping its preflight check.
func WithTool(tool core.Tool) Option {
	return func(r *Runner) {
		r.tool = tool
	}
}

func WithDetector(d filetype.Detector) Option {
	return func(r *Runner) {
		r.detector = d
	}
}

// WithProgress draws a progress bar on w when it is a terminal.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) {
		r.progress = w
	}
}

func NewRunner(logger *zap.Logger, cfg *config.Config, opts ...Option) *Runner {
	runID := uuid.NewString()

	r := &Runner{
		logger:   logger.With(zap.String("run_id", runID)),
		cfg:      cfg,
		runID:    runID,
		detector: filetype.Sniffer{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) RunID() string {
	return r.runID
}

// Run executes a whole restoration. Only setup problems are returned as
// errors: per-sidecar failures end up in the report.
func (r *Runner) Run(ctx context.Context) (rep *report.Report, err error) {
	start := time.Now()
	defer func() {
		r.logger.Info("Elapsed time", zap.Duration("elapsed", time.Since(start)))
	}()

	cfg := r.cfg
	if err := cfg.ValidateForRestore(); err != nil {
		return nil, err
	}

	if cfg.Restore.DryRun {
		r.logger.Info("Running in DRY-RUN mode: no file will be copied or modified")
	}

	if r.tool == nil {
		if !cfg.Restore.DryRun {
			path, err := exiftool.Check(cfg.Exiftool.Binary)
			if err != nil {
				return nil, err
			}
			r.logger.Info("Found exiftool", zap.String("path", path))
		}
		r.tool = exiftool.Client{Binary: cfg.Exiftool.Binary, Timeout: cfg.ToolTimeout()}
	}

	if !cfg.Restore.DryRun {
		unlock, err := r.lock()
		if err != nil {
			return nil, err
		}
		defer func() {
			err = multierr.Append(err, unlock())
		}()
	}

	bolt, err := sidedb.Connect(cfg.Paths.Journal)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, bolt.Close())
	}()

	repo, err := sidedb.NewRepository(bolt, r.logger)
	if err != nil {
		return nil, err
	}

	var registry *prometheus.Registry
	if cfg.Paths.MetricsFile != "" {
		registry = prometheus.NewRegistry()
	}
	mx := metrics.NewMetrics(registry)

	r.logger.Info("Indexing media files", zap.String("source", cfg.Paths.Source))
	files, err := fs.Collect(fs.Walk(cfg.Paths.Source, cfg.Restore.Extensions))
	if err != nil {
		return nil, fmt.Errorf("cannot scan %v: %w", cfg.Paths.Source, err)
	}
	idx := index.Build(files)
	r.logger.Info("Indexed media files", zap.Int("count", idx.Len()))

	sidecars, err := fs.WalkSidecars(cfg.Paths.Source)
	if err != nil {
		return nil, fmt.Errorf("cannot scan %v: %w", cfg.Paths.Source, err)
	}
	r.logger.Info("Found sidecar candidates", zap.Int("count", len(sidecars)))

	rep = &report.Report{}
	items, fingerprints := r.plan(repo, resolver.New(idx, cfg.ResolverOptions()), mx, sidecars, rep)

	bar := r.progressBar(len(items))
	restorer := &core.ConcurrentRestorer{
		Tool:       r.tool,
		NumWorkers: cfg.Restore.Workers,
		Backup:     cfg.BackupPolicy(),
		NoBackup:   cfg.Restore.NoBackup,
		DryRun:     cfg.Restore.DryRun,
		Logger:     r.logger,
		Metrics:    mx,
		OnResult: func(res models.ExecutionResult) {
			rep.AddResult(res)
			if bar != nil {
				_ = bar.Add(1)
			}
			if cfg.Restore.DryRun {
				return
			}
			entry := sidedb.NewEntry(res, fingerprints[res.Item.SidecarPath], r.runID)
			if err := repo.Store(entry); err != nil {
				r.logger.Warn("Cannot journal result", zap.String("sidecar", res.Item.SidecarPath), zap.Error(err))
			}
		},
	}
	restorer.Restore(ctx, items)
	if bar != nil {
		_ = bar.Finish()
	}

	if dir := cfg.Paths.ReportDir; dir != "" {
		written, err := report.Write(dir, rep)
		if err != nil {
			r.logger.Error("Cannot write report", zap.Error(err))
		}
		r.logger.Info("Wrote report", zap.Strings("files", written))
	}

	if err := mx.WriteTextfile(cfg.Paths.MetricsFile); err != nil {
		r.logger.Error("Cannot write metrics", zap.String("path", cfg.Paths.MetricsFile), zap.Error(err))
	}

	summary := rep.Summary()
	r.logger.Info("Run completed",
		zap.Int("sidecars", summary.Sidecars),
		zap.Int("restored", summary.Outcomes[models.Success]+summary.Outcomes[models.SuccessWithWarning]),
		zap.Int("failed", summary.Failed()),
		zap.Int("unmatched", summary.Unmatched),
		zap.Int("unparseable", summary.Unparseable),
		zap.Int("no_metadata", summary.NoMetadata),
		zap.Int("already_restored", summary.Resumed),
	)

	return rep, nil
}

// plan loads, resolves and builds every sidecar, in path order and on the
// calling goroutine, so destinations are allocated before any work starts.
func (r *Runner) plan(repo sidedb.Repository, res *resolver.Resolver, mx *metrics.Metrics, sidecars []string, rep *report.Report) ([]models.WorkItem, map[string][]byte) {
	cfg := r.cfg
	b := builder.New(builder.Options{OutputDir: cfg.Paths.Output}, r.detector, builder.NewAllocator())

	var items []models.WorkItem
	fingerprints := make(map[string][]byte, len(sidecars))
	claimed := make(map[string]string)

	for _, path := range sidecars {
		rec, err := sidecar.Load(path)
		if errors.Is(err, sidecar.ErrNotSidecar) {
			r.logger.Debug("Ignoring JSON file", zap.String("path", path))
			rep.AddIgnored(path)
			mx.IncSkipped("ignored")
			continue
		}
		if err != nil {
			r.logger.Warn("Cannot parse sidecar", zap.String("sidecar", path), zap.Error(err))
			rep.AddUnparseable(path, err)
			mx.IncSkipped("unparseable")
			continue
		}

		fingerprint, err := fs.Fingerprint(path)
		if err != nil {
			r.logger.Warn("Cannot fingerprint sidecar", zap.String("sidecar", path), zap.Error(err))
		}

		if cfg.Restore.Resume && r.restoredBefore(repo, path, fingerprint) {
			rep.AddResumed(path)
			mx.IncSkipped("already_restored")
			continue
		}

		match := res.Resolve(resolver.Query{SidecarPath: path, Title: rec.Title, CapturedAt: rec.CapturedAt})
		if !match.Matched() {
			r.logger.Info("No match", zap.String("sidecar", path), zap.String("title", rec.Title), zap.Int("last_stage", match.LastStage))
			rep.AddUnmatched(path, rec.Title, match.LastStage)
			mx.IncSkipped("unmatched")
			continue
		}

		// two writers must never share a file
		if cfg.Paths.Output == "" {
			if first, ok := claimed[match.Path]; ok {
				r.logger.Warn("Media file already claimed by another sidecar",
					zap.String("sidecar", path), zap.String("media", match.Path), zap.String("claimed_by", first))
				rep.AddClaimed(path, rec.Title, match.Path, first)
				mx.IncSkipped("claimed")
				continue
			}
			claimed[match.Path] = path
		}
		mx.IncMatch(match.Strategy.String())

		item, err := b.Build(rec, match)
		if err != nil {
			r.logger.Info("Nothing to restore", zap.String("sidecar", path), zap.String("media", match.Path))
			rep.AddNoMetadata(path, match.Path)
			mx.IncSkipped("no_metadata")
			continue
		}

		fingerprints[path] = fingerprint
		items = append(items, item)
	}

	return items, fingerprints
}

func (r *Runner) restoredBefore(repo sidedb.Repository, path string, fingerprint []byte) bool {
	e, found, err := repo.Lookup(path)
	if err != nil {
		r.logger.Warn("Cannot read journal", zap.String("sidecar", path), zap.Error(err))
		return false
	}
	return found && e.Restored() && e.Unchanged(fingerprint)
}

// lock takes the run lock for the tree being written and returns its release.
func (r *Runner) lock() (func() error, error) {
	path := r.cfg.LockPath()
	if r.cfg.Paths.Output != "" {
		if err := os.MkdirAll(r.cfg.Paths.Output, os.ModePerm); err != nil {
			return nil, fmt.Errorf("unable to create output directory %v: %w", r.cfg.Paths.Output, err)
		}
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock file %v)", ErrLocked, path)
	}

	return func() error {
		err := fl.Unlock()
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
		return err
	}, nil
}

func (r *Runner) progressBar(total int) *progressbar.ProgressBar {
	f, ok := r.progress.(*os.File)
	if !ok || total == 0 || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(f),
		progressbar.OptionSetDescription("restoring"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

// ListJournal returns all journal entries.
func ListJournal(logger *zap.Logger, cfg *config.Config) (entries []sidedb.Entry, err error) {
	bolt, err := sidedb.Connect(cfg.Paths.Journal)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, bolt.Close())
	}()

	repo, err := sidedb.NewRepository(bolt, logger)
	if err != nil {
		return nil, err
	}

	for e := range repo.List() {
		entries = append(entries, e)
	}
	return entries, nil
}

// SweepJournal drops entries of sidecars that no longer exist.
func SweepJournal(logger *zap.Logger, cfg *config.Config) (swept int, err error) {
	bolt, err := sidedb.Connect(cfg.Paths.Journal)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = multierr.Append(err, bolt.Close())
	}()

	repo, err := sidedb.NewRepository(bolt, logger)
	if err != nil {
		return 0, err
	}

	return core.Sweep(repo, logger)
}

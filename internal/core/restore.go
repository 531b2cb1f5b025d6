package core

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fedragon/go-sidecar/internal/exiftool"
	"github.com/fedragon/go-sidecar/internal/metrics"
	"github.com/fedragon/go-sidecar/internal/models"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

const (
	MaxWorkers = 32

	cancelled = "cancelled before dispatch"
)

// Tool writes metadata onto a single file.
type Tool interface {
	Run(ctx context.Context, args []string) (exiftool.Output, error)
}

type Restorer interface {
	Restore(ctx context.Context, items []models.WorkItem) []models.ExecutionResult
}

type ConcurrentRestorer struct {
	Tool       Tool
	NumWorkers int
	Backup     BackupPolicy
	NoBackup   bool
	DryRun     bool
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// OnResult, when set, sees every result as soon as it is collected. It
	// is always called from the goroutine that called Restore.
	OnResult func(models.ExecutionResult)
}

// Restore produces exactly one result per item. With one worker items run in
// order; otherwise results arrive in completion order. Cancelling ctx stops
// dispatching: running items finish, the rest are reported as exceptions.
func (cr *ConcurrentRestorer) Restore(ctx context.Context, items []models.WorkItem) []models.ExecutionResult {
	numWorkers := cr.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > MaxWorkers {
		numWorkers = MaxWorkers
	}

	cr.Logger.Info("Restoring metadata",
		zap.Int("items", len(items)),
		zap.Int("num_workers", numWorkers),
		zap.Bool("dry_run", cr.DryRun),
	)

	results := make([]models.ExecutionResult, 0, len(items))
	collect := func(res models.ExecutionResult) {
		results = append(results, res)
		if cr.OnResult != nil {
			cr.OnResult(res)
		}
		if n := len(results); n%1000 == 0 {
			cr.Logger.Info("Restored a(nother) batch of files", zap.Int("count", n))
		}
	}

	var dispatched int
	if numWorkers == 1 {
		log := cr.Logger.With(zap.Int("worker_id", 0))
		for _, item := range items {
			if ctx.Err() != nil {
				break
			}
			collect(cr.restoreOne(ctx, log, item))
			dispatched++
		}
	} else {
		queue := make(chan models.WorkItem)
		go func() {
			defer close(queue)
			for _, item := range items {
				if ctx.Err() != nil {
					return
				}
				select {
				case <-ctx.Done():
					return
				case queue <- item:
					dispatched++
				}
			}
		}()

		workers := make([]<-chan models.ExecutionResult, numWorkers)
		for i := 0; i < numWorkers; i++ {
			workers[i] = cr.worker(ctx, i, queue)
		}

		// collection must outlive ctx so that in-flight items are reported
		collectCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for res := range merge(collectCtx, workers...) {
			collect(res)
		}
	}

	for _, item := range items[dispatched:] {
		collect(cr.finish(cr.Logger, models.ExecutionResult{Item: item, Outcome: models.Exception, Detail: cancelled}))
	}

	cr.Logger.Info("Total restored files", zap.Int("total", len(results)))
	return results
}

func (cr *ConcurrentRestorer) worker(ctx context.Context, id int, queue <-chan models.WorkItem) <-chan models.ExecutionResult {
	results := make(chan models.ExecutionResult)
	log := cr.Logger.With(zap.Int("worker_id", id))

	go func() {
		defer close(results)

		for item := range queue {
			results <- cr.restoreOne(ctx, log, item)
		}
	}()

	return results
}

// restoreOne never lets a failure escape the item.
func (cr *ConcurrentRestorer) restoreOne(ctx context.Context, log *zap.Logger, item models.WorkItem) (res models.ExecutionResult) {
	start := time.Now()
	res = models.ExecutionResult{Item: item}

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = models.Exception
			res.Detail = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = time.Since(start)
		res = cr.finish(log, res)
	}()

	args := exiftool.Args(item.Metadata, item.Target(), !item.InPlace() || cr.NoBackup)

	if cr.DryRun {
		res.Outcome = models.DryRun
		res.Detail = fmt.Sprintf("would write %v to %v", item.Metadata.Summary(), item.Target())
		return res
	}

	if !item.InPlace() {
		if err := copyFile(item.MediaPath, item.Destination); err != nil {
			res.Outcome = models.CopyFailed
			res.Detail = err.Error()
			return res
		}
	}

	// an interrupt must not kill a write that is already under way
	toolStart := time.Now()
	out, err := cr.Tool.Run(context.WithoutCancel(ctx), args)
	cr.Metrics.ObserveTool(time.Since(toolStart))

	res.ExitCode = out.ExitCode
	res.Outcome, res.Detail = exiftool.Classify(out, err)

	if res.Outcome.Succeeded() && item.InPlace() && !cr.NoBackup {
		note, err := applyBackupPolicy(cr.Backup, item.MediaPath)
		if err != nil {
			log.Warn("Cannot apply backup policy", zap.String("media", item.MediaPath), zap.Error(err))
			note = err.Error()
		}
		res.Detail = joinNotes(res.Detail, note)
	}

	return res
}

// finish logs the result once and counts it.
func (cr *ConcurrentRestorer) finish(log *zap.Logger, res models.ExecutionResult) models.ExecutionResult {
	cr.Metrics.IncRestore(res.Outcome.String())

	fields := []zap.Field{
		zap.String("sidecar", res.Item.SidecarPath),
		zap.String("media", res.Item.MediaPath),
		zap.String("strategy", res.Item.Strategy.String()),
		zap.String("outcome", res.Outcome.String()),
		zap.String("fields", res.Item.Metadata.Summary()),
	}
	if res.Item.Destination != "" {
		fields = append(fields, zap.String("dest", res.Item.Destination))
	}
	if res.Detail != "" {
		fields = append(fields, zap.String("detail", res.Detail))
	}

	switch res.Outcome {
	case models.Success, models.DryRun:
		log.Info("Restored file", fields...)
	case models.SuccessWithWarning:
		log.Warn("Restored file with warnings", fields...)
	default:
		log.Error("Cannot restore file", append(fields, zap.Int("exit_code", res.ExitCode))...)
	}

	return res
}

func copyFile(source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return fmt.Errorf("unable to create directory %v: %w", filepath.Dir(dest), err)
	}

	buf, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("cannot open %v: %w", source, err)
	}
	defer func() {
		_ = buf.Close()
	}()

	info, err := buf.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat %v: %w", source, err)
	}

	if err := atomic.WriteFile(dest, bufio.NewReader(buf)); err != nil {
		return fmt.Errorf("cannot copy %v to %v: %w", source, dest, err)
	}

	// a new file keeps the temp file's 0600 mode
	if err := os.Chmod(dest, info.Mode().Perm()); err != nil {
		return fmt.Errorf("cannot set mode of %v: %w", dest, err)
	}

	return nil
}

func joinNotes(notes ...string) string {
	var parts []string
	for _, n := range notes {
		if n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "; ")
}

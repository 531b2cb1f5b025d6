// Package exiftool drives the exiftool binary, one process per file.
package exiftool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const (
	DefaultBinary  = "exiftool"
	DefaultTimeout = 10 * time.Minute

	waitDelay = 5 * time.Second
)

var ErrTimeout = errors.New("exiftool did not terminate in time")

// Output is what a finished exiftool process reported.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type Client struct {
	Binary string
	// Timeout bounds a single invocation; zero disables it.
	Timeout time.Duration
}

func (c Client) binary() string {
	if c.Binary == "" {
		return DefaultBinary
	}
	return c.Binary
}

// Run writes args to a temporary argfile and runs `exiftool -@ argfile`.
// A process that ran to completion yields a nil error whatever its exit
// code; an error means exiftool could not be launched or was killed.
func (c Client) Run(ctx context.Context, args []string) (out Output, err error) {
	argfile, err := writeArgfile(args)
	if err != nil {
		return Output{}, err
	}
	defer func() {
		err = multierr.Append(err, remove(argfile))
	}()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary(), "-@", argfile)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	out = Output{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return out, fmt.Errorf("%w after %v", ErrTimeout, c.Timeout)
		}
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if runErr != nil {
		return out, fmt.Errorf("cannot run %v: %w", c.binary(), runErr)
	}

	return out, nil
}

// writeArgfile writes one argument per line, as exiftool's -@ expects.
func writeArgfile(args []string) (string, error) {
	f, err := os.CreateTemp("", "go-sidecar-*.args")
	if err != nil {
		return "", fmt.Errorf("cannot create argfile: %w", err)
	}

	var buf bytes.Buffer
	for _, a := range args {
		buf.WriteString(a)
		buf.WriteByte('\n')
	}

	_, err = f.Write(buf.Bytes())
	err = multierr.Append(err, f.Close())
	if err != nil {
		return "", multierr.Append(fmt.Errorf("cannot write argfile: %w", err), remove(f.Name()))
	}

	return f.Name(), nil
}

func remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Check resolves binary on PATH.
func Check(binary string) (string, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%v not found, install exiftool or set its path: %w", binary, err)
	}
	return path, nil
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

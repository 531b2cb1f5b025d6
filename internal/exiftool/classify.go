package exiftool

import (
	"regexp"
	"strings"

	"github.com/fedragon/go-sidecar/internal/models"
)

var updatedRE = regexp.MustCompile(`(?m)^\s*[1-9]\d* (image )?files? (updated|created)`)

// Classify maps a finished (or failed) invocation to an outcome and a short
// diagnostic. A nonzero exit counts as a success when exiftool printed only
// warnings and still confirmed that the file was written.
func Classify(out Output, err error) (models.Outcome, string) {
	if err != nil {
		return models.Exception, err.Error()
	}

	diagnostics := lines(out.Stderr)
	detail := strings.Join(diagnostics, "; ")

	if out.ExitCode == 0 {
		return models.Success, detail
	}

	if len(diagnostics) > 0 && onlyWarnings(diagnostics) && updatedRE.MatchString(out.Stdout) {
		return models.SuccessWithWarning, detail
	}

	if detail == "" {
		detail = strings.Join(lines(out.Stdout), "; ")
	}
	return models.ToolFailed, detail
}

func onlyWarnings(diagnostics []string) bool {
	for _, d := range diagnostics {
		if !strings.HasPrefix(d, "Warning:") {
			return false
		}
	}
	return true
}

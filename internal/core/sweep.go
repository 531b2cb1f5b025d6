package core

import (
	"os"

	"github.com/fedragon/go-sidecar/internal/db"

	"go.uber.org/zap"
)

// Sweep drops journal entries whose sidecar no longer exists.
func Sweep(repo db.Repository, logger *zap.Logger) (int, error) {
	logger.Info("Sweeping stale entries...")

	swept, err := repo.Sweep(func(e db.Entry) bool {
		_, err := os.Stat(e.Sidecar)
		return os.IsNotExist(err)
	})
	if err != nil {
		return swept, err
	}

	logger.Info("Swept stale entries", zap.Int("count", swept))
	return swept, nil
}

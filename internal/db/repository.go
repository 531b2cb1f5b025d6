package db

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fedragon/go-sidecar/internal/models"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// Entry is the journaled outcome of the last run that handled a sidecar.
type Entry struct {
	Sidecar     string    `json:"-"`
	Fingerprint []byte    `json:"fingerprint"`
	Outcome     string    `json:"outcome"`
	Media       string    `json:"media"`
	Destination string    `json:"destination,omitempty"`
	RunID       string    `json:"run_id"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func NewEntry(res models.ExecutionResult, fingerprint []byte, runID string) Entry {
	return Entry{
		Sidecar:     res.Item.SidecarPath,
		Fingerprint: fingerprint,
		Outcome:     res.Outcome.String(),
		Media:       res.Item.MediaPath,
		Destination: res.Item.Destination,
		RunID:       runID,
		RecordedAt:  time.Now().UTC(),
	}
}

func (e Entry) Restored() bool {
	return e.Outcome == models.Success.String() || e.Outcome == models.SuccessWithWarning.String()
}

// Unchanged reports whether the sidecar still has the fingerprint it had
// when it was restored.
func (e Entry) Unchanged(fingerprint []byte) bool {
	return len(e.Fingerprint) > 0 && bytes.Equal(e.Fingerprint, fingerprint)
}

var ErrNoBucket = errors.New("bucket doesn't exist")

type Repository interface {
	Store(e Entry) error
	Lookup(sidecar string) (Entry, bool, error)
	List() <-chan Entry
	Sweep(stale func(Entry) bool) (int, error)
}

type BoltRepository struct {
	db     *bolt.DB
	logger *zap.Logger
}

func NewRepository(db *bolt.DB, logger *zap.Logger) (Repository, error) {
	if err := Init(db); err != nil {
		return nil, err
	}

	return &BoltRepository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *BoltRepository) Store(e Entry) error {
	if e.Sidecar == "" {
		return errors.New("journal entry without sidecar path")
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return ErrNoBucket
		}

		marshalled, err := json.Marshal(&e)
		if err != nil {
			return err
		}

		return bucket.Put([]byte(e.Sidecar), marshalled)
	})
}

func (r *BoltRepository) Lookup(sidecar string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return ErrNoBucket
		}

		v := bucket.Get([]byte(sidecar))
		if v == nil {
			return nil
		}

		if err := json.Unmarshal(v, &entry); err != nil {
			return fmt.Errorf("corrupted entry for %v: %w", sidecar, err)
		}
		entry.Sidecar = sidecar
		found = true

		return nil
	})

	return entry, found, err
}

// List streams all entries in key order.
func (r *BoltRepository) List() <-chan Entry {
	entries := make(chan Entry)

	go func() {
		defer close(entries)

		if err := r.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketName)
			if b == nil {
				return ErrNoBucket
			}

			return b.ForEach(func(k, v []byte) error {
				var e Entry
				if err := json.Unmarshal(v, &e); err != nil {
					return err
				}
				e.Sidecar = string(k)

				entries <- e
				return nil
			})
		}); err != nil {
			r.logger.Error("error while reading from bucket", zap.Error(err))
		}
	}()

	return entries
}

// Sweep deletes the entries for which stale returns true.
func (r *BoltRepository) Sweep(stale func(Entry) bool) (int, error) {
	var swept int

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return ErrNoBucket
		}

		// deleting while a cursor walks the bucket skips items
		var keys [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			e.Sidecar = string(k)

			if stale(e) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		swept = len(keys)

		return nil
	})

	return swept, err
}

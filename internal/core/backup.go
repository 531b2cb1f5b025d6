package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// exiftool keeps the untouched file next to the written one as <file>_original.
const backupSuffix = "_original"

type BackupPolicy int

const (
	KeepBackup BackupPolicy = iota
	DeleteBackup
	RenameBackup
)

func (p BackupPolicy) String() string {
	switch p {
	case KeepBackup:
		return "keep"
	case DeleteBackup:
		return "delete"
	case RenameBackup:
		return "rename"
	default:
		return "unknown"
	}
}

func ParseBackupPolicy(s string) (BackupPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepBackup, nil
	case "delete":
		return DeleteBackup, nil
	case "rename":
		return RenameBackup, nil
	default:
		return KeepBackup, fmt.Errorf("unknown backup policy %q (expected keep, delete or rename)", s)
	}
}

// BackupPath is where exiftool leaves the original of mediaPath.
func BackupPath(mediaPath string) string {
	return mediaPath + backupSuffix
}

// RenamedBackupPath moves the suffix before the extension so the backup
// keeps a recognizable type: IMG_1.jpg_original -> IMG_1_original.jpg.
func RenamedBackupPath(mediaPath string) string {
	ext := filepath.Ext(mediaPath)
	return strings.TrimSuffix(mediaPath, ext) + backupSuffix + ext
}

// applyBackupPolicy returns a note describing what was done, if anything.
func applyBackupPolicy(policy BackupPolicy, mediaPath string) (string, error) {
	backup := BackupPath(mediaPath)
	if _, err := os.Lstat(backup); os.IsNotExist(err) {
		return "", nil
	}

	switch policy {
	case DeleteBackup:
		if err := os.Remove(backup); err != nil {
			return "", fmt.Errorf("cannot delete backup %v: %w", backup, err)
		}
		return "backup deleted", nil
	case RenameBackup:
		target := RenamedBackupPath(mediaPath)
		if _, err := os.Lstat(target); err == nil {
			if err := os.Remove(backup); err != nil {
				return "", fmt.Errorf("cannot delete backup %v: %w", backup, err)
			}
			return "backup deleted, " + filepath.Base(target) + " already exists", nil
		}
		if err := os.Rename(backup, target); err != nil {
			return "", fmt.Errorf("cannot rename backup %v: %w", backup, err)
		}
		return "backup renamed to " + filepath.Base(target), nil
	default:
		return "", nil
	}
}

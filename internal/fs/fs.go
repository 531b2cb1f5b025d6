package fs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fedragon/go-sidecar/internal/models"

	"lukechampine.com/blake3"
)

const SidecarExt = ".json"

var DefaultMediaTypes = []string{
	".jpg", ".jpeg", ".png", ".gif", ".heic", ".heif", ".webp", ".bmp", ".tif", ".tiff",
	".dng", ".cr2", ".nef", ".orf", ".arw", ".raw",
	".mp4", ".mov", ".m4v", ".3gp", ".avi", ".mkv", ".mts", ".m2ts", ".wmv", ".webm",
}

// Fingerprint returns the blake3 digest of the file at path.
func Fingerprint(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Walk streams every file under root whose extension is one of fileTypes
// (compared case-insensitively). A walk error is sent as the last element.
func Walk(root string, fileTypes []string) <-chan models.MediaFile {
	media := make(chan models.MediaFile)

	go func() {
		defer close(media)

		typesMap := make(map[string]bool, len(fileTypes))
		for _, t := range fileTypes {
			typesMap[strings.ToLower(t)] = true
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return walkError(root, path, err)
			}

			if d.IsDir() {
				return nil
			}

			name := d.Name()
			ext := filepath.Ext(name)
			if !typesMap[strings.ToLower(ext)] {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				// removed between listing and stat
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}

			media <- models.MediaFile{
				Path:    abs,
				Name:    name,
				Base:    strings.TrimSuffix(name, ext),
				Dir:     filepath.Dir(abs),
				ModTime: info.ModTime(),
			}

			return nil
		})

		if err != nil {
			media <- models.MediaFile{Err: err}
		}
	}()

	return media
}

// WalkSidecars returns the absolute paths of all sidecar candidates under
// root, sorted so that runs are deterministic.
func WalkSidecars(root string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return walkError(root, path, err)
		}

		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), SidecarExt) {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		paths = append(paths, abs)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// walkError drops errors about entries removed while the walk was under way.
// A missing root is still an error.
func walkError(root, path string, err error) error {
	if os.IsNotExist(err) && path != root {
		return nil
	}
	return err
}

// Collect drains a Walk channel into a slice sorted by path.
func Collect(media <-chan models.MediaFile) ([]models.MediaFile, error) {
	var files []models.MediaFile
	for m := range media {
		if m.Err != nil {
			return nil, m.Err
		}
		files = append(files, m)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

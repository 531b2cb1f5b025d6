package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Allocator hands out destination paths that are free both on disk and
// among the paths already handed out during the current run. Keys are lower
// cased so that case-insensitive filesystems cannot collide either.
type Allocator struct {
	mu       sync.Mutex
	assigned map[string]struct{}
	exists   func(path string) bool
}

func NewAllocator() *Allocator {
	return &Allocator{
		assigned: make(map[string]struct{}),
		exists:   onDisk,
	}
}

func onDisk(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !os.IsNotExist(err)
}

// Allocate returns dir/name, or dir/base(N)ext with the smallest N >= 1 that
// is free, and registers the result before returning.
func (a *Allocator) Allocate(dir, name string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for n := 1; a.taken(candidate); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s(%d)%s", base, n, ext))
	}

	a.assigned[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

func (a *Allocator) taken(path string) bool {
	if _, ok := a.assigned[strings.ToLower(path)]; ok {
		return true
	}
	return a.exists(path)
}

func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.assigned)
}

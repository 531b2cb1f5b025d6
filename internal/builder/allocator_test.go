package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taken.jpg"), []byte("x"), 0o644))

	a := NewAllocator()

	cases := []struct {
		name     string
		expected string
	}{
		{name: "sunset.jpg", expected: "sunset.jpg"},
		{name: "sunset.jpg", expected: "sunset(1).jpg"},
		{name: "SUNSET.JPG", expected: "SUNSET(2).JPG"},
		{name: "taken.jpg", expected: "taken(1).jpg"},
		{name: "noext", expected: "noext"},
		{name: "noext", expected: "noext(1)"},
	}

	for _, c := range cases {
		if got := a.Allocate(dir, c.name); got != filepath.Join(dir, c.expected) {
			t.Errorf("%v\n\tExpected %v but got %v instead", c.name, c.expected, filepath.Base(got))
		}
	}

	assert.Equal(t, len(cases), a.Len())
}

func TestAllocateConcurrently(t *testing.T) {
	a := NewAllocator()
	a.exists = func(string) bool { return false }

	const n = 200
	paths := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths <- a.Allocate("/out/2023/11", fmt.Sprintf("img%d.jpg", i%3))
		}(i)
	}
	wg.Wait()
	close(paths)

	seen := make(map[string]bool, n)
	for p := range paths {
		require.False(t, seen[p], "%v allocated twice", p)
		seen[p] = true
	}
	assert.Len(t, seen, n)
}

package resolver

import "testing"

func TestInferMediaName(t *testing.T) {
	cases := []struct {
		name       string
		sidecar    string
		expected   string
		index      string
		mode       inferMode
		degenerate bool
	}{
		{
			name:     "full supplemental suffix",
			sidecar:  "IMG_001.jpg.supplemental-metadata.json",
			expected: "IMG_001.jpg",
			mode:     inferExact,
		},
		{
			name:     "full supplemental suffix in upper case",
			sidecar:  "IMG_001.JPG.SUPPLEMENTAL-METADATA.JSON",
			expected: "IMG_001.JPG",
			mode:     inferExact,
		},
		{
			name:     "full supplemental suffix with duplicate index",
			sidecar:  "IMG_001.jpg.supplemental-metadata(1).json",
			expected: "IMG_001.jpg",
			index:    "1",
			mode:     inferExact,
		},
		{
			name:     "truncated supplemental suffix",
			sidecar:  "IMG_20200101_123456789.jpg.supplemental-me.json",
			expected: "IMG_20200101_123456789.jpg",
			mode:     inferSupplement,
		},
		{
			name:     "single letter supplemental suffix",
			sidecar:  "IMG_001.jpg.s.json",
			expected: "IMG_001.jpg",
			mode:     inferSupplement,
		},
		{
			name:     "truncated supplemental suffix with duplicate index",
			sidecar:  "photo.supp(1).json",
			expected: "photo",
			index:    "1",
			mode:     inferSupplement,
		},
		{
			name:       "legacy sidecar with duplicate index after the media extension",
			sidecar:    "IMG_001.jpg(2).json",
			expected:   "IMG_001.jpg",
			index:      "2",
			mode:       inferFallback,
			degenerate: true,
		},
		{
			name:       "legacy sidecar",
			sidecar:    "IMG_001.jpg.json",
			expected:   "IMG_001.jpg",
			mode:       inferFallback,
			degenerate: true,
		},
		{
			name:       "double dot",
			sidecar:    "IMG_001..json",
			expected:   "IMG_001",
			mode:       inferFallback,
			degenerate: true,
		},
		{
			name:       "double dot before the supplemental suffix",
			sidecar:    "IMG_001.jpg..supplemental-metadata.json",
			expected:   "IMG_001.jpg",
			mode:       inferExact,
			degenerate: true,
		},
		{
			name:       "fully truncated",
			sidecar:    "vacation.json",
			expected:   "vacation",
			mode:       inferFallback,
			degenerate: true,
		},
	}

	for _, c := range cases {
		got := inferMediaName(c.sidecar)
		if got.Name != c.expected || got.Index != c.index || got.Mode != c.mode || got.Degenerate != c.degenerate {
			t.Errorf("%v\n\tExpected %+v but got %+v instead", c.name,
				inference{Name: c.expected, Index: c.index, Mode: c.mode, Degenerate: c.degenerate}, got)
		}
	}
}

func TestInferenceWithIndex(t *testing.T) {
	cases := []struct {
		inf      inference
		expected string
	}{
		{inf: inference{Name: "photo.jpg", Index: "1"}, expected: "photo(1).jpg"},
		{inf: inference{Name: "photo", Index: "3"}, expected: "photo(3)"},
	}

	for _, c := range cases {
		if got := c.inf.WithIndex(); got != c.expected {
			t.Errorf("Expected %v but got %v instead", c.expected, got)
		}
	}
}

package repository

import (
	"errors"
	"testing"
)

func TestSplitPath(t *testing.T) {
	cases := []struct {
		path       string
		artistSlug string
		songSlug   string
		wantErr    bool
	}{
		{"/novae/midnight", "novae", "midnight", false},
		{"novae/midnight", "novae", "midnight", false},
		{"/novae/midnight/", "novae", "midnight", false},
		{"/novae", "", "", true},
		{"/novae/midnight/extra", "", "", true},
		{"//midnight", "", "", true},
		{"/", "", "", true},
		{"", "", "", true},
	}

	for _, tc := range cases {
		artistSlug, songSlug, err := SplitPath(tc.path)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidPath) {
				t.Errorf("SplitPath(%q): err = %v, want ErrInvalidPath", tc.path, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("SplitPath(%q): %v", tc.path, err)
			continue
		}
		if artistSlug != tc.artistSlug || songSlug != tc.songSlug {
			t.Errorf("SplitPath(%q) = %q/%q, want %q/%q", tc.path, artistSlug, songSlug, tc.artistSlug, tc.songSlug)
		}
	}
}

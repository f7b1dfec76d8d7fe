package organize

import (
	"errors"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain Name", "Plain Name"},
		{"a/b\\c", "a b c"},
		{"What: Year?", "What Year"},
		{"dots...everywhere", "dots.everywhere"},
		{"  padded  ", "padded"},
		{"trailing.", "trailing"},
		{"nul\x00byte", "nulbyte"},
		{"<angle>|pipe*", "angle pipe"},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidatePath(t *testing.T) {
	root := "/media/shows"

	if err := ValidatePath("/media/shows/Show/ep.mkv", root); err != nil {
		t.Errorf("path inside root rejected: %v", err)
	}
	if err := ValidatePath("/media/shows", root); err != nil {
		t.Errorf("root itself rejected: %v", err)
	}

	escapes := []string{
		"/media/shows/../movies/film.mkv",
		"/etc/passwd",
		"/media/showsx/ep.mkv",
	}
	for _, p := range escapes {
		if err := ValidatePath(p, root); !errors.Is(err, ErrPathTraversal) {
			t.Errorf("ValidatePath(%q) = %v, want ErrPathTraversal", p, err)
		}
	}
}

package capture

import (
	"testing"
	"time"
)

func TestFoldLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Late Show", "late-show"},
		{"Canción del Día", "cancion-del-dia"},
		{"Früh  --  Schicht", "fruh-schicht"},
		{"___", ""},
		{"  emissão nº 7!  ", "emissao-n-7"},
		{"UPPER case 99", "upper-case-99"},
	}
	for _, tc := range cases {
		if got := FoldLabel(tc.in); got != tc.want {
			t.Errorf("FoldLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFilename(t *testing.T) {
	startedAt := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	if got := Filename("Late Show", startedAt); got != "recording_late-show_2025-03-14T09-26-53.mp4" {
		t.Fatalf("unexpected filename %q", got)
	}
	if got := Filename("", startedAt); got != "recording_2025-03-14T09-26-53.mp4" {
		t.Fatalf("unexpected unlabeled filename %q", got)
	}
}

func TestFilenameNormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("CET", 3600)
	startedAt := time.Date(2025, 3, 14, 10, 26, 53, 0, zone)
	if got := Filename("", startedAt); got != "recording_2025-03-14T09-26-53.mp4" {
		t.Fatalf("expected UTC timestamp, got %q", got)
	}
}

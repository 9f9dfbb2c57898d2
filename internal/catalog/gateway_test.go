package catalog

import (
	"strings"
	"testing"
)

func TestParseSearchOutputSkipsMalformedLines(t *testing.T) {
	out := strings.Join([]string{
		`{"title":"First","webpage_url":"https://example.com/1","duration":120,"uploader":"Artist A"}`,
		`not json at all`,
		``,
		`{"title":"Second","url":"https://example.com/2","duration":90.7,"uploader":"Artist B"}`,
	}, "\n")

	tracks := parseSearchOutput([]byte(out), 10)
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].Title != "First" || tracks[0].URL != "https://example.com/1" {
		t.Fatalf("unexpected first track: %+v", tracks[0])
	}
	if tracks[1].URL != "https://example.com/2" {
		t.Fatalf("url fallback not applied: %+v", tracks[1])
	}
	if tracks[1].Duration != 90 {
		t.Fatalf("duration = %d, want 90", tracks[1].Duration)
	}
}

func TestParseSearchOutputSkipsEntriesWithoutURL(t *testing.T) {
	out := strings.Join([]string{
		`{"title":"No locator","duration":60}`,
		`{"title":"Kept","webpage_url":"https://example.com/k"}`,
	}, "\n")

	tracks := parseSearchOutput([]byte(out), 10)
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	if tracks[0].Title != "Kept" {
		t.Fatalf("wrong track kept: %+v", tracks[0])
	}
}

func TestParseSearchOutputAppliesDefaults(t *testing.T) {
	out := `{"webpage_url":"https://example.com/x","duration":-5}`

	tracks := parseSearchOutput([]byte(out), 10)
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	tr := tracks[0]
	if tr.Title != UnknownTrack {
		t.Fatalf("title = %q, want %q", tr.Title, UnknownTrack)
	}
	if tr.Artist != UnknownArtist {
		t.Fatalf("artist = %q, want %q", tr.Artist, UnknownArtist)
	}
	if tr.Duration != 0 {
		t.Fatalf("duration = %d, want 0", tr.Duration)
	}
}

func TestParseSearchOutputHonorsLimit(t *testing.T) {
	var lines []string
	for i := 0; i < 8; i++ {
		lines = append(lines, `{"title":"T","webpage_url":"https://example.com/t"}`)
	}
	tracks := parseSearchOutput([]byte(strings.Join(lines, "\n")), 3)
	if len(tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(tracks))
	}
}

func TestParseSearchOutputCleansTitles(t *testing.T) {
	out := `{"title":"Great Song HD","webpage_url":"https://example.com/g"}`
	tracks := parseSearchOutput([]byte(out), 10)
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	if tracks[0].Title != "Great Song" {
		t.Fatalf("title = %q, want %q", tracks[0].Title, "Great Song")
	}
}

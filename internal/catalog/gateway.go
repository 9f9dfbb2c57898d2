package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/m3rciful/tunebot/internal/config"
	"github.com/m3rciful/tunebot/internal/logger"
)

// ErrDownloadFailure indicates the extraction engine produced no usable audio.
var ErrDownloadFailure = errors.New("catalog: download failure")

// AudioFile is the ephemeral result of one fetch: a file inside a scoped
// temporary directory. Release must be called on every path.
type AudioFile struct {
	Path string
	Name string

	dir string
}

// Release removes the temporary directory holding the audio artifact.
func (a *AudioFile) Release() {
	if a == nil || a.dir == "" {
		return
	}
	_ = os.RemoveAll(a.dir)
}

// Gateway wraps the yt-dlp extraction engine behind search and fetch.
type Gateway struct {
	bin           string
	searchTimeout time.Duration
	fetchTimeout  time.Duration
}

// NewGateway builds a Gateway from catalog configuration.
func NewGateway(cfg config.CatalogConfig) *Gateway {
	return &Gateway{
		bin:           cfg.Binary,
		searchTimeout: time.Duration(cfg.SearchTimeoutSeconds) * time.Second,
		fetchTimeout:  time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
	}
}

// FetchTimeout exposes the per-fetch deadline for the download queue.
func (g *Gateway) FetchTimeout() time.Duration {
	return g.fetchTimeout
}

// Search runs a free-text catalog search and returns at most limit tracks in
// relevance order. Every fault is treated as "no results": the error is
// logged here and an empty slice is returned, so caller handling is uniform.
func (g *Gateway) Search(ctx context.Context, query string, limit int) []Track {
	if limit <= 0 {
		limit = 10
	}
	ctx, cancel := context.WithTimeout(ctx, g.searchTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, g.bin,
		"--dump-json",
		"--flat-playlist",
		"--ignore-errors",
		"--no-warnings",
		"--quiet",
		fmt.Sprintf("scsearch%d:%s", limit, query),
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	runErr := cmd.Run()

	// Partial output is still usable: with --ignore-errors the engine may
	// exit non-zero after emitting valid entries.
	tracks := parseSearchOutput(stdout.Bytes(), limit)
	if runErr != nil && len(tracks) == 0 {
		logger.Error(ctx, "catalog", "search.fail",
			slog.String("query", logger.SanitizeLimit(query, 128)),
			slog.String("err", runErr.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil
	}

	logger.Debug(ctx, "catalog", "search.done",
		slog.String("query", logger.SanitizeLimit(query, 128)),
		slog.String("status", logger.Status(runErr)),
		slog.Int("count", len(tracks)),
		slog.Duration("duration", logger.Took(start)),
	)
	return tracks
}

// Fetch downloads the track audio into a scoped temporary directory.
// It fails with ErrDownloadFailure when the engine errors, yields zero bytes,
// or produces no output file. Retry policy belongs to the caller.
func (g *Gateway) Fetch(ctx context.Context, track Track) (*AudioFile, error) {
	if track.URL == "" {
		return nil, fmt.Errorf("%w: empty source url", ErrDownloadFailure)
	}

	dir, err := os.MkdirTemp("", "tunebot-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", ErrDownloadFailure, err)
	}

	cmd := exec.CommandContext(ctx, g.bin,
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--no-playlist",
		"--no-warnings",
		"--quiet",
		"-o", filepath.Join(dir, "track.%(ext)s"),
		track.URL,
	)
	if runErr := cmd.Run(); runErr != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailure, runErr)
	}

	audio, err := firstAudioFile(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return audio, nil
}

func firstAudioFile(dir string) (*AudioFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		return &AudioFile{
			Path: filepath.Join(dir, entry.Name()),
			Name: entry.Name(),
			dir:  dir,
		}, nil
	}
	return nil, fmt.Errorf("%w: no output produced", ErrDownloadFailure)
}

type searchEntry struct {
	Title      string  `json:"title"`
	WebpageURL string  `json:"webpage_url"`
	URL        string  `json:"url"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
}

// parseSearchOutput decodes the engine's JSON-lines output into tracks.
// Malformed lines and entries without a source locator are skipped rather
// than failing the whole call.
func parseSearchOutput(out []byte, limit int) []Track {
	var tracks []Track
	for _, line := range bytes.Split(out, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var entry searchEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		url := entry.WebpageURL
		if url == "" {
			url = entry.URL
		}
		if url == "" {
			continue
		}
		artist := entry.Uploader
		if artist == "" {
			artist = UnknownArtist
		}
		duration := int(entry.Duration)
		if duration < 0 {
			duration = 0
		}
		tracks = append(tracks, Track{
			Title:    CleanTitle(entry.Title),
			URL:      url,
			Duration: duration,
			Artist:   artist,
		})
		if len(tracks) >= limit {
			break
		}
	}
	return tracks
}

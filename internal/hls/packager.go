package hls

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/streamvault/api/internal/model"
)

// MasterManifestName is the top-level playlist filename. Its existence is
// the signal that adaptive packaging finished for a video.
const MasterManifestName = "master.m3u8"

// DefaultPackageTimeout bounds a single per-rendition segmenting run.
const DefaultPackageTimeout = 5 * time.Minute

// ErrNotFound is returned by the read operations when the requested file
// does not exist. Callers distinguish "never processed" from "in flight"
// by also checking job or video status.
var ErrNotFound = errors.New("hls: not found")

// PackagingError means the master manifest could not be produced at all.
type PackagingError struct {
	Err error
}

func (e *PackagingError) Error() string { return fmt.Sprintf("packaging: %v", e.Err) }

func (e *PackagingError) Unwrap() error { return e.Err }

// Packager slices completed renditions into fixed-duration segments and
// assembles the master manifest.
type Packager struct {
	bin            string
	timeout        time.Duration
	segmentSeconds int
}

func NewPackager(bin string, timeout time.Duration) *Packager {
	if bin == "" {
		bin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultPackageTimeout
	}
	return &Packager{bin: bin, timeout: timeout, segmentSeconds: 6}
}

// PackageAll segments every rendition result into outputDir and writes the
// master manifest last. A rendition that fails to package is logged and
// left out of the master; only a master with zero entries (or a failed
// manifest write) is an error.
func (p *Packager) PackageAll(ctx context.Context, results []model.RenditionResult, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", &PackagingError{Err: err}
	}

	packaged := make(map[string]bool, len(results))
	for _, result := range results {
		if err := p.packageOne(ctx, result, outputDir); err != nil {
			log.Printf("packaging %s failed, dropping from master: %v", result.Label, err)
			continue
		}
		packaged[result.Label] = true
	}

	var entries []string
	for _, spec := range model.DefaultRenditions {
		if !packaged[spec.Label] {
			continue
		}
		playlist := spec.Label + ".m3u8"
		if _, err := os.Stat(filepath.Join(outputDir, playlist)); err != nil {
			continue
		}
		entries = append(entries, fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n%s", spec.Bitrate, spec.Resolution(), playlist))
	}
	if len(entries) == 0 {
		return "", &PackagingError{Err: errors.New("no renditions packaged")}
	}

	manifest := "#EXTM3U\n#EXT-X-VERSION:3\n" + strings.Join(entries, "\n\n") + "\n"

	masterPath := filepath.Join(outputDir, MasterManifestName)
	tmp := masterPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(manifest), 0o644); err != nil {
		return "", &PackagingError{Err: err}
	}
	if err := os.Rename(tmp, masterPath); err != nil {
		return "", &PackagingError{Err: err}
	}
	return masterPath, nil
}

// packageOne produces {label}_000.ts … plus {label}.m3u8, tagged VOD.
// Segment names are deterministic so a re-run overwrites in place.
func (p *Packager) packageOne(ctx context.Context, result model.RenditionResult, outputDir string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	segmentPattern := filepath.Join(outputDir, result.Label+"_%03d.ts")
	playlistPath := filepath.Join(outputDir, result.Label+".m3u8")

	args := []string{
		"-y",
		"-i", result.OutputPath,
		"-c", "copy",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", p.segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", segmentPattern,
		playlistPath,
	}
	cmd := exec.CommandContext(ctx, p.bin, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("segmenting %s: timed out after %s", result.Label, p.timeout)
	}
	if err != nil {
		tail := strings.TrimSpace(stderr.String())
		if len(tail) > 1024 {
			tail = tail[len(tail)-1024:]
		}
		return fmt.Errorf("segmenting %s: %w: %s", result.Label, err, tail)
	}
	if _, err := os.Stat(playlistPath); err != nil {
		return fmt.Errorf("segmenting %s: playlist missing: %w", result.Label, err)
	}
	return nil
}

// ReadManifest returns the master manifest text for a packaged video dir.
func ReadManifest(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, MasterManifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

// ReadPlaylist returns one per-rendition playlist by filename.
func ReadPlaylist(dir, name string) (string, error) {
	if err := validateName(name, ".m3u8"); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

// ReadSegment returns one media segment by filename.
func ReadSegment(dir, name string) ([]byte, error) {
	if err := validateName(name, ".ts"); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// validateName rejects anything that is not a bare filename with the
// expected extension. Paths are constructed server-side only.
func validateName(name, ext string) error {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") || !strings.HasSuffix(name, ext) {
		return ErrNotFound
	}
	return nil
}

package hls

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/api/internal/model"
)

// segmenterStub writes an executable ffmpeg stand-in that produces the
// playlist it is asked for. extra is spliced in before the happy path,
// so a test can make specific renditions fail.
func segmenterStub(t *testing.T, extra string) string {
	t.Helper()
	script := "#!/bin/sh\n" + extra + `for last; do :; done
echo "#EXTM3U" > "$last"
`
	path := filepath.Join(t.TempDir(), "ffmpeg.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func ladderResults(labels ...string) []model.RenditionResult {
	var results []model.RenditionResult
	for _, spec := range model.DefaultRenditions {
		for _, label := range labels {
			if spec.Label == label {
				results = append(results, model.RenditionResult{
					Label:      spec.Label,
					OutputPath: spec.Label + ".mp4",
					Bitrate:    spec.Bitrate,
				})
			}
		}
	}
	return results
}

func TestPackager_PackageAll_MasterManifest(t *testing.T) {
	outputDir := t.TempDir()
	p := NewPackager(segmenterStub(t, ""), time.Minute)

	masterPath, err := p.PackageAll(context.Background(), ladderResults("360p", "720p", "1080p"), outputDir)
	require.NoError(t, err)

	data, readErr := os.ReadFile(masterPath)
	require.NoError(t, readErr)

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\n360p.m3u8\n" +
		"\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720\n720p.m3u8\n" +
		"\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080\n1080p.m3u8\n"
	assert.Equal(t, want, string(data))
}

func TestPackager_PackageAll_LadderOrderIndependentOfInput(t *testing.T) {
	outputDir := t.TempDir()
	p := NewPackager(segmenterStub(t, ""), time.Minute)

	// results arrive out of ladder order
	results := append(ladderResults("1080p"), ladderResults("360p")...)
	masterPath, err := p.PackageAll(context.Background(), results, outputDir)
	require.NoError(t, err)

	data, readErr := os.ReadFile(masterPath)
	require.NoError(t, readErr)

	first := strings.Index(string(data), "RESOLUTION=640x360")
	second := strings.Index(string(data), "RESOLUTION=1920x1080")
	assert.Less(t, first, second)
	assert.NotContains(t, string(data), "720p")
}

func TestPackager_PackageAll_DropsFailedRendition(t *testing.T) {
	outputDir := t.TempDir()
	stub := segmenterStub(t, `case "$*" in *720p*) exit 1;; esac
`)
	p := NewPackager(stub, time.Minute)

	masterPath, err := p.PackageAll(context.Background(), ladderResults("360p", "720p", "1080p"), outputDir)
	require.NoError(t, err)

	data, readErr := os.ReadFile(masterPath)
	require.NoError(t, readErr)
	assert.NotContains(t, string(data), "720p.m3u8")
	assert.Contains(t, string(data), "360p.m3u8")
	assert.Contains(t, string(data), "1080p.m3u8")
}

func TestPackager_PackageAll_AllFail(t *testing.T) {
	p := NewPackager(segmenterStub(t, "exit 1\n"), time.Minute)

	_, err := p.PackageAll(context.Background(), ladderResults("360p", "720p"), t.TempDir())

	var pkgErr *PackagingError
	require.ErrorAs(t, err, &pkgErr)
}

func TestPackager_PackageAll_NoResults(t *testing.T) {
	p := NewPackager(segmenterStub(t, ""), time.Minute)

	_, err := p.PackageAll(context.Background(), nil, t.TempDir())

	var pkgErr *PackagingError
	require.ErrorAs(t, err, &pkgErr)
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadManifest(dir)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, MasterManifestName), []byte("#EXTM3U\n"), 0o644))
	manifest, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", manifest)
}

func TestReadPlaylistAndSegment_RejectBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "360p.m3u8"), []byte("#EXTM3U\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "360p_000.ts"), []byte{0x47}, 0o644))

	playlist, err := ReadPlaylist(dir, "360p.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", playlist)

	segment, err := ReadSegment(dir, "360p_000.ts")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x47}, segment)

	for _, name := range []string{"", "..", "../master.m3u8", "sub/360p.m3u8", "360p.mp4", "360p..m3u8/../x.m3u8"} {
		_, err := ReadPlaylist(dir, name)
		assert.ErrorIs(t, err, ErrNotFound, "playlist name %q", name)
	}
	for _, name := range []string{"", "../360p_000.ts", "clip.mp4"} {
		_, err := ReadSegment(dir, name)
		assert.ErrorIs(t, err, ErrNotFound, "segment name %q", name)
	}
}

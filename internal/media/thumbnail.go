package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Thumbnailer grabs a single preview frame from a source video.
type Thumbnailer struct {
	bin string
}

func NewThumbnailer(bin string) *Thumbnailer {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Thumbnailer{bin: bin}
}

// Extract captures one frame at 10% of the stream duration and writes it
// as a JPEG under outputDir. Returns the thumbnail path.
func (t *Thumbnailer) Extract(ctx context.Context, inputPath, outputDir, videoID string, durationSeconds float64) (string, error) {
	outputPath := filepath.Join(outputDir, videoID+"_thumb.jpg")
	seek := durationSeconds * 0.10

	args := []string{
		"-ss", fmt.Sprintf("%.2f", seek),
		"-i", inputPath,
		"-vframes", "1",
		"-f", "image2",
		"-y",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, t.bin, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("thumbnail %s: %w: %s", videoID, err, stderrTail(stderr.String()))
	}
	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("thumbnail %s: output missing: %w", videoID, err)
	}
	return outputPath, nil
}

package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult holds the metadata extracted from a source file.
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
	HasAudio        bool
}

// FFProbe inspects media files by invoking ffprobe once per file.
type FFProbe struct {
	bin string
}

func NewFFProbe(bin string) *FFProbe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFProbe{bin: bin}
}

// Inspect extracts duration, dimensions and audio presence. A missing
// audio stream only clears HasAudio; duration or dimension extraction
// failure is fatal and returns an InspectionError.
func (p *FFProbe) Inspect(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	cmd := exec.CommandContext(ctx, p.bin, args...)

	output, err := cmd.Output()
	if err != nil {
		return nil, &InspectionError{Path: path, Err: fmt.Errorf("ffprobe failed: %w", err)}
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, &InspectionError{Path: path, Err: fmt.Errorf("parse ffprobe output: %w", err)}
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return nil, &InspectionError{Path: path, Err: fmt.Errorf("no usable duration in probe output")}
	}

	result := &ProbeResult{DurationSeconds: duration}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if result.Width == 0 {
				result.Width = stream.Width
				result.Height = stream.Height
			}
		case "audio":
			result.HasAudio = true
		}
	}
	if result.Width == 0 || result.Height == 0 {
		return nil, &InspectionError{Path: path, Err: fmt.Errorf("no video stream found")}
	}

	return result, nil
}

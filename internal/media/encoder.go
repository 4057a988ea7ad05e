package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/streamvault/api/internal/model"
)

// DefaultEncodeTimeout bounds a single full-file rendition encode.
const DefaultEncodeTimeout = 10 * time.Minute

// ProgressFunc receives coarse percent-complete updates as the encoder
// reports them. Callbacks fire from the encoder's reader goroutine and
// must not block for long.
type ProgressFunc func(percent int)

// Encoder produces one fixed-bitrate rendition per invocation via ffmpeg.
type Encoder struct {
	bin     string
	timeout time.Duration
}

func NewEncoder(bin string, timeout time.Duration) *Encoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultEncodeTimeout
	}
	return &Encoder{bin: bin, timeout: timeout}
}

// Encode transcodes inputPath into outputPath according to spec. The
// encode is constant-quality with a bitrate cap and a fixed keyframe
// interval. When hasAudio is false the audio stream is suppressed
// outright; ffmpeg fails on audio-less sources otherwise.
//
// The call is bounded by the encoder's wall-clock timeout; on expiry
// the ffmpeg process is killed and a TimeoutError is returned. Any other
// tool failure returns an EncodingError carrying the stderr tail.
func (e *Encoder) Encode(ctx context.Context, inputPath, outputPath string, spec model.RenditionSpec, durationSeconds float64, hasAudio bool, onProgress ProgressFunc) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=%d:%d", spec.Width, spec.Height),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-maxrate", strconv.Itoa(spec.Bitrate),
		"-bufsize", strconv.Itoa(spec.Bitrate * 2),
		"-g", "48",
		"-keyint_min", "48",
		"-sc_threshold", "0",
	}
	if hasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	} else {
		args = append(args, "-an")
	}
	args = append(args,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	)

	cmd := exec.CommandContext(ctx, e.bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &EncodingError{Label: spec.Label, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return &EncodingError{Label: spec.Label, Err: fmt.Errorf("ffmpeg start: %w", err)}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeProgress(bufio.NewScanner(stdout), durationSeconds, onProgress)
	}()

	// Drain stdout fully before Wait closes the pipe, or the last
	// progress lines can be lost.
	<-done
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return &TimeoutError{Label: spec.Label, Budget: e.timeout}
	}
	if waitErr != nil {
		return &EncodingError{Label: spec.Label, Output: stderrTail(stderrBuf.String()), Err: waitErr}
	}
	if _, err := os.Stat(outputPath); err != nil {
		return &EncodingError{Label: spec.Label, Err: fmt.Errorf("output file missing: %w", err)}
	}
	return nil
}

// consumeProgress parses ffmpeg's -progress key=value stream. out_time_ms
// is microseconds despite the name.
func consumeProgress(scanner *bufio.Scanner, durationSeconds float64, onProgress ProgressFunc) {
	last := -1
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch key {
		case "out_time_ms":
			if durationSeconds <= 0 || onProgress == nil {
				continue
			}
			outTime, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			current := int(math.Min(100, math.Max(0, outTime/1e6/durationSeconds*100)))
			if current > last {
				last = current
				onProgress(current)
			}
		case "progress":
			if value == "end" && onProgress != nil && last < 100 {
				onProgress(100)
			}
		}
	}
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	const max = 1024
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probeStub(t *testing.T, payload string) string {
	t.Helper()
	return writeStub(t, "cat <<'JSON'\n"+payload+"\nJSON\n")
}

func TestFFProbe_Inspect(t *testing.T) {
	stub := probeStub(t, `{"format":{"duration":"12.500000"},"streams":[{"codec_type":"video","width":1920,"height":1080},{"codec_type":"audio"}]}`)

	result, err := NewFFProbe(stub).Inspect(context.Background(), "in.mp4")
	require.NoError(t, err)

	assert.InDelta(t, 12.5, result.DurationSeconds, 0.001)
	assert.Equal(t, 1920, result.Width)
	assert.Equal(t, 1080, result.Height)
	assert.True(t, result.HasAudio)
}

func TestFFProbe_Inspect_NoAudioStream(t *testing.T) {
	stub := probeStub(t, `{"format":{"duration":"3.0"},"streams":[{"codec_type":"video","width":640,"height":360}]}`)

	result, err := NewFFProbe(stub).Inspect(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.False(t, result.HasAudio)
}

func TestFFProbe_Inspect_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "missing duration",
			payload: `{"format":{},"streams":[{"codec_type":"video","width":640,"height":360}]}`,
		},
		{
			name:    "zero duration",
			payload: `{"format":{"duration":"0"},"streams":[{"codec_type":"video","width":640,"height":360}]}`,
		},
		{
			name:    "no video stream",
			payload: `{"format":{"duration":"3.0"},"streams":[{"codec_type":"audio"}]}`,
		},
		{
			name:    "garbage output",
			payload: `not json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := probeStub(t, tt.payload)

			_, err := NewFFProbe(stub).Inspect(context.Background(), "in.mp4")

			var inspErr *InspectionError
			require.ErrorAs(t, err, &inspErr)
			assert.Equal(t, "in.mp4", inspErr.Path)
		})
	}
}

func TestFFProbe_Inspect_ToolFailure(t *testing.T) {
	stub := writeStub(t, "exit 1\n")

	_, err := NewFFProbe(stub).Inspect(context.Background(), "in.mp4")

	var inspErr *InspectionError
	require.ErrorAs(t, err, &inspErr)
}

func TestThumbnailer_Extract(t *testing.T) {
	outputDir := t.TempDir()
	stub := writeStub(t, `for last; do :; done
: > "$last"
`)

	path, err := NewThumbnailer(stub).Extract(context.Background(), "in.mp4", outputDir, "vid-1", 30)
	require.NoError(t, err)
	assert.Contains(t, path, "vid-1_thumb.jpg")
}

func TestThumbnailer_Extract_Failure(t *testing.T) {
	stub := writeStub(t, "exit 1\n")

	_, err := NewThumbnailer(stub).Extract(context.Background(), "in.mp4", t.TempDir(), "vid-1", 30)
	require.Error(t, err)
}

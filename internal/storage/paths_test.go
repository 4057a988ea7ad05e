package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	p := Paths{Root: "/data"}

	assert.Equal(t, filepath.Join("/data", "uploads", "user-1", "input.mp4"), p.SourcePath("user-1", "input.mp4"))
	assert.Equal(t, filepath.Join("/data", "processed", "user-1", "vid-1"), p.ProcessedDir("user-1", "vid-1"))
}

func TestPaths_SourcePathStripsDirectories(t *testing.T) {
	p := Paths{Root: "/data"}

	assert.Equal(t, filepath.Join("/data", "uploads", "user-1", "passwd"), p.SourcePath("user-1", "../../etc/passwd"))
}

package storage

import "path/filepath"

// Paths derives every on-disk location from identifiers. Nothing at this
// layer accepts a user-supplied path.
type Paths struct {
	Root string
}

// SourcePath is where an uploaded source file lives.
func (p Paths) SourcePath(uploaderID, filename string) string {
	return filepath.Join(p.Root, "uploads", uploaderID, filepath.Base(filename))
}

// ProcessedDir is the output directory owned exclusively by the job
// processing that video: renditions, thumbnail, and the HLS package.
func (p Paths) ProcessedDir(uploaderID, videoID string) string {
	return filepath.Join(p.Root, "processed", uploaderID, videoID)
}

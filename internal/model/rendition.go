package model

import "fmt"

// RenditionSpec is one fixed target of the encoding ladder. The order of
// DefaultRenditions defines both the encode sequence and the bandwidth
// ordering of the master playlist.
type RenditionSpec struct {
	Label   string `json:"label"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Bitrate int    `json:"bitrate"` // bits per second
}

// Resolution returns the WxH string used in EXT-X-STREAM-INF tags.
func (s RenditionSpec) Resolution() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// DefaultRenditions is the fixed encoding ladder, lowest tier first.
var DefaultRenditions = []RenditionSpec{
	{Label: "360p", Width: 640, Height: 360, Bitrate: 800_000},
	{Label: "720p", Width: 1280, Height: 720, Bitrate: 2_800_000},
	{Label: "1080p", Width: 1920, Height: 1080, Bitrate: 5_000_000},
}

// RenditionResult describes one successfully encoded rendition file.
type RenditionResult struct {
	Label      string `json:"label"`
	OutputPath string `json:"outputPath"`
	SizeBytes  int64  `json:"sizeBytes"`
	Bitrate    int    `json:"bitrate"`
}

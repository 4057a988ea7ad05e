package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/streamvault/api/internal/hls"
	"github.com/streamvault/api/internal/storage"
	"github.com/streamvault/api/pkg/response"
)

const (
	contentTypeM3U8 = "application/vnd.apple.mpegurl"
	contentTypeTS   = "video/mp2t"
)

// StreamHandler serves the packaged HLS artifacts for playback.
type StreamHandler struct {
	store storage.VideoStore
	paths storage.Paths
}

func NewStreamHandler(store storage.VideoStore, paths storage.Paths) *StreamHandler {
	return &StreamHandler{store: store, paths: paths}
}

// Master handles GET /streams/:videoId/master.m3u8
func (h *StreamHandler) Master(c *fiber.Ctx) error {
	dir, err := h.resolveDir(c)
	if err != nil {
		return h.videoError(c, err)
	}

	manifest, err := hls.ReadManifest(dir)
	if err != nil {
		if errors.Is(err, hls.ErrNotFound) {
			return response.NotFound(c, "Stream not available")
		}
		return response.ServiceError(c, err.Error())
	}

	c.Set(fiber.HeaderContentType, contentTypeM3U8)
	return c.SendString(manifest)
}

// File handles GET /streams/:videoId/:name for per-rendition playlists
// and media segments.
func (h *StreamHandler) File(c *fiber.Ctx) error {
	name := c.Params("name")
	dir, err := h.resolveDir(c)
	if err != nil {
		return h.videoError(c, err)
	}

	switch {
	case strings.HasSuffix(name, ".m3u8"):
		playlist, err := hls.ReadPlaylist(dir, name)
		if err != nil {
			if errors.Is(err, hls.ErrNotFound) {
				return response.NotFound(c, "Playlist not found")
			}
			return response.ServiceError(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, contentTypeM3U8)
		return c.SendString(playlist)

	case strings.HasSuffix(name, ".ts"):
		segment, err := hls.ReadSegment(dir, name)
		if err != nil {
			if errors.Is(err, hls.ErrNotFound) {
				return response.NotFound(c, "Segment not found")
			}
			return response.ServiceError(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, contentTypeTS)
		return c.Send(segment)

	default:
		return response.NotFound(c, "Not found")
	}
}

// Thumbnail handles GET /thumbnails/:videoId
func (h *StreamHandler) Thumbnail(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	video, err := h.store.GetVideoByID(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return response.ServiceError(c, err.Error())
	}
	if video.ThumbnailPath == "" {
		return response.NotFound(c, "Thumbnail not available")
	}

	return c.SendFile(video.ThumbnailPath)
}

// resolveDir maps a videoId to its processed output directory.
func (h *StreamHandler) resolveDir(c *fiber.Ctx) (string, error) {
	videoID := c.Params("videoId")
	if videoID == "" {
		return "", storage.ErrNotFound
	}

	video, err := h.store.GetVideoByID(c.Context(), videoID)
	if err != nil {
		return "", err
	}

	return h.paths.ProcessedDir(video.UploaderID, video.ID), nil
}

func (h *StreamHandler) videoError(c *fiber.Ctx, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return response.NotFound(c, "Video not found")
	}
	return response.ServiceError(c, err.Error())
}

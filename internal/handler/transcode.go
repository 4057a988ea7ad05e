package handler

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/streamvault/api/internal/model"
	"github.com/streamvault/api/internal/queue"
	"github.com/streamvault/api/internal/storage"
	"github.com/streamvault/api/pkg/response"
)

type TranscodeHandler struct {
	queue     *queue.TranscodeQueue
	store     storage.VideoStore
	validator *validator.Validate
}

func NewTranscodeHandler(q *queue.TranscodeQueue, store storage.VideoStore, v *validator.Validate) *TranscodeHandler {
	return &TranscodeHandler{
		queue:     q,
		store:     store,
		validator: v,
	}
}

// CreateVideo handles POST /api/videos
func (h *TranscodeHandler) CreateVideo(c *fiber.Ctx) error {
	var req model.CreateVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	now := time.Now()
	video := &model.Video{
		ID:         uuid.New().String(),
		UploaderID: req.UploaderID,
		Filename:   req.Filename,
		Status:     model.VideoStatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.SaveVideo(c.Context(), video); err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, video)
}

// GetVideo handles GET /api/videos/:id
func (h *TranscodeHandler) GetVideo(c *fiber.Ctx) error {
	videoID := c.Params("id")
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

	return response.OK(c, video)
}

// Start handles POST /api/videos/:id/transcode
func (h *TranscodeHandler) Start(c *fiber.Ctx) error {
	videoID := c.Params("id")
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

	handle, err := h.queue.Enqueue(c.Context(), model.TranscodeJobPayload{
		VideoID: video.ID,
		UserID:  video.UploaderID,
	})
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	result := model.TranscodeStartResponse{JobID: handle.ID, Existing: handle.Existing}
	if handle.Existing {
		return response.OK(c, result)
	}
	return response.Accepted(c, result)
}

// VideoJob handles GET /api/videos/:id/job and resolves the most recent
// job for a video.
func (h *TranscodeHandler) VideoJob(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	job, err := h.queue.GetStatusByVideo(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return response.NotFound(c, "No job for video")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// JobStatus handles GET /api/jobs/:jobId
func (h *TranscodeHandler) JobStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.queue.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// RetryFailed handles POST /api/jobs/retry-failed
func (h *TranscodeHandler) RetryFailed(c *fiber.Ctx) error {
	retried, err := h.queue.RetryFailed(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.RetryFailedResponse{Retried: retried})
}

// Cleanup handles POST /api/jobs/cleanup
func (h *TranscodeHandler) Cleanup(c *fiber.Ctx) error {
	olderThanDays := c.QueryInt("olderThanDays", 7)
	if olderThanDays < 1 {
		return response.ValidationError(c, "olderThanDays must be at least 1", nil)
	}

	removed, err := h.queue.Cleanup(c.Context(), olderThanDays)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"removed": removed})
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/streamvault/api/internal/client"
	"github.com/streamvault/api/internal/media"
	"github.com/streamvault/api/internal/model"
	"github.com/streamvault/api/internal/progress"
	"github.com/streamvault/api/internal/queue"
	"github.com/streamvault/api/internal/storage"
)

// SourceMissingError means the uploaded source file disappeared between
// enqueue and processing.
type SourceMissingError struct {
	Path string
}

func (e *SourceMissingError) Error() string {
	return fmt.Sprintf("source file missing: %s", e.Path)
}

// NoRenditionsError means every rendition in the ladder failed to encode.
type NoRenditionsError struct{}

func (e *NoRenditionsError) Error() string { return "no renditions produced" }

// Prober extracts metadata from a source file.
type Prober interface {
	Inspect(ctx context.Context, path string) (*media.ProbeResult, error)
}

// RenditionEncoder produces one encoded rendition of a source file.
type RenditionEncoder interface {
	Encode(ctx context.Context, inputPath, outputPath string, spec model.RenditionSpec, durationSeconds float64, hasAudio bool, onProgress media.ProgressFunc) error
}

// ThumbnailExtractor captures a poster frame from a source file.
type ThumbnailExtractor interface {
	Extract(ctx context.Context, inputPath, outputDir, videoID string, durationSeconds float64) (string, error)
}

// Packager segments renditions and writes the master manifest.
type Packager interface {
	PackageAll(ctx context.Context, results []model.RenditionResult, outputDir string) (string, error)
}

// JobTracker is the queue-side record keeping the worker reports into.
type JobTracker interface {
	MarkActive(ctx context.Context, jobID string) (*model.TranscodeJob, error)
	SetProgress(ctx context.Context, jobID string, percent int)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	MarkRetrying(ctx context.Context, jobID, reason string) error
}

// Overall progress checkpoints. The 0-35 band belongs to the upload
// phase, which is reported by the upload handler, not this worker.
const (
	percentValidating = 35
	percentMetadata   = 40
	percentThumbnail  = 50
	percentEncodeLow  = 60
	percentEncodeHigh = 90
	percentDone       = 100
)

// TranscodeWorker drives one video through the full pipeline: validate,
// probe, thumbnail, encode the rendition ladder, package for HLS.
type TranscodeWorker struct {
	store       storage.VideoStore
	tracker     JobTracker
	prober      Prober
	encoder     RenditionEncoder
	thumbnail   ThumbnailExtractor
	packager    Packager
	events      *progress.Channel
	paths       storage.Paths
	renditions  []model.RenditionSpec
	objectStore client.StorageClient
}

func NewTranscodeWorker(store storage.VideoStore, tracker JobTracker, prober Prober, encoder RenditionEncoder, thumbnail ThumbnailExtractor, packager Packager, events *progress.Channel, paths storage.Paths, objectStore client.StorageClient) *TranscodeWorker {
	return &TranscodeWorker{
		store:       store,
		tracker:     tracker,
		prober:      prober,
		encoder:     encoder,
		thumbnail:   thumbnail,
		packager:    packager,
		events:      events,
		paths:       paths,
		renditions:  model.DefaultRenditions,
		objectStore: objectStore,
	}
}

// ProcessTask handles one transcode task delivery.
func (w *TranscodeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var envelope queue.TaskEnvelope
	if err := json.Unmarshal(t.Payload(), &envelope); err != nil {
		return fmt.Errorf("unmarshal task envelope: %w: %w", err, asynq.SkipRetry)
	}

	var payload model.TranscodeJobPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		w.finishFailed(ctx, envelope.JobID, payload, "invalid job payload")
		return fmt.Errorf("unmarshal transcode payload: %w: %w", err, asynq.SkipRetry)
	}

	jobID := envelope.JobID
	log.Printf("Starting transcode job %s for video %s", jobID, payload.VideoID)

	job, err := w.tracker.MarkActive(ctx, jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobFinished) {
			log.Printf("Dropping duplicate delivery for finished job %s", jobID)
			return nil
		}
		return fmt.Errorf("mark job %s active: %w", jobID, err)
	}

	if err := w.process(ctx, job, payload); err != nil {
		return w.fail(ctx, jobID, payload, err)
	}

	log.Printf("Transcode job %s completed", jobID)
	return nil
}

func (w *TranscodeWorker) process(ctx context.Context, job *model.TranscodeJob, payload model.TranscodeJobPayload) error {
	// Seed the high-water mark from the record so a retried attempt
	// never reports below what an earlier attempt already published.
	emit := &emitter{events: w.events, tracker: w.tracker, jobID: job.ID, userID: payload.UserID, videoID: payload.VideoID, last: job.Progress}

	video, err := w.store.GetVideoByID(ctx, payload.VideoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", payload.VideoID, err)
	}

	// Step 1: validate the source
	emit.progress(model.StageValidating, percentValidating, "Validating uploaded file")
	sourcePath := w.paths.SourcePath(video.UploaderID, video.Filename)
	if _, err := os.Stat(sourcePath); err != nil {
		return &SourceMissingError{Path: sourcePath}
	}
	if err := w.store.UpdateVideoStatus(ctx, video.ID, model.VideoStatusProcessing, storage.VideoUpdate{}); err != nil {
		return fmt.Errorf("mark video processing: %w", err)
	}

	// Step 2: extract metadata
	emit.progress(model.StageProcessing, percentMetadata, "Extracting metadata")
	probed, err := w.prober.Inspect(ctx, sourcePath)
	if err != nil {
		return err
	}
	if err := w.store.UpdateVideoStatus(ctx, video.ID, model.VideoStatusProcessing, storage.VideoUpdate{
		DurationSeconds: &probed.DurationSeconds,
	}); err != nil {
		return fmt.Errorf("save video duration: %w", err)
	}

	outputDir := w.paths.ProcessedDir(video.UploaderID, video.ID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// Step 3: thumbnail. Unlike a single rendition, a missing thumbnail
	// fails the whole job.
	emit.progress(model.StageProcessing, percentThumbnail, "Generating thumbnail")
	thumbPath, err := w.thumbnail.Extract(ctx, sourcePath, outputDir, video.ID, probed.DurationSeconds)
	if err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}
	if err := w.store.UpdateVideoStatus(ctx, video.ID, model.VideoStatusProcessing, storage.VideoUpdate{
		ThumbnailPath: &thumbPath,
	}); err != nil {
		return fmt.Errorf("save thumbnail path: %w", err)
	}

	// Step 4: encode the ladder, sequentially and in order. A failed
	// rendition is dropped; the job survives as long as one succeeds.
	results := w.encodeLadder(ctx, emit, sourcePath, outputDir, probed)
	if len(results) == 0 {
		return &NoRenditionsError{}
	}

	// Step 5: segment and write the master manifest
	emit.progress(model.StageFinalizing, percentEncodeHigh, "Packaging for streaming")
	if _, err := w.packager.PackageAll(ctx, results, outputDir); err != nil {
		return err
	}

	files := make([]model.VideoFile, 0, len(results))
	for _, r := range results {
		files = append(files, model.VideoFile{
			VideoID:   video.ID,
			Quality:   r.Label,
			Path:      r.OutputPath,
			SizeBytes: r.SizeBytes,
			Bitrate:   r.Bitrate,
		})
	}
	if err := w.store.CreateRenditionRecords(ctx, video.ID, files); err != nil {
		return fmt.Errorf("save rendition records: %w", err)
	}

	w.mirror(ctx, video, outputDir)

	if err := w.store.UpdateVideoStatus(ctx, video.ID, model.VideoStatusReady, storage.VideoUpdate{}); err != nil {
		return fmt.Errorf("mark video ready: %w", err)
	}
	if err := w.tracker.MarkCompleted(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}

	emit.progress(model.StageCompleted, percentDone, "Done")
	return nil
}

// encodeLadder runs every rendition in ladder order and returns the ones
// that succeeded.
func (w *TranscodeWorker) encodeLadder(ctx context.Context, emit *emitter, sourcePath, outputDir string, probed *media.ProbeResult) []model.RenditionResult {
	band := float64(percentEncodeHigh-percentEncodeLow) / float64(len(w.renditions))

	var results []model.RenditionResult
	for i, spec := range w.renditions {
		base := float64(percentEncodeLow) + band*float64(i)
		emit.progress(model.StageEncoding, int(base), fmt.Sprintf("Encoding %s", spec.Label))

		outputPath := fmt.Sprintf("%s/%s.mp4", outputDir, spec.Label)
		err := w.encoder.Encode(ctx, sourcePath, outputPath, spec, probed.DurationSeconds, probed.HasAudio, func(percent int) {
			emit.progress(model.StageEncoding, int(base+band*float64(percent)/100), fmt.Sprintf("Encoding %s", spec.Label))
		})
		if err != nil {
			log.Printf("Rendition %s failed, continuing: %v", spec.Label, err)
			continue
		}

		size := int64(0)
		if info, statErr := os.Stat(outputPath); statErr == nil {
			size = info.Size()
		}
		results = append(results, model.RenditionResult{
			Label:      spec.Label,
			OutputPath: outputPath,
			SizeBytes:  size,
			Bitrate:    spec.Bitrate,
		})
	}
	return results
}

// mirror copies the packaged output to object storage when a client is
// configured. Mirroring is best effort and never fails the job.
func (w *TranscodeWorker) mirror(ctx context.Context, video *model.Video, outputDir string) {
	if w.objectStore == nil {
		return
	}
	prefix := fmt.Sprintf("videos/%s/%s", video.UploaderID, video.ID)
	if err := w.objectStore.UploadDirectory(ctx, prefix, outputDir); err != nil {
		log.Printf("Mirror to object storage failed for video %s: %v", video.ID, err)
	}
}

// fail routes an error to retry or terminal failure depending on how
// much of the retry budget is left.
func (w *TranscodeWorker) fail(ctx context.Context, jobID string, payload model.TranscodeJobPayload, cause error) error {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	if retried >= maxRetry {
		w.finishFailed(ctx, jobID, payload, cause.Error())
		return cause
	}

	log.Printf("Transcode job %s attempt failed, will retry: %v", jobID, cause)
	if err := w.tracker.MarkRetrying(ctx, jobID, cause.Error()); err != nil {
		log.Printf("Failed to mark job %s retrying: %v", jobID, err)
	}
	return cause
}

// finishFailed records the terminal failure and broadcasts the error
// event. The error event drops overall progress back to zero so clients
// render a clean failed state.
func (w *TranscodeWorker) finishFailed(ctx context.Context, jobID string, payload model.TranscodeJobPayload, reason string) {
	log.Printf("Transcode job %s failed: %s", jobID, reason)
	if err := w.tracker.MarkFailed(ctx, jobID, reason); err != nil {
		log.Printf("Failed to mark job %s failed: %v", jobID, err)
	}
	if payload.VideoID != "" {
		if err := w.store.UpdateVideoStatus(ctx, payload.VideoID, model.VideoStatusFailed, storage.VideoUpdate{Error: &reason}); err != nil {
			log.Printf("Failed to mark video %s failed: %v", payload.VideoID, err)
		}
	}
	w.events.Publish(jobID, payload.UserID, model.ProgressEvent{
		VideoID:         payload.VideoID,
		Stage:           model.StageError,
		OverallProgress: 0,
		Error:           reason,
		Timestamp:       time.Now(),
	})
}

// emitter publishes progress for one job and keeps the reported overall
// percentage monotone across stages.
type emitter struct {
	events  *progress.Channel
	tracker JobTracker
	jobID   string
	userID  string
	videoID string
	last    int
}

func (e *emitter) progress(stage model.Stage, percent int, task string) {
	if percent < e.last {
		percent = e.last
	}
	e.last = percent

	// processingProgress rescales the worker's 35..100 band to 0..100.
	processing := 0
	if percent > percentValidating {
		processing = (percent - percentValidating) * 100 / (percentDone - percentValidating)
	}

	e.tracker.SetProgress(context.Background(), e.jobID, percent)
	e.events.Publish(e.jobID, e.userID, model.ProgressEvent{
		VideoID:            e.videoID,
		Stage:              stage,
		ProcessingProgress: &processing,
		OverallProgress:    percent,
		CurrentTask:        task,
		Timestamp:          time.Now(),
	})
}

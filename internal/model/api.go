package model

// CreateVideoRequest registers an already-uploaded source file so it can
// be transcoded.
type CreateVideoRequest struct {
	UploaderID string `json:"uploaderId" validate:"required,uuid4|alphanum"`
	Filename   string `json:"filename" validate:"required,max=255"`
}

// TranscodeStartResponse acknowledges an enqueue. Existing is true when
// the video already had a live job and no new one was created.
type TranscodeStartResponse struct {
	JobID    string `json:"jobId"`
	Existing bool   `json:"existing"`
}

// RetryFailedResponse reports how many failed jobs were re-enqueued.
type RetryFailedResponse struct {
	Retried int `json:"retried"`
}

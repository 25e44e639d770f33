package models

import (
	"time"
)

// Enums
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRendering JobStatus = "rendering"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// MediaKind distinguishes still-image scenes from video-clip scenes.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Models

// RenderJob is one entry in the job registry. It is created in "queued" by
// the submission handler and afterwards mutated only by the job's own
// goroutine; status pollers receive copies.
type RenderJob struct {
	ID              string    `json:"job_id"`
	ProjectID       string    `json:"project_id"`
	RenderID        string    `json:"render_id"`
	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"`
	Message         string    `json:"message"`
	VideoURL        *string   `json:"video_url"`
	Error           *string   `json:"error"`
	LocalBackupPath *string   `json:"local_path,omitempty"`
	UploadError     *string   `json:"upload_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Scene is one entry of a render request's scene list. Exactly one of
// VideoURL / ImageURL is expected; a scene carrying neither is skipped
// during asset fetch. Duration is the target on-screen time in seconds.
type Scene struct {
	SceneNumber int     `json:"scene_number,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	VideoURL    string  `json:"video_url,omitempty"`
	Duration    float64 `json:"duration"`
	Narration   string  `json:"narration,omitempty"`
}

// WordTimestamp is a single narration word with its precise timing,
// as produced by Whisper transcription. Times are in seconds.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Project is a JSON-on-disk project record.
type Project struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Created    int64   `json:"created"`
	Transcript string  `json:"transcript"`
	Scenes     []Scene `json:"scenes"`
	AudioPath  string  `json:"audio_path,omitempty"`
}

// DTOs for API requests/responses

type RenderRequest struct {
	ProjectID      string          `json:"project_id"`
	RenderID       string          `json:"render_id"`
	AudioURL       string          `json:"audio_url"`
	Scenes         []Scene         `json:"scenes"`
	WordTimestamps []WordTimestamp `json:"word_timestamps,omitempty"`
	// Optional remote storage target; when absent the job completes with
	// a locally-served video URL.
	SupabaseURL string `json:"supabase_url,omitempty"`
	SupabaseKey string `json:"supabase_key,omitempty"`
}

// Validate returns a human-readable reason when the request cannot be
// accepted, or "" when it can.
func (r *RenderRequest) Validate() string {
	if r.ProjectID == "" {
		return "project_id is required"
	}
	if r.RenderID == "" {
		return "render_id is required"
	}
	if r.AudioURL == "" {
		return "audio_url is required"
	}
	if len(r.Scenes) == 0 {
		return "scenes must not be empty"
	}
	return ""
}

type RenderResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
}

// JobStatusResponse is the only shape status pollers ever observe.
type JobStatusResponse struct {
	Success  bool      `json:"success"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
	VideoURL *string   `json:"video_url"`
	Error    *string   `json:"error"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type TranscribeRequest struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language,omitempty"`
}

type TranscribeResponse struct {
	Success bool            `json:"success"`
	Words   []WordTimestamp `json:"words"`
	Text    string          `json:"text,omitempty"`
}

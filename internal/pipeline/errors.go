package pipeline

import (
	"fmt"
)

// Error taxonomy for the render pipeline. Every fatal stage failure is
// one of these; the wrapped cause usually carries the encoder's stderr
// tail. Upload failures are deliberately absent from the fatal set —
// see publish.go.

// DownloadError means a required remote asset could not be retrieved.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download failed (status %d): %s", e.Status, e.URL)
	}
	return fmt.Sprintf("download failed: %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// NoValidScenesError means not a single scene carried a usable image or
// video reference. Raised before any encoder subprocess is spawned.
type NoValidScenesError struct{}

func (e *NoValidScenesError) Error() string {
	return "no valid scenes with image_url or video_url"
}

// SegmentRenderError carries the failing scene's index.
type SegmentRenderError struct {
	Index int
	Err   error
}

func (e *SegmentRenderError) Error() string {
	return fmt.Sprintf("segment %d render failed: %v", e.Index, e.Err)
}

func (e *SegmentRenderError) Unwrap() error { return e.Err }

// AssemblyError is raised only after the concat fallback also failed.
type AssemblyError struct {
	Err error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly failed: %v", e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// AudioMergeError means the narration mux failed.
type AudioMergeError struct {
	Err error
}

func (e *AudioMergeError) Error() string {
	return fmt.Sprintf("audio merge failed: %v", e.Err)
}

func (e *AudioMergeError) Unwrap() error { return e.Err }

// PipelineError wraps unanticipated failures (filesystem, local copy).
type PipelineError struct {
	Err error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error: %v", e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

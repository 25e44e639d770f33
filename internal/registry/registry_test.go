package registry

import (
	"testing"

	"github.com/storyreel/renderd/internal/models"
)

func TestCreateStartsQueued(t *testing.T) {
	r := New()
	job := r.Create("job-1", "proj", "rend")

	if job.Status != models.JobStatusQueued {
		t.Errorf("status = %q, want queued", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("progress = %d, want 0", job.Progress)
	}

	got, ok := r.Get("job-1")
	if !ok {
		t.Fatal("job not found after Create")
	}
	if got.ProjectID != "proj" || got.RenderID != "rend" {
		t.Errorf("identifiers not stored: %+v", got)
	}
}

func TestGetUnknownJob(t *testing.T) {
	r := New()
	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected miss for unknown job")
	}
}

func TestApplyMovesToRendering(t *testing.T) {
	r := New()
	r.Create("job-1", "p", "r")

	r.Apply("job-1", Update{Stage: "fetch", Progress: 20, Message: "Assets downloaded"})

	job, _ := r.Get("job-1")
	if job.Status != models.JobStatusRendering {
		t.Errorf("status = %q, want rendering", job.Status)
	}
	if job.Progress != 20 {
		t.Errorf("progress = %d, want 20", job.Progress)
	}
	if job.Message != "Assets downloaded" {
		t.Errorf("message = %q", job.Message)
	}
}

func TestProgressIsMonotone(t *testing.T) {
	r := New()
	r.Create("job-1", "p", "r")

	r.Apply("job-1", Update{Progress: 50, Message: "half"})
	r.Apply("job-1", Update{Progress: 30, Message: "late report"})

	job, _ := r.Get("job-1")
	if job.Progress != 50 {
		t.Errorf("progress regressed to %d", job.Progress)
	}
	// The message still moves even when the percentage does not.
	if job.Message != "late report" {
		t.Errorf("message = %q, want late report", job.Message)
	}
}

func TestCompleteForcesHundred(t *testing.T) {
	r := New()
	r.Create("job-1", "p", "r")
	r.Apply("job-1", Update{Progress: 90})

	r.Complete("job-1", "https://example.com/v.mp4")

	job, _ := r.Get("job-1")
	if job.Status != models.JobStatusCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	if job.VideoURL == nil || *job.VideoURL != "https://example.com/v.mp4" {
		t.Errorf("video url not recorded: %v", job.VideoURL)
	}
}

func TestFailRecordsError(t *testing.T) {
	r := New()
	r.Create("job-1", "p", "r")

	r.Fail("job-1", "encoder exploded")

	job, _ := r.Get("job-1")
	if job.Status != models.JobStatusFailed {
		t.Errorf("status = %q, want failed", job.Status)
	}
	if job.Error == nil || *job.Error != "encoder exploded" {
		t.Errorf("error not recorded: %v", job.Error)
	}
	if job.Message != "Error: encoder exploded" {
		t.Errorf("message = %q", job.Message)
	}
}

func TestTerminalStatesAreFrozen(t *testing.T) {
	r := New()
	r.Create("job-1", "p", "r")
	r.Complete("job-1", "url")

	r.Apply("job-1", Update{Progress: 10, Message: "zombie update"})
	r.Fail("job-1", "too late")

	job, _ := r.Get("job-1")
	if job.Status != models.JobStatusCompleted {
		t.Errorf("terminal status overwritten: %q", job.Status)
	}
	if job.Progress != 100 || job.Message == "zombie update" {
		t.Errorf("terminal entry mutated: %+v", job)
	}
}

func TestUploadErrorAndBackupPath(t *testing.T) {
	r := New()
	r.Create("job-1", "p", "r")

	r.SetLocalBackup("job-1", "/output/p/r.mp4")
	r.SetUploadError("job-1", "status 503")

	job, _ := r.Get("job-1")
	if job.LocalBackupPath == nil || *job.LocalBackupPath != "/output/p/r.mp4" {
		t.Errorf("backup path not recorded: %v", job.LocalBackupPath)
	}
	if job.UploadError == nil || *job.UploadError != "status 503" {
		t.Errorf("upload error not recorded: %v", job.UploadError)
	}
}

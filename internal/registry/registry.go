package registry

import (
	"sync"
	"time"

	"github.com/storyreel/renderd/internal/models"
)

// Update is a single progress report sent from the pipeline to the
// registry. The pipeline never touches registry storage directly.
type Update struct {
	Stage    string
	Progress int
	Message  string
}

// Registry is the in-memory job table shared across concurrent jobs.
// Insertion and lookup are guarded by the mutex; each entry's fields are
// only ever written by that job's own goroutine, so per-entry writes
// never race with each other.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*models.RenderJob
}

func New() *Registry {
	return &Registry{
		jobs: make(map[string]*models.RenderJob),
	}
}

// Create inserts a new entry in the queued state and returns its snapshot.
func (r *Registry) Create(jobID, projectID, renderID string) models.RenderJob {
	now := time.Now()
	job := &models.RenderJob{
		ID:        jobID,
		ProjectID: projectID,
		RenderID:  renderID,
		Status:    models.JobStatusQueued,
		Progress:  0,
		Message:   "Queued for rendering",
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.jobs[jobID] = job
	r.mu.Unlock()

	return *job
}

// Get returns a copy of the entry; pollers never see live pointers.
func (r *Registry) Get(jobID string) (models.RenderJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return models.RenderJob{}, false
	}
	return *job, true
}

// Apply records a progress update. Progress is monotone within a job:
// an update below the current value keeps the old percentage (the
// message still updates, since stages report sub-steps out of band).
func (r *Registry) Apply(jobID string, u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}

	job.Status = models.JobStatusRendering
	if u.Progress > job.Progress {
		job.Progress = u.Progress
	}
	if u.Message != "" {
		job.Message = u.Message
	}
	job.UpdatedAt = time.Now()
}

// SetLocalBackup records the durable local copy's path.
func (r *Registry) SetLocalBackup(jobID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[jobID]; ok {
		job.LocalBackupPath = &path
		job.UpdatedAt = time.Now()
	}
}

// SetUploadError records a non-fatal remote upload failure.
func (r *Registry) SetUploadError(jobID, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[jobID]; ok {
		job.UploadError = &detail
		job.UpdatedAt = time.Now()
	}
}

// Complete moves the job to its success terminal state. Progress is
// forced to 100 exactly here and nowhere else.
func (r *Registry) Complete(jobID, videoURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}

	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.Message = "Render complete"
	job.VideoURL = &videoURL
	job.UpdatedAt = time.Now()
}

// Fail moves the job to its failure terminal state.
func (r *Registry) Fail(jobID, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}

	job.Status = models.JobStatusFailed
	job.Error = &errMsg
	job.Message = "Error: " + errMsg
	job.UpdatedAt = time.Now()
}

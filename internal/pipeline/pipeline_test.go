package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/storyreel/renderd/internal/ffmpeg"
	"github.com/storyreel/renderd/internal/models"
	"github.com/storyreel/renderd/internal/registry"
)

// fakeRunner stands in for the encoder: it records each invocation and
// writes a stub file at the output path (the last argument) so later
// stages find their inputs on disk.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	failOn func(args []string) bool
}

func (f *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	if f.failOn != nil && f.failOn(args) {
		return errors.New("encoder exploded")
	}
	return os.WriteFile(args[len(args)-1], []byte("stub video"), 0o644)
}

func (f *fakeRunner) callsMatching(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.Contains(strings.Join(call, " "), substr) {
			n++
		}
	}
	return n
}

// fakeUploader records uploads and can be told to reject them.
type fakeUploader struct {
	uploads   []string
	renderUps []map[string]string
	failAll   bool
}

func (f *fakeUploader) UploadFile(ctx context.Context, storagePath, localPath, contentType string) error {
	if f.failAll {
		return errors.New("storage unavailable")
	}
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	f.uploads = append(f.uploads, storagePath)
	return nil
}

func (f *fakeUploader) PublicURL(path string) string {
	return "https://cdn.example.com/" + path
}

func (f *fakeUploader) UpdateRender(ctx context.Context, renderID string, fields map[string]string) {
	f.renderUps = append(f.renderUps, fields)
}

type testEnv struct {
	pipeline *Pipeline
	registry *registry.Registry
	runner   *fakeRunner
	uploader *fakeUploader
	server   *httptest.Server
	workDir  string
	outDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("media bytes"))
	}))
	t.Cleanup(server.Close)

	root := t.TempDir()
	workDir := filepath.Join(root, "work")
	outDir := filepath.Join(root, "output")

	runner := &fakeRunner{}
	uploader := &fakeUploader{}
	reg := registry.New()
	log := zap.NewNop().Sugar()

	p := New(reg, ffmpeg.NewService(runner, 30, log), Options{
		WorkDir:       workDir,
		OutputDir:     outDir,
		PublicBaseURL: "http://localhost:5001",
		Bucket:        "renders",
	}, log)
	p.newUploader = func(url, serviceKey string) Uploader { return uploader }

	return &testEnv{
		pipeline: p,
		registry: reg,
		runner:   runner,
		uploader: uploader,
		server:   server,
		workDir:  workDir,
		outDir:   outDir,
	}
}

func (e *testEnv) request(scenes []models.Scene) models.RenderRequest {
	return models.RenderRequest{
		ProjectID:   "proj1",
		RenderID:    "rend1",
		AudioURL:    e.server.URL + "/audio.mp3",
		Scenes:      scenes,
		SupabaseURL: "https://fake.supabase.co",
		SupabaseKey: "service-key",
	}
}

func imageScenes(e *testEnv, n int) []models.Scene {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{ImageURL: sceneURL(e, "img.png"), Duration: 4}
	}
	return scenes
}

// runJob drives a request synchronously through the same path Submit's
// goroutine takes.
func (e *testEnv) runJob(t *testing.T, req models.RenderRequest) models.RenderJob {
	t.Helper()
	jobID := "test-job-0000"
	e.registry.Create(jobID, req.ProjectID, req.RenderID)
	e.pipeline.run(jobID, req)
	job, ok := e.registry.Get(jobID)
	if !ok {
		t.Fatal("job vanished from registry")
	}
	return job
}

func sceneURL(e *testEnv, name string) string {
	return e.server.URL + "/" + name
}

func TestRunHappyPath(t *testing.T) {
	e := newTestEnv(t)
	scenes := []models.Scene{
		{ImageURL: sceneURL(e, "a.png"), Duration: 5},
		{VideoURL: sceneURL(e, "b.mp4"), Duration: 3},
		{ImageURL: sceneURL(e, "c.png"), Duration: 4},
	}

	job := e.runJob(t, e.request(scenes))

	if job.Status != models.JobStatusCompleted {
		t.Fatalf("status = %q (%v), want completed", job.Status, job.Error)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	if job.VideoURL == nil || *job.VideoURL != "https://cdn.example.com/proj1/rend1.mp4" {
		t.Errorf("video url = %v", job.VideoURL)
	}

	// Two image segments plus one video segment, then an xfade assembly.
	if n := e.runner.callsMatching("zoompan"); n != 2 {
		t.Errorf("image segment renders = %d, want 2", n)
	}
	if n := e.runner.callsMatching("pad=1920:1080"); n != 1 {
		t.Errorf("video segment renders = %d, want 1", n)
	}
	if n := e.runner.callsMatching("-filter_complex"); n != 1 {
		t.Errorf("xfade invocations = %d, want 1", n)
	}

	// Local backup always written; work dir removed on success.
	if _, err := os.Stat(filepath.Join(e.outDir, "proj1", "rend1.mp4")); err != nil {
		t.Errorf("local backup missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.workDir, "render_test-job-0000")); !os.IsNotExist(err) {
		t.Error("work dir should be removed after success")
	}

	// Remote render record settled to completed.
	if len(e.uploader.renderUps) == 0 || e.uploader.renderUps[len(e.uploader.renderUps)-1]["status"] != "completed" {
		t.Errorf("render record updates = %+v", e.uploader.renderUps)
	}
}

func TestRunSingleSceneSkipsCrossfade(t *testing.T) {
	e := newTestEnv(t)
	job := e.runJob(t, e.request([]models.Scene{{ImageURL: sceneURL(e, "a.png"), Duration: 5}}))

	if job.Status != models.JobStatusCompleted {
		t.Fatalf("status = %q (%v)", job.Status, job.Error)
	}
	if n := e.runner.callsMatching("-filter_complex"); n != 0 {
		t.Errorf("single segment must not cross-fade, got %d invocations", n)
	}
}

func TestRunNoUsableScenesFails(t *testing.T) {
	e := newTestEnv(t)
	// Scenes with neither URL are skipped; none remain.
	job := e.runJob(t, e.request([]models.Scene{{Duration: 4}, {Duration: 3}}))

	if job.Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Error == nil || !strings.Contains(*job.Error, "no valid scenes") {
		t.Errorf("error = %v", job.Error)
	}
	if len(e.runner.calls) != 0 {
		t.Errorf("encoder must not run, got %d calls", len(e.runner.calls))
	}

	// Work dir survives the failure for inspection.
	if _, err := os.Stat(filepath.Join(e.workDir, "render_test-job-0000")); err != nil {
		t.Errorf("work dir should be kept after failure: %v", err)
	}
	// Remote render record settled to failed.
	if len(e.uploader.renderUps) == 0 || e.uploader.renderUps[len(e.uploader.renderUps)-1]["status"] != "failed" {
		t.Errorf("render record updates = %+v", e.uploader.renderUps)
	}
}

func TestRunDownloadFailureFails(t *testing.T) {
	e := newTestEnv(t)
	job := e.runJob(t, e.request([]models.Scene{{ImageURL: sceneURL(e, "missing.png"), Duration: 4}}))

	if job.Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Error == nil || !strings.Contains(*job.Error, "status 404") {
		t.Errorf("error = %v", job.Error)
	}
}

func TestRunSegmentFailureNamesScene(t *testing.T) {
	e := newTestEnv(t)
	e.runner.failOn = func(args []string) bool {
		return strings.Contains(strings.Join(args, " "), "zoompan")
	}

	job := e.runJob(t, e.request(imageScenes(e, 2)))

	if job.Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Error == nil || !strings.Contains(*job.Error, "segment 0") {
		t.Errorf("error should name the failing scene index: %v", job.Error)
	}
}

func TestRunSubtitleFailureIsNonFatal(t *testing.T) {
	e := newTestEnv(t)
	e.runner.failOn = func(args []string) bool {
		return strings.Contains(strings.Join(args, " "), "ass=")
	}

	req := e.request(imageScenes(e, 2))
	req.WordTimestamps = []models.WordTimestamp{
		{Word: "hello", Start: 0, End: 0.4},
		{Word: "world", Start: 0.4, End: 0.8},
	}
	job := e.runJob(t, req)

	if job.Status != models.JobStatusCompleted {
		t.Fatalf("subtitle failure must not fail the job: %q (%v)", job.Status, job.Error)
	}
	if n := e.runner.callsMatching("ass="); n != 1 {
		t.Errorf("subtitle burn attempts = %d, want 1", n)
	}
	if job.VideoURL == nil {
		t.Fatal("completed job must have a video url")
	}
}

func TestRunUploadFailureCompletesLocally(t *testing.T) {
	e := newTestEnv(t)
	e.uploader.failAll = true

	job := e.runJob(t, e.request(imageScenes(e, 2)))

	if job.Status != models.JobStatusCompleted {
		t.Fatalf("upload failure must not fail the job: %q (%v)", job.Status, job.Error)
	}
	if job.VideoURL == nil || *job.VideoURL != "http://localhost:5001/api/video/proj1/rend1" {
		t.Errorf("video url should fall back to the local route: %v", job.VideoURL)
	}
	if job.UploadError == nil {
		t.Error("upload error should be recorded on the job")
	}
	if job.LocalBackupPath == nil {
		t.Error("local backup path should be recorded")
	}
}

func TestRunServerConfiguredStorage(t *testing.T) {
	e := newTestEnv(t)
	e.pipeline.opts.SupabaseURL = "https://srv.supabase.co"
	e.pipeline.opts.ServiceKeyOverride = "srv-key"

	// The request carries no storage credentials at all; the server's
	// own configuration must still drive the upload.
	req := e.request(imageScenes(e, 1))
	req.SupabaseURL = ""
	req.SupabaseKey = ""

	job := e.runJob(t, req)

	if job.Status != models.JobStatusCompleted {
		t.Fatalf("status = %q (%v)", job.Status, job.Error)
	}
	if len(e.uploader.uploads) != 1 {
		t.Fatalf("uploads = %v, want the server-configured target used", e.uploader.uploads)
	}
	if job.VideoURL == nil || *job.VideoURL != "https://cdn.example.com/proj1/rend1.mp4" {
		t.Errorf("video url = %v", job.VideoURL)
	}
}

func TestRunMergeFailureReportsMergeStage(t *testing.T) {
	e := newTestEnv(t)
	e.runner.failOn = func(args []string) bool {
		return strings.Contains(strings.Join(args, " "), "-c:a aac")
	}

	job := e.runJob(t, e.request(imageScenes(e, 2)))

	if job.Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Error == nil || !strings.Contains(*job.Error, "audio merge failed") {
		t.Errorf("error = %v", job.Error)
	}
	// The merge progress update lands before the encoder runs, so a
	// poller during (or after) the merge sees the merge stage, not the
	// previous one.
	if job.Progress != 82 {
		t.Errorf("progress = %d, want 82", job.Progress)
	}
}

func TestRunWithoutStorageCredentials(t *testing.T) {
	e := newTestEnv(t)
	req := e.request(imageScenes(e, 1))
	req.SupabaseURL = ""
	req.SupabaseKey = ""

	job := e.runJob(t, req)

	if job.Status != models.JobStatusCompleted {
		t.Fatalf("status = %q (%v)", job.Status, job.Error)
	}
	if job.VideoURL == nil || *job.VideoURL != "http://localhost:5001/api/video/proj1/rend1" {
		t.Errorf("video url = %v", job.VideoURL)
	}
	if len(e.uploader.uploads) != 0 {
		t.Errorf("no uploads expected without credentials, got %v", e.uploader.uploads)
	}
}

func TestSubmitReturnsPollableJob(t *testing.T) {
	e := newTestEnv(t)
	jobID := e.pipeline.Submit(e.request(imageScenes(e, 1)))

	// The entry must exist immediately even though rendering is async.
	job, ok := e.registry.Get(jobID)
	if !ok {
		t.Fatal("job not pollable right after Submit")
	}
	if job.Status.Terminal() && job.Status != models.JobStatusCompleted {
		t.Errorf("unexpected early terminal status %q", job.Status)
	}

	// Wait for the background goroutine to settle the job.
	deadline := time.After(5 * time.Second)
	for {
		job, _ = e.registry.Get(jobID)
		if job.Status.Terminal() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never reached a terminal state: %+v", job)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if job.Status != models.JobStatusCompleted {
		t.Errorf("status = %q (%v)", job.Status, job.Error)
	}
}

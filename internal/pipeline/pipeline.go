package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyreel/renderd/internal/ffmpeg"
	"github.com/storyreel/renderd/internal/models"
	"github.com/storyreel/renderd/internal/registry"
	"github.com/storyreel/renderd/internal/subtitles"
)

// Options carries the directory layout and publish targets a Pipeline
// needs. SupabaseURL and ServiceKeyOverride, when set, take precedence
// over the endpoint and key supplied on a request, so a deployment's
// storage target can't be redirected by a caller.
type Options struct {
	WorkDir            string
	OutputDir          string
	PublicBaseURL      string
	Bucket             string
	SupabaseURL        string
	ServiceKeyOverride string
}

// Pipeline turns accepted render requests into finished videos. Submit
// registers the job and returns immediately; a dedicated goroutine
// walks the stages and is the only writer of that job's registry entry.
type Pipeline struct {
	registry *registry.Registry
	ffmpeg   *ffmpeg.Service
	opts     Options
	client   *http.Client

	// newUploader builds the remote publish client for a job. Swappable
	// in tests so publishing can be exercised without the network.
	newUploader func(url, serviceKey string) Uploader

	log *zap.SugaredLogger
}

func New(reg *registry.Registry, ff *ffmpeg.Service, opts Options, log *zap.SugaredLogger) *Pipeline {
	p := &Pipeline{
		registry: reg,
		ffmpeg:   ff,
		opts:     opts,
		client:   &http.Client{},
		log:      log.Named("pipeline"),
	}
	p.newUploader = func(url, serviceKey string) Uploader {
		return newStorageUploader(url, serviceKey, opts.Bucket, log)
	}
	return p
}

// Submit registers a new job and starts rendering it in the background.
// The returned job ID is immediately pollable.
func (p *Pipeline) Submit(req models.RenderRequest) string {
	jobID := uuid.New().String()
	p.registry.Create(jobID, req.ProjectID, req.RenderID)
	p.log.Infow("render job accepted",
		"job_id", jobID,
		"project_id", req.ProjectID,
		"render_id", req.RenderID,
		"scenes", len(req.Scenes),
	)

	go p.run(jobID, req)

	return jobID
}

// run owns the job end to end: execute the stages, then settle the
// registry entry and the remote render record. The working directory is
// removed on success and kept on failure for inspection.
func (p *Pipeline) run(jobID string, req models.RenderRequest) {
	log := p.log.Named(jobID[:8])
	workDir := filepath.Join(p.opts.WorkDir, "render_"+jobID)

	var uploader Uploader
	supabaseURL := p.opts.SupabaseURL
	if supabaseURL == "" {
		supabaseURL = req.SupabaseURL
	}
	serviceKey := p.opts.ServiceKeyOverride
	if serviceKey == "" {
		serviceKey = req.SupabaseKey
	}
	if supabaseURL != "" && serviceKey != "" {
		uploader = p.newUploader(supabaseURL, serviceKey)
	}

	start := time.Now()
	videoURL, err := p.execute(context.Background(), log, jobID, workDir, req, uploader)
	if err != nil {
		log.Errorw("render job failed", "error", err, "elapsed", time.Since(start))
		p.registry.Fail(jobID, err.Error())
		if uploader != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			uploader.UpdateRender(ctx, req.RenderID, map[string]string{
				"status":        "failed",
				"error_message": err.Error(),
			})
			cancel()
		}
		// Keep workDir so the failure can be inspected.
		return
	}

	log.Infow("render job complete", "video_url", videoURL, "elapsed", time.Since(start))
	p.registry.Complete(jobID, videoURL)
	if uploader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		uploader.UpdateRender(ctx, req.RenderID, map[string]string{
			"status":    "completed",
			"video_url": videoURL,
		})
		cancel()
	}

	if err := os.RemoveAll(workDir); err != nil {
		log.Warnf("could not remove work dir %s: %v", workDir, err)
	}
}

// execute walks the stages in order: fetch, per-scene segments,
// assembly, audio merge, optional subtitles, publish. Subtitle failures
// are logged and skipped; everything else is fatal to the job.
func (p *Pipeline) execute(ctx context.Context, log *zap.SugaredLogger, jobID, workDir string, req models.RenderRequest, uploader Uploader) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", &PipelineError{Err: fmt.Errorf("create work dir: %w", err)}
	}

	p.registry.Apply(jobID, registry.Update{Stage: "prepare", Progress: 0, Message: "Preparing..."})

	audioPath, assets, err := p.fetchAssets(ctx, log, jobID, workDir, req)
	if err != nil {
		return "", err
	}

	segments, err := p.renderSegments(ctx, log, jobID, workDir, assets)
	if err != nil {
		return "", err
	}

	p.registry.Apply(jobID, registry.Update{Stage: "assemble", Progress: 75, Message: "Adding transitions..."})
	silentPath := filepath.Join(workDir, "silent.mp4")
	outcome, err := p.ffmpeg.Assemble(ctx, segments, workDir, silentPath)
	if err != nil {
		return "", &AssemblyError{Err: err}
	}
	log.Infof("sequence assembled (%s)", outcome)

	p.registry.Apply(jobID, registry.Update{Stage: "merge", Progress: 82, Message: "Merging audio..."})
	finalName := fmt.Sprintf("%s_%s.mp4", req.ProjectID, req.RenderID)
	finalPath := filepath.Join(workDir, finalName)
	if err := p.ffmpeg.MergeAudio(ctx, silentPath, audioPath, finalPath); err != nil {
		return "", &AudioMergeError{Err: err}
	}

	if len(req.WordTimestamps) > 0 {
		if subbed, ok := p.burnSubtitles(ctx, log, workDir, finalPath, req.WordTimestamps); ok {
			finalPath = subbed
		}
	}
	p.registry.Apply(jobID, registry.Update{Stage: "subtitles", Progress: 90, Message: "Finalizing video..."})

	return p.publish(ctx, log, jobID, finalPath, req, uploader)
}

// renderSegments encodes each scene to a normalized 1080p segment in
// order. Stills get the alternating zoom treatment; clips are scaled
// and padded. Progress moves from 20 to 70 across the loop.
func (p *Pipeline) renderSegments(ctx context.Context, log *zap.SugaredLogger, jobID, workDir string, assets []sceneAsset) ([]ffmpeg.Segment, error) {
	segments := make([]ffmpeg.Segment, 0, len(assets))
	for i, asset := range assets {
		outPath := filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i))

		var err error
		switch asset.kind {
		case models.MediaKindVideo:
			err = p.ffmpeg.RenderVideoSegment(ctx, asset.path, outPath, asset.duration)
		default:
			err = p.ffmpeg.RenderImageSegment(ctx, asset.path, outPath, i, asset.duration)
		}
		if err != nil {
			return nil, &SegmentRenderError{Index: i, Err: err}
		}

		segments = append(segments, ffmpeg.Segment{Path: outPath, Duration: asset.duration})

		progress := 20 + int(float64(i+1)/float64(len(assets))*50)
		p.registry.Apply(jobID, registry.Update{
			Stage:    "segments",
			Progress: progress,
			Message:  fmt.Sprintf("Rendered segment %d/%d", i+1, len(assets)),
		})
		log.Infof("segment %d/%d rendered (%s, %.1fs)", i+1, len(assets), asset.kind, asset.duration)
	}
	return segments, nil
}

// burnSubtitles composites word-timestamp captions onto the video. Any
// failure here is logged and the pre-subtitle video is kept; captions
// never fail an otherwise finished render.
func (p *Pipeline) burnSubtitles(ctx context.Context, log *zap.SugaredLogger, workDir, videoPath string, words []models.WordTimestamp) (string, bool) {
	cues := subtitles.GroupWords(words)
	if len(cues) == 0 {
		log.Info("no subtitle cues produced, skipping captions")
		return "", false
	}

	assPath := filepath.Join(workDir, "subtitles.ass")
	if err := subtitles.WriteASS(cues, assPath); err != nil {
		log.Warnf("subtitle file write failed, continuing without captions: %v", err)
		return "", false
	}

	outPath := subbedPath(videoPath)
	if err := p.ffmpeg.BurnSubtitles(ctx, videoPath, assPath, outPath); err != nil {
		log.Warnf("subtitle burn failed, continuing without captions: %v", err)
		return "", false
	}

	log.Infof("subtitles burned in, %d cues", len(cues))
	return outPath, true
}

func subbedPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return videoPath[:len(videoPath)-len(ext)] + "_subs" + ext
}

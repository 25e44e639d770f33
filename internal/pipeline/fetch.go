package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storyreel/renderd/internal/ffmpeg"
	"github.com/storyreel/renderd/internal/models"
	"github.com/storyreel/renderd/internal/registry"
)

// Per-asset download ceilings. Audio and video get the generous one;
// images are expected to be small.
const (
	audioFetchTimeout = 5 * time.Minute
	imageFetchTimeout = 2 * time.Minute
	videoFetchTimeout = 5 * time.Minute

	// At most this many scene downloads run at once.
	fetchConcurrency = 3
)

// sceneAsset is one resolved scene after download: a local file, its
// floored target duration, and whether it is a still or a clip.
type sceneAsset struct {
	index    int
	path     string
	duration float64
	kind     models.MediaKind
}

// fetchAssets retrieves the narration audio and every scene's media
// into the job's working directory under deterministic index-ordered
// names. Scenes with neither reference are skipped (logged); if none
// survive, the job fails before any encoder runs. Scene downloads run
// on a bounded errgroup; progress is reported only from the calling
// goroutine so the job keeps a single writer.
func (p *Pipeline) fetchAssets(ctx context.Context, log *zap.SugaredLogger, jobID, workDir string, req models.RenderRequest) (string, []sceneAsset, error) {
	p.registry.Apply(jobID, registry.Update{Stage: "fetch", Progress: 0, Message: "Downloading audio..."})

	audioPath := filepath.Join(workDir, "audio.mp3")
	log.Infof("downloading audio from %s", req.AudioURL)
	if err := p.download(ctx, req.AudioURL, audioPath, audioFetchTimeout); err != nil {
		return "", nil, err
	}

	p.registry.Apply(jobID, registry.Update{Stage: "fetch", Progress: 8, Message: "Downloading media..."})

	results := make([]*sceneAsset, len(req.Scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i, scene := range req.Scenes {
		i := i
		var (
			path    string
			kind    models.MediaKind
			url     string
			timeout time.Duration
		)

		switch {
		case scene.VideoURL != "":
			path = filepath.Join(workDir, fmt.Sprintf("scene_%03d_video.mp4", i))
			kind = models.MediaKindVideo
			url = scene.VideoURL
			timeout = videoFetchTimeout
		case scene.ImageURL != "":
			path = filepath.Join(workDir, fmt.Sprintf("scene_%03d.png", i))
			kind = models.MediaKindImage
			url = scene.ImageURL
			timeout = imageFetchTimeout
		default:
			log.Warnf("scene %d has no image_url or video_url, skipping", i)
			continue
		}

		results[i] = &sceneAsset{
			index:    i,
			path:     path,
			duration: ffmpeg.ClampDuration(scene.Duration),
			kind:     kind,
		}

		g.Go(func() error {
			log.Infof("downloading scene %d %s: %s", i, kind, truncateURL(url))
			return p.download(gctx, url, path, timeout)
		})
	}

	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	assets := make([]sceneAsset, 0, len(results))
	for _, a := range results {
		if a != nil {
			assets = append(assets, *a)
		}
	}
	if len(assets) == 0 {
		return "", nil, &NoValidScenesError{}
	}

	log.Infof("all assets downloaded, %d scene files ready", len(assets))
	p.registry.Apply(jobID, registry.Update{Stage: "fetch", Progress: 20, Message: "Assets downloaded"})

	return audioPath, assets, nil
}

// download fetches one URL to a local path with a per-asset timeout.
// Any failure — transport, timeout, or non-200 — is a DownloadError.
func (p *Pipeline) download(ctx context.Context, url, dest string, timeout time.Duration) error {
	dlCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DownloadError{URL: url, Status: resp.StatusCode}
	}

	f, err := os.Create(dest)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	return nil
}

func truncateURL(url string) string {
	if len(url) <= 120 {
		return url
	}
	return url[:120] + "..."
}

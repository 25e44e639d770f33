package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/storyreel/renderd/internal/models"
	"github.com/storyreel/renderd/internal/registry"
	"github.com/storyreel/renderd/internal/storage"
)

// Uploader is the remote publish surface the pipeline needs. The
// storage client satisfies it; tests substitute fakes.
type Uploader interface {
	UploadFile(ctx context.Context, storagePath, localPath, contentType string) error
	PublicURL(path string) string
	UpdateRender(ctx context.Context, renderID string, fields map[string]string)
}

func newStorageUploader(url, serviceKey, bucket string, log *zap.SugaredLogger) Uploader {
	return storage.New(url, serviceKey, bucket, log)
}

// publish writes the local backup copy and attempts the remote upload.
// The backup is mandatory: if it cannot be written the job fails. The
// upload is not: on failure the job still completes, served from the
// local copy, with the upload error recorded on the job.
func (p *Pipeline) publish(ctx context.Context, log *zap.SugaredLogger, jobID, finalPath string, req models.RenderRequest, uploader Uploader) (string, error) {
	p.registry.Apply(jobID, registry.Update{Stage: "publish", Progress: 92, Message: "Publishing video..."})

	backupDir := filepath.Join(p.opts.OutputDir, req.ProjectID)
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", &PipelineError{Err: fmt.Errorf("create output dir: %w", err)}
	}
	backupPath := filepath.Join(backupDir, req.RenderID+".mp4")
	if err := copyFile(finalPath, backupPath); err != nil {
		return "", &PipelineError{Err: fmt.Errorf("write local backup: %w", err)}
	}
	p.registry.SetLocalBackup(jobID, backupPath)

	if info, err := os.Stat(backupPath); err == nil {
		log.Infof("local backup written: %s (%.1f MB)", backupPath, float64(info.Size())/(1024*1024))
	}

	localURL := fmt.Sprintf("%s/api/video/%s/%s", p.opts.PublicBaseURL, req.ProjectID, req.RenderID)

	if uploader == nil {
		log.Info("no storage target configured, serving locally")
		return localURL, nil
	}

	storagePath := fmt.Sprintf("%s/%s.mp4", req.ProjectID, req.RenderID)
	if err := uploader.UploadFile(ctx, storagePath, finalPath, "video/mp4"); err != nil {
		log.Warnf("upload failed, serving locally: %v", err)
		p.registry.SetUploadError(jobID, err.Error())
		return localURL, nil
	}

	publicURL := uploader.PublicURL(storagePath)
	log.Infof("video uploaded: %s", publicURL)
	return publicURL, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

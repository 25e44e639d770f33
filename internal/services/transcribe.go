package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/storyreel/renderd/internal/models"
)

const audioDownloadTimeout = 5 * time.Minute

// TranscriptionService produces word-level timestamps from narration
// audio via Whisper. The output feeds the subtitle compositor.
type TranscriptionService struct {
	client *openai.Client
	http   *http.Client
	log    *zap.SugaredLogger
}

func NewTranscriptionService(apiKey string, log *zap.SugaredLogger) *TranscriptionService {
	return &TranscriptionService{
		client: openai.NewClient(apiKey),
		http:   &http.Client{},
		log:    log.Named("transcribe"),
	}
}

// TranscribeURL downloads the audio at url and returns the transcript
// text plus per-word timestamps.
func (s *TranscriptionService) TranscribeURL(ctx context.Context, url, language string) (string, []models.WordTimestamp, error) {
	audio, err := s.downloadAudio(ctx, url)
	if err != nil {
		return "", nil, err
	}
	s.log.Infof("transcribing %d bytes of audio", len(audio))

	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: "audio.mp3",
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	}
	if language != "" {
		req.Language = language
	}

	resp, err := s.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("transcription failed: %w", err)
	}

	words := make([]models.WordTimestamp, 0, len(resp.Words))
	for _, w := range resp.Words {
		words = append(words, models.WordTimestamp{
			Word:  w.Word,
			Start: w.Start,
			End:   w.End,
		})
	}

	s.log.Infof("transcription complete, %d words", len(words))
	return resp.Text, words, nil
}

func (s *TranscriptionService) downloadAudio(ctx context.Context, url string) ([]byte, error) {
	dlCtx, cancel := context.WithTimeout(ctx, audioDownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build audio request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Per-stage wall-clock ceilings. The cross-fade assembly gets the
// longest one because its filter graph grows with the segment count.
const (
	segmentTimeout   = 5 * time.Minute
	crossfadeTimeout = 15 * time.Minute
	concatTimeout    = 10 * time.Minute
	mergeTimeout     = 10 * time.Minute
	subtitleTimeout  = 10 * time.Minute
)

// Segment is one rendered scene clip awaiting assembly. Duration is the
// scene's target duration, which drives the cross-fade offsets.
type Segment struct {
	Path     string
	Duration float64
}

// AssembleOutcome reports which of the assembler's tiers produced the
// output: the cross-fade graph, a direct single-segment copy, or the
// degraded hard-cut concatenation fallback.
type AssembleOutcome string

const (
	AssembleCrossfaded   AssembleOutcome = "crossfaded"
	AssembleCopied       AssembleOutcome = "copied"
	AssembleConcatenated AssembleOutcome = "concatenated"
)

// Service drives the external encoder for every pipeline stage.
type Service struct {
	runner Runner
	fps    int
	log    *zap.SugaredLogger
}

func NewService(runner Runner, fps int, log *zap.SugaredLogger) *Service {
	return &Service{
		runner: runner,
		fps:    fps,
		log:    log,
	}
}

// RenderImageSegment loops a still image into a silent fixed-duration
// segment with the index-alternating Ken Burns motion.
func (s *Service) RenderImageSegment(ctx context.Context, imagePath, outPath string, index int, duration float64) error {
	return s.runner.Run(ctx, segmentTimeout, "ffmpeg",
		ImageSegmentArgs(imagePath, outPath, index, duration, s.fps)...)
}

// RenderVideoSegment letterboxes and trims a video clip into a silent
// fixed-duration segment. No motion effect is applied to video scenes.
func (s *Service) RenderVideoSegment(ctx context.Context, videoPath, outPath string, duration float64) error {
	return s.runner.Run(ctx, segmentTimeout, "ffmpeg",
		VideoSegmentArgs(videoPath, outPath, duration, s.fps)...)
}

// Assemble produces one silent video from the ordered segments.
// A single segment is copied directly, never re-encoded. For two or
// more, the cross-fade graph is tried first; if that invocation fails,
// the assembler degrades to hard-cut concatenation from a file list.
// Failure of the fallback itself is fatal.
func (s *Service) Assemble(ctx context.Context, segments []Segment, workDir, outPath string) (AssembleOutcome, error) {
	switch len(segments) {
	case 0:
		return "", fmt.Errorf("no segments to assemble")
	case 1:
		if err := copyFile(segments[0].Path, outPath); err != nil {
			return "", fmt.Errorf("single segment copy failed: %w", err)
		}
		return AssembleCopied, nil
	}

	err := s.runner.Run(ctx, crossfadeTimeout, "ffmpeg", CrossfadeArgs(segments, outPath)...)
	if err == nil {
		return AssembleCrossfaded, nil
	}
	s.log.Warnf("cross-fade assembly failed, falling back to hard-cut concat: %v", err)

	listPath := filepath.Join(workDir, "concat.txt")
	if err := writeConcatList(listPath, segments); err != nil {
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}

	if err := s.runner.Run(ctx, concatTimeout, "ffmpeg", ConcatArgs(listPath, outPath)...); err != nil {
		return "", fmt.Errorf("concat fallback failed: %w", err)
	}
	return AssembleConcatenated, nil
}

// MergeAudio muxes narration onto the silent video.
func (s *Service) MergeAudio(ctx context.Context, videoPath, audioPath, outPath string) error {
	return s.runner.Run(ctx, mergeTimeout, "ffmpeg",
		MergeAudioArgs(videoPath, audioPath, outPath)...)
}

// BurnSubtitles re-encodes the video with the ASS track rendered into
// the frames, copying audio unchanged.
func (s *Service) BurnSubtitles(ctx context.Context, videoPath, assPath, outPath string) error {
	return s.runner.Run(ctx, subtitleTimeout, "ffmpeg",
		BurnSubtitlesArgs(videoPath, assPath, outPath)...)
}

func writeConcatList(listPath string, segments []Segment) error {
	f, err := os.Create(listPath)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, seg := range segments {
		if _, err := fmt.Fprintf(f, "file '%s'\n", seg.Path); err != nil {
			return err
		}
	}
	return nil
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

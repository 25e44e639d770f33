package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Output / rendering constants — 1080p landscape, constant pixel format.
const (
	outputWidth  = 1920
	outputHeight = 1080

	// Ken Burns zoom range: still images travel between 1.0x and 1.15x.
	kenBurnsZoomMax = 1.15

	// FadeDuration is how long each cross-fade window lasts.
	FadeDuration = 0.5

	// MinSceneDuration is the floor applied to invalid or tiny target
	// durations before any filter math happens.
	MinSceneDuration = 0.5
)

// ClampDuration applies the minimum-duration floor.
func ClampDuration(d float64) float64 {
	return math.Max(MinSceneDuration, d)
}

// KenBurnsFilter builds the -vf chain for a still-image segment: cover
// the frame, crop, then zoompan. Even-indexed scenes zoom in from 1.0
// toward 1.15 linearly over the duration; odd-indexed scenes zoom out
// from 1.15 back to 1.0. The zoom center is always the frame center.
func KenBurnsFilter(index int, duration float64, fps int) string {
	frames := int(ClampDuration(duration) * float64(fps))
	if frames < fps {
		frames = fps
	}

	var zExpr string
	if index%2 == 0 {
		zExpr = fmt.Sprintf("min(%.2f,1+%.2f*on/%d)", kenBurnsZoomMax, kenBurnsZoomMax-1, frames)
	} else {
		zExpr = fmt.Sprintf("max(1.0,%.2f-%.2f*on/%d)", kenBurnsZoomMax, kenBurnsZoomMax-1, frames)
	}

	zoompan := fmt.Sprintf(
		"zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
		zExpr, frames, outputWidth, outputHeight, fps,
	)

	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,%s",
		outputWidth, outputHeight, outputWidth, outputHeight, zoompan,
	)
}

// ScalePadFilter letterboxes arbitrary video into the output frame,
// preserving aspect ratio (pad, not crop).
func ScalePadFilter() string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
		outputWidth, outputHeight, outputWidth, outputHeight,
	)
}

// XfadeGraph builds the chained cross-fade filter_complex for two or
// more segments. Transition i consumes the output of transition i-1 and
// raw input i+1; its fade window starts at the cumulative target
// duration of segments 0..i minus the fade duration. Durations are the
// segments' target durations, not measurements of the encoded files.
// Returns the graph and the final output label to -map.
func XfadeGraph(durations []float64, fade float64) (string, string) {
	var parts []string
	cumulative := 0.0

	for i := 0; i < len(durations)-1; i++ {
		cumulative += ClampDuration(durations[i])
		offset := cumulative - fade

		left := fmt.Sprintf("[v%d]", i)
		if i == 0 {
			left = "[0:v]"
		}
		parts = append(parts, fmt.Sprintf(
			"%s[%d:v]xfade=transition=fade:duration=%g:offset=%.2f[v%d]",
			left, i+1, fade, offset, i+1,
		))
	}

	finalLabel := fmt.Sprintf("[v%d]", len(durations)-1)
	return strings.Join(parts, ";"), finalLabel
}

// ImageSegmentArgs builds the argv (after "ffmpeg") for rendering one
// still-image scene into a silent fixed-duration segment.
func ImageSegmentArgs(imagePath, outPath string, index int, duration float64, fps int) []string {
	d := ClampDuration(duration)
	return []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", formatSeconds(d),
		"-vf", KenBurnsFilter(index, d, fps),
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-an",
		outPath,
	}
}

// VideoSegmentArgs builds the argv for trimming and letterboxing one
// video scene; the clip's own audio is discarded.
func VideoSegmentArgs(videoPath, outPath string, duration float64, fps int) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-t", formatSeconds(ClampDuration(duration)),
		"-vf", ScalePadFilter(),
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-an",
		outPath,
	}
}

// CrossfadeArgs builds the argv for the chained xfade assembly.
func CrossfadeArgs(segments []Segment, outPath string) []string {
	args := []string{"-y"}
	durations := make([]float64, len(segments))
	for i, seg := range segments {
		args = append(args, "-i", seg.Path)
		durations[i] = seg.Duration
	}

	graph, finalLabel := XfadeGraph(durations, FadeDuration)
	args = append(args,
		"-filter_complex", graph,
		"-map", finalLabel,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-an",
		outPath,
	)
	return args
}

// ConcatArgs builds the argv for the hard-cut fallback: stream-copy
// concatenation from a generated file list.
func ConcatArgs(listPath, outPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
}

// MergeAudioArgs builds the argv for muxing narration onto the silent
// assembled video: video stream copied, audio encoded at a fixed
// bitrate, output truncated to the shorter stream.
func MergeAudioArgs(videoPath, audioPath, outPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		outPath,
	}
}

// BurnSubtitlesArgs builds the argv for re-encoding video with the ASS
// track burned in; audio is copied unchanged.
func BurnSubtitlesArgs(videoPath, assPath, outPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-vf", "ass=" + escapeFilterPath(assPath),
		"-c:a", "copy",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		outPath,
	}
}

// escapeFilterPath escapes characters the ffmpeg filter parser treats
// specially in file paths (colons, backslashes, quotes).
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// formatSeconds renders a duration for -t without trailing float noise.
func formatSeconds(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

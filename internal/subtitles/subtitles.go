package subtitles

import (
	"fmt"
	"os"
	"strings"

	"github.com/storyreel/renderd/internal/models"
)

// Cue grouping policy: words accumulate into a cue until any break
// condition trips. The limits keep each cue readable at a glance.
const (
	maxWordsPerCue    = 6
	maxCharsPerCue    = 40
	maxCueDurationSec = 3.5
)

// Cue is one timed subtitle span.
type Cue struct {
	Text  string
	Start float64
	End   float64
}

// GroupWords greedily accumulates word timestamps into cues. A cue is
// closed when it already holds the word limit, when appending the next
// word would push the text over the character limit, when its running
// duration passes the ceiling, or when its text ends in terminal
// punctuation. The triggering word starts the next cue. A trailing
// partial cue is flushed at the end.
func GroupWords(words []models.WordTimestamp) []Cue {
	var cues []Cue
	var current []models.WordTimestamp
	text := ""

	for _, w := range words {
		word := strings.TrimSpace(w.Word)
		if word == "" {
			continue
		}

		testText := word
		if text != "" {
			testText = text + " " + word
		}
		duration := 0.0
		if len(current) > 0 {
			duration = w.End - current[0].Start
		}

		shouldBreak := len(current) >= maxWordsPerCue ||
			len(testText) > maxCharsPerCue ||
			duration > maxCueDurationSec ||
			(text != "" && strings.ContainsAny(text[len(text)-1:], ".!?"))

		if shouldBreak && len(current) > 0 {
			cues = append(cues, Cue{
				Text:  text,
				Start: current[0].Start,
				End:   current[len(current)-1].End,
			})
			current = nil
			text = ""
		}

		current = append(current, w)
		if text == "" {
			text = word
		} else {
			text = text + " " + word
		}
	}

	if len(current) > 0 {
		cues = append(cues, Cue{
			Text:  text,
			Start: current[0].Start,
			End:   current[len(current)-1].End,
		})
	}

	return cues
}

// ASS header: bold white Arial with a black outline, bottom-center,
// PlayRes matching the 1920x1080 render so margins land where intended.
const assHeader = `[Script Info]
Title: StoryReel Generated Subtitles
ScriptType: v4.00+
WrapStyle: 0
ScaledBorderAndShadow: yes
YCbCr Matrix: TV.709
PlayResX: 1920
PlayResY: 1080

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,48,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,1,0,0,0,100,100,0,0,1,3,1,2,40,40,60,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// WriteASS serializes cues into an ASS subtitle file at outputPath.
// An empty cue list is an error; callers treat it as "skip subtitles",
// never as a job failure.
func WriteASS(cues []Cue, outputPath string) error {
	if len(cues) == 0 {
		return fmt.Errorf("no cues to write")
	}

	var sb strings.Builder
	sb.WriteString(assHeader)

	for _, cue := range cues {
		sb.WriteString(fmt.Sprintf(
			"Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			Timecode(cue.Start),
			Timecode(cue.End),
			escapeText(cue.Text),
		))
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write ASS file: %w", err)
	}
	return nil
}

// Timecode converts seconds to the ASS H:MM:SS.CC format.
func Timecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centis := int((seconds - float64(int(seconds))) * 100)

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centis)
}

// escapeText escapes the characters ASS treats structurally.
func escapeText(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, "{", `\{`)
	text = strings.ReplaceAll(text, "}", `\}`)
	return text
}

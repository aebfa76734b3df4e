package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index       int               `json:"index"`
	CodecName   string            `json:"codec_name"`
	CodecType   string            `json:"codec_type"`
	Duration    string            `json:"duration"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Channels    int               `json:"channels"`
	Tags        map[string]string `json:"tags"`
	Disposition map[string]int    `json:"disposition"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	return run(ctx, binary, path, "-show_format", "-show_streams")
}

// InspectAudio executes ffprobe limited to audio streams.
func InspectAudio(ctx context.Context, binary string, path string) (Result, error) {
	return run(ctx, binary, path, "-show_streams", "-select_streams", "a")
}

func run(ctx context.Context, binary, path string, extra ...string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	args := append([]string{"-v", "error", "-hide_banner", "-of", "json"}, extra...)
	args = append(args, "--", path)

	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}

	return Parse(output)
}

// Parse decodes raw ffprobe JSON output. Exported so callers can be tested
// without a real ffprobe binary.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// FirstVideo returns the first real video stream, skipping attached pictures.
func (r Result) FirstVideo() (Stream, bool) {
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "video") {
			continue
		}
		if stream.Disposition["attached_pic"] == 1 {
			continue
		}
		return stream, true
	}
	return Stream{}, false
}

// AudioStreams returns the audio streams in container order.
func (r Result) AudioStreams() []Stream {
	var audio []Stream
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			audio = append(audio, stream)
		}
	}
	return audio
}

// DurationSeconds returns the container duration in seconds, falling back to
// the given stream's own duration, or 0 when unavailable.
func (r Result) DurationSeconds() int {
	if seconds := parseSeconds(r.Format.Duration); seconds > 0 {
		return seconds
	}
	if video, ok := r.FirstVideo(); ok {
		return parseSeconds(video.Duration)
	}
	return 0
}

// Language returns the stream's language tag, or "und" when untagged.
func (s Stream) Language() string {
	if lang, ok := s.Tags["language"]; ok && strings.TrimSpace(lang) != "" {
		return lang
	}
	return "und"
}

// Title returns the stream's title tag, or empty when untagged.
func (s Stream) Title() string {
	return s.Tags["title"]
}

func parseSeconds(value string) int {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return int(parsed)
}

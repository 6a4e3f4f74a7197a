// Package ffprobe reads stream properties and per-frame statistics using ffprobe.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
)

// Binary is the ffprobe executable looked up on PATH.
var Binary = "ffprobe"

// StreamInfo contains the properties of the first video stream of a file.
type StreamInfo struct {
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	PixFmt     string          `json:"pix_fmt"`
	BitDepth   int             `json:"bit_depth"`
	ColorSpace string          `json:"color_space"`
	ColorRange string          `json:"color_range"`
	FrameRate  config.Rational `json:"frame_rate"`
	Duration   float64         `json:"duration"`

	// EstimatedFrames comes from container metadata and may be 0.
	EstimatedFrames int `json:"estimated_frames"`
}

// ffprobeOutput represents the JSON output from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType        string            `json:"codec_type"`
	Width            int               `json:"width"`
	Height           int               `json:"height"`
	PixFmt           string            `json:"pix_fmt"`
	ColorSpace       string            `json:"color_space"`
	ColorRange       string            `json:"color_range"`
	RFrameRate       string            `json:"r_frame_rate"`
	AvgFrameRate     string            `json:"avg_frame_rate"`
	NbFrames         string            `json:"nb_frames"`
	Duration         string            `json:"duration"`
	BitsPerRawSample string            `json:"bits_per_raw_sample"`
	Tags             map[string]string `json:"tags"`
}

// runFFprobe executes ffprobe and returns its stdout.
func runFFprobe(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ferrors.WrapExecError(Binary, err, strings.TrimSpace(stderr.String()))
	}
	return output, nil
}

// parseFFprobeOutput parses ffprobe's -show_format -show_streams JSON.
func parseFFprobeOutput(data []byte) (*ffprobeOutput, error) {
	var result ffprobeOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &result, nil
}

// ProbeStream returns the properties of the first video stream of path.
func ProbeStream(ctx context.Context, path string) (*StreamInfo, error) {
	output, err := runFFprobe(ctx,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	)
	if err != nil {
		return nil, ferrors.NewSourceUnreadableError(path, err)
	}

	probe, err := parseFFprobeOutput(output)
	if err != nil {
		return nil, ferrors.NewSourceUnreadableError(path, err)
	}

	info, err := extractStreamInfo(probe, path)
	if err != nil {
		return nil, ferrors.NewSourceUnreadableError(path, err)
	}
	return info, nil
}

// extractStreamInfo converts the first video stream of probe into a StreamInfo.
func extractStreamInfo(probe *ffprobeOutput, path string) (*StreamInfo, error) {
	var video *ffprobeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "video" {
			video = &probe.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, fmt.Errorf("no video stream found in %s", path)
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions in %s: %dx%d", path, video.Width, video.Height)
	}

	rate, err := config.ParseFrameRate(video.RFrameRate)
	if err != nil {
		rate, err = config.ParseFrameRate(video.AvgFrameRate)
		if err != nil {
			return nil, fmt.Errorf("no usable frame rate in %s", path)
		}
	}

	duration := parseFloat(probe.Format.Duration)
	if d := parseFloat(video.Duration); d > 0 {
		duration = d
	}

	info := &StreamInfo{
		Width:      video.Width,
		Height:     video.Height,
		PixFmt:     video.PixFmt,
		BitDepth:   bitDepth(video.BitsPerRawSample, video.PixFmt),
		ColorSpace: video.ColorSpace,
		ColorRange: video.ColorRange,
		FrameRate:  rate,
		Duration:   duration,
	}
	info.EstimatedFrames = estimateFrames(video, duration, rate)
	return info, nil
}

// estimateFrames uses nb_frames, then the Matroska statistics tag, then duration*fps.
func estimateFrames(s *ffprobeStream, duration float64, rate config.Rational) int {
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		return n
	}
	for key, value := range s.Tags {
		if strings.HasPrefix(strings.ToUpper(key), "NUMBER_OF_FRAMES") {
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				return n
			}
		}
	}
	if duration > 0 {
		return int(math.Round(duration * rate.Float()))
	}
	return 0
}

// bitDepth returns the luma bit depth from bits_per_raw_sample, falling back
// to the pixel format name (yuv420p10le -> 10).
func bitDepth(bitsPerRawSample, pixFmt string) int {
	if n, err := strconv.Atoi(bitsPerRawSample); err == nil && n > 0 {
		return n
	}
	fmtName := strings.TrimSuffix(strings.TrimSuffix(pixFmt, "le"), "be")
	for _, depth := range []int{16, 14, 12, 10, 9} {
		if strings.HasSuffix(fmtName, "p"+strconv.Itoa(depth)) {
			return depth
		}
	}
	return 8
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// FrameRateFilter returns the rate to convert to, or "" when target is nil
// or already matches the stream to three decimals.
func FrameRateFilter(stream *StreamInfo, target *config.Rational) string {
	if target == nil || !target.Valid() {
		return ""
	}
	if stream != nil && stream.FrameRate.SameMillis(*target) {
		return ""
	}
	return target.String()
}

// CountFrames counts the video packets of path without decoding.
func CountFrames(ctx context.Context, path string) (int, error) {
	output, err := runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-print_format", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, ferrors.NewSourceUnreadableError(path, err)
	}
	return parseCount(output)
}

func parseCount(output []byte) (int, error) {
	s := strings.TrimSpace(string(output))
	s = strings.TrimSuffix(s, ",")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("unexpected packet count %q", s)
	}
	return n, nil
}

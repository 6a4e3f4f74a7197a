package ffprobe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/ffmpeg"
	"github.com/five82/framecomp/internal/frame"
	"github.com/five82/framecomp/internal/logging"
)

// Frame tags requested from signalstats and scdet. ffprobe's flat writer
// reports them with dots replaced by underscores.
const (
	tagLuma       = "lavfi.signalstats.YAVG"
	tagLumaMin    = "lavfi.signalstats.YMIN"
	tagLumaMax    = "lavfi.signalstats.YMAX"
	tagSceneScore = "lavfi.scd.score"
	tagSceneTime  = "lavfi.scd.time"
)

var frameTags = []string{tagLuma, tagLumaMin, tagLumaMax, tagSceneScore, tagSceneTime}

// progressInterval is the number of frames between progress callbacks.
const progressInterval = 250

// ScanProgress is called with the number of frames scanned so far.
type ScanProgress func(scanned int)

// buildScanArgs returns the ffprobe arguments that print per-frame statistics
// for path after an optional frame rate conversion. A non-negative only
// restricts the output to that frame.
func buildScanArgs(path, frameRate string, only int) []string {
	chain := ffmpeg.NewVideoFilterChain().
		AddFilter(ffmpeg.MovieSource(path)).
		AddFPS(frameRate)
	if only >= 0 {
		chain.AddSelectFrame(only)
	}
	graph := chain.
		AddFilter("signalstats").
		AddFilter("scdet").
		Build()

	return []string{
		"-v", "error",
		"-f", "lavfi",
		"-i", graph,
		"-show_entries", "frame=pict_type,width,height,color_range,color_space:frame_tags=" + strings.Join(frameTags, ","),
		"-print_format", "flat",
	}
}

// ScanFrames decodes every frame of path and returns its statistics in order.
func ScanFrames(ctx context.Context, path, frameRate string, depth int, progress ScanProgress) ([]frame.Info, error) {
	logging.Debug("scanning frames", "source", path, "frame_rate", frameRate)
	return scan(ctx, buildScanArgs(path, frameRate, -1), path, depth, progress)
}

// FrameAt returns the statistics of a single frame. Frames before it are
// decoded but not reported.
func FrameAt(ctx context.Context, path, frameRate string, depth, index int) (frame.Info, error) {
	frames, err := scan(ctx, buildScanArgs(path, frameRate, index), path, depth, nil)
	if err != nil {
		return frame.Info{}, err
	}
	info := frames[0]
	info.Index = index
	return info, nil
}

func scan(ctx context.Context, args []string, path string, depth int, progress ScanProgress) ([]frame.Info, error) {
	cmd := exec.CommandContext(ctx, Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, ferrors.WrapExecError(Binary, err, "")
	}

	frames, parseErr := parseFlatFrames(stdout, depth, progress)
	// Drain so ffprobe is not blocked on a full pipe after a parse error.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		return nil, ferrors.NewDecodeError("frame scan of "+path+" failed",
			ferrors.WrapExecError(Binary, waitErr, strings.TrimSpace(stderr.String())))
	}
	if parseErr != nil {
		return nil, ferrors.NewDecodeError("frame scan of "+path+" is unreadable", parseErr)
	}
	if len(frames) == 0 {
		return nil, ferrors.NewDecodeError("no frames decoded from "+path, nil)
	}
	return frames, nil
}

// parseFlatFrames parses ffprobe's flat output:
//
//	frames.frame.0.pict_type="I"
//	frames.frame.0.tags.lavfi_signalstats_YAVG="16.03"
func parseFlatFrames(r io.Reader, depth int, progress ScanProgress) ([]frame.Info, error) {
	maxValue := math.Exp2(float64(depthOrDefault(depth))) - 1

	var frames []frame.Info
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		rest, ok := strings.CutPrefix(line, "frames.frame.")
		if !ok {
			continue
		}

		idxStr, field, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return nil, fmt.Errorf("bad frame number in %q", line)
		}

		key, rawValue, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		value := unquote(rawValue)

		switch {
		case idx == len(frames):
			frames = append(frames, frame.Info{Index: idx})
			if progress != nil && idx%progressInterval == 0 {
				progress(idx)
			}
		case idx > len(frames) || idx < len(frames)-1:
			return nil, fmt.Errorf("frame %d out of order after frame %d", idx, len(frames)-1)
		}

		if err := applyField(&frames[idx], key, value, maxValue); err != nil {
			return nil, fmt.Errorf("frame %d: %w", idx, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i := range frames {
		frames[i].Class = frame.Classify(frames[i].AverageLuma)
	}
	if progress != nil {
		progress(len(frames))
	}
	return frames, nil
}

func applyField(info *frame.Info, key, value string, maxValue float64) error {
	switch key {
	case "pict_type":
		info.PictureType = frame.ParsePictureType(value)
	case "width":
		info.Width, _ = strconv.Atoi(value)
	case "height":
		info.Height, _ = strconv.Atoi(value)
	case "color_range":
		info.ColorRange = value
	case "color_space":
		info.ColorMatrix = value
	default:
		tag, ok := strings.CutPrefix(key, "tags.")
		if !ok {
			return nil
		}
		tag = normalizeTag(tag)
		switch tag {
		case tagLuma:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("bad luma value %q", value)
			}
			info.AverageLuma = v / maxValue
		case tagSceneTime:
			info.SceneChange = true
		default:
			if info.Extra == nil {
				info.Extra = make(map[string]string)
			}
			info.Extra[tag] = value
		}
	}
	return nil
}

// normalizeTag maps lavfi_signalstats_YAVG back to lavfi.signalstats.YAVG.
func normalizeTag(tag string) string {
	for _, known := range frameTags {
		if tag == known || tag == strings.ReplaceAll(known, ".", "_") {
			return known
		}
	}
	return tag
}

func unquote(s string) string {
	if v, err := strconv.Unquote(s); err == nil {
		return v
	}
	return s
}

func depthOrDefault(depth int) int {
	if depth <= 0 {
		return 8
	}
	return depth
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

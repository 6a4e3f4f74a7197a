package ffprobe

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/frame"
	"github.com/five82/framecomp/internal/logging"
)

// Source is a probed video. Scanned sources hold every frame; probed-only
// sources know their frame count and fetch frames one at a time.
type Source struct {
	Path   string
	Stream *StreamInfo

	// FrameRate is the rate conversion applied to the source, or "".
	FrameRate string

	frames    []frame.Info
	numFrames int
}

// NewSource builds a scanned source from already known frames.
func NewSource(path string, stream *StreamInfo, frameRate string, frames []frame.Info) *Source {
	return &Source{Path: path, Stream: stream, FrameRate: frameRate, frames: frames, numFrames: len(frames)}
}

// Name returns the file name of the source.
func (s *Source) Name() string {
	return filepath.Base(s.Path)
}

// NumFrames returns the number of frames after rate conversion.
func (s *Source) NumFrames() int {
	return s.numFrames
}

// Scanned reports whether per-frame statistics are held in memory.
func (s *Source) Scanned() bool {
	return s.frames != nil
}

// Frame returns the statistics of frame i of a scanned source.
func (s *Source) Frame(i int) (frame.Info, error) {
	if !s.Scanned() {
		return frame.Info{}, fmt.Errorf("%s has not been scanned", s.Name())
	}
	if i < 0 || i >= len(s.frames) {
		return frame.Info{}, fmt.Errorf("frame %d out of range [0, %d) in %s", i, len(s.frames), s.Name())
	}
	return s.frames[i], nil
}

// Frames returns every scanned frame in order.
func (s *Source) Frames() []frame.Info {
	return s.frames
}

// FPS returns the effective frame rate.
func (s *Source) FPS() float64 {
	if s.FrameRate != "" {
		if r, err := config.ParseFrameRate(s.FrameRate); err == nil {
			return r.Float()
		}
	}
	if s.Stream == nil {
		return 0
	}
	return s.Stream.FrameRate.Float()
}

// Height returns the stream height.
func (s *Source) Height() int {
	if s.Stream == nil {
		return 0
	}
	return s.Stream.Height
}

// Analyzer opens sources with ffprobe and tracks the sidecar indexes it writes.
type Analyzer struct {
	keepIndex bool
	indexes   []string
}

// NewAnalyzer creates an analyzer. With keepIndex, sidecar indexes survive Cleanup.
func NewAnalyzer(keepIndex bool) *Analyzer {
	return &Analyzer{keepIndex: keepIndex}
}

// Open probes src and scans every frame, reusing a valid sidecar index when
// one exists. progress receives the frames scanned so far and the estimated total.
func (a *Analyzer) Open(ctx context.Context, src config.Source, progress func(scanned, estimated int)) (*Source, error) {
	if _, err := os.Stat(src.Path); err != nil {
		return nil, ferrors.NewSourceUnreadableError(src.Path, err)
	}

	requested := ""
	if src.FPS != nil {
		requested = src.FPS.String()
	}

	if cached, ok := loadIndex(src.Path, requested); ok {
		logging.Debug("using sidecar index", "source", src.Path, "frames", len(cached.frames))
		a.track(IndexPath(src.Path))
		if progress != nil {
			progress(len(cached.frames), len(cached.frames))
		}
		return NewSource(src.Path, cached.stream, cached.frameRate, cached.frames), nil
	}

	stream, err := ProbeStream(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	rate := FrameRateFilter(stream, src.FPS)
	estimated := estimateConverted(stream, rate)

	var scanProgress ScanProgress
	if progress != nil {
		scanProgress = func(scanned int) { progress(scanned, estimated) }
	}
	frames, err := ScanFrames(ctx, src.Path, rate, stream.BitDepth, scanProgress)
	if err != nil {
		return nil, err
	}

	scan := &cachedScan{stream: stream, frameRate: rate, frames: frames}
	if path, err := writeIndex(src.Path, requested, scan); err != nil {
		logging.Warn("could not write sidecar index", "source", src.Path, "error", err)
	} else {
		a.track(path)
	}

	return NewSource(src.Path, stream, rate, frames), nil
}

// Probe reads stream properties and the frame count without decoding.
func (a *Analyzer) Probe(ctx context.Context, src config.Source) (*Source, error) {
	stream, err := ProbeStream(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	rate := FrameRateFilter(stream, src.FPS)

	count, err := CountFrames(ctx, src.Path)
	if err != nil || count == 0 {
		logging.Debug("packet count unavailable, using estimate", "source", src.Path, "error", err)
		count = stream.EstimatedFrames
	}
	if rate != "" && stream.FrameRate.Float() > 0 {
		target, _ := config.ParseFrameRate(rate)
		count = int(math.Floor(float64(count) * target.Float() / stream.FrameRate.Float()))
	}

	return &Source{Path: src.Path, Stream: stream, FrameRate: rate, numFrames: count}, nil
}

// FrameAt returns frame index of s, from memory when s was scanned.
func (a *Analyzer) FrameAt(ctx context.Context, s *Source, index int) (frame.Info, error) {
	if s.Scanned() {
		return s.Frame(index)
	}
	depth := 8
	if s.Stream != nil {
		depth = s.Stream.BitDepth
	}
	return FrameAt(ctx, s.Path, s.FrameRate, depth, index)
}

// Cleanup removes the sidecar indexes used by this analyzer unless they are kept.
// It returns the removed paths.
func (a *Analyzer) Cleanup() ([]string, error) {
	if a.keepIndex {
		return nil, nil
	}
	var removed []string
	var firstErr error
	for _, path := range a.indexes {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed = append(removed, path)
	}
	a.indexes = nil
	return removed, firstErr
}

func (a *Analyzer) track(path string) {
	for _, p := range a.indexes {
		if p == path {
			return
		}
	}
	a.indexes = append(a.indexes, path)
}

// estimateConverted scales the container frame estimate to the converted rate.
func estimateConverted(stream *StreamInfo, rate string) int {
	if rate == "" || stream.FrameRate.Float() <= 0 {
		return stream.EstimatedFrames
	}
	target, err := config.ParseFrameRate(rate)
	if err != nil {
		return stream.EstimatedFrames
	}
	return int(math.Round(float64(stream.EstimatedFrames) * target.Float() / stream.FrameRate.Float()))
}

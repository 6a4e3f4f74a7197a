// Package processing runs comparisons and screenshot captures end to end.
package processing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/export"
	"github.com/five82/framecomp/internal/ffprobe"
	"github.com/five82/framecomp/internal/frame"
	"github.com/five82/framecomp/internal/logging"
	"github.com/five82/framecomp/internal/publish"
	"github.com/five82/framecomp/internal/reporter"
	"github.com/five82/framecomp/internal/util"
)

const (
	// tempPrefix names the per-run directory created under the temp dir.
	tempPrefix = "run"

	// staleTempAge is the age after which leftover run directories are removed.
	staleTempAge = 24 * time.Hour
)

// Analyzer opens sources and reads frame statistics.
type Analyzer interface {
	Open(ctx context.Context, src config.Source, progress func(scanned, estimated int)) (*ffprobe.Source, error)
	Probe(ctx context.Context, src config.Source) (*ffprobe.Source, error)
	FrameAt(ctx context.Context, s *ffprobe.Source, index int) (frame.Info, error)
	Cleanup() ([]string, error)
}

// Exporter renders frames to images.
type Exporter interface {
	Export(ctx context.Context, req export.Request) (export.Image, error)
	OutputDir() string
}

// Deps are the collaborators of a run. Nil fields use ffprobe, ffmpeg and
// the HTTP publishers.
type Deps struct {
	Analyzer     Analyzer
	NewExporter  func(outputDir string, overlay bool) Exporter
	NewPublisher func(cfg config.PublishConfig, mode publish.Mode) (publish.Publisher, error)
	// Rand drives frame sampling; nil uses process-wide randomness.
	Rand *rand.Rand
}

func (d Deps) withDefaults(cfg *config.Config) Deps {
	if d.Analyzer == nil {
		d.Analyzer = ffprobe.NewAnalyzer(cfg.KeepIndex)
	}
	if d.NewExporter == nil {
		d.NewExporter = func(dir string, overlay bool) Exporter { return export.New(dir, overlay) }
	}
	if d.NewPublisher == nil {
		d.NewPublisher = publish.New
	}
	return d
}

// Result summarizes a finished run.
type Result struct {
	URL       string
	OutputDir string
	Images    []export.Image
	// Groups is the number of exported groups; Failed the number dropped
	// because an image could not be rendered.
	Groups   int
	Failed   int
	Warnings []string
}

func (r *Result) warn(rep reporter.Reporter, message string) {
	r.Warnings = append(r.Warnings, message)
	rep.Warning(message)
}

// workspace is where images are written during a run.
type workspace struct {
	dir  string
	temp *util.TempDir
}

func newWorkspace(cfg *config.Config) (*workspace, error) {
	if cfg.KeepImages {
		if err := util.EnsureDirectory(cfg.KeepImagesPath); err != nil {
			return nil, ferrors.NewIOError("cannot create "+cfg.KeepImagesPath, err)
		}
		if err := util.EnsureDirectoryWritable(cfg.KeepImagesPath); err != nil {
			return nil, ferrors.NewIOError("cannot write to "+cfg.KeepImagesPath, err)
		}
		return &workspace{dir: cfg.KeepImagesPath}, nil
	}

	base := cfg.GetTempDir()
	if n, err := util.CleanupStaleTempFiles(base, tempPrefix, staleTempAge); err != nil {
		logging.Debug("stale temp cleanup failed", "dir", base, "error", err)
	} else if n > 0 {
		logging.Info("removed stale temp directories", "dir", base, "count", n)
	}

	temp, err := util.CreateTempDir(base, tempPrefix)
	if err != nil {
		return nil, ferrors.NewIOError("cannot create temp directory", err)
	}
	return &workspace{dir: temp.Path(), temp: temp}, nil
}

// cleanup removes sidecar indexes and the temp directory. Failures are
// reported and never override the run's outcome.
func cleanup(rep reporter.Reporter, analyzer Analyzer, ws *workspace) {
	var summary reporter.CleanupSummary

	removed, err := analyzer.Cleanup()
	summary.Removed = append(summary.Removed, removed...)
	if err != nil {
		logging.Warn("could not remove sidecar index", "error", err)
		rep.Warning(fmt.Sprintf("Could not remove sidecar index: %v", err))
	}

	if ws != nil {
		if ws.temp == nil {
			summary.Kept = append(summary.Kept, ws.dir)
		} else if err := ws.temp.Cleanup(); err != nil {
			logging.Warn("could not remove temp directory", "dir", ws.dir, "error", err)
			rep.Warning(fmt.Sprintf("Could not remove %s: %v", ws.dir, err))
		} else {
			summary.Removed = append(summary.Removed, ws.dir)
		}
	}

	rep.Cleanup(summary)
}

// stageProgress returns a progress callback that starts stage on its first
// call, once the total is known.
func stageProgress(rep reporter.Reporter, stage, message string) func(current, total int) {
	started := false
	return func(current, total int) {
		total = max(total, current)
		if !started {
			rep.StageStarted(stage, max(total, 1))
			started = true
		}
		rep.StageProgress(reporter.StageProgress{Stage: stage, Current: current, Total: total, Message: message})
	}
}

// exportHeight returns the target height: the configured resolution, else
// the tallest source when upscaling, else 0 for native size.
func exportHeight(cfg *config.Config, sources []*ffprobe.Source) int {
	if cfg.Resolution > 0 {
		return cfg.Resolution
	}
	if !cfg.Upscale {
		return 0
	}
	h := 0
	for _, s := range sources {
		h = max(h, s.Height())
	}
	return h
}

func exportRequest(s *ffprobe.Source, f frame.Info, height int) export.Request {
	req := export.Request{Path: s.Path, FrameRate: s.FrameRate, Frame: f, Height: height}
	if s.Stream != nil {
		req.SourceWidth = s.Stream.Width
		req.SourceHeight = s.Stream.Height
		req.ColorSpace = s.Stream.ColorSpace
		req.ColorRange = s.Stream.ColorRange
	}
	return req
}

func sourceInfo(s *ffprobe.Source, sync int) reporter.SourceInfo {
	info := reporter.SourceInfo{
		Name:      s.Name(),
		FrameRate: s.FrameRate,
		Converted: s.FrameRate != "",
		Frames:    s.NumFrames(),
		Sync:      sync,
	}
	if s.Stream != nil {
		info.Resolution = fmt.Sprintf("%dx%d", s.Stream.Width, s.Stream.Height)
		info.BitDepth = s.Stream.BitDepth
		if info.FrameRate == "" {
			info.FrameRate = s.Stream.FrameRate.String()
		}
	}
	return info
}

func reportHardware(rep reporter.Reporter) {
	sys := util.GetSystemInfo()
	rep.Hardware(reporter.HardwareSummary{
		Hostname:    sys.Hostname,
		OS:          sys.OS,
		Arch:        sys.Arch,
		NumCPU:      sys.NumCPU,
		MemoryBytes: sys.MemoryBytes,
	})
}

// publishAlbum uploads album and reports the URL.
func publishAlbum(ctx context.Context, rep reporter.Reporter, deps Deps, cfg config.PublishConfig, mode publish.Mode, album publish.Album) (string, error) {
	p, err := deps.NewPublisher(cfg, mode)
	if err != nil {
		return "", err
	}

	images := len(album.Images())
	start := time.Now()
	rep.StageStarted(reporter.StagePublish, images+1)
	url, err := p.Publish(ctx, album, func(done, total int) {
		rep.StageProgress(reporter.StageProgress{Stage: reporter.StagePublish, Current: done, Total: total, Message: p.Name()})
	})
	rep.StageFinished(reporter.StagePublish)
	if err != nil {
		return "", err
	}

	logging.Info("album published", "provider", p.Name(), "url", url, "images", images)
	rep.Published(reporter.PublishResult{
		Provider: p.Name(),
		URL:      url,
		Images:   images,
		Duration: time.Since(start),
	})
	return url, nil
}

// removeImages deletes images rendered for a group that could not be completed.
func removeImages(images []export.Image) {
	for _, img := range images {
		if err := os.Remove(img.Path); err != nil && !os.IsNotExist(err) {
			logging.Debug("could not remove partial image", "path", img.Path, "error", err)
		}
	}
}

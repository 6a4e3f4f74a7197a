package processing

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/ffprobe"
	"github.com/five82/framecomp/internal/logging"
	"github.com/five82/framecomp/internal/publish"
	"github.com/five82/framecomp/internal/reporter"
	"github.com/five82/framecomp/internal/sample"
)

// Screenshots captures random and custom frames of a single source.
type Screenshots struct {
	Config   *config.Config
	Reporter reporter.Reporter
	Deps     Deps
}

// Run executes the capture. Random frames come first, then custom frames
// in configuration order.
func (s *Screenshots) Run(ctx context.Context) (*Result, error) {
	cfg := s.Config
	if err := cfg.ValidateScreenshots(); err != nil {
		return nil, ferrors.NewConfigError("invalid screenshot settings", err)
	}
	rep := s.Reporter
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	deps := s.Deps.withDefaults(cfg)

	reportHardware(rep)

	ws, err := newWorkspace(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup(rep, deps.Analyzer, ws)

	res := &Result{OutputDir: ws.dir}

	srcCfg := cfg.Sources[0]
	src, err := deps.Analyzer.Probe(ctx, srcCfg)
	if err != nil {
		if ctx.Err() != nil {
			return res, ferrors.NewCancelledError()
		}
		return res, err
	}
	rep.Sources(reporter.SourcesSummary{
		Mode:      "screenshots",
		Sources:   []reporter.SourceInfo{sourceInfo(src, srcCfg.Sync)},
		OutputDir: ws.dir,
	})

	indices, custom, err := s.frameIndices(src.NumFrames(), res, rep)
	if err != nil {
		return res, err
	}

	album, err := s.export(ctx, rep, deps, ws, src, indices, custom, res)
	if err != nil {
		return res, err
	}

	if cfg.Publish.Enabled && len(album.Groups) > 0 && len(album.Groups[0].Images) > 0 {
		url, err := publishAlbum(ctx, rep, deps, cfg.Publish, publish.ModeCollection, album)
		if err != nil {
			return res, err
		}
		res.URL = url
	}

	rep.OperationComplete(fmt.Sprintf("%d screenshots of %s", len(res.Images), src.Name()))
	return res, nil
}

// frameIndices validates the request against the frame count and returns
// the frames to capture; the last custom of them are custom frames.
func (s *Screenshots) frameIndices(numFrames int, res *Result, rep reporter.Reporter) ([]int, int, error) {
	cfg := s.Config

	var custom []int
	seen := make(map[int]bool)
	for _, cf := range cfg.CustomFrames {
		if cf.FrameIndex >= numFrames {
			return nil, 0, ferrors.NewConfigError(
				fmt.Sprintf("frame %d is beyond the last frame (%d)", cf.FrameIndex, numFrames-1),
				config.ErrInvalidCustomFrame)
		}
		if seen[cf.FrameIndex] {
			res.warn(rep, fmt.Sprintf("Custom frame selected (index: %d - %s) already used", cf.FrameIndex, filepath.Base(cfg.Sources[0].Path)))
			continue
		}
		seen[cf.FrameIndex] = true
		custom = append(custom, cf.FrameIndex)
	}

	if cfg.FramesCount+len(custom) > numFrames {
		return nil, 0, ferrors.NewConfigError(
			fmt.Sprintf("%d frames requested, source has %d", cfg.FramesCount+len(custom), numFrames),
			config.ErrTooManyFrames)
	}

	indices := sample.PickIndices(numFrames, cfg.FramesCount, custom, s.Deps.Rand)
	return append(indices, custom...), len(custom), nil
}

// export renders every frame. Frames that cannot be read or rendered are
// skipped with a warning.
func (s *Screenshots) export(ctx context.Context, rep reporter.Reporter, deps Deps, ws *workspace, src *ffprobe.Source, indices []int, custom int, res *Result) (publish.Album, error) {
	cfg := s.Config
	log := logging.Global().WithComponent("screenshots")
	height := exportHeight(cfg, []*ffprobe.Source{src})
	exporter := deps.NewExporter(ws.dir, cfg.Overlay)

	group := publish.Group{Name: src.Name()}
	counts := make(map[sample.Category]int)
	firstCustom := len(indices) - custom

	rep.StageStarted(reporter.StageExport, len(indices))
	for n, idx := range indices {
		category := sample.CategoryRandom
		if n >= firstCustom {
			category = sample.CategoryCustom
		}

		err := func() error {
			info, err := deps.Analyzer.FrameAt(ctx, src, idx)
			if err != nil {
				return err
			}
			img, err := exporter.Export(ctx, exportRequest(src, info, height))
			if err != nil {
				return err
			}
			res.Images = append(res.Images, img)
			group.Images = append(group.Images, publish.Image{Path: img.Path, Name: filepath.Base(img.Path)})
			counts[category]++
			return nil
		}()
		rep.StageProgress(reporter.StageProgress{Stage: reporter.StageExport, Current: n + 1, Total: len(indices), Message: fmt.Sprintf("frame %d", idx)})

		if err != nil {
			if ferrors.IsCancelled(err) || ctx.Err() != nil {
				return publish.Album{}, ferrors.NewCancelledError()
			}
			log.Warn("frame skipped", "frame", idx, "error", err)
			res.Failed++
			res.warn(rep, fmt.Sprintf("Skipping frame %d: %v", idx, err))
		}
	}
	rep.StageFinished(reporter.StageExport)
	res.Groups = len(group.Images)

	summary := reporter.ExportSummary{
		Images:    len(res.Images),
		Failed:    res.Failed,
		OutputDir: exporter.OutputDir(),
		Height:    height,
	}
	for _, cat := range []sample.Category{sample.CategoryRandom, sample.CategoryCustom} {
		if counts[cat] > 0 {
			summary.Categories = append(summary.Categories, reporter.CategoryCount{Name: cat.Title(), Count: counts[cat]})
		}
	}
	rep.ExportComplete(summary)

	return publish.Album{
		Name:        cfg.Publish.Name,
		Description: cfg.Publish.Description,
		Groups:      []publish.Group{group},
	}, nil
}

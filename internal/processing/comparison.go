package processing

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/five82/framecomp/internal/align"
	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/export"
	"github.com/five82/framecomp/internal/ffprobe"
	"github.com/five82/framecomp/internal/frame"
	"github.com/five82/framecomp/internal/logging"
	"github.com/five82/framecomp/internal/lumastats"
	"github.com/five82/framecomp/internal/publish"
	"github.com/five82/framecomp/internal/reporter"
	"github.com/five82/framecomp/internal/sample"
	"github.com/five82/framecomp/internal/util"
)

// Comparison captures the same moments from several sources and publishes
// them side by side.
type Comparison struct {
	Config   *config.Config
	Reporter reporter.Reporter
	Deps     Deps
}

// ComparisonResult is the outcome of a comparison run.
type ComparisonResult struct {
	Result
	Alignment *align.Result
}

// opened is a readable source with its position in the configuration.
type opened struct {
	configIndex int
	config      config.Source
	source      *ffprobe.Source
}

// Run executes the comparison. Sidecar indexes and the temp directory are
// removed before returning, also on failure.
func (c *Comparison) Run(ctx context.Context) (*ComparisonResult, error) {
	cfg := c.Config
	if err := cfg.ValidateCompare(); err != nil {
		return nil, ferrors.NewConfigError("invalid comparison settings", err)
	}
	rep := c.Reporter
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	deps := c.Deps.withDefaults(cfg)
	log := logging.Global().WithComponent("compare")

	reportHardware(rep)

	ws, err := newWorkspace(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup(rep, deps.Analyzer, ws)

	res := &ComparisonResult{Result: Result{OutputDir: ws.dir}}

	sources, err := c.open(ctx, rep, deps.Analyzer, &res.Result)
	if err != nil {
		return res, err
	}

	summary := reporter.SourcesSummary{Mode: "compare", OutputDir: ws.dir}
	for _, o := range sources {
		summary.Sources = append(summary.Sources, sourceInfo(o.source, o.config.Sync))
	}
	rep.Sources(summary)
	c.reportLuma(rep, sources, &res.Result)

	inputs := make([]align.Input, len(sources))
	paths := make([]string, len(sources))
	for i, o := range sources {
		inputs[i] = align.Input{Path: o.source.Path, Source: o.source, Sync: o.config.Sync}
		paths[i] = o.source.Path
	}
	aligned, err := align.Align(ctx, inputs, cfg.PictureType, stageProgress(rep, reporter.StageAlign, "aligning frames"))
	if err != nil {
		return res, err
	}
	rep.StageFinished(reporter.StageAlign)
	res.Alignment = aligned

	buckets := align.Bucketize(aligned.Groups)
	rejected := make(map[string]int)
	for reason, n := range aligned.Counts() {
		rejected[string(reason)] = n
	}
	rep.Buckets(reporter.BucketSummary{
		Positions: aligned.Positions,
		Accepted:  len(aligned.Groups),
		Rejected:  rejected,
		Dark:      len(buckets[frame.ClassDark]),
		Light:     len(buckets[frame.ClassLight]),
		Random:    len(buckets[frame.ClassRandom]),
	})
	for _, r := range aligned.Rejections {
		if r.Reason == align.ReasonDecodeFailure {
			log.Debug("group rejected", "position", r.Position, "source", r.SourceIndex, "error", r.Err)
		}
	}

	selection := c.selectGroups(rep, sources, paths, aligned, buckets, &res.Result)
	if selection.Len() == 0 {
		res.warn(rep, "No frame group to export")
		return res, nil
	}

	album, err := c.export(ctx, rep, deps, ws, sources, selection, &res.Result)
	if err != nil {
		return res, err
	}

	if cfg.Publish.Enabled && len(album.Groups) > 0 {
		url, err := publishAlbum(ctx, rep, deps, cfg.Publish, publish.ModeComparison, album)
		if err != nil {
			return res, err
		}
		res.URL = url
	}

	rep.OperationComplete(fmt.Sprintf("Compared %d sources, %d groups exported", len(sources), res.Groups))
	return res, nil
}

// open scans every configured source, dropping unreadable ones.
func (c *Comparison) open(ctx context.Context, rep reporter.Reporter, analyzer Analyzer, res *Result) ([]opened, error) {
	var sources []opened
	for i, src := range c.Config.Sources {
		if ctx.Err() != nil {
			return nil, ferrors.NewCancelledError()
		}
		name := filepath.Base(src.Path)
		s, err := analyzer.Open(ctx, src, stageProgress(rep, reporter.StageAnalysis, name))
		if err != nil {
			if ferrors.IsCancelled(err) || ctx.Err() != nil {
				return nil, ferrors.NewCancelledError()
			}
			logging.Warn("source dropped", "source", src.Path, "error", err)
			res.warn(rep, fmt.Sprintf("Skipping %s: %v", name, err))
			continue
		}
		sources = append(sources, opened{configIndex: i, config: src, source: s})
	}
	rep.StageFinished(reporter.StageAnalysis)

	if len(sources) < 2 {
		return nil, ferrors.NewConfigError(
			fmt.Sprintf("%d of %d sources are readable", len(sources), len(c.Config.Sources)),
			config.ErrTooFewSources)
	}
	return sources, nil
}

func (c *Comparison) reportLuma(rep reporter.Reporter, sources []opened, res *Result) {
	var summary reporter.LumaSummary
	series := make([]lumastats.Series, len(sources))
	for i, o := range sources {
		series[i] = lumastats.Series{Name: o.source.Name(), Frames: o.source.Frames()}
		summary.Sources = append(summary.Sources, lumastats.Summarize(series[i]))
	}

	if path := c.Config.LumaChart; path != "" {
		if err := lumastats.WriteChart(path, series); err != nil {
			res.warn(rep, fmt.Sprintf("Could not write luma chart: %v", err))
		} else {
			summary.ChartPath = path
		}
	}
	rep.LumaSummary(summary)
}

// selectGroups samples every bucket, then resolves custom frames.
func (c *Comparison) selectGroups(rep reporter.Reporter, sources []opened, paths []string, aligned *align.Result, buckets align.Buckets, res *Result) *sample.Selection {
	cfg := c.Config
	sel := sample.NewSelector(paths, aligned, c.Deps.Rand)
	sel.SelectBucket(sample.CategoryDark, buckets[frame.ClassDark], cfg.DarkFrames)
	sel.SelectBucket(sample.CategoryLight, buckets[frame.ClassLight], cfg.LightFrames)
	sel.SelectBucket(sample.CategoryRandom, buckets[frame.ClassRandom], cfg.RandomFrames)

	position := make(map[int]int, len(sources))
	for i, o := range sources {
		position[o.configIndex] = i
	}
	for _, cf := range cfg.CustomFrames {
		idx, ok := position[cf.SourceIndex]
		if !ok {
			sel.Unavailable(filepath.Base(cfg.Sources[cf.SourceIndex].Path), cf.FrameIndex)
			continue
		}
		sel.SelectCustom(idx, cf.FrameIndex)
	}

	for _, w := range sel.Warnings() {
		res.warn(rep, w.Message)
	}
	return sel.Selection()
}

// export renders every chosen group. A group with a failed image is dropped
// and the run continues.
func (c *Comparison) export(ctx context.Context, rep reporter.Reporter, deps Deps, ws *workspace, sources []opened, selection *sample.Selection, res *Result) (publish.Album, error) {
	cfg := c.Config
	streams := make([]*ffprobe.Source, len(sources))
	for i, o := range sources {
		streams[i] = o.source
	}
	height := exportHeight(cfg, streams)
	exporter := deps.NewExporter(ws.dir, cfg.Overlay)

	album := publish.Album{Name: cfg.Publish.Name, Description: cfg.Publish.Description}
	chosen := selection.Ordered()
	total := len(chosen) * len(sources)
	counts := make(map[sample.Category]int)

	rep.StageStarted(reporter.StageExport, total)
	for n, ch := range chosen {
		images, err := exportGroup(ctx, exporter, streams, ch.Group, height)
		rep.StageProgress(reporter.StageProgress{
			Stage:   reporter.StageExport,
			Current: (n + 1) * len(sources),
			Total:   total,
			Message: ch.Category.GroupName(),
		})
		if err != nil {
			if ferrors.IsCancelled(err) {
				return album, err
			}
			res.Failed++
			res.warn(rep, fmt.Sprintf("Dropping %s group at position %d: %v", ch.Category, ch.Group.Position, err))
			continue
		}

		group := publish.Group{Name: ch.Category.GroupName()}
		for _, img := range images {
			group.Images = append(group.Images, publish.Image{Path: img.Path, Name: filepath.Base(img.Source)})
		}
		logging.Debug("exported group", "category", ch.Category.Title(), "position", ch.Group.Position,
			"time", groupTimestamp(ch.Group, streams[0].FPS()))
		album.Groups = append(album.Groups, group)
		res.Images = append(res.Images, images...)
		res.Groups++
		counts[ch.Category]++
	}
	rep.StageFinished(reporter.StageExport)

	summary := reporter.ExportSummary{
		Images:    len(res.Images),
		Failed:    res.Failed,
		OutputDir: exporter.OutputDir(),
		Height:    height,
	}
	for _, cat := range sample.Order {
		if counts[cat] > 0 {
			summary.Categories = append(summary.Categories, reporter.CategoryCount{Name: cat.Title(), Count: counts[cat]})
		}
	}
	rep.ExportComplete(summary)
	return album, nil
}

// exportGroup renders one image per member. On failure the images already
// rendered for the group are removed.
func exportGroup(ctx context.Context, exporter Exporter, sources []*ffprobe.Source, g align.Group, height int) ([]export.Image, error) {
	images := make([]export.Image, 0, len(g.Members))
	for i, m := range g.Members {
		img, err := exporter.Export(ctx, exportRequest(sources[i], m, height))
		if err != nil {
			removeImages(images)
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// groupTimestamp returns the time of the frame exported for the first source.
func groupTimestamp(g align.Group, fps float64) string {
	if len(g.Members) == 0 {
		return util.FormatFrameTimestamp(g.Position, fps)
	}
	return util.FormatFrameTimestamp(g.Members[0].Index, fps)
}

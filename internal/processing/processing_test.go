package processing

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/framecomp/internal/align"
	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/export"
	"github.com/five82/framecomp/internal/ffmpeg"
	"github.com/five82/framecomp/internal/ffprobe"
	"github.com/five82/framecomp/internal/frame"
	"github.com/five82/framecomp/internal/publish"
	"github.com/five82/framecomp/internal/reporter"
)

var scenarioLumas = []float64{0.1, 0.1, 0.5, 0.5, 0.9, 0.9, 0.1, 0.1, 0.5, 0.5}

// fakeAnalyzer serves in-memory sources keyed by path.
type fakeAnalyzer struct {
	lumas   map[string][]float64
	heights map[string]int
	broken  map[string]bool
	cleaned bool
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		lumas:   make(map[string][]float64),
		heights: make(map[string]int),
		broken:  make(map[string]bool),
	}
}

func (a *fakeAnalyzer) add(path string, height int, lumas []float64) {
	a.lumas[path] = lumas
	a.heights[path] = height
}

func (a *fakeAnalyzer) source(src config.Source) (*ffprobe.Source, error) {
	if a.broken[src.Path] {
		return nil, ferrors.NewSourceUnreadableError(src.Path, errors.New("invalid data found when processing input"))
	}
	lumas, ok := a.lumas[src.Path]
	if !ok {
		return nil, ferrors.NewSourceUnreadableError(src.Path, os.ErrNotExist)
	}
	frames := make([]frame.Info, len(lumas))
	for i, l := range lumas {
		frames[i] = frame.New(i, l, frame.PictureP)
	}
	h := a.heights[src.Path]
	stream := &ffprobe.StreamInfo{
		Width:     h * 16 / 9,
		Height:    h,
		BitDepth:  8,
		FrameRate: config.Rational{Num: 24000, Den: 1001},
	}
	return ffprobe.NewSource(src.Path, stream, "", frames), nil
}

func (a *fakeAnalyzer) Open(_ context.Context, src config.Source, progress func(int, int)) (*ffprobe.Source, error) {
	s, err := a.source(src)
	if err == nil && progress != nil {
		progress(s.NumFrames(), s.NumFrames())
	}
	return s, err
}

func (a *fakeAnalyzer) Probe(_ context.Context, src config.Source) (*ffprobe.Source, error) {
	return a.source(src)
}

func (a *fakeAnalyzer) FrameAt(_ context.Context, s *ffprobe.Source, index int) (frame.Info, error) {
	return s.Frame(index)
}

func (a *fakeAnalyzer) Cleanup() ([]string, error) {
	a.cleaned = true
	return nil, nil
}

// renderer writes a placeholder file for each frame and records the requests.
type renderer struct {
	mu     sync.Mutex
	params []ffmpeg.ExtractParams
	fail   func(p *ffmpeg.ExtractParams) bool
}

func (r *renderer) render(_ context.Context, p *ffmpeg.ExtractParams) error {
	r.mu.Lock()
	r.params = append(r.params, *p)
	r.mu.Unlock()
	if r.fail != nil && r.fail(p) {
		return errors.New("decode failed")
	}
	return os.WriteFile(p.Output, []byte("png"), 0644)
}

// fakePublisher records the album it receives.
type fakePublisher struct {
	name  string
	mode  publish.Mode
	album publish.Album
	err   error
}

func (p *fakePublisher) Name() string { return p.name }

func (p *fakePublisher) Publish(_ context.Context, album publish.Album, progress publish.Progress) (string, error) {
	p.album = album
	if p.err != nil {
		return "", p.err
	}
	total := len(album.Images()) + 1
	progress(total, total)
	return "https://example.test/c/abc", nil
}

// recorder keeps the events a run reports.
type recorder struct {
	reporter.NullReporter
	warnings []string
	luma     reporter.LumaSummary
	buckets  reporter.BucketSummary
	exported reporter.ExportSummary
	cleanup  reporter.CleanupSummary
	sources  reporter.SourcesSummary
}

func (r *recorder) Warning(m string) { r.warnings = append(r.warnings, m) }
func (r *recorder) LumaSummary(s reporter.LumaSummary) { r.luma = s }
func (r *recorder) Buckets(s reporter.BucketSummary) { r.buckets = s }
func (r *recorder) ExportComplete(s reporter.ExportSummary) { r.exported = s }
func (r *recorder) Cleanup(s reporter.CleanupSummary) { r.cleanup = s }
func (r *recorder) Sources(s reporter.SourcesSummary) { r.sources = s }

type harness struct {
	cfg       *config.Config
	analyzer  *fakeAnalyzer
	renderer  *renderer
	publisher *fakePublisher
	rep       *recorder
}

func newHarness(t *testing.T, paths ...string) *harness {
	t.Helper()
	cfg := config.NewConfig()
	cfg.TempDir = filepath.Join(t.TempDir(), "tmp")
	cfg.PictureType = config.PictureTypeFilter{Mode: config.FilterOff}
	cfg.Overlay = false
	for _, p := range paths {
		cfg.Sources = append(cfg.Sources, config.Source{Path: p})
	}

	h := &harness{
		cfg:       cfg,
		analyzer:  newFakeAnalyzer(),
		renderer:  &renderer{},
		publisher: &fakePublisher{name: "fake"},
		rep:       &recorder{},
	}
	for _, p := range paths {
		h.analyzer.add(p, 1080, scenarioLumas)
	}
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Analyzer: h.analyzer,
		NewExporter: func(dir string, overlay bool) Exporter {
			return export.NewWithRenderer(dir, overlay, h.renderer.render)
		},
		NewPublisher: func(cfg config.PublishConfig, mode publish.Mode) (publish.Publisher, error) {
			h.publisher.mode = mode
			return h.publisher, nil
		},
		Rand: rand.New(rand.NewPCG(1, 2)),
	}
}

func (h *harness) compare(ctx context.Context) (*ComparisonResult, error) {
	c := &Comparison{Config: h.cfg, Reporter: h.rep, Deps: h.deps()}
	return c.Run(ctx)
}

func (h *harness) screenshots(ctx context.Context) (*Result, error) {
	s := &Screenshots{Config: h.cfg, Reporter: h.rep, Deps: h.deps()}
	return s.Run(ctx)
}

func positions(t *testing.T, res *ComparisonResult, name string) []int {
	t.Helper()
	var out []int
	for _, img := range res.Images {
		if filepath.Base(img.Source) == name {
			out = append(out, img.Frame.Index)
		}
	}
	return out
}

func TestComparisonEndToEnd(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/b.mkv")
	h.cfg.DarkFrames, h.cfg.LightFrames, h.cfg.RandomFrames = 2, 1, 1

	res, err := h.compare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, reporter.BucketSummary{Positions: 10, Accepted: 10, Rejected: map[string]int{}, Dark: 4, Light: 4, Random: 2}, h.rep.buckets)
	assert.Equal(t, 4, res.Groups)
	assert.Len(t, res.Images, 8)
	assert.Equal(t, "https://example.test/c/abc", res.URL)
	assert.Equal(t, publish.ModeComparison, h.publisher.mode)

	var names []string
	for _, g := range h.publisher.album.Groups {
		names = append(names, g.Name)
		require.Len(t, g.Images, 2)
		assert.Equal(t, "a.mkv", g.Images[0].Name)
		assert.Equal(t, "b.mkv", g.Images[1].Name)
	}
	assert.Equal(t, []string{"Dark scene", "Dark scene", "Light scene", "Random scene"}, names)

	a := positions(t, res, "a.mkv")
	assert.Equal(t, a, positions(t, res, "b.mkv"))
	seen := map[int]bool{}
	for i, p := range a {
		assert.False(t, seen[p], "position %d exported twice", p)
		seen[p] = true
		switch {
		case i < 2:
			assert.Contains(t, []int{0, 1, 6, 7}, p)
		case i == 2:
			assert.Contains(t, []int{2, 3, 8, 9}, p)
		default:
			assert.Contains(t, []int{4, 5}, p)
		}
	}

	// Upscaling to the tallest source keeps 1080p.
	for _, p := range h.renderer.params {
		assert.Equal(t, 1080, p.Height)
	}

	assert.True(t, h.analyzer.cleaned)
	assert.NoDirExists(t, res.OutputDir)
	assert.Contains(t, h.rep.cleanup.Removed, res.OutputDir)
	require.Len(t, h.rep.luma.Sources, 2)
	assert.Equal(t, 4, h.rep.luma.Sources[0].Dark)
}

func TestComparisonDropsUnreadableSource(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/broken.mkv", "/v/b.mkv")
	h.analyzer.broken["/v/broken.mkv"] = true
	h.cfg.DarkFrames, h.cfg.LightFrames, h.cfg.RandomFrames = 1, 0, 0
	h.cfg.Publish.Enabled = false

	res, err := h.compare(context.Background())
	require.NoError(t, err)

	require.Len(t, h.rep.sources.Sources, 2)
	assert.Equal(t, "b.mkv", h.rep.sources.Sources[1].Name)
	assert.Equal(t, 1, res.Groups)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "broken.mkv")
}

func TestComparisonTooFewReadableSources(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/missing.mkv")
	delete(h.analyzer.lumas, "/v/missing.mkv")

	_, err := h.compare(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.IsKind(err, ferrors.KindConfig))
	assert.ErrorIs(t, err, config.ErrTooFewSources)
	assert.True(t, h.analyzer.cleaned)
	assert.Empty(t, h.renderer.params)
}

func TestComparisonInvalidConfig(t *testing.T) {
	h := newHarness(t, "/v/a.mkv")

	_, err := h.compare(context.Background())
	assert.ErrorIs(t, err, config.ErrTooFewSources)
	assert.False(t, h.analyzer.cleaned, "no I/O before validation")
}

func TestComparisonCustomFrames(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/gone.mkv", "/v/b.mkv")
	h.analyzer.broken["/v/gone.mkv"] = true
	h.cfg.DarkFrames, h.cfg.LightFrames, h.cfg.RandomFrames = 0, 0, 0
	h.cfg.CustomFrames = []config.CustomFrame{
		{SourceIndex: 0, FrameIndex: 4},
		{SourceIndex: 2, FrameIndex: 4},
		{SourceIndex: 0, FrameIndex: 99},
		{SourceIndex: 1, FrameIndex: 3},
	}

	res, err := h.compare(context.Background())
	require.NoError(t, err)

	require.Len(t, h.publisher.album.Groups, 1)
	assert.Equal(t, "Custom scene", h.publisher.album.Groups[0].Name)
	assert.Equal(t, []int{4}, positions(t, res, "a.mkv"))

	assert.Contains(t, res.Warnings, "Custom frame selected (index: 4 - b.mkv) already used")
	assert.Contains(t, res.Warnings, "Custom frame selected (index: 99 - a.mkv) not available")
	assert.Contains(t, res.Warnings, "Custom frame selected (index: 3 - gone.mkv) not available")
}

func TestComparisonEmptyBucketWarns(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/b.mkv")
	h.analyzer.add("/v/a.mkv", 1080, []float64{0.1, 0.1, 0.1})
	h.analyzer.add("/v/b.mkv", 1080, []float64{0.1, 0.1, 0.1})
	h.cfg.DarkFrames, h.cfg.LightFrames, h.cfg.RandomFrames = 5, 1, 0

	res, err := h.compare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Groups, "oversized requests are clamped")
	assert.Contains(t, res.Warnings, "No light scene to capture, skipping")
}

func TestComparisonExportFailureDropsGroup(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/b.mkv")
	h.cfg.DarkFrames, h.cfg.LightFrames, h.cfg.RandomFrames = 4, 0, 0
	h.cfg.KeepImages = true
	h.cfg.KeepImagesPath = t.TempDir()
	h.renderer.fail = func(p *ffmpeg.ExtractParams) bool {
		return filepath.Base(p.Input) == "b.mkv" && p.Index == 6
	}

	res, err := h.compare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Groups)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, h.publisher.album.Groups, 3)
	assert.NoFileExists(t, filepath.Join(h.cfg.KeepImagesPath, export.FileName("/v/a.mkv", 6)))
	assert.FileExists(t, filepath.Join(h.cfg.KeepImagesPath, export.FileName("/v/a.mkv", 7)))
	assert.Equal(t, 6, h.rep.exported.Images)
	assert.Equal(t, []string{h.cfg.KeepImagesPath}, h.rep.cleanup.Kept)
}

func TestComparisonExportHeight(t *testing.T) {
	tests := []struct {
		name       string
		upscale    bool
		resolution int
		want       map[string]int
	}{
		{"upscale to tallest", true, 0, map[string]int{"a.mkv": 1080, "b.mkv": 1080}},
		{"native", false, 0, map[string]int{"a.mkv": 1080, "b.mkv": 720}},
		{"explicit", true, 540, map[string]int{"a.mkv": 540, "b.mkv": 540}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "/v/a.mkv", "/v/b.mkv")
			h.analyzer.heights["/v/b.mkv"] = 720
			h.cfg.DarkFrames, h.cfg.LightFrames, h.cfg.RandomFrames = 1, 0, 0
			h.cfg.Upscale = tt.upscale
			h.cfg.Resolution = tt.resolution
			h.cfg.Publish.Enabled = false

			res, err := h.compare(context.Background())
			require.NoError(t, err)

			for _, img := range res.Images {
				assert.Equal(t, tt.want[filepath.Base(img.Source)], img.Height, "height of %s", img.Source)
			}
		})
	}
}

func TestComparisonPublishFailure(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/b.mkv")
	h.cfg.DarkFrames, h.cfg.LightFrames, h.cfg.RandomFrames = 1, 0, 0
	h.publisher.err = ferrors.NewUploadError("unexpected response", errors.New("500 Internal Server Error"))

	res, err := h.compare(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.IsKind(err, ferrors.KindUpload))
	assert.Empty(t, res.URL)
	assert.NoDirExists(t, res.OutputDir)
}

func TestComparisonCancelled(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/b.mkv")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.compare(ctx)
	assert.True(t, ferrors.IsCancelled(err), "err = %v", err)
	assert.True(t, h.analyzer.cleaned)
}

func TestComparisonLumaChart(t *testing.T) {
	h := newHarness(t, "/v/a.mkv", "/v/b.mkv")
	h.cfg.LumaChart = filepath.Join(t.TempDir(), "luma.png")
	h.cfg.Publish.Enabled = false

	_, err := h.compare(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, h.cfg.LumaChart)
	assert.Equal(t, h.cfg.LumaChart, h.rep.luma.ChartPath)
}

func TestScreenshots(t *testing.T) {
	lumas := make([]float64, 100)
	h := newHarness(t, "/v/movie.mkv")
	h.analyzer.add("/v/movie.mkv", 2160, lumas)
	h.cfg.FramesCount = 3
	h.cfg.CustomFrames = []config.CustomFrame{{FrameIndex: 5}, {FrameIndex: 5}}
	h.cfg.Resolution = 1080
	h.cfg.Publish.Provider = config.ProviderCatbox

	res, err := h.screenshots(context.Background())
	require.NoError(t, err)

	assert.Equal(t, publish.ModeCollection, h.publisher.mode)
	require.Len(t, h.publisher.album.Groups, 1)
	images := h.publisher.album.Groups[0].Images
	require.Len(t, images, 4)
	assert.Equal(t, export.FileName("/v/movie.mkv", 5), images[3].Name)

	require.Len(t, res.Images, 4)
	for i, img := range res.Images[:3] {
		assert.NotEqual(t, 5, img.Frame.Index)
		if i > 0 {
			assert.Greater(t, img.Frame.Index, res.Images[i-1].Frame.Index)
		}
	}
	for _, p := range h.renderer.params {
		assert.Equal(t, 1080, p.Height)
	}
	assert.Contains(t, res.Warnings, "Custom frame selected (index: 5 - movie.mkv) already used")
	assert.Equal(t, []reporter.CategoryCount{{Name: "Random", Count: 3}, {Name: "Custom", Count: 1}}, h.rep.exported.Categories)
	assert.NoDirExists(t, res.OutputDir)
}

func TestScreenshotsFrameValidation(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		custom []int
		want   error
	}{
		{"too many frames", 5, []int{1}, config.ErrTooManyFrames},
		{"custom beyond last frame", 1, []int{5}, config.ErrInvalidCustomFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "/v/short.mkv")
			h.analyzer.add("/v/short.mkv", 1080, []float64{0.1, 0.2, 0.3, 0.4, 0.5})
			h.cfg.FramesCount = tt.count
			for _, c := range tt.custom {
				h.cfg.CustomFrames = append(h.cfg.CustomFrames, config.CustomFrame{FrameIndex: c})
			}

			_, err := h.screenshots(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, ferrors.IsKind(err, ferrors.KindConfig))
			assert.Empty(t, h.renderer.params)
		})
	}
}

func TestScreenshotsSkipsFailedFrames(t *testing.T) {
	h := newHarness(t, "/v/movie.mkv")
	h.cfg.FramesCount = 0
	h.cfg.CustomFrames = []config.CustomFrame{{FrameIndex: 1}, {FrameIndex: 2}}
	h.cfg.KeepImages = true
	h.cfg.KeepImagesPath = t.TempDir()
	h.cfg.Publish.Enabled = false
	h.renderer.fail = func(p *ffmpeg.ExtractParams) bool { return p.Index == 1 }

	res, err := h.screenshots(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Images, 1)
	assert.Equal(t, 2, res.Images[0].Frame.Index)
	assert.Equal(t, 1, res.Failed)
	assert.FileExists(t, res.Images[0].Path)
	assert.Contains(t, res.Warnings[0], fmt.Sprintf("Skipping frame %d", 1))
}

func TestComparisonSameFileNameInDifferentDirectories(t *testing.T) {
	h := newHarness(t, "/release1/ep01.mkv", "/release2/ep01.mkv")
	h.cfg.DarkFrames, h.cfg.LightFrames, h.cfg.RandomFrames = 1, 0, 0

	res, err := h.compare(context.Background())
	require.NoError(t, err)
	require.Len(t, h.publisher.album.Groups, 1)

	images := h.publisher.album.Groups[0].Images
	require.Len(t, images, 2)
	assert.NotEqual(t, images[0].Path, images[1].Path)
	require.Len(t, res.Images, 2)
	assert.Equal(t, "/release1/ep01.mkv", res.Images[0].Source)
	assert.Equal(t, "/release2/ep01.mkv", res.Images[1].Source)
}

func TestGroupTimestamp(t *testing.T) {
	// Source 0 is synced 240 frames ahead, so position 0 shows frame 240.
	g := align.Group{Position: 0, Members: []frame.Info{frame.New(240, 0.2, frame.PictureI), frame.New(0, 0.2, frame.PictureI)}}
	assert.Equal(t, "00:00:10", groupTimestamp(g, 24))
	assert.Equal(t, "00:00:01", groupTimestamp(align.Group{Position: 24}, 24))
}

// Package framecomp picks matching frames from several encodes of the same
// video, renders them to PNG and publishes them for side by side viewing.
//
// Frames are classified as dark, light or random by their average luma,
// aligned across sources (with optional per-source sync offsets and frame
// rate conversion) and sampled per class.
//
// Basic usage:
//
//	comparer, err := framecomp.New(
//	    framecomp.WithSources("source.mkv", "encode.mkv"),
//	    framecomp.WithFrames(3, 3, 2),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := comparer.Compare(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(result.URL)
package framecomp

import (
	"context"
	"io"

	"github.com/five82/framecomp/internal/config"
	"github.com/five82/framecomp/internal/discovery"
	"github.com/five82/framecomp/internal/processing"
	"github.com/five82/framecomp/internal/reporter"
)

// Re-exported configuration types.
type (
	Config            = config.Config
	Rational          = config.Rational
	PictureTypeFilter = config.PictureTypeFilter
	Provider          = config.Provider
)

const (
	ProviderSlowpics = config.ProviderSlowpics
	ProviderCatbox   = config.ProviderCatbox
	ProviderImgur    = config.ProviderImgur
)

// Reporter receives progress events. A nil Reporter discards them.
type Reporter = reporter.Reporter

// NewTerminalReporter returns a Reporter printing to the terminal.
func NewTerminalReporter(verbose bool) Reporter {
	return reporter.NewTerminalReporter(verbose)
}

// NewJSONReporter returns a Reporter writing one JSON event per line to w.
func NewJSONReporter(w io.Writer) Reporter {
	return reporter.NewJSONReporterWithWriter(w)
}

// ParseFrameRate parses "24000/1001" or "24".
func ParseFrameRate(s string) (Rational, error) {
	return config.ParseFrameRate(s)
}

// ParsePictureType parses a picture type filter: "any", "off", "I", "P" or "B".
func ParsePictureType(s string) (PictureTypeFilter, error) {
	return config.ParsePictureTypeFilter(s)
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.LoadFile(path)
}

// Comparer runs comparisons and screenshot captures.
type Comparer struct {
	config *config.Config
}

// Result is the outcome of a run.
type Result struct {
	URL       string
	OutputDir string
	// Images are the exported image paths. They only outlive the run
	// when images are kept.
	Images   []string
	Groups   int
	Failed   int
	Warnings []string
}

// Option configures a Comparer.
type Option func(*config.Config)

// New creates a Comparer with default settings adjusted by opts.
func New(opts ...Option) (*Comparer, error) {
	return NewFromConfig(config.NewConfig(), opts...)
}

// NewFromConfig creates a Comparer from cfg, typically loaded with
// LoadConfig, adjusted by opts. cfg is copied.
func NewFromConfig(cfg *Config, opts ...Option) (*Comparer, error) {
	c := *cfg
	c.Sources = append([]config.Source(nil), cfg.Sources...)
	c.CustomFrames = append([]config.CustomFrame(nil), cfg.CustomFrames...)
	for _, opt := range opts {
		opt(&c)
	}
	if len(c.Sources) == 0 {
		return nil, config.ErrSourceCount
	}
	return &Comparer{config: &c}, nil
}

// WithSources appends sources. Directories contribute their video files.
func WithSources(paths ...string) Option {
	return func(c *config.Config) {
		expanded, err := discovery.ExpandSources(paths)
		if err != nil {
			expanded = paths
		}
		for _, p := range expanded {
			c.Sources = append(c.Sources, config.Source{Path: p})
		}
	}
}

// WithSync sets the frame offset of the source at index.
func WithSync(index, offset int) Option {
	return func(c *config.Config) {
		if index >= 0 && index < len(c.Sources) {
			c.Sources[index].Sync = offset
		}
	}
}

// WithFrameRate converts the source at index to rate before comparing.
func WithFrameRate(index int, rate Rational) Option {
	return func(c *config.Config) {
		if index >= 0 && index < len(c.Sources) {
			r := rate
			c.Sources[index].FPS = &r
		}
	}
}

// WithFrames sets the number of dark, light and random scenes to capture.
func WithFrames(dark, light, random int) Option {
	return func(c *config.Config) {
		c.DarkFrames, c.LightFrames, c.RandomFrames = dark, light, random
	}
}

// WithScreenshotCount sets the number of random screenshots of a single source.
func WithScreenshotCount(n int) Option {
	return func(c *config.Config) {
		c.FramesCount = n
	}
}

// WithCustomFrame adds frame of the source at index to the capture.
func WithCustomFrame(index, frame int) Option {
	return func(c *config.Config) {
		c.CustomFrames = append(c.CustomFrames, config.CustomFrame{SourceIndex: index, FrameIndex: frame})
	}
}

// WithPictureType sets the picture type filter.
func WithPictureType(f PictureTypeFilter) Option {
	return func(c *config.Config) {
		c.PictureType = f
	}
}

// WithResolution renders images at height pixels.
func WithResolution(height int) Option {
	return func(c *config.Config) {
		c.Resolution = height
	}
}

// WithoutUpscale renders every source at its own height.
func WithoutUpscale() Option {
	return func(c *config.Config) {
		c.Upscale = false
	}
}

// WithoutOverlay disables the frame information overlay.
func WithoutOverlay() Option {
	return func(c *config.Config) {
		c.Overlay = false
	}
}

// WithProvider publishes to p.
func WithProvider(p Provider) Option {
	return func(c *config.Config) {
		c.Publish.Enabled = true
		c.Publish.Provider = p
	}
}

// WithoutPublish keeps the run local.
func WithoutPublish() Option {
	return func(c *config.Config) {
		c.Publish.Enabled = false
	}
}

// WithAlbum names the published collection.
func WithAlbum(name, description string) Option {
	return func(c *config.Config) {
		c.Publish.Name = name
		c.Publish.Description = description
	}
}

// WithKeepImages writes images to dir and leaves them there.
func WithKeepImages(dir string) Option {
	return func(c *config.Config) {
		c.KeepImages = true
		c.KeepImagesPath = dir
	}
}

// WithTempDir sets the directory for transient images.
func WithTempDir(dir string) Option {
	return func(c *config.Config) {
		c.TempDir = dir
	}
}

// WithLumaChart writes a luma timeline chart to path.
func WithLumaChart(path string) Option {
	return func(c *config.Config) {
		c.LumaChart = path
	}
}

// Config returns a copy of the effective configuration.
func (c *Comparer) Config() Config {
	return *c.config
}

// Compare captures matching frames of every source and publishes them as a
// comparison.
func (c *Comparer) Compare(ctx context.Context, rep Reporter) (*Result, error) {
	run := &processing.Comparison{Config: c.config, Reporter: rep}
	res, err := run.Run(ctx)
	if res == nil {
		return nil, err
	}
	return newResult(&res.Result), err
}

// Screenshots captures random and custom frames of the single source.
func (c *Comparer) Screenshots(ctx context.Context, rep Reporter) (*Result, error) {
	run := &processing.Screenshots{Config: c.config, Reporter: rep}
	res, err := run.Run(ctx)
	if res == nil {
		return nil, err
	}
	return newResult(res), err
}

// FindVideos finds video files in a directory.
func FindVideos(dir string) ([]string, error) {
	return discovery.FindVideoFiles(dir)
}

func newResult(r *processing.Result) *Result {
	out := &Result{
		URL:       r.URL,
		OutputDir: r.OutputDir,
		Groups:    r.Groups,
		Failed:    r.Failed,
		Warnings:  r.Warnings,
	}
	for _, img := range r.Images {
		out.Images = append(out.Images, img.Path)
	}
	return out
}

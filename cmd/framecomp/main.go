// Package main provides the CLI entry point for framecomp.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/framecomp/internal/config"
	"github.com/five82/framecomp/internal/discovery"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/logging"
	"github.com/five82/framecomp/internal/processing"
	"github.com/five82/framecomp/internal/reporter"
)

const (
	appName    = "framecomp"
	appVersion = "0.1.0"

	exitCancelled = 130
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logDir     string
	tempDir    string
	eventsPath string
	verbose    bool
	noLog      bool
	json       bool
	keepIndex  bool
}

// captureFlags are the export and upload flags of both modes.
type captureFlags struct {
	custom      []string
	resolution  int
	noUpscale   bool
	noOverlay   bool
	noUpload    bool
	provider    string
	proxy       string
	public      bool
	limited     bool
	expiration  int
	name        string
	description string
	keepImages  string
}

type compareFlags struct {
	captureFlags
	dark       int
	light      int
	random     int
	sync       []int
	fps        []string
	framesType string
	lumaChart  string
}

type screenshotFlags struct {
	captureFlags
	count int
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Capture matching frames from video encodes and publish them for comparison",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindGlobalFlags(root, g)

	root.AddCommand(newCompareCmd(g), newScreenshotsCmd(g))
	return root
}

func bindGlobalFlags(cmd *cobra.Command, g *globalFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVarP(&g.logDir, "log-dir", "l", "", "Log directory (defaults to TEMP_DIR/logs)")
	pf.StringVar(&g.tempDir, "temp-dir", "", "Directory for transient images")
	pf.StringVar(&g.eventsPath, "events", "", "Also write progress events as JSON lines to this file")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output for troubleshooting")
	pf.BoolVar(&g.noLog, "no-log", false, "Disable log file creation")
	pf.BoolVar(&g.json, "json", false, "Write progress events as JSON lines to stdout")
	pf.BoolVar(&g.keepIndex, "keep-index", false, "Keep the sidecar frame index next to each source")
}

func addCaptureFlags(cmd *cobra.Command, f *captureFlags) {
	fl := cmd.Flags()
	fl.IntVar(&f.resolution, "resolution", 0, "Image height in pixels (default: tallest source)")
	fl.BoolVar(&f.noUpscale, "no-upscale", false, "Keep every source at its own height")
	fl.BoolVar(&f.noOverlay, "no-overlay", false, "Do not draw frame information on images")
	fl.BoolVar(&f.noUpload, "no-upload", false, "Do not publish images")
	fl.StringVar(&f.proxy, "proxy", "", "Proxy URL for uploads")
	fl.BoolVar(&f.public, "public", false, "Make the slow.pics collection public")
	fl.BoolVar(&f.limited, "limited", false, "Mark the slow.pics collection as restricted")
	fl.IntVar(&f.expiration, "expiration", config.DefaultExpirationDays, "Days before slow.pics removes the collection (0 keeps it)")
	fl.StringVar(&f.name, "name", "", "Collection name")
	fl.StringVar(&f.description, "description", "", "Collection description")
	fl.StringVar(&f.keepImages, "keep-images", "", "Keep images in this directory")
}

func newCompareCmd(g *globalFlags) *cobra.Command {
	f := &compareFlags{}
	cmd := &cobra.Command{
		Use:   "compare [flags] SOURCE SOURCE [SOURCE...]",
		Short: "Compare matching frames of two or more sources on slow.pics",
		Long: `Compare matching frames of two or more sources on slow.pics.

Sources are given as files or directories; a directory adds every video file
in it. Sources given on the command line replace those of the configuration
file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildCompareConfig(cmd, g, f, args)
			if err != nil {
				return err
			}
			return execute(cfg, g, func(ctx context.Context, rep reporter.Reporter) error {
				run := &processing.Comparison{Config: cfg, Reporter: rep}
				_, err := run.Run(ctx)
				return err
			})
		},
	}

	bindCompareFlags(cmd, f)
	return cmd
}

func bindCompareFlags(cmd *cobra.Command, f *compareFlags) {
	fl := cmd.Flags()
	fl.IntVar(&f.dark, "dark", config.DefaultDarkFrames, "Number of dark scenes")
	fl.IntVar(&f.light, "light", config.DefaultLightFrames, "Number of light scenes")
	fl.IntVar(&f.random, "random", config.DefaultRandomFrames, "Number of random scenes")
	fl.StringSliceVar(&f.custom, "custom", nil, "Custom frames as SOURCE_INDEX:FRAME")
	fl.IntSliceVar(&f.sync, "sync", nil, "Frame offset per source, in source order")
	fl.StringSliceVar(&f.fps, "fps", nil, "Frame rate conversion as SOURCE_INDEX=RATE (e.g. 1=24000/1001)")
	fl.StringVar(&f.framesType, "frames-type", "any", "Picture type agreement: any, off, I, P or B")
	fl.StringVar(&f.lumaChart, "luma-chart", "", "Write a luma timeline chart (PNG) to this path")
	addCaptureFlags(cmd, &f.captureFlags)
}

func newScreenshotsCmd(g *globalFlags) *cobra.Command {
	f := &screenshotFlags{}
	cmd := &cobra.Command{
		Use:   "screenshots [flags] SOURCE",
		Short: "Capture random and custom frames of one source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildScreenshotsConfig(cmd, g, f, args)
			if err != nil {
				return err
			}
			return execute(cfg, g, func(ctx context.Context, rep reporter.Reporter) error {
				run := &processing.Screenshots{Config: cfg, Reporter: rep}
				_, err := run.Run(ctx)
				return err
			})
		},
	}

	bindScreenshotFlags(cmd, f)
	return cmd
}

func bindScreenshotFlags(cmd *cobra.Command, f *screenshotFlags) {
	fl := cmd.Flags()
	fl.IntVarP(&f.count, "count", "n", config.DefaultFramesCount, "Number of random frames")
	fl.StringSliceVar(&f.custom, "custom", nil, "Custom frame indexes")
	fl.StringVar(&f.provider, "provider", string(config.ProviderSlowpics), "Upload provider: slowpics, catbox or imgur")
	addCaptureFlags(cmd, &f.captureFlags)
}

// loadConfig reads the configuration file and the environment, then applies
// the global flags that were set.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	cfg := config.NewConfig()
	if g.configPath != "" {
		loaded, err := config.LoadFile(g.configPath)
		if err != nil {
			return nil, ferrors.NewConfigError("cannot load configuration", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, ferrors.NewConfigError("invalid environment", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-dir") {
		cfg.LogDir = g.logDir
	}
	if flags.Changed("temp-dir") {
		cfg.TempDir = g.tempDir
	}
	if flags.Changed("verbose") {
		cfg.Verbose = g.verbose
	}
	if flags.Changed("no-log") {
		cfg.NoLog = g.noLog
	}
	if flags.Changed("json") {
		cfg.JSON = g.json
	}
	if flags.Changed("keep-index") {
		cfg.KeepIndex = g.keepIndex
	}
	return cfg, nil
}

func applyCaptureFlags(cmd *cobra.Command, cfg *config.Config, f *captureFlags) {
	flags := cmd.Flags()
	if flags.Changed("resolution") {
		cfg.Resolution = f.resolution
	}
	if flags.Changed("no-upscale") {
		cfg.Upscale = !f.noUpscale
	}
	if flags.Changed("no-overlay") {
		cfg.Overlay = !f.noOverlay
	}
	if flags.Changed("no-upload") {
		cfg.Publish.Enabled = !f.noUpload
	}
	if flags.Changed("proxy") {
		cfg.Publish.Proxy = f.proxy
	}
	if flags.Changed("public") {
		cfg.Publish.Public = f.public
	}
	if flags.Changed("limited") {
		cfg.Publish.Limited = f.limited
	}
	if flags.Changed("expiration") {
		if f.expiration > 0 {
			days := f.expiration
			cfg.Publish.Expiration = &days
		} else {
			cfg.Publish.Expiration = nil
		}
	}
	if flags.Changed("name") {
		cfg.Publish.Name = f.name
	}
	if flags.Changed("description") {
		cfg.Publish.Description = f.description
	}
	if flags.Changed("keep-images") {
		cfg.KeepImages = f.keepImages != ""
		cfg.KeepImagesPath = f.keepImages
	}
}

func buildCompareConfig(cmd *cobra.Command, g *globalFlags, f *compareFlags, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		paths, err := discovery.ExpandSources(args)
		if err != nil {
			return nil, ferrors.NewConfigError("invalid source", err)
		}
		cfg.Sources = cfg.Sources[:0]
		for _, p := range paths {
			cfg.Sources = append(cfg.Sources, config.Source{Path: p})
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dark") {
		cfg.DarkFrames = f.dark
	}
	if flags.Changed("light") {
		cfg.LightFrames = f.light
	}
	if flags.Changed("random") {
		cfg.RandomFrames = f.random
	}
	if flags.Changed("frames-type") {
		filter, err := config.ParsePictureTypeFilter(f.framesType)
		if err != nil {
			return nil, ferrors.NewConfigError("invalid --frames-type", err)
		}
		cfg.PictureType = filter
	}
	if flags.Changed("luma-chart") {
		cfg.LumaChart = f.lumaChart
	}
	if flags.Changed("custom") {
		cfg.CustomFrames = nil
		for _, s := range f.custom {
			cf, err := config.ParseCustomFrame(s)
			if err != nil {
				return nil, ferrors.NewConfigError("invalid --custom", err)
			}
			cfg.CustomFrames = append(cfg.CustomFrames, cf)
		}
	}

	for i, offset := range f.sync {
		if i >= len(cfg.Sources) {
			return nil, ferrors.NewConfigError(fmt.Sprintf("--sync has %d values for %d sources", len(f.sync), len(cfg.Sources)), nil)
		}
		cfg.Sources[i].Sync = offset
	}
	for _, s := range f.fps {
		idxStr, rateStr, ok := strings.Cut(s, "=")
		var idx int
		if _, err := fmt.Sscanf(idxStr, "%d", &idx); !ok || err != nil || idx < 0 || idx >= len(cfg.Sources) {
			return nil, ferrors.NewConfigError(fmt.Sprintf("invalid --fps '%s', expected SOURCE_INDEX=RATE", s), nil)
		}
		rate, err := config.ParseFrameRate(rateStr)
		if err != nil {
			return nil, ferrors.NewConfigError("invalid --fps", err)
		}
		cfg.Sources[idx].FPS = &rate
	}

	applyCaptureFlags(cmd, cfg, &f.captureFlags)
	return cfg, nil
}

func buildScreenshotsConfig(cmd *cobra.Command, g *globalFlags, f *screenshotFlags, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}

	if len(args) == 1 {
		cfg.Sources = []config.Source{{Path: args[0]}}
	}

	flags := cmd.Flags()
	if flags.Changed("count") {
		cfg.FramesCount = f.count
	}
	if flags.Changed("provider") {
		p, err := config.ParseProvider(f.provider)
		if err != nil {
			return nil, ferrors.NewConfigError("invalid --provider", err)
		}
		cfg.Publish.Provider = p
	}
	if flags.Changed("custom") {
		cfg.CustomFrames = nil
		for _, s := range f.custom {
			cf, err := config.ParseCustomFrame(s)
			if err != nil {
				return nil, ferrors.NewConfigError("invalid --custom", err)
			}
			cf.SourceIndex = 0
			cfg.CustomFrames = append(cfg.CustomFrames, cf)
		}
	}

	applyCaptureFlags(cmd, cfg, &f.captureFlags)
	return cfg, nil
}

// newReporter builds the reporter selected by cfg. The returned function
// closes the events file, if any.
func newReporter(cfg *config.Config, eventsPath string) (reporter.Reporter, func(), error) {
	var rep reporter.Reporter
	if cfg.JSON {
		rep = reporter.NewJSONReporter()
	} else {
		rep = reporter.NewTerminalReporter(cfg.Verbose)
	}
	if eventsPath == "" {
		return rep, func() {}, nil
	}

	file, err := os.Create(eventsPath)
	if err != nil {
		return nil, nil, ferrors.NewIOError("cannot create events file", err)
	}
	composite := reporter.NewCompositeReporter(rep, reporter.NewJSONReporterWithWriter(file))
	return composite, func() { _ = file.Close() }, nil
}

// execute sets up logging, the reporter and signal handling, then runs fn.
func execute(cfg *config.Config, g *globalFlags, fn func(ctx context.Context, rep reporter.Reporter) error) error {
	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(cfg.GetTempDir(), "logs")
	}
	runLog, err := logging.Setup(logDir, cfg.Verbose, cfg.NoLog)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if runLog != nil {
		defer func() { _ = runLog.Close() }()
	}

	rep, closeEvents, err := newReporter(cfg, g.eventsPath)
	if err != nil {
		return err
	}
	defer closeEvents()

	if runLog != nil {
		rep.Verbose(fmt.Sprintf("Log file: %s", runLog.FilePath()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logging.Warn("interrupt received, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()

	err = fn(ctx, rep)
	if err != nil {
		logging.Error("run failed", "error", err)
		rep.Error(describe(err))
	}
	return err
}

// describe turns an error into a user-facing report.
func describe(err error) reporter.ReporterError {
	re := reporter.ReporterError{Title: "Error", Message: err.Error()}
	var ce *ferrors.CoreError
	if errors.As(err, &ce) {
		re.Title = ce.Kind.String()
	}
	switch {
	case ferrors.IsKind(err, ferrors.KindConfig):
		re.Suggestion = "Check the sources and settings given on the command line and in the configuration file"
	case ferrors.IsKind(err, ferrors.KindCommand):
		re.Suggestion = "Make sure ffmpeg and ffprobe are installed and in PATH"
	case ferrors.IsKind(err, ferrors.KindUpload):
		re.Suggestion = "Images that were uploaded before the failure are not removed from the service"
	case ferrors.IsCancelled(err):
		re.Title = "Cancelled"
	}
	return re
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ferrors.IsCancelled(err) {
		return exitCancelled
	}
	return 1
}

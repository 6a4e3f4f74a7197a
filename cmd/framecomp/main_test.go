package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/reporter"
)

// compareCmd returns a compare command with its flags parsed from args.
func compareCmd(t *testing.T, args ...string) (*cobra.Command, *globalFlags, *compareFlags) {
	t.Helper()
	g, f := &globalFlags{}, &compareFlags{}
	cmd := &cobra.Command{Use: "compare"}
	bindGlobalFlags(cmd, g)
	bindCompareFlags(cmd, f)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd, g, f
}

func screenshotsCmd(t *testing.T, args ...string) (*cobra.Command, *globalFlags, *screenshotFlags) {
	t.Helper()
	g, f := &globalFlags{}, &screenshotFlags{}
	cmd := &cobra.Command{Use: "screenshots"}
	bindGlobalFlags(cmd, g)
	bindScreenshotFlags(cmd, f)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd, g, f
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framecomp.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildCompareConfig(t *testing.T) {
	path := writeConfig(t, `
files:
  - file: /v/a.mkv
  - file: /v/b.mkv
    sync: 2
dark_frames: 5
light_frames: 4
frames_type: P
`)

	cmd, g, f := compareCmd(t, "--config", path, "--light", "1", "--custom", "1:120", "--fps", "0=24000/1001", "--no-upload")
	cfg, err := buildCompareConfig(cmd, g, f, nil)
	if err != nil {
		t.Fatalf("buildCompareConfig() error = %v", err)
	}

	if cfg.DarkFrames != 5 {
		t.Errorf("DarkFrames = %d, want 5 from the file", cfg.DarkFrames)
	}
	if cfg.LightFrames != 1 {
		t.Errorf("LightFrames = %d, want 1 from the flag", cfg.LightFrames)
	}
	if cfg.RandomFrames != config.DefaultRandomFrames {
		t.Errorf("RandomFrames = %d, want default %d", cfg.RandomFrames, config.DefaultRandomFrames)
	}
	if cfg.PictureType.String() != "P" {
		t.Errorf("PictureType = %s, want P", cfg.PictureType)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1].Sync != 2 {
		t.Fatalf("Sources = %+v", cfg.Sources)
	}
	if cfg.Sources[0].FPS == nil || cfg.Sources[0].FPS.String() != "24000/1001" {
		t.Errorf("Sources[0].FPS = %v, want 24000/1001", cfg.Sources[0].FPS)
	}
	if len(cfg.CustomFrames) != 1 || cfg.CustomFrames[0] != (config.CustomFrame{SourceIndex: 1, FrameIndex: 120}) {
		t.Errorf("CustomFrames = %+v", cfg.CustomFrames)
	}
	if cfg.Publish.Enabled {
		t.Error("Publish.Enabled = true, want false with --no-upload")
	}
}

func TestBuildCompareConfigArgsReplaceSources(t *testing.T) {
	cmd, g, f := compareCmd(t, "--sync", "0,-4")

	cfg, err := buildCompareConfig(cmd, g, f, []string{"/v/x.mkv", "/v/y.mkv"})
	if err != nil {
		t.Fatalf("buildCompareConfig() error = %v", err)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].Path != "/v/x.mkv" || cfg.Sources[1].Sync != -4 {
		t.Errorf("Sources = %+v", cfg.Sources)
	}
}

func TestBuildCompareConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"bad frames type", []string{"--frames-type", "X"}, config.ErrInvalidPictureType},
		{"bad custom frame", []string{"--custom", "a:b"}, config.ErrInvalidCustomFrame},
		{"bad frame rate", []string{"--fps", "0=0/1"}, config.ErrInvalidFrameRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, g, f := compareCmd(t, tt.args...)

			_, err := buildCompareConfig(cmd, g, f, []string{"/v/a.mkv", "/v/b.mkv"})
			if !errors.Is(err, tt.want) {
				t.Errorf("buildCompareConfig() error = %v, want %v", err, tt.want)
			}
			if !ferrors.IsKind(err, ferrors.KindConfig) {
				t.Errorf("error kind = %v, want config", err)
			}
		})
	}
}

func TestBuildCompareConfigSyncOverflow(t *testing.T) {
	cmd, g, f := compareCmd(t, "--sync", "1,2,3")
	if _, err := buildCompareConfig(cmd, g, f, []string{"/v/a.mkv", "/v/b.mkv"}); err == nil {
		t.Error("buildCompareConfig() error = nil, want error for extra --sync values")
	}
}

func TestBuildScreenshotsConfig(t *testing.T) {
	cmd, g, f := screenshotsCmd(t, "--count", "6", "--custom", "10,20", "--provider", "imgur", "--keep-images", "/out")

	cfg, err := buildScreenshotsConfig(cmd, g, f, []string{"/v/movie.mkv"})
	if err != nil {
		t.Fatalf("buildScreenshotsConfig() error = %v", err)
	}
	if cfg.FramesCount != 6 || cfg.Publish.Provider != config.ProviderImgur {
		t.Errorf("FramesCount/Provider = %d/%s", cfg.FramesCount, cfg.Publish.Provider)
	}
	if len(cfg.CustomFrames) != 2 || cfg.CustomFrames[1].FrameIndex != 20 {
		t.Errorf("CustomFrames = %+v", cfg.CustomFrames)
	}
	if !cfg.KeepImages || cfg.KeepImagesPath != "/out" {
		t.Errorf("KeepImages = %v %q", cfg.KeepImages, cfg.KeepImagesPath)
	}
	if err := cfg.ValidateScreenshots(); err != nil {
		t.Errorf("ValidateScreenshots() error = %v", err)
	}
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, "temp_dir: /from/file\nverbose: false\n")
	cmd, g, f := compareCmd(t, "--config", path, "--temp-dir", "/from/flag", "--verbose", "--keep-index")

	cfg, err := buildCompareConfig(cmd, g, f, []string{"/v/a.mkv", "/v/b.mkv"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TempDir != "/from/flag" || !cfg.Verbose || !cfg.KeepIndex {
		t.Errorf("TempDir/Verbose/KeepIndex = %s/%v/%v", cfg.TempDir, cfg.Verbose, cfg.KeepIndex)
	}
}

func TestExpirationFlag(t *testing.T) {
	cmd, g, f := compareCmd(t, "--expiration", "0")

	cfg, err := buildCompareConfig(cmd, g, f, []string{"/v/a.mkv", "/v/b.mkv"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Publish.Expiration != nil {
		t.Errorf("Expiration = %d, want nil", *cfg.Publish.Expiration)
	}
}

func TestExecuteReportsErrors(t *testing.T) {
	cfg := config.NewConfig()
	cfg.NoLog = true
	cfg.JSON = true
	events := filepath.Join(t.TempDir(), "events.jsonl")

	want := ferrors.NewUploadError("unexpected response", nil)
	err := execute(cfg, &globalFlags{eventsPath: events}, func(ctx context.Context, rep reporter.Reporter) error {
		rep.Warning("careful")
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("execute() error = %v, want %v", err, want)
	}

	data, err := os.ReadFile(events)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"warning"`)) || !bytes.Contains(data, []byte("Upload error")) {
		t.Errorf("events file = %s, want warning and error events", data)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{ferrors.NewConfigError("bad", config.ErrTooFewSources), 1},
		{ferrors.NewCancelledError(), exitCancelled},
		{errors.New("plain"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	re := describe(ferrors.NewConfigError("bad", config.ErrNothingToCapture))
	if re.Title != "Configuration error" || re.Suggestion == "" {
		t.Errorf("describe() = %+v", re)
	}
}

package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/five82/framecomp/internal/util"
)

const (
	defaultRuleWidth = 60
	maxRuleWidth     = 80
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu        sync.Mutex
	out       io.Writer
	errOut    io.Writer
	verbose   bool
	progress  *progressbar.ProgressBar
	lastStage string
	cyan      *color.Color
	green     *color.Color
	yellow    *color.Color
	red       *color.Color
	magenta   *color.Color
	bold      *color.Color
	faint     *color.Color
	success   *color.Color
	link      *color.Color
}

// NewTerminalReporter creates a terminal reporter writing to stdout and stderr.
func NewTerminalReporter(verbose bool) *TerminalReporter {
	return NewTerminalReporterWithWriters(os.Stdout, os.Stderr, verbose)
}

// NewTerminalReporterWithWriters creates a terminal reporter with custom writers.
// Progress bars and errors go to errOut.
func NewTerminalReporterWithWriters(out, errOut io.Writer, verbose bool) *TerminalReporter {
	return &TerminalReporter{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		faint:   color.New(color.Faint),
		success: color.New(color.FgGreen, color.Bold),
		link:    color.New(color.FgGreen, color.Underline),
	}
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
}

// section prints a section header followed by a rule sized to the terminal.
func (r *TerminalReporter) section(title string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, title)
	_, _ = r.faint.Fprintln(r.out, strings.Repeat("─", r.ruleWidth()))
}

func (r *TerminalReporter) ruleWidth() int {
	f, ok := r.out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultRuleWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultRuleWidth
	}
	return min(w, maxRuleWidth)
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) Hardware(summary HardwareSummary) {
	r.section("HARDWARE")
	r.printLabel(10, "Hostname:", summary.Hostname)
	r.printLabel(10, "Platform:", fmt.Sprintf("%s/%s, %d CPUs", summary.OS, summary.Arch, summary.NumCPU))
	if summary.MemoryBytes > 0 {
		r.printLabel(10, "Memory:", util.FormatBytes(summary.MemoryBytes))
	}
}

func (r *TerminalReporter) Sources(summary SourcesSummary) {
	r.section(strings.ToUpper(summary.Mode))
	for i, src := range summary.Sources {
		details := []string{src.Resolution, src.FrameRate + " fps"}
		if src.Converted {
			details[1] += " (converted)"
		}
		if src.Frames > 0 {
			details = append(details, fmt.Sprintf("%d frames", src.Frames))
		}
		if src.BitDepth > 0 {
			details = append(details, fmt.Sprintf("%d-bit", src.BitDepth))
		}
		if src.Sync != 0 {
			details = append(details, fmt.Sprintf("sync %+d", src.Sync))
		}
		_, _ = fmt.Fprintf(r.out, "  %d. %s %s\n", i+1, r.bold.Sprint(src.Name), r.faint.Sprintf("(%s)", strings.Join(details, ", ")))
	}
	if summary.OutputDir != "" {
		r.printLabel(8, "Output:", summary.OutputDir)
	}
}

func (r *TerminalReporter) StageStarted(stage string, total int) {
	r.finishProgress()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastStage != stage {
		r.lastStage = stage
		_, _ = fmt.Fprintln(r.out)
		_, _ = r.cyan.Fprintln(r.out, strings.ToUpper(stage))
	}
	if total <= 0 {
		return
	}

	r.progress = progressbar.NewOptions(
		total,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(r.errOut),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (r *TerminalReporter) StageProgress(update StageProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		if update.Message != "" {
			_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.magenta.Sprint("›"), update.Message)
		}
		return
	}

	if update.Total > 0 && int64(update.Total) != r.progress.GetMax64() {
		r.progress.ChangeMax(update.Total)
	}
	_ = r.progress.Set(update.Current)
	if update.Message != "" {
		r.progress.Describe(update.Message)
	}
}

func (r *TerminalReporter) StageFinished(stage string) {
	r.finishProgress()
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.green.Sprint("✓"), stage+" done")
}

func (r *TerminalReporter) LumaSummary(summary LumaSummary) {
	r.section("LUMA")
	for _, s := range summary.Sources {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.bold.Sprint(s.Source))
		_, _ = fmt.Fprintf(r.out, "    mean %.3f, sd %.3f, median %.3f, p10 %.3f, p90 %.3f\n",
			s.Mean, s.StdDev, s.Median, s.P10, s.P90)
		_, _ = fmt.Fprintf(r.out, "    dark %s, light %s, random %s\n",
			util.FormatPercent(s.Dark, s.Frames),
			util.FormatPercent(s.Light, s.Frames),
			util.FormatPercent(s.Random, s.Frames))
	}
	if summary.ChartPath != "" {
		r.printLabel(6, "Chart:", summary.ChartPath)
	}
}

func (r *TerminalReporter) Buckets(summary BucketSummary) {
	r.section("ALIGNMENT")
	r.printLabel(10, "Groups:", fmt.Sprintf("%d of %d positions", summary.Accepted, summary.Positions))
	if len(summary.Rejected) > 0 {
		var parts []string
		for _, reason := range sortedKeys(summary.Rejected) {
			parts = append(parts, fmt.Sprintf("%s %d", reason, summary.Rejected[reason]))
		}
		r.printLabel(10, "Rejected:", strings.Join(parts, ", "))
	}
	r.printLabel(10, "Buckets:", fmt.Sprintf("dark %d, light %d, random %d", summary.Dark, summary.Light, summary.Random))
}

func (r *TerminalReporter) ExportComplete(summary ExportSummary) {
	r.section("IMAGES")
	height := "native"
	if summary.Height > 0 {
		height = fmt.Sprintf("%dp", summary.Height)
	}
	r.printLabel(11, "Exported:", fmt.Sprintf("%d images at %s", summary.Images, height))
	for _, c := range summary.Categories {
		_, _ = fmt.Fprintf(r.out, "  - %s: %d\n", c.Name, c.Count)
	}
	if summary.Failed > 0 {
		r.printLabel(11, "Failed:", r.red.Sprint(summary.Failed))
	}
	if summary.OutputDir != "" {
		r.printLabel(11, "Directory:", summary.OutputDir)
	}
}

func (r *TerminalReporter) Published(result PublishResult) {
	r.finishProgress()
	r.section("PUBLISHED")
	r.printLabel(9, "Provider:", result.Provider)
	r.printLabel(9, "Images:", fmt.Sprintf("%d in %s", result.Images, util.FormatElapsed(result.Duration)))
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint("URL:"), r.link.Sprint(result.URL))
}

func (r *TerminalReporter) Cleanup(summary CleanupSummary) {
	if !r.verbose || len(summary.Removed)+len(summary.Kept) == 0 {
		return
	}
	for _, p := range summary.Removed {
		_, _ = r.faint.Fprintf(r.out, "  removed %s\n", p)
	}
	for _, p := range summary.Kept {
		_, _ = r.faint.Fprintf(r.out, "  kept %s\n", p)
	}
}

func (r *TerminalReporter) Warning(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.yellow.Fprintf(r.out, "WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	r.finishProgress()
	_, _ = fmt.Fprintln(r.errOut)
	_, _ = r.red.Fprintf(r.errOut, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(r.errOut, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.success.Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	_, _ = r.faint.Fprintf(r.out, "  %s\n", message)
}

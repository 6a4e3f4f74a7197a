package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// JSONReporter outputs NDJSON events, one object per line.
type JSONReporter struct {
	writer             io.Writer
	mu                 sync.Mutex
	lastProgressBucket int
	lastProgressTime   time.Time
}

// NewJSONReporter creates a new JSON reporter that writes to stdout.
func NewJSONReporter() *JSONReporter {
	return NewJSONReporterWithWriter(os.Stdout)
}

// NewJSONReporterWithWriter creates a JSON reporter with a custom writer.
func NewJSONReporterWithWriter(w io.Writer) *JSONReporter {
	return &JSONReporter{
		writer:             w,
		lastProgressBucket: -1,
	}
}

func (r *JSONReporter) timestamp() int64 {
	return time.Now().Unix()
}

func (r *JSONReporter) write(v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(r.writer, string(data))
}

func (r *JSONReporter) Hardware(summary HardwareSummary) {
	r.write(map[string]interface{}{
		"type":      "hardware",
		"hostname":  summary.Hostname,
		"os":        summary.OS,
		"arch":      summary.Arch,
		"num_cpu":   summary.NumCPU,
		"memory":    summary.MemoryBytes,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Sources(summary SourcesSummary) {
	sources := make([]map[string]interface{}, len(summary.Sources))
	for i, src := range summary.Sources {
		sources[i] = map[string]interface{}{
			"name":       src.Name,
			"resolution": src.Resolution,
			"frame_rate": src.FrameRate,
			"converted":  src.Converted,
			"frames":     src.Frames,
			"sync":       src.Sync,
			"bit_depth":  src.BitDepth,
		}
	}

	r.write(map[string]interface{}{
		"type":       "sources",
		"mode":       summary.Mode,
		"sources":    sources,
		"output_dir": summary.OutputDir,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) StageStarted(stage string, total int) {
	r.mu.Lock()
	r.lastProgressBucket = -1
	r.lastProgressTime = time.Time{}
	r.mu.Unlock()

	r.write(map[string]interface{}{
		"type":      "stage_started",
		"stage":     stage,
		"total":     total,
		"timestamp": r.timestamp(),
	})
}

// StageProgress emits at most one event per percent unless minInterval has
// passed since the last event.
func (r *JSONReporter) StageProgress(update StageProgress) {
	const minInterval = 5 * time.Second

	percent := update.Percent()
	bucket := int(percent)
	now := time.Now()

	r.mu.Lock()
	intervalElapsed := r.lastProgressTime.IsZero() || now.Sub(r.lastProgressTime) >= minInterval
	shouldEmit := bucket > r.lastProgressBucket || intervalElapsed || percent >= 100

	if !shouldEmit {
		r.mu.Unlock()
		return
	}

	if bucket > r.lastProgressBucket {
		r.lastProgressBucket = bucket
	}
	r.lastProgressTime = now
	r.mu.Unlock()

	r.write(map[string]interface{}{
		"type":      "stage_progress",
		"stage":     update.Stage,
		"current":   update.Current,
		"total":     update.Total,
		"percent":   percent,
		"message":   update.Message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) StageFinished(stage string) {
	r.write(map[string]interface{}{
		"type":      "stage_finished",
		"stage":     stage,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) LumaSummary(summary LumaSummary) {
	sources := make([]map[string]interface{}, len(summary.Sources))
	for i, s := range summary.Sources {
		sources[i] = map[string]interface{}{
			"source": s.Source,
			"frames": s.Frames,
			"mean":   s.Mean,
			"stddev": s.StdDev,
			"median": s.Median,
			"p10":    s.P10,
			"p90":    s.P90,
			"dark":   s.Dark,
			"light":  s.Light,
			"random": s.Random,
		}
	}

	r.write(map[string]interface{}{
		"type":       "luma_summary",
		"sources":    sources,
		"chart_path": summary.ChartPath,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) Buckets(summary BucketSummary) {
	rejected := summary.Rejected
	if rejected == nil {
		rejected = map[string]int{}
	}
	r.write(map[string]interface{}{
		"type":      "buckets",
		"positions": summary.Positions,
		"accepted":  summary.Accepted,
		"rejected":  rejected,
		"dark":      summary.Dark,
		"light":     summary.Light,
		"random":    summary.Random,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) ExportComplete(summary ExportSummary) {
	categories := make([]map[string]interface{}, len(summary.Categories))
	for i, c := range summary.Categories {
		categories[i] = map[string]interface{}{"name": c.Name, "count": c.Count}
	}

	r.write(map[string]interface{}{
		"type":       "export_complete",
		"images":     summary.Images,
		"failed":     summary.Failed,
		"output_dir": summary.OutputDir,
		"height":     summary.Height,
		"categories": categories,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) Published(result PublishResult) {
	r.write(map[string]interface{}{
		"type":             "published",
		"provider":         result.Provider,
		"url":              result.URL,
		"images":           result.Images,
		"duration_seconds": int64(result.Duration.Seconds()),
		"timestamp":        r.timestamp(),
	})
}

func (r *JSONReporter) Cleanup(summary CleanupSummary) {
	removed := summary.Removed
	if removed == nil {
		removed = []string{}
	}
	kept := summary.Kept
	if kept == nil {
		kept = []string{}
	}
	r.write(map[string]interface{}{
		"type":      "cleanup",
		"removed":   removed,
		"kept":      kept,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Warning(message string) {
	r.write(map[string]interface{}{
		"type":      "warning",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Error(err ReporterError) {
	r.write(map[string]interface{}{
		"type":       "error",
		"title":      err.Title,
		"message":    err.Message,
		"context":    err.Context,
		"suggestion": err.Suggestion,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) OperationComplete(message string) {
	r.write(map[string]interface{}{
		"type":      "operation_complete",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Verbose(message string) {
	r.write(map[string]interface{}{
		"type":      "verbose",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

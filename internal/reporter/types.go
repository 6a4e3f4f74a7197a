// Package reporter provides progress reporting interfaces and implementations.
package reporter

import "time"

// Stage names used in StageProgress updates.
const (
	StageAnalysis = "analysis"
	StageAlign    = "alignment"
	StageExport   = "export"
	StagePublish  = "publish"
)

// HardwareSummary contains host information.
type HardwareSummary struct {
	Hostname    string
	OS          string
	Arch        string
	NumCPU      int
	MemoryBytes uint64 // 0 when unknown
}

// SourcesSummary lists the sources taking part in a run.
type SourcesSummary struct {
	Mode      string
	Sources   []SourceInfo
	OutputDir string
}

// SourceInfo describes one opened source.
type SourceInfo struct {
	Name       string
	Resolution string
	FrameRate  string
	Converted  bool
	Frames     int
	Sync       int
	BitDepth   int
}

// StageProgress represents a generic stage update.
type StageProgress struct {
	Stage   string
	Current int
	Total   int
	Message string
}

// Percent returns the completion of the stage in [0,100].
func (p StageProgress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	v := float64(p.Current) / float64(p.Total) * 100
	if v > 100 {
		return 100
	}
	return v
}

// LumaSummary contains the luma statistics of every analyzed source.
type LumaSummary struct {
	Sources   []LumaStats
	ChartPath string
}

// LumaStats contains the luma statistics of one source.
type LumaStats struct {
	Source string
	Frames int
	Mean   float64
	StdDev float64
	Median float64
	P10    float64
	P90    float64
	Dark   int
	Light  int
	Random int
}

// BucketSummary contains alignment results.
type BucketSummary struct {
	Positions int
	Accepted  int
	Rejected  map[string]int
	Dark      int
	Light     int
	Random    int
}

// ExportSummary contains image export results.
type ExportSummary struct {
	Images     int
	Failed     int
	OutputDir  string
	Height     int
	Categories []CategoryCount
}

// CategoryCount is the number of images exported for one category.
type CategoryCount struct {
	Name  string
	Count int
}

// PublishResult contains the outcome of an upload.
type PublishResult struct {
	Provider string
	URL      string
	Images   int
	Duration time.Duration
}

// CleanupSummary lists the files removed at the end of a run.
type CleanupSummary struct {
	Removed []string
	Kept    []string
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

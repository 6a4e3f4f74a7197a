package reporter

// Reporter defines the interface for progress reporting.
type Reporter interface {
	Hardware(summary HardwareSummary)
	Sources(summary SourcesSummary)
	StageStarted(stage string, total int)
	StageProgress(update StageProgress)
	StageFinished(stage string)
	LumaSummary(summary LumaSummary)
	Buckets(summary BucketSummary)
	ExportComplete(summary ExportSummary)
	Published(result PublishResult)
	Cleanup(summary CleanupSummary)
	Warning(message string)
	Error(err ReporterError)
	OperationComplete(message string)
	Verbose(message string)
}

// NullReporter is a no-op reporter that discards all updates.
type NullReporter struct{}

func (NullReporter) Hardware(HardwareSummary)     {}
func (NullReporter) Sources(SourcesSummary)       {}
func (NullReporter) StageStarted(string, int)     {}
func (NullReporter) StageProgress(StageProgress)  {}
func (NullReporter) StageFinished(string)         {}
func (NullReporter) LumaSummary(LumaSummary)      {}
func (NullReporter) Buckets(BucketSummary)        {}
func (NullReporter) ExportComplete(ExportSummary) {}
func (NullReporter) Published(PublishResult)      {}
func (NullReporter) Cleanup(CleanupSummary)       {}
func (NullReporter) Warning(string)               {}
func (NullReporter) Error(ReporterError)          {}
func (NullReporter) OperationComplete(string)     {}
func (NullReporter) Verbose(string)               {}

package reporter

// CompositeReporter fans out events to multiple reporters.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter creates a composite reporter.
func NewCompositeReporter(reporters ...Reporter) *CompositeReporter {
	return &CompositeReporter{reporters: reporters}
}

func (c *CompositeReporter) Hardware(summary HardwareSummary) {
	for _, r := range c.reporters {
		r.Hardware(summary)
	}
}

func (c *CompositeReporter) Sources(summary SourcesSummary) {
	for _, r := range c.reporters {
		r.Sources(summary)
	}
}

func (c *CompositeReporter) StageStarted(stage string, total int) {
	for _, r := range c.reporters {
		r.StageStarted(stage, total)
	}
}

func (c *CompositeReporter) StageProgress(update StageProgress) {
	for _, r := range c.reporters {
		r.StageProgress(update)
	}
}

func (c *CompositeReporter) StageFinished(stage string) {
	for _, r := range c.reporters {
		r.StageFinished(stage)
	}
}

func (c *CompositeReporter) LumaSummary(summary LumaSummary) {
	for _, r := range c.reporters {
		r.LumaSummary(summary)
	}
}

func (c *CompositeReporter) Buckets(summary BucketSummary) {
	for _, r := range c.reporters {
		r.Buckets(summary)
	}
}

func (c *CompositeReporter) ExportComplete(summary ExportSummary) {
	for _, r := range c.reporters {
		r.ExportComplete(summary)
	}
}

func (c *CompositeReporter) Published(result PublishResult) {
	for _, r := range c.reporters {
		r.Published(result)
	}
}

func (c *CompositeReporter) Cleanup(summary CleanupSummary) {
	for _, r := range c.reporters {
		r.Cleanup(summary)
	}
}

func (c *CompositeReporter) Warning(message string) {
	for _, r := range c.reporters {
		r.Warning(message)
	}
}

func (c *CompositeReporter) Error(err ReporterError) {
	for _, r := range c.reporters {
		r.Error(err)
	}
}

func (c *CompositeReporter) OperationComplete(message string) {
	for _, r := range c.reporters {
		r.OperationComplete(message)
	}
}

func (c *CompositeReporter) Verbose(message string) {
	for _, r := range c.reporters {
		r.Verbose(message)
	}
}

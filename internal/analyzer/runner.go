// internal/analyzer/runner.go
package analyzer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/logsentry/internal/protocol"
)

// Clock lets tests pin timestamps
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Runner turns a parsed upload into a complete AnalysisResult
type Runner struct {
	Analyzer *Analyzer
	Clock    Clock
	NewID    func() string
}

// NewRunner wires an analyzer with a system clock and random UUIDs
func NewRunner(a *Analyzer) *Runner {
	return &Runner{Analyzer: a, Clock: SystemClock{}, NewID: uuid.NewString}
}

// Run analyzes entries and assembles the result record.
// The result is not stored; callers hand it to a history store.
func (r *Runner) Run(ctx context.Context, fileName string, entries []protocol.LogEntry, onProgress ProgressFunc) (protocol.AnalysisResult, Stats) {
	results, stats := r.Analyzer.AnalyzeWithStats(ctx, entries, onProgress)

	return protocol.AnalysisResult{
		ID:        r.NewID(),
		FileName:  fileName,
		Timestamp: r.Clock.Now().UnixMilli(),
		Results:   results,
		Summary:   protocol.Summarize(results),
	}, stats
}

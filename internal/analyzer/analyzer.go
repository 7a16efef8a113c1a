// internal/analyzer/analyzer.go
package analyzer

import (
	"context"
	"log"

	"github.com/signalnine/logsentry/internal/classifier"
	"github.com/signalnine/logsentry/internal/protocol"
)

// DefaultBatchSize caps entries per classifier call to keep request payloads small
const DefaultBatchSize = 25

// FallbackReason marks entries that never received a verdict
const FallbackReason = "This log could not be analyzed due to an API error."

// SkippedReason marks entries whose batch never ran because the run was cancelled
const SkippedReason = "This log was not analyzed because the analysis was cancelled."

// ProgressFunc receives the share of entries attempted so far, 0..100
type ProgressFunc func(percent float64)

// Stats describes how a single Analyze call went. Cancelled is set when ctx
// ended before every batch got a response.
type Stats struct {
	Batches       int  `json:"batches"`
	FailedBatches int  `json:"failedBatches"`
	DroppedItems  int  `json:"droppedItems"`
	Fallbacks     int  `json:"fallbacks"`
	Skipped       int  `json:"skipped"`
	Cancelled     bool `json:"cancelled"`
}

// Analyzer drives batched classification of a log set
type Analyzer struct {
	Client    classifier.Client
	BatchSize int
}

// New creates an analyzer with the default batch size
func New(client classifier.Client) *Analyzer {
	return &Analyzer{Client: client, BatchSize: DefaultBatchSize}
}

// Analyze classifies entries batch by batch and returns one result per entry
// in input order. Failed batches do not stop the run; their entries are
// reported as benign with FallbackReason. Batches not sent because ctx was
// cancelled are reported as benign with SkippedReason.
func (a *Analyzer) Analyze(ctx context.Context, entries []protocol.LogEntry, onProgress ProgressFunc) []protocol.ClassificationResult {
	results, _ := a.AnalyzeWithStats(ctx, entries, onProgress)
	return results
}

// AnalyzeWithStats is Analyze plus per-run counters
func (a *Analyzer) AnalyzeWithStats(ctx context.Context, entries []protocol.LogEntry, onProgress ProgressFunc) ([]protocol.ClassificationResult, Stats) {
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	var stats Stats
	total := len(entries)
	if total == 0 {
		onProgress(100)
		return []protocol.ClassificationResult{}, stats
	}

	size := a.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	buf := make([]*protocol.ClassificationResult, total)
	skipped := make([]bool, total)
	processed := 0
	onProgress(0)

	for start := 0; start < total; start += size {
		end := min(start+size, total)
		batch := entries[start:end]
		stats.Batches++

		if err := ctx.Err(); err != nil {
			log.Printf("Skipping batch at index %d: %v", start, err)
			stats.Cancelled = true
			markSkipped(skipped, start, end)
		} else if items, err := a.Client.Classify(ctx, batch); err != nil {
			if ctx.Err() != nil {
				log.Printf("Batch at index %d interrupted: %v", start, err)
				stats.Cancelled = true
				markSkipped(skipped, start, end)
			} else {
				if classifier.IsUnavailable(err) {
					log.Printf("Error processing batch starting at index %d: no classifier endpoint reachable: %v", start, err)
				} else {
					log.Printf("Error processing batch starting at index %d after all retries: %v", start, err)
				}
				stats.FailedBatches++
			}
		} else {
			stats.DroppedItems += place(buf, entries, start, len(batch), items)
		}

		processed += len(batch)
		onProgress(100 * float64(processed) / float64(total))
	}

	out := make([]protocol.ClassificationResult, total)
	for i, r := range buf {
		if r != nil {
			out[i] = *r
			continue
		}
		if skipped[i] {
			stats.Skipped++
			out[i] = protocol.ClassificationResult{
				Log:            entries[i],
				Classification: protocol.Benign,
				Reason:         SkippedReason,
			}
			continue
		}
		stats.Fallbacks++
		out[i] = protocol.ClassificationResult{
			Log:            entries[i],
			Classification: protocol.Benign,
			Reason:         FallbackReason,
		}
	}

	if stats.Skipped > 0 {
		log.Printf("Analysis cancelled: %d/%d entries were not sent", stats.Skipped, total)
	}
	if stats.Fallbacks > 0 {
		log.Printf("Analysis finished: %d/%d entries fell back to %s (%d failed batches, %d dropped items)",
			stats.Fallbacks, total, protocol.Benign, stats.FailedBatches, stats.DroppedItems)
	}
	return out, stats
}

func markSkipped(skipped []bool, start, end int) {
	for i := start; i < end; i++ {
		skipped[i] = true
	}
}

// place writes batch items into buf by their echoed index and returns how
// many were dropped for a missing or out-of-range index or an unknown verdict.
func place(buf []*protocol.ClassificationResult, entries []protocol.LogEntry, start, batchLen int, items []classifier.Item) int {
	dropped := 0
	for _, item := range items {
		if item.LogIndex < 0 || item.LogIndex >= batchLen || !item.Classification.Valid() {
			log.Printf("Dropping classifier item for batch at %d: logIndex=%d classification=%q",
				start, item.LogIndex, item.Classification)
			dropped++
			continue
		}
		i := start + item.LogIndex
		buf[i] = &protocol.ClassificationResult{
			Log:            entries[i],
			Classification: item.Classification,
			Reason:         item.Reason,
		}
	}
	return dropped
}

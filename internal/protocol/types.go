// internal/protocol/types.go
package protocol

import "strings"

// Classification is the verdict assigned to a single log entry
type Classification string

const (
	Benign    Classification = "benign"
	Malicious Classification = "malicious"
)

// Valid reports whether c is one of the known verdicts
func (c Classification) Valid() bool {
	return c == Benign || c == Malicious
}

// LogEntry is one row of an uploaded CSV
type LogEntry struct {
	Path string `json:"path"`
	Body string `json:"body"`
}

// ClassificationResult pairs an entry with its verdict
type ClassificationResult struct {
	Log            LogEntry       `json:"log"`
	Classification Classification `json:"classification"`
	Reason         string         `json:"reason"`
}

// AnalysisSummary holds aggregate counts for a run
type AnalysisSummary struct {
	Total     int `json:"total"`
	Malicious int `json:"malicious"`
	Benign    int `json:"benign"`
}

// AnalysisResult is one completed analysis, as persisted in history
type AnalysisResult struct {
	ID        string                 `json:"id"`
	FileName  string                 `json:"fileName"`
	Timestamp int64                  `json:"timestamp"` // epoch millis
	Results   []ClassificationResult `json:"results"`
	Summary   AnalysisSummary        `json:"summary"`
}

// Summarize folds results into counts. Anything not malicious counts as benign.
func Summarize(results []ClassificationResult) AnalysisSummary {
	s := AnalysisSummary{Total: len(results)}
	for _, r := range results {
		if r.Classification == Malicious {
			s.Malicious++
		}
	}
	s.Benign = s.Total - s.Malicious
	return s
}

// FilterAll disables classification filtering in FilterResults
const FilterAll = "all"

// FilterResults narrows results by verdict ("all", "benign", "malicious") and a
// case-insensitive search term matched against path or body.
func FilterResults(results []ClassificationResult, filter, search string) []ClassificationResult {
	filter = strings.ToLower(strings.TrimSpace(filter))
	term := strings.ToLower(search)

	out := make([]ClassificationResult, 0, len(results))
	for _, r := range results {
		if filter != "" && filter != FilterAll && string(r.Classification) != filter {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(r.Log.Body), term) &&
			!strings.Contains(strings.ToLower(r.Log.Path), term) {
			continue
		}
		out = append(out, r)
	}
	return out
}

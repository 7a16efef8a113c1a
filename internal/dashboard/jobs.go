// internal/dashboard/jobs.go
package dashboard

import (
	"sync"
	"time"

	"github.com/signalnine/logsentry/internal/analyzer"
)

const (
	JobRunning   = "running"
	JobDone      = "done"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// JobRetention is how long a finished job stays pollable
const JobRetention = time.Hour

// Job is the progress view of one analysis run
type Job struct {
	ID         string          `json:"id"`
	FileName   string          `json:"fileName"`
	Entries    int             `json:"entries"`
	Status     string          `json:"status"`
	Progress   float64         `json:"progress"`
	ResultID   string          `json:"resultId,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stats      *analyzer.Stats `json:"stats,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt,omitzero"`
}

// jobTable tracks in-flight and finished jobs for progress polling.
// Finished jobs older than retention are evicted on add.
type jobTable struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	retention time.Duration
}

func newJobTable(retention time.Duration) *jobTable {
	return &jobTable{jobs: make(map[string]*Job), retention: retention}
}

func (t *jobTable) add(j *Job, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, old := range t.jobs {
		if !old.FinishedAt.IsZero() && now.Sub(old.FinishedAt) > t.retention {
			delete(t.jobs, id)
		}
	}
	t.jobs[j.ID] = j
}

func (t *jobTable) get(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (t *jobTable) update(id string, fn func(j *Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		fn(j)
	}
}

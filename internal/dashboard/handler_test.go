// internal/dashboard/handler_test.go
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/logsentry/internal/analyzer"
	"github.com/signalnine/logsentry/internal/classifier"
	"github.com/signalnine/logsentry/internal/history"
	"github.com/signalnine/logsentry/internal/protocol"
)

// keywordClient flags bodies containing "<script" or "OR 1=1"
var keywordClient = classifier.ClientFunc(func(ctx context.Context, batch []protocol.LogEntry) ([]classifier.Item, error) {
	items := make([]classifier.Item, 0, len(batch))
	for i, e := range batch {
		verdict, reason := protocol.Benign, "looks normal"
		if strings.Contains(e.Body, "<script") || strings.Contains(e.Body, "OR 1=1") {
			verdict, reason = protocol.Malicious, "injection payload"
		}
		items = append(items, classifier.Item{Classification: verdict, Reason: reason, LogIndex: i})
	}
	return items, nil
})

func newTestHandler(t *testing.T, maxUpload int64) (*Handler, http.Handler, *history.Store) {
	t.Helper()
	store := history.NewStore(history.NewMemoryBackend())
	runner := analyzer.NewRunner(analyzer.New(keywordClient))
	h := NewHandler(context.Background(), runner, store, nil, maxUpload)
	return h, h.Routes([]string{"http://localhost:5173"}), store
}

func uploadRequest(t *testing.T, fileName, contentType, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	part.Write([]byte(content))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/analyses", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const sampleCSV = "path,body\n/login,user=admin' OR 1=1--\n/index.html,\n/search,<script>alert(1)</script>\n"

func TestUploadRunsAnalysisAndStoresHistory(t *testing.T) {
	h, routes, store := newTestHandler(t, 1<<20)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, uploadRequest(t, "access.csv", "text/csv", sampleCSV))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accepted))
	require.NotEmpty(t, accepted.JobID)

	h.Wait()

	// Job reports completion
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest("GET", "/api/jobs/"+accepted.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	assert.Equal(t, JobDone, job.Status)
	assert.Equal(t, 100.0, job.Progress)
	assert.Equal(t, 3, job.Entries)
	require.NotEmpty(t, job.ResultID)

	// History lists the run without results
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest("GET", "/api/analyses", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []HistoryItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, job.ResultID, items[0].ID)
	assert.Equal(t, "access.csv", items[0].FileName)
	assert.Equal(t, protocol.AnalysisSummary{Total: 3, Malicious: 2, Benign: 1}, items[0].Summary)

	stored, err := store.Get(context.Background(), job.ResultID)
	require.NoError(t, err)
	assert.Len(t, stored.Results, 3)
}

func TestCancelledJobIsNotSaved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := history.NewStore(history.NewMemoryBackend())
	h := NewHandler(ctx, analyzer.NewRunner(analyzer.New(keywordClient)), store, nil, 1<<20)
	routes := h.Routes(nil)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, uploadRequest(t, "access.csv", "text/csv", sampleCSV))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var accepted struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accepted))

	h.Wait()

	job, ok := h.jobs.get(accepted.JobID)
	require.True(t, ok)
	assert.Equal(t, JobCancelled, job.Status)
	assert.Empty(t, job.ResultID)
	require.NotNil(t, job.Stats)
	assert.Equal(t, 3, job.Stats.Skipped)
	assert.False(t, job.FinishedAt.IsZero())

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestJobTableEvictsFinishedJobs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	table := newJobTable(time.Hour)

	table.add(&Job{ID: "old", Status: JobDone, FinishedAt: now.Add(-2 * time.Hour)}, now)
	table.add(&Job{ID: "recent", Status: JobDone, FinishedAt: now.Add(-time.Minute)}, now)
	table.add(&Job{ID: "running", Status: JobRunning, StartedAt: now.Add(-3 * time.Hour)}, now)

	table.add(&Job{ID: "new", Status: JobRunning}, now)

	_, ok := table.get("old")
	assert.False(t, ok)
	for _, id := range []string{"recent", "running", "new"} {
		_, ok := table.get(id)
		assert.True(t, ok, id)
	}
}

func TestRequestLoggerRecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	_, routes, _ := newTestHandler(t, 1<<20)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest("GET", "/api/jobs/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	line := buf.String()
	assert.Contains(t, line, "method=GET path=/api/jobs/nope status=404")
	assert.Regexp(t, `reqid=\S+-\d{6}`, line)
}

func TestGetAnalysisFilterAndSearch(t *testing.T) {
	h, routes, _ := newTestHandler(t, 1<<20)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, uploadRequest(t, "access.csv", "text/csv", sampleCSV))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accepted))
	h.Wait()
	job, ok := h.jobs.get(accepted.JobID)
	require.True(t, ok)

	get := func(query string) protocol.AnalysisResult {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest("GET", "/api/analyses/"+job.ResultID+query, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var r protocol.AnalysisResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
		return r
	}

	assert.Len(t, get("").Results, 3)

	malicious := get("?filter=malicious")
	assert.Len(t, malicious.Results, 2)
	assert.Equal(t, 3, malicious.Summary.Total, "summary is not filtered")

	search := get("?filter=all&q=SEARCH")
	require.Len(t, search.Results, 1)
	assert.Equal(t, "/search", search.Results[0].Log.Path)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest("GET", "/api/analyses/"+job.ResultID+"?filter=suspicious", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadFormatErrors(t *testing.T) {
	_, routes, store := newTestHandler(t, 1<<20)

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"missing body column", "path,method\n/a,GET\n", "missing required fields: body"},
		{"header only", "path,body\n", "missing header or data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, uploadRequest(t, "bad.csv", "text/csv", tt.content))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "analysis never starts on a format error")
}

func TestUploadRejectsNonCSV(t *testing.T) {
	_, routes, _ := newTestHandler(t, 1<<20)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, uploadRequest(t, "report.pdf", "application/pdf", sampleCSV))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid file type")
}

func TestUploadPayloadLimit(t *testing.T) {
	_, routes, _ := newTestHandler(t, 100)

	big := "path,body\n" + strings.Repeat("/a,xxxxxxxxxx\n", 100)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, uploadRequest(t, "big.csv", "text/csv", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadMissingFile(t *testing.T) {
	_, routes, _ := newTestHandler(t, 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no file here")
	mw.Close()
	req := httptest.NewRequest("POST", "/api/analyses", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFound(t *testing.T) {
	_, routes, _ := newTestHandler(t, 1<<20)

	for _, path := range []string{"/api/analyses/nope", "/api/jobs/nope"} {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHealthAndCORS(t *testing.T) {
	_, routes, _ := newTestHandler(t, 1<<20)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIsCSV(t *testing.T) {
	assert.True(t, isCSV("logs.CSV", ""))
	assert.True(t, isCSV("export", "text/csv; charset=utf-8"))
	assert.False(t, isCSV("logs.txt", "text/plain"))
}

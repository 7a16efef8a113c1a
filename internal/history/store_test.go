// internal/history/store_test.go
package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/logsentry/internal/protocol"
)

func result(id string, ts int64) protocol.AnalysisResult {
	results := []protocol.ClassificationResult{
		{Log: protocol.LogEntry{Path: "/login", Body: "' OR 1=1"}, Classification: protocol.Malicious, Reason: "sqli"},
		{Log: protocol.LogEntry{Path: "/", Body: ""}, Classification: protocol.Benign, Reason: "root"},
	}
	return protocol.AnalysisResult{
		ID:        id,
		FileName:  id + ".csv",
		Timestamp: ts,
		Results:   results,
		Summary:   protocol.Summarize(results),
	}
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	sqlite, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlite,
	}
}

func TestStoreAppendListNewestFirst(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := NewStore(backend)

			list, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)
			assert.NotNil(t, list)

			r1 := result("r1", 1000)
			require.NoError(t, s.Append(ctx, r1))
			list, err = s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []protocol.AnalysisResult{r1}, list)

			r2 := result("r2", 2000)
			require.NoError(t, s.Append(ctx, r2))
			list, err = s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []protocol.AnalysisResult{r2, r1}, list)
		})
	}
}

func TestStoreGet(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := NewStore(backend)
			require.NoError(t, s.Append(ctx, result("a", 1)))
			require.NoError(t, s.Append(ctx, result("b", 2)))

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "a.csv", got.FileName)
			assert.Equal(t, protocol.AnalysisSummary{Total: 2, Malicious: 1, Benign: 1}, got.Summary)

			_, err = s.Get(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStoreRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())
	require.NoError(t, s.Append(ctx, result("dup", 1)))

	err := s.Append(ctx, result("dup", 2))
	assert.True(t, errors.Is(err, ErrDuplicateID))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLiteBackendPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, NewStore(b).Append(ctx, result("keep", 42)))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(path)
	require.NoError(t, err)
	defer b.Close()

	got, err := NewStore(b).Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Timestamp)
	require.Len(t, got.Results, 2)
	assert.Equal(t, protocol.Malicious, got.Results[0].Classification)
}

func TestSQLiteBackendCorruptDocument(t *testing.T) {
	ctx := context.Background()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)`, HistoryKey, "not json")
	require.NoError(t, err)

	_, err = b.Load(ctx)
	assert.Error(t, err)
}

func TestSQLiteBackendEmptySlot(t *testing.T) {
	ctx := context.Background()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)`, HistoryKey, "")
	require.NoError(t, err)

	history, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

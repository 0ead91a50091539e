package ledger_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphvault/graphvault/pkg/graph"
	"github.com/graphvault/graphvault/pkg/ledger"
)

func openTestLedger(t *testing.T, retention int) (*ledger.Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	logFile := filepath.Join(dir, "backup_log.json")

	led, err := ledger.Open(ledger.Config{
		Path:        filepath.Join(dir, "store"),
		LogFilePath: logFile,
		Retention:   retention,
	})
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })
	return led, logFile
}

func entryN(n int) ledger.Entry {
	return ledger.Entry{
		Timestamp:    fmt.Sprintf("2026010%d_120000", n),
		CreatedAt:    time.Now().UTC(),
		ArtifactPath: "",
		Digest:       fmt.Sprintf("%064d", n),
		Method:       "direct",
		Statistics:   graph.Statistics{TotalNodes: n},
		SizeBytes:    int64(n * 100),
	}
}

func TestLedger_RecordAndRecent(t *testing.T) {
	led, _ := openTestLedger(t, -1)

	for i := 1; i <= 3; i++ {
		require.NoError(t, led.Record(entryN(i)))
	}

	entries, err := led.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Insertion order, oldest first.
	assert.Equal(t, 1, entries[0].Statistics.TotalNodes)
	assert.Equal(t, 3, entries[2].Statistics.TotalNodes)

	recent, err := led.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].Statistics.TotalNodes)
	assert.Equal(t, 3, recent[1].Statistics.TotalNodes)
}

func TestLedger_RetentionTrimsOldest(t *testing.T) {
	led, _ := openTestLedger(t, 3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, led.Record(entryN(i)))
	}

	entries, err := led.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 3, entries[0].Statistics.TotalNodes)
	assert.Equal(t, 5, entries[2].Statistics.TotalNodes)
}

func TestLedger_TrimRemovesArtifacts(t *testing.T) {
	led, _ := openTestLedger(t, -1)
	artifactDir := t.TempDir()

	var paths []string
	for i := 1; i <= 4; i++ {
		p := filepath.Join(artifactDir, fmt.Sprintf("backup_%d.tar.xz", i))
		require.NoError(t, os.WriteFile(p, []byte("payload"), 0o644))
		paths = append(paths, p)

		e := entryN(i)
		e.ArtifactPath = p
		require.NoError(t, led.Record(e))
	}

	require.NoError(t, led.Trim(2))

	entries, err := led.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	_, err = os.Stat(paths[0])
	assert.True(t, os.IsNotExist(err), "oldest artifact should be gone")
	_, err = os.Stat(paths[3])
	assert.NoError(t, err, "newest artifact must survive")
}

func TestLedger_LogFileMirror(t *testing.T) {
	led, logFile := openTestLedger(t, -1)

	require.NoError(t, led.Record(entryN(1)))
	require.NoError(t, led.Record(entryN(2)))

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)

	var doc struct {
		Backups []struct {
			Timestamp string `json:"timestamp"`
			Hash      string `json:"hash"`
			Method    string `json:"method"`
		} `json:"backups"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Backups, 2)
	assert.Equal(t, "direct", doc.Backups[0].Method)
	assert.NotEmpty(t, doc.Backups[1].Hash)
}

func TestLedger_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "store")

	led, err := ledger.Open(ledger.Config{Path: storePath, Retention: -1})
	require.NoError(t, err)
	require.NoError(t, led.Record(entryN(1)))
	require.NoError(t, led.Close())

	led, err = ledger.Open(ledger.Config{Path: storePath, Retention: -1})
	require.NoError(t, err)
	defer led.Close()

	require.NoError(t, led.Record(entryN(2)))
	entries, err := led.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Statistics.TotalNodes)
}

func TestLedger_OpenRequiresPath(t *testing.T) {
	_, err := ledger.Open(ledger.Config{})
	assert.Error(t, err)
}

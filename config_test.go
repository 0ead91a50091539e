package graphvault_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphvault "github.com/graphvault/graphvault"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	doc := `
gateway:
  uri: http://graph.internal:7474
  username: backup_user
  password: hunter2
  database: memories
  timeout: 45s
backup_dir: /var/backups/graph
batch_size: 250
retention: 5
minimum_free_gb: 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	conf, err := graphvault.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://graph.internal:7474", conf.Gateway.URI)
	assert.Equal(t, "backup_user", conf.Gateway.Username)
	assert.Equal(t, "hunter2", conf.Gateway.Password)
	assert.Equal(t, "memories", conf.Gateway.Database)
	assert.Equal(t, 45*time.Second, conf.Gateway.Timeout)
	assert.Equal(t, "/var/backups/graph", conf.BackupDir)
	assert.Equal(t, 250, conf.BatchSize)
	assert.Equal(t, 5, conf.Retention)
	assert.Equal(t, uint(2), conf.MinimumFreeGB)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := graphvault.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GRAPH_URI", "http://example:7474")
	t.Setenv("GRAPH_USERNAME", "svc")
	t.Setenv("GRAPH_PASSWORD", "s3cret")
	t.Setenv("GRAPH_DATABASE", "knowledge")
	t.Setenv("GRAPH_BACKUP_DIR", "/srv/backups")
	t.Setenv("GRAPH_BATCH_SIZE", "64")
	t.Setenv("GRAPH_RETENTION", "7")

	conf := graphvault.FromEnv()
	assert.Equal(t, "http://example:7474", conf.Gateway.URI)
	assert.Equal(t, "svc", conf.Gateway.Username)
	assert.Equal(t, "s3cret", conf.Gateway.Password)
	assert.Equal(t, "knowledge", conf.Gateway.Database)
	assert.Equal(t, "/srv/backups", conf.BackupDir)
	assert.Equal(t, 64, conf.BatchSize)
	assert.Equal(t, 7, conf.Retention)
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"GRAPH_URI", "GRAPH_USERNAME", "GRAPH_PASSWORD", "GRAPH_DATABASE",
		"GRAPH_BACKUP_DIR", "GRAPH_BATCH_SIZE", "GRAPH_RETENTION",
	} {
		t.Setenv(key, "")
	}

	conf := graphvault.FromEnv()
	assert.Equal(t, "bolt://localhost:7687", conf.Gateway.URI)
	assert.Equal(t, "neo4j", conf.Gateway.Username)
	assert.Empty(t, conf.Gateway.Password, "password has no default")
	assert.Equal(t, "neo4j", conf.Gateway.Database)
	assert.Equal(t, graphvault.DefaultBackupDir, conf.BackupDir)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := graphvault.New(graphvault.Config{
		BackupDir: t.TempDir(),
	})
	assert.Error(t, err)
}

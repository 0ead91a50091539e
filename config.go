package graphvault

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/graphvault/graphvault/pkg/gateway"
)

// Default locations and limits applied by applyDefaults.
const (
	DefaultBackupDir = "./backups"
	DefaultBatchSize = 100
	DefaultRetention = 10
)

// Config configures an Engine.
type Config struct {
	// Gateway is the primary, privileged connection to the graph store.
	Gateway gateway.Config `yaml:"gateway"`

	// Managed optionally configures a second, restricted connection used
	// as the fallback acquisition path. Nil disables the managed strategy.
	Managed *gateway.Config `yaml:"managed,omitempty"`

	// BackupDir is where archive artifacts and the backup log are written.
	BackupDir string `yaml:"backup_dir"`

	// LedgerDir holds the ledger store. Defaults to BackupDir/.ledger.
	LedgerDir string `yaml:"ledger_dir"`

	// BatchSize is the export page size.
	BatchSize int `yaml:"batch_size"`

	// Retention caps how many backups (entries and artifacts) are kept.
	Retention int `yaml:"retention"`

	// MinimumFreeGB refuses backups when the target volume has less free
	// space than this. 0 disables the check.
	MinimumFreeGB uint `yaml:"minimum_free_gb"`

	// Logger is an optional structured logger. If nil, a default is used.
	Logger *logrus.Logger `yaml:"-"`

	// GatewayClient overrides the HTTP gateway built from Gateway.
	// Mainly used by tests to run against an in-process store.
	GatewayClient gateway.Gateway `yaml:"-"`

	// ManagedClient overrides the gateway built from Managed.
	ManagedClient gateway.Gateway `yaml:"-"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	var conf Config

	raw, err := os.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &conf); err != nil {
		return conf, fmt.Errorf("parse config %s: %w", path, err)
	}
	return conf, nil
}

// FromEnv builds a config from GRAPH_* environment variables. Unset
// variables fall back to defaults; the password has no default.
func FromEnv() Config {
	conf := Config{
		Gateway: gateway.Config{
			URI:      envOr("GRAPH_URI", "bolt://localhost:7687"),
			Username: envOr("GRAPH_USERNAME", "neo4j"),
			Password: os.Getenv("GRAPH_PASSWORD"),
			Database: envOr("GRAPH_DATABASE", "neo4j"),
		},
		BackupDir: envOr("GRAPH_BACKUP_DIR", DefaultBackupDir),
	}
	if n, err := strconv.Atoi(os.Getenv("GRAPH_BATCH_SIZE")); err == nil && n > 0 {
		conf.BatchSize = n
	}
	if n, err := strconv.Atoi(os.Getenv("GRAPH_RETENTION")); err == nil && n > 0 {
		conf.Retention = n
	}
	return conf
}

func (c *Config) applyDefaults() {
	if c.BackupDir == "" {
		c.BackupDir = DefaultBackupDir
	}
	if c.LedgerDir == "" {
		c.LedgerDir = filepath.Join(c.BackupDir, ".ledger")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
}

func (c *Config) validate() error {
	if c.GatewayClient == nil {
		if c.Gateway.URI == "" {
			return fmt.Errorf("graphvault: no gateway URI configured")
		}
		if c.Gateway.Password == "" {
			return fmt.Errorf("graphvault: no gateway password configured")
		}
	}
	return nil
}

func defaultLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	return log
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

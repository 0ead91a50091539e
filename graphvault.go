// Package graphvault is the backup and restore engine for a property
// graph store. It exports the graph in pages, packages the snapshot into
// an integrity-verified compressed archive, records every backup in an
// append-only ledger, and replays archives back into a target graph with
// identifier remapping.
package graphvault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/graphvault/graphvault/pkg/archive"
	"github.com/graphvault/graphvault/pkg/exporter"
	"github.com/graphvault/graphvault/pkg/gateway"
	"github.com/graphvault/graphvault/pkg/graph"
	"github.com/graphvault/graphvault/pkg/ledger"
	"github.com/graphvault/graphvault/pkg/restore"
	"github.com/graphvault/graphvault/pkg/strategy"
)

var (
	ErrClosed = errors.New("graphvault: engine closed")

	// ErrNotConfirmed guards destructive operations. Clean and Wipe refuse
	// to run unless the caller passes explicit confirmation.
	ErrNotConfirmed = errors.New("graphvault: destructive operation not confirmed")
)

// LogFileName is the JSON history mirror kept next to the artifacts.
const LogFileName = "backup_log.json"

// Engine is the main handle. It owns the gateways, the archive codec,
// and the ledger lifecycle.
type Engine struct {
	log    *logrus.Logger
	config Config

	gw      gateway.Gateway
	managed gateway.Gateway
	codec   *archive.Codec
	ledger  *ledger.Ledger
	allow   *graph.AllowList

	mu     sync.Mutex
	closed bool
}

// BackupOptions tunes one backup invocation.
type BackupOptions struct {
	// Tag is appended to the artifact name, e.g. "pre_clean".
	Tag string
}

// BackupResult reports one completed backup.
type BackupResult struct {
	ArtifactPath string
	Method       string
	Digest       string
	SizeBytes    int64
	Statistics   graph.Statistics
	StatsOnly    bool
}

// Status is a point-in-time view of the target graph and the history.
type Status struct {
	Statistics graph.Statistics
	Backups    []ledger.Entry
}

// New builds an engine. It opens the ledger store and constructs the
// gateways but performs no graph access until the first operation.
func New(conf Config) (*Engine, error) {
	conf.applyDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}

	gw := conf.GatewayClient
	if gw == nil {
		gw = gateway.NewHTTPGateway(conf.Gateway, conf.Logger)
	}

	managed := conf.ManagedClient
	if managed == nil && conf.Managed != nil {
		managed = gateway.NewHTTPGateway(*conf.Managed, conf.Logger)
	}

	codec, err := archive.NewCodec(archive.CodecConfig{
		Dir:           conf.BackupDir,
		MinimumFreeGB: conf.MinimumFreeGB,
		Logger:        conf.Logger,
	})
	if err != nil {
		return nil, err
	}

	led, err := ledger.Open(ledger.Config{
		Path:        conf.LedgerDir,
		LogFilePath: filepath.Join(conf.BackupDir, LogFileName),
		Retention:   conf.Retention,
		Logger:      conf.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		log:     conf.Logger,
		config:  conf,
		gw:      gw,
		managed: managed,
		codec:   codec,
		ledger:  led,
		allow:   graph.DefaultAllowList(),
	}, nil
}

// Backup acquires a snapshot through the strategy chain, writes the
// archive, and records it in the ledger. The minimal strategy means this
// returns an artifact even when the full export is impossible; only an
// archive-stage failure (disk space, I/O) makes Backup fail outright.
func (e *Engine) Backup(ctx context.Context, opts BackupOptions) (*BackupResult, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}

	chain := e.buildChain()
	snap, method, err := chain.Run(ctx)
	if err != nil {
		return nil, err
	}

	path, manifest, err := e.codec.Encode(snap, method, opts.Tag)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	err = e.ledger.Record(ledger.Entry{
		Timestamp:    manifest.Timestamp,
		CreatedAt:    snap.ExportedAt,
		ArtifactPath: path,
		Digest:       manifest.Hash,
		Method:       method,
		Tag:          opts.Tag,
		Statistics:   snap.Statistics,
		SizeBytes:    size,
	})
	if err != nil {
		return nil, err
	}

	return &BackupResult{
		ArtifactPath: path,
		Method:       method,
		Digest:       manifest.Hash,
		SizeBytes:    size,
		Statistics:   snap.Statistics,
		StatsOnly:    snap.StatsOnly,
	}, nil
}

func (e *Engine) buildChain() *strategy.Chain {
	strategies := []strategy.Strategy{
		strategy.NewDirect(e.gw, e.config.BatchSize, e.log),
	}
	if e.managed != nil {
		strategies = append(strategies,
			strategy.NewManaged(e.managed, e.config.BatchSize, e.log))
	}
	strategies = append(strategies, strategy.NewMinimal(e.gw, e.log))
	return strategy.NewChain(e.log, strategies...)
}

// Restore replays the archive at path into the target graph. It never
// clears the graph first; call Wipe explicitly for that.
func (e *Engine) Restore(ctx context.Context, path string) (*restore.Summary, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	eng := restore.New(e.gw, e.codec, restore.Config{
		AllowList: e.allow,
		Logger:    e.log,
	})
	return eng.Restore(ctx, path)
}

// Wipe deletes every relationship and node from the target graph. The
// confirmed flag must be true; there is no interactive prompt at this
// layer.
func (e *Engine) Wipe(ctx context.Context, confirmed bool) error {
	if err := e.ensureOpen(); err != nil {
		return err
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	eng := restore.New(e.gw, e.codec, restore.Config{
		AllowList: e.allow,
		Logger:    e.log,
	})
	return eng.Wipe(ctx)
}

// Clean wipes the target graph after first taking a safety backup tagged
// pre_clean. The safety backup must succeed for the wipe to proceed.
func (e *Engine) Clean(ctx context.Context, confirmed bool) (*BackupResult, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, ErrNotConfirmed
	}

	result, err := e.Backup(ctx, BackupOptions{Tag: "pre_clean"})
	if err != nil {
		return nil, fmt.Errorf("safety backup failed, refusing to clean: %w", err)
	}

	if err := e.Wipe(ctx, true); err != nil {
		return result, err
	}
	return result, nil
}

// Verify recomputes the digest of an archive without touching the graph.
func (e *Engine) Verify(path string) (*archive.Manifest, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	return e.codec.Verify(path)
}

// Status reports current graph statistics and the recorded history.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}

	exp := exporter.New(e.gw, exporter.Config{Logger: e.log})
	stats, err := exp.CollectStatistics(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := e.ledger.Recent(0)
	if err != nil {
		return nil, err
	}

	return &Status{Statistics: stats, Backups: entries}, nil
}

// History returns up to n recorded backups, oldest first.
func (e *Engine) History(n int) ([]ledger.Entry, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	return e.ledger.Recent(n)
}

// Close releases the ledger store and the gateways. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var closeErr error
	if err := e.ledger.Close(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("close ledger: %w", err))
	}
	if e.gw != nil {
		if err := e.gw.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close gateway: %w", err))
		}
	}
	if e.managed != nil {
		if err := e.managed.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close managed gateway: %w", err))
		}
	}

	e.log.Info("engine closed")
	return closeErr
}

func (e *Engine) ensureOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// Package ledger keeps the append-only record of produced backups in a
// badger store and mirrors it into a plain JSON log file so the history
// survives even when only the backup directory is copied off the host.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/graphvault/graphvault/pkg/graph"
)

// DefaultRetention is how many entries (and their artifacts) are kept
// when no explicit retention is configured.
const DefaultRetention = 10

const (
	entryPrefix = "ledger:entry:"
	seqKey      = "ledger:seq"
)

// Entry is one recorded backup.
type Entry struct {
	Timestamp    string           `json:"timestamp"`
	CreatedAt    time.Time        `json:"created_at"`
	ArtifactPath string           `json:"file"`
	Digest       string           `json:"hash"`
	Method       string           `json:"method"`
	Tag          string           `json:"tag,omitempty"`
	Statistics   graph.Statistics `json:"statistics"`
	SizeBytes    int64            `json:"size_bytes"`
}

// Config configures a Ledger.
type Config struct {
	// Path is the badger directory. Created if absent.
	Path string
	// LogFilePath is where the JSON mirror is written after every append.
	// Empty disables the mirror.
	LogFilePath string
	// Retention caps the number of retained entries. 0 means
	// DefaultRetention; negative disables trimming.
	Retention int
	// Logger is an optional structured logger. If nil, a default is used.
	Logger *logrus.Logger
}

// Ledger is the append-only backup history.
type Ledger struct {
	db        *badger.DB
	logFile   string
	retention int
	log       *logrus.Logger
}

// Open opens or creates the ledger store at config.Path.
func Open(config Config) (*Ledger, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("ledger: no store path configured")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	retention := config.Retention
	if retention == 0 {
		retention = DefaultRetention
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ledger: open store at %s: %w", config.Path, err)
	}

	return &Ledger{
		db:        db,
		logFile:   config.LogFilePath,
		retention: retention,
		log:       config.Logger,
	}, nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends an entry, trims the history to the retention cap, and
// rewrites the JSON mirror. Trimming removes the referenced artifact
// files along with the entries.
func (l *Ledger) Record(entry Entry) error {
	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger: serialize entry: %w", err)
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSequence(txn)
		if err != nil {
			return err
		}
		key := []byte(fmt.Sprintf("%s%020d", entryPrefix, seq))
		return txn.Set(key, doc)
	})
	if err != nil {
		return fmt.Errorf("ledger: append entry: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"artifact": entry.ArtifactPath,
		"method":   entry.Method,
	}).Info("backup recorded")

	if l.retention > 0 {
		if err := l.Trim(l.retention); err != nil {
			return err
		}
	}

	return l.writeLogFile()
}

// Recent returns up to n entries, oldest first. n <= 0 returns all.
func (l *Ledger) Recent(n int) ([]Entry, error) {
	var entries []Entry

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return fmt.Errorf("ledger: parse entry %s: %w", it.Item().Key(), err)
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Trim deletes the oldest entries until at most max remain, removing
// each trimmed entry's artifact file from disk. A missing artifact is
// not an error; the entry is dropped either way.
func (l *Ledger) Trim(max int) error {
	var stale []string
	var staleKeys [][]byte

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		var paths []string
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return nil // unparseable entries still get trimmed by key
				}
				paths = append(paths, e.ArtifactPath)
				return nil
			})
			if err != nil {
				return err
			}
		}

		if excess := len(keys) - max; excess > 0 {
			staleKeys = keys[:excess]
			if excess <= len(paths) {
				stale = paths[:excess]
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: scan for trim: %w", err)
	}
	if len(staleKeys) == 0 {
		return nil
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		for _, key := range staleKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: trim entries: %w", err)
	}

	for _, path := range stale {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l.log.WithFields(logrus.Fields{
				"artifact": path,
				"error":    err.Error(),
			}).Warn("could not remove trimmed artifact")
			continue
		}
		l.log.WithField("artifact", path).Info("trimmed old backup")
	}

	return nil
}

// writeLogFile rewrites the JSON mirror atomically.
func (l *Ledger) writeLogFile() error {
	if l.logFile == "" {
		return nil
	}

	entries, err := l.Recent(0)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Entry{}
	}

	doc, err := json.MarshalIndent(struct {
		Backups []Entry `json:"backups"`
	}{Backups: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: serialize log file: %w", err)
	}

	tmp := l.logFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(l.logFile), 0o755); err != nil {
		return fmt.Errorf("ledger: create log directory: %w", err)
	}
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return fmt.Errorf("ledger: write log file: %w", err)
	}
	if err := os.Rename(tmp, l.logFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: finalize log file: %w", err)
	}
	return nil
}

func nextSequence(txn *badger.Txn) (uint64, error) {
	var seq uint64

	item, err := txn.Get([]byte(seqKey))
	switch err {
	case nil:
		err = item.Value(func(val []byte) error {
			if len(val) == 8 {
				seq = binary.BigEndian.Uint64(val)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	case badger.ErrKeyNotFound:
	default:
		return 0, err
	}

	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := txn.Set([]byte(seqKey), buf); err != nil {
		return 0, err
	}
	return seq, nil
}

// Package archive packages snapshots into durable, integrity-verified
// artifacts and reads them back. The container is a tar stream compressed
// with xz, holding the serialized snapshot, a manifest, and a duplicated
// integrity record so the digest can be checked without trusting the
// manifest alone.
package archive

import (
	"errors"
	"time"

	"github.com/graphvault/graphvault/pkg/graph"
)

// FormatVersion is written into every manifest. Decode rejects anything
// it does not recognize.
const FormatVersion = "2.0"

// Algorithm is the digest algorithm recorded in manifests.
const Algorithm = "SHA256"

// Container member names, in write order.
const (
	MemberSnapshot  = "snapshot.json"
	MemberMetadata  = "metadata.json"
	MemberIntegrity = "integrity.json"
)

var (
	// ErrIntegrity means the recomputed digest does not match the recorded
	// one. Fatal; never auto-repaired.
	ErrIntegrity = errors.New("archive: integrity digest mismatch")

	// ErrFormat means the manifest's format version is unrecognized.
	ErrFormat = errors.New("archive: unrecognized format version")

	// ErrMalformed means the container is structurally broken: missing
	// members, truncated stream, or unparseable documents.
	ErrMalformed = errors.New("archive: malformed container")

	// ErrDiskSpace means the target volume is below the free-space
	// threshold and the encode was refused before writing anything.
	ErrDiskSpace = errors.New("archive: insufficient free disk space")
)

// Manifest describes one archive. It is stored as the metadata.json
// member and returned by Decode and Verify.
type Manifest struct {
	Timestamp     string           `json:"timestamp"`
	Date          string           `json:"date"`
	Tag           string           `json:"tag,omitempty"`
	Method        string           `json:"method"`
	FormatVersion string           `json:"format_version"`
	Algorithm     string           `json:"algorithm"`
	Hash          string           `json:"hash"`
	Statistics    graph.Statistics `json:"statistics"`
}

// Integrity is the integrity.json member: the digest duplicated with the
// payload counts, so a quick verification does not need the manifest.
type Integrity struct {
	BackupHash         string `json:"backup_hash"`
	Algorithm          string `json:"algorithm"`
	NodesCount         int    `json:"nodes_count"`
	RelationshipsCount int    `json:"relationships_count"`
}

const timestampLayout = "20060102_150405"

func newManifest(snap *graph.Snapshot, method, tag, digest string, at time.Time) *Manifest {
	return &Manifest{
		Timestamp:     at.Format(timestampLayout),
		Date:          at.Format(time.RFC3339),
		Tag:           tag,
		Method:        method,
		FormatVersion: FormatVersion,
		Algorithm:     Algorithm,
		Hash:          digest,
		Statistics:    snap.Statistics,
	}
}

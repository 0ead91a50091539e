package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/graphvault/graphvault/pkg/graph"
)

// CodecConfig configures a Codec.
type CodecConfig struct {
	// Dir is the directory artifacts are written to. Created if absent.
	Dir string
	// MinimumFreeGB refuses encodes when the target volume has less free
	// space than this. 0 disables the check.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a default is used.
	Logger *logrus.Logger
}

// Codec encodes snapshots into archive files and decodes them back.
type Codec struct {
	dir     string
	minFree uint
	log     *logrus.Logger
}

// NewCodec builds a codec rooted at config.Dir.
func NewCodec(config CodecConfig) (*Codec, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("archive: no target directory configured")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create directory %s: %w", config.Dir, err)
	}
	return &Codec{
		dir:     config.Dir,
		minFree: config.MinimumFreeGB,
		log:     config.Logger,
	}, nil
}

// Encode validates the snapshot, serializes it, digests the serialized
// bytes, and writes the container. The file is staged under a .tmp name
// and renamed into place only after the whole container is flushed, so a
// failed or cancelled encode never leaves a partial artifact at the final
// path.
func (c *Codec) Encode(snap *graph.Snapshot, method, tag string) (string, *Manifest, error) {
	if err := snap.Validate(); err != nil {
		return "", nil, err
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("archive: serialize snapshot: %w", err)
	}

	if err := c.checkFreeSpace(uint64(len(payload))); err != nil {
		return "", nil, err
	}

	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])

	now := time.Now().UTC()
	manifest := newManifest(snap, method, tag, digest, now)

	name := fmt.Sprintf("graph_backup_%s", manifest.Timestamp)
	if tag != "" {
		name += "_" + tag
	}

	finalPath := filepath.Join(c.dir, name+".tar.xz")
	// Timestamps have second resolution; a second backup within the same
	// second must not overwrite the first.
	for i := 2; ; i++ {
		if _, err := os.Stat(finalPath); os.IsNotExist(err) {
			break
		}
		finalPath = filepath.Join(c.dir, fmt.Sprintf("%s_%d.tar.xz", name, i))
	}
	tmpPath := finalPath + ".tmp"

	if err := c.writeContainer(tmpPath, payload, manifest, snap); err != nil {
		os.Remove(tmpPath)
		return "", nil, err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", nil, fmt.Errorf("archive: finalize artifact: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"artifact": finalPath,
		"method":   method,
		"hash":     digest[:16],
	}).Info("archive written")

	return finalPath, manifest, nil
}

func (c *Codec) writeContainer(path string, payload []byte, manifest *Manifest, snap *graph.Snapshot) error {
	metaDoc, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: serialize manifest: %w", err)
	}

	integrityDoc, err := json.MarshalIndent(Integrity{
		BackupHash:         manifest.Hash,
		Algorithm:          Algorithm,
		NodesCount:         len(snap.Nodes),
		RelationshipsCount: len(snap.Relationships),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: serialize integrity record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("archive: create staging file: %w", err)
	}

	xzw, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("archive: open xz stream: %w", err)
	}
	tw := tar.NewWriter(xzw)

	members := []struct {
		name string
		data []byte
	}{
		{MemberSnapshot, payload},
		{MemberMetadata, metaDoc},
		{MemberIntegrity, integrityDoc},
	}
	for _, m := range members {
		hdr := &tar.Header{
			Name:    m.name,
			Mode:    0o644,
			Size:    int64(len(m.data)),
			ModTime: time.Now().UTC(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			f.Close()
			return fmt.Errorf("archive: write %s header: %w", m.name, err)
		}
		if _, err := tw.Write(m.data); err != nil {
			f.Close()
			return fmt.Errorf("archive: write %s: %w", m.name, err)
		}
	}

	if err := tw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("archive: close tar stream: %w", err)
	}
	if err := xzw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("archive: close xz stream: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("archive: sync staging file: %w", err)
	}
	return f.Close()
}

// Decode opens an archive, checks the format version, recomputes the
// digest over the extracted snapshot document, and only then deserializes
// the payload. A digest mismatch fails with ErrIntegrity; an unknown
// version fails with ErrFormat before any payload is parsed.
func (c *Codec) Decode(path string) (*graph.Snapshot, *Manifest, error) {
	members, err := readContainer(path)
	if err != nil {
		return nil, nil, err
	}

	manifest, err := parseManifest(members)
	if err != nil {
		return nil, nil, err
	}

	payload, ok := members[MemberSnapshot]
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing %s", ErrMalformed, MemberSnapshot)
	}

	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != manifest.Hash {
		return nil, nil, fmt.Errorf("%w: %s", ErrIntegrity, path)
	}

	var snap graph.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, nil, fmt.Errorf("%w: parse snapshot: %v", ErrMalformed, err)
	}

	return &snap, manifest, nil
}

// Verify recomputes the digest of an existing archive without
// deserializing the snapshot payload.
func (c *Codec) Verify(path string) (*Manifest, error) {
	members, err := readContainer(path)
	if err != nil {
		return nil, err
	}

	manifest, err := parseManifest(members)
	if err != nil {
		return nil, err
	}

	payload, ok := members[MemberSnapshot]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, MemberSnapshot)
	}

	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != manifest.Hash {
		return nil, fmt.Errorf("%w: %s", ErrIntegrity, path)
	}

	var integrity Integrity
	if doc, ok := members[MemberIntegrity]; ok {
		if err := json.Unmarshal(doc, &integrity); err == nil &&
			integrity.BackupHash != manifest.Hash {
			return nil, fmt.Errorf("%w: integrity record disagrees with manifest", ErrIntegrity)
		}
	}

	return manifest, nil
}

func parseManifest(members map[string][]byte) (*Manifest, error) {
	doc, ok := members[MemberMetadata]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, MemberMetadata)
	}
	var manifest Manifest
	if err := json.Unmarshal(doc, &manifest); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", ErrMalformed, err)
	}
	if manifest.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %q", ErrFormat, manifest.FormatVersion)
	}
	return &manifest, nil
}

func readContainer(path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	members := make(map[string][]byte, 3)
	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrMalformed, hdr.Name, err)
		}
		members[hdr.Name] = data
	}
	return members, nil
}

// Package restore replays an archive against a target graph. The target
// assigns fresh identifiers on every create, so the engine owns an
// explicit old-to-new identifier map for the duration of one restore and
// translates every relationship endpoint through it.
package restore

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/graphvault/graphvault/pkg/archive"
	"github.com/graphvault/graphvault/pkg/exporter"
	"github.com/graphvault/graphvault/pkg/gateway"
	"github.com/graphvault/graphvault/pkg/graph"
)

// ErrStatsOnly is returned for archives produced by the minimal strategy:
// they record statistics but carry no payload to replay.
var ErrStatsOnly = errors.New("restore: archive is statistics-only, nothing to replay")

// State tracks how far a restore got. A failed restore reports the state
// it reached alongside the records committed before the failure.
type State int

const (
	StateValidating State = iota
	StateCreatingNodes
	StateCreatingRelationships
	StateVerifying
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "VALIDATING"
	case StateCreatingNodes:
		return "CREATING_NODES"
	case StateCreatingRelationships:
		return "CREATING_RELATIONSHIPS"
	case StateVerifying:
		return "VERIFYING"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// Gap records one relationship that could not be restored. Relationships
// are best-effort; gaps are reported, not fatal.
type Gap struct {
	RelationshipID int64  `json:"relationship_id"`
	StartID        int64  `json:"start"`
	EndID          int64  `json:"end"`
	Reason         string `json:"reason"`
}

// Summary is the outcome of one restore invocation.
type Summary struct {
	State                State
	NodesCreated         int
	RelationshipsCreated int
	Gaps                 []Gap
	// Mismatches holds post-restore count discrepancies against the
	// manifest. Reported, not fatal: the commits already happened.
	Mismatches []string
}

// Config configures a restore engine.
type Config struct {
	// AllowList gates the labels and relationship types written back. If
	// nil, graph.DefaultAllowList() is used.
	AllowList *graph.AllowList
	// Logger is an optional structured logger. If nil, a default is used.
	Logger *logrus.Logger
}

// Engine replays archives through a gateway.
type Engine struct {
	gw    gateway.Gateway
	codec *archive.Codec
	allow *graph.AllowList
	log   *logrus.Logger
}

// New builds a restore engine over the given gateway and codec.
func New(gw gateway.Gateway, codec *archive.Codec, config Config) *Engine {
	if config.AllowList == nil {
		config.AllowList = graph.DefaultAllowList()
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Engine{
		gw:    gw,
		codec: codec,
		allow: config.AllowList,
		log:   config.Logger,
	}
}

// Restore decodes and verifies the archive, recreates every node while
// building the identifier map, then recreates relationships through the
// map, and finally re-queries counts against the manifest. It never
// clears the target graph; wiping is the caller's explicit, separately
// confirmed operation (see Wipe).
func (e *Engine) Restore(ctx context.Context, path string) (*Summary, error) {
	summary := &Summary{State: StateValidating}

	snap, manifest, err := e.codec.Decode(path)
	if err != nil {
		summary.State = StateAborted
		return summary, err
	}
	if snap.StatsOnly {
		summary.State = StateAborted
		return summary, ErrStatsOnly
	}
	if err := snap.Validate(); err != nil {
		summary.State = StateAborted
		return summary, err
	}

	summary.State = StateCreatingNodes
	idMap := make(map[int64]int64, len(snap.Nodes))

	for _, node := range snap.Nodes {
		if err := ctx.Err(); err != nil {
			summary.State = StateAborted
			return summary, fmt.Errorf("restore cancelled: %w", err)
		}

		newID, err := e.createNode(ctx, node)
		if err != nil {
			// Node creation is not best-effort: an invalid label or a
			// store failure aborts the whole restore.
			summary.State = StateAborted
			return summary, fmt.Errorf("node %d: %w", node.ID, err)
		}
		idMap[node.ID] = newID
		summary.NodesCreated++
	}

	summary.State = StateCreatingRelationships
	for _, rel := range snap.Relationships {
		if err := ctx.Err(); err != nil {
			summary.State = StateAborted
			return summary, fmt.Errorf("restore cancelled: %w", err)
		}

		gap, err := e.createRelationship(ctx, rel, idMap)
		if err != nil {
			summary.State = StateAborted
			return summary, fmt.Errorf("relationship %d: %w", rel.ID, err)
		}
		if gap != nil {
			summary.Gaps = append(summary.Gaps, *gap)
			continue
		}
		summary.RelationshipsCreated++
	}

	summary.State = StateVerifying
	e.verifyCounts(ctx, manifest, summary)

	summary.State = StateDone
	e.log.WithFields(logrus.Fields{
		"nodes":         summary.NodesCreated,
		"relationships": summary.RelationshipsCreated,
		"gaps":          len(summary.Gaps),
	}).Info("restore complete")

	return summary, nil
}

func (e *Engine) createNode(ctx context.Context, node graph.Node) (int64, error) {
	safeLabels, err := e.allow.Labels(node.Labels)
	if err != nil {
		return 0, err
	}

	props := node.Properties
	if props == nil {
		props = graph.Properties{}
	}

	records, err := e.gw.Execute(ctx, gateway.CreateNodeQuery(safeLabels),
		map[string]interface{}{"props": map[string]interface{}(props)})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: create returned no identifier", gateway.ErrQuery)
	}
	return recordID(records[0])
}

// createRelationship returns a non-nil gap for skippable conditions
// (invalid type, endpoint missing from the identifier map) and an error
// only for store failures.
func (e *Engine) createRelationship(
	ctx context.Context,
	rel graph.Relationship,
	idMap map[int64]int64,
) (*Gap, error) {
	safeType, err := e.allow.RelType(rel.Type)
	if err != nil {
		return &Gap{
			RelationshipID: rel.ID,
			StartID:        rel.StartID,
			EndID:          rel.EndID,
			Reason:         err.Error(),
		}, nil
	}

	start, ok := idMap[rel.StartID]
	if !ok {
		return &Gap{
			RelationshipID: rel.ID,
			StartID:        rel.StartID,
			EndID:          rel.EndID,
			Reason:         fmt.Sprintf("start node %d was never created", rel.StartID),
		}, nil
	}
	end, ok := idMap[rel.EndID]
	if !ok {
		return &Gap{
			RelationshipID: rel.ID,
			StartID:        rel.StartID,
			EndID:          rel.EndID,
			Reason:         fmt.Sprintf("end node %d was never created", rel.EndID),
		}, nil
	}

	props := rel.Properties
	if props == nil {
		props = graph.Properties{}
	}

	_, err = e.gw.Execute(ctx, gateway.CreateRelationshipQuery(safeType),
		map[string]interface{}{
			"start": start,
			"end":   end,
			"props": map[string]interface{}(props),
		})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (e *Engine) verifyCounts(ctx context.Context, manifest *archive.Manifest, summary *Summary) {
	exp := exporter.New(e.gw, exporter.Config{Logger: e.log})
	stats, err := exp.CollectStatistics(ctx)
	if err != nil {
		summary.Mismatches = append(summary.Mismatches,
			fmt.Sprintf("post-restore count query failed: %v", err))
		return
	}

	if stats.TotalNodes < manifest.Statistics.TotalNodes {
		summary.Mismatches = append(summary.Mismatches,
			fmt.Sprintf("target has %d nodes, archive recorded %d",
				stats.TotalNodes, manifest.Statistics.TotalNodes))
	}
	if stats.TotalRelationships < manifest.Statistics.TotalRelationships-len(summary.Gaps) {
		summary.Mismatches = append(summary.Mismatches,
			fmt.Sprintf("target has %d relationships, archive recorded %d (%d skipped)",
				stats.TotalRelationships, manifest.Statistics.TotalRelationships,
				len(summary.Gaps)))
	}
}

// Wipe deletes every relationship and then every node from the target
// graph. It exists as a separate operation precisely so a restore can
// never clear the graph implicitly.
func (e *Engine) Wipe(ctx context.Context) error {
	if _, err := e.gw.Execute(ctx, gateway.QueryDeleteRelationships, nil); err != nil {
		return fmt.Errorf("delete relationships: %w", err)
	}
	if _, err := e.gw.Execute(ctx, gateway.QueryDeleteNodes, nil); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	e.log.Warn("target graph wiped")
	return nil
}

func recordID(rec gateway.Record) (int64, error) {
	switch n := rec["id"].(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: non-numeric identifier in create result", gateway.ErrQuery)
}

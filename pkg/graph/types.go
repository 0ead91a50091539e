// Package graph defines the data model shared by the export and restore
// paths: nodes, relationships, snapshots and their statistics.
package graph

import (
	"errors"
	"fmt"
	"time"
)

var ErrValidation = errors.New("graph: snapshot validation failed")

// Properties holds the scalar/array property values of a node or
// relationship, keyed by property name.
type Properties map[string]interface{}

// Node is a graph entity as captured from the store. ID is the
// store-assigned identifier and is only meaningful within the export
// session that produced it; a restore never reuses it.
type Node struct {
	ID         int64      `json:"id"`
	Labels     []string   `json:"labels"`
	Properties Properties `json:"properties"`
}

// Relationship is a directed, typed edge. StartID and EndID reference
// Node.ID values from the same snapshot.
type Relationship struct {
	ID         int64      `json:"id"`
	StartID    int64      `json:"start"`
	EndID      int64      `json:"end"`
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
}

// Statistics summarizes a snapshot. For statistics-only captures (minimal
// acquisition) the histograms may be populated while the payload is empty.
type Statistics struct {
	TotalNodes         int            `json:"total_nodes"`
	TotalRelationships int            `json:"total_relationships"`
	Labels             map[string]int `json:"labels"`
	RelationshipTypes  map[string]int `json:"relationship_types"`
}

// Snapshot is a complete capture of the graph at one point in time. The
// order of Nodes and Relationships is ascending by store identifier; the
// order carries no meaning beyond making one export run reproducible.
type Snapshot struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
	Statistics    Statistics     `json:"statistics"`
	ExportedAt    time.Time      `json:"exported_at"`

	// StatsOnly marks a degraded capture that carries statistics but no
	// node/relationship payload. Such snapshots cannot be restored.
	StatsOnly bool `json:"stats_only,omitempty"`
}

// BuildStatistics derives the counts and histograms for a full payload.
func BuildStatistics(nodes []Node, rels []Relationship) Statistics {
	stats := Statistics{
		TotalNodes:         len(nodes),
		TotalRelationships: len(rels),
		Labels:             make(map[string]int),
		RelationshipTypes:  make(map[string]int),
	}
	for _, n := range nodes {
		for _, l := range n.Labels {
			stats.Labels[l]++
		}
	}
	for _, r := range rels {
		stats.RelationshipTypes[r.Type]++
	}
	return stats
}

// Validate checks the snapshot invariants before it is packaged or
// replayed: statistics must reconcile with the payload and every
// relationship endpoint must resolve to a node in the same snapshot.
// A dangling endpoint is a corruption signal, not a soft error.
func (s *Snapshot) Validate() error {
	if s.StatsOnly {
		if len(s.Nodes) != 0 || len(s.Relationships) != 0 {
			return fmt.Errorf("%w: stats-only snapshot carries payload", ErrValidation)
		}
		return nil
	}

	if s.Statistics.TotalNodes != len(s.Nodes) {
		return fmt.Errorf("%w: statistics claim %d nodes, payload has %d",
			ErrValidation, s.Statistics.TotalNodes, len(s.Nodes))
	}
	if s.Statistics.TotalRelationships != len(s.Relationships) {
		return fmt.Errorf("%w: statistics claim %d relationships, payload has %d",
			ErrValidation, s.Statistics.TotalRelationships, len(s.Relationships))
	}

	ids := make(map[int64]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if len(n.Labels) == 0 {
			return fmt.Errorf("%w: node %d has no labels", ErrValidation, n.ID)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %d", ErrValidation, n.ID)
		}
		ids[n.ID] = struct{}{}
	}

	for _, r := range s.Relationships {
		if _, ok := ids[r.StartID]; !ok {
			return fmt.Errorf("%w: relationship %d references missing start node %d",
				ErrValidation, r.ID, r.StartID)
		}
		if _, ok := ids[r.EndID]; !ok {
			return fmt.Errorf("%w: relationship %d references missing end node %d",
				ErrValidation, r.ID, r.EndID)
		}
	}

	return nil
}

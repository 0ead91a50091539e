// Package exporter walks the whole graph in bounded pages and assembles a
// snapshot. It never holds more than one page of raw records beyond the
// snapshot being built, so graph size is limited by the snapshot itself,
// not by the paging machinery.
package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/graphvault/graphvault/pkg/gateway"
	"github.com/graphvault/graphvault/pkg/graph"
)

// DefaultBatchSize is the page size used when the config leaves it unset.
const DefaultBatchSize = 100

// Config tunes one exporter instance.
type Config struct {
	// BatchSize is the maximum number of records per page. Default 100.
	BatchSize int
	// Logger is an optional structured logger. If nil, a default is used.
	Logger *logrus.Logger
}

// Exporter produces snapshots from a gateway.
type Exporter struct {
	gw        gateway.Gateway
	batchSize int
	log       *logrus.Logger
}

// New builds an exporter over the given gateway.
func New(gw gateway.Gateway, config Config) *Exporter {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Exporter{
		gw:        gw,
		batchSize: config.BatchSize,
		log:       config.Logger,
	}
}

// Export captures every node and relationship. Pages are requested until
// one comes back shorter than the batch size. An empty graph yields an
// empty snapshot, not an error. Cancellation is honored between pages;
// a page-fetch failure aborts the whole export.
func (e *Exporter) Export(ctx context.Context) (*graph.Snapshot, error) {
	nodes, err := e.exportNodes(ctx)
	if err != nil {
		return nil, err
	}

	rels, err := e.exportRelationships(ctx)
	if err != nil {
		return nil, err
	}

	snap := &graph.Snapshot{
		Nodes:         nodes,
		Relationships: rels,
		Statistics:    graph.BuildStatistics(nodes, rels),
		ExportedAt:    time.Now().UTC(),
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"nodes":         len(nodes),
		"relationships": len(rels),
	}).Info("export complete")

	return snap, nil
}

func (e *Exporter) exportNodes(ctx context.Context) ([]graph.Node, error) {
	var nodes []graph.Node
	for skip := 0; ; skip += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("export cancelled: %w", err)
		}

		records, err := e.gw.Execute(ctx, gateway.QueryNodePage, map[string]interface{}{
			"skip":  skip,
			"limit": e.batchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("node page at offset %d: %w", skip, err)
		}

		for _, rec := range records {
			n, err := nodeFromRecord(rec)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}

		if len(records) < e.batchSize {
			return nodes, nil
		}
	}
}

func (e *Exporter) exportRelationships(ctx context.Context) ([]graph.Relationship, error) {
	var rels []graph.Relationship
	for skip := 0; ; skip += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("export cancelled: %w", err)
		}

		records, err := e.gw.Execute(ctx, gateway.QueryRelationshipPage, map[string]interface{}{
			"skip":  skip,
			"limit": e.batchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("relationship page at offset %d: %w", skip, err)
		}

		for _, rec := range records {
			r, err := relationshipFromRecord(rec)
			if err != nil {
				return nil, err
			}
			rels = append(rels, r)
		}

		if len(records) < e.batchSize {
			return rels, nil
		}
	}
}

// CollectStatistics gathers counts and histograms without touching the
// payload. The minimal acquisition strategy uses this when a full export
// is off the table.
func (e *Exporter) CollectStatistics(ctx context.Context) (graph.Statistics, error) {
	stats := graph.Statistics{
		Labels:            make(map[string]int),
		RelationshipTypes: make(map[string]int),
	}

	count, err := e.singleCount(ctx, gateway.QueryNodeCount)
	if err != nil {
		return stats, err
	}
	stats.TotalNodes = count

	count, err = e.singleCount(ctx, gateway.QueryRelationshipCount)
	if err != nil {
		return stats, err
	}
	stats.TotalRelationships = count

	records, err := e.gw.Execute(ctx, gateway.QueryLabelHistogram, nil)
	if err != nil {
		return stats, fmt.Errorf("label histogram: %w", err)
	}
	for _, rec := range records {
		label, _ := rec["label"].(string)
		n, err := asInt(rec["count"])
		if err != nil || label == "" {
			continue
		}
		stats.Labels[label] = n
	}

	records, err = e.gw.Execute(ctx, gateway.QueryTypeHistogram, nil)
	if err != nil {
		return stats, fmt.Errorf("type histogram: %w", err)
	}
	for _, rec := range records {
		relType, _ := rec["type"].(string)
		n, err := asInt(rec["count"])
		if err != nil || relType == "" {
			continue
		}
		stats.RelationshipTypes[relType] = n
	}

	return stats, nil
}

func (e *Exporter) singleCount(ctx context.Context, query string) (int, error) {
	records, err := e.gw.Execute(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return asInt(records[0]["count"])
}

func nodeFromRecord(rec gateway.Record) (graph.Node, error) {
	id, err := asInt64(rec["id"])
	if err != nil {
		return graph.Node{}, fmt.Errorf("node record: %w", err)
	}
	return graph.Node{
		ID:         id,
		Labels:     asStrings(rec["labels"]),
		Properties: asProperties(rec["props"]),
	}, nil
}

func relationshipFromRecord(rec gateway.Record) (graph.Relationship, error) {
	id, err := asInt64(rec["id"])
	if err != nil {
		return graph.Relationship{}, fmt.Errorf("relationship record: %w", err)
	}
	start, err := asInt64(rec["start"])
	if err != nil {
		return graph.Relationship{}, fmt.Errorf("relationship %d: %w", id, err)
	}
	end, err := asInt64(rec["end"])
	if err != nil {
		return graph.Relationship{}, fmt.Errorf("relationship %d: %w", id, err)
	}
	relType, _ := rec["type"].(string)
	return graph.Relationship{
		ID:         id,
		StartID:    start,
		EndID:      end,
		Type:       relType,
		Properties: asProperties(rec["props"]),
	}, nil
}

// Record values arrive as int64 from in-process gateways and as float64
// when they crossed a JSON boundary.
func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("unexpected identifier value %v (%T)", v, v)
}

func asInt(v interface{}) (int, error) {
	n, err := asInt64(v)
	return int(n), err
}

func asStrings(v interface{}) []string {
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...)
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asProperties(v interface{}) graph.Properties {
	switch p := v.(type) {
	case graph.Properties:
		return p
	case map[string]interface{}:
		return graph.Properties(p)
	}
	return graph.Properties{}
}

// Package memgraph is an in-memory graph store that implements the
// gateway contract for the fixed query-template set this engine issues.
// It backs the test suite and the end-to-end scenarios; identifiers are
// assigned from a counter that never goes backwards, so a wiped and
// repopulated store hands out fresh identifiers the way a real graph
// database does.
package memgraph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/graphvault/graphvault/pkg/gateway"
	"github.com/graphvault/graphvault/pkg/graph"
)

var (
	createNodeRe = regexp.MustCompile(
		`^CREATE \(n((?::[A-Za-z_][A-Za-z0-9_]*)*)\) SET n = \$props RETURN id\(n\) AS id$`)
	createRelRe = regexp.MustCompile(
		`^MATCH \(a\) WHERE id\(a\) = \$start MATCH \(b\) WHERE id\(b\) = \$end ` +
			`CREATE \(a\)-\[r:([A-Za-z_][A-Za-z0-9_]*)\]->\(b\) SET r = \$props RETURN id\(r\) AS id$`)
)

type node struct {
	id     int64
	labels []string
	props  graph.Properties
}

type rel struct {
	id      int64
	start   int64
	end     int64
	relType string
	props   graph.Properties
}

// Store is the in-memory graph. The zero value is not usable; call New.
type Store struct {
	mu     sync.Mutex
	nodes  map[int64]*node
	rels   map[int64]*rel
	nextID int64

	// FailAfter, when > 0, makes Execute return ErrConnection once that
	// many calls have succeeded. Used to exercise mid-export failures.
	FailAfter int
	// RejectAuth makes every Execute fail with ErrAuth.
	RejectAuth bool

	calls int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		nodes: make(map[int64]*node),
		rels:  make(map[int64]*rel),
	}
}

// Seed inserts a node directly, bypassing the query path. Test setup only.
func (s *Store) Seed(labels []string, props graph.Properties) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNode(labels, props)
}

// SeedRelationship inserts a relationship directly. Test setup only.
func (s *Store) SeedRelationship(start, end int64, relType string, props graph.Properties) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addRel(start, end, relType, props)
}

func (s *Store) addNode(labels []string, props graph.Properties) int64 {
	s.nextID++
	if props == nil {
		props = graph.Properties{}
	}
	s.nodes[s.nextID] = &node{id: s.nextID, labels: append([]string(nil), labels...), props: props}
	return s.nextID
}

func (s *Store) addRel(start, end int64, relType string, props graph.Properties) int64 {
	s.nextID++
	if props == nil {
		props = graph.Properties{}
	}
	s.rels[s.nextID] = &rel{id: s.nextID, start: start, end: end, relType: relType, props: props}
	return s.nextID
}

// NodeCount reports the live node count. Test assertion helper.
func (s *Store) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// RelationshipCount reports the live relationship count.
func (s *Store) RelationshipCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rels)
}

// NodeLabels returns the label set of a node, or nil if absent.
func (s *Store) NodeLabels(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.labels...)
}

// Execute interprets the engine's query templates against the in-memory
// state. Unknown templates fail with ErrQuery, the way a store rejects a
// malformed statement.
func (s *Store) Execute(
	ctx context.Context,
	query string,
	params map[string]interface{},
) ([]gateway.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrConnection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.RejectAuth {
		return nil, fmt.Errorf("%w: access denied", gateway.ErrAuth)
	}
	if s.FailAfter > 0 && s.calls >= s.FailAfter {
		return nil, fmt.Errorf("%w: injected failure", gateway.ErrConnection)
	}
	s.calls++

	switch query {
	case gateway.QueryPing:
		return []gateway.Record{{"ok": int64(1)}}, nil

	case gateway.QueryNodeCount:
		return []gateway.Record{{"count": int64(len(s.nodes))}}, nil

	case gateway.QueryRelationshipCount:
		return []gateway.Record{{"count": int64(len(s.rels))}}, nil

	case gateway.QueryNodePage:
		skip, limit, err := pageParams(params)
		if err != nil {
			return nil, err
		}
		ids := s.sortedNodeIDs()
		var out []gateway.Record
		for _, id := range paginate(ids, skip, limit) {
			n := s.nodes[id]
			out = append(out, gateway.Record{
				"id":     n.id,
				"labels": append([]string(nil), n.labels...),
				"props":  n.props,
			})
		}
		return out, nil

	case gateway.QueryRelationshipPage:
		skip, limit, err := pageParams(params)
		if err != nil {
			return nil, err
		}
		ids := s.sortedRelIDs()
		var out []gateway.Record
		for _, id := range paginate(ids, skip, limit) {
			r := s.rels[id]
			out = append(out, gateway.Record{
				"id":    r.id,
				"start": r.start,
				"end":   r.end,
				"type":  r.relType,
				"props": r.props,
			})
		}
		return out, nil

	case gateway.QueryLabelHistogram:
		hist := make(map[string]int64)
		for _, n := range s.nodes {
			for _, l := range n.labels {
				hist[l]++
			}
		}
		return histogramRecords(hist, "label"), nil

	case gateway.QueryTypeHistogram:
		hist := make(map[string]int64)
		for _, r := range s.rels {
			hist[r.relType]++
		}
		return histogramRecords(hist, "type"), nil

	case gateway.QueryDeleteRelationships:
		s.rels = make(map[int64]*rel)
		return nil, nil

	case gateway.QueryDeleteNodes:
		if len(s.rels) > 0 {
			return nil, fmt.Errorf("%w: cannot delete nodes with relationships", gateway.ErrQuery)
		}
		s.nodes = make(map[int64]*node)
		return nil, nil
	}

	if m := createNodeRe.FindStringSubmatch(query); m != nil {
		var labels []string
		if m[1] != "" {
			labels = strings.Split(strings.TrimPrefix(m[1], ":"), ":")
		}
		props, _ := params["props"].(map[string]interface{})
		id := s.addNode(labels, graph.Properties(props))
		return []gateway.Record{{"id": id}}, nil
	}

	if m := createRelRe.FindStringSubmatch(query); m != nil {
		start, err := asID(params["start"])
		if err != nil {
			return nil, err
		}
		end, err := asID(params["end"])
		if err != nil {
			return nil, err
		}
		if _, ok := s.nodes[start]; !ok {
			return nil, fmt.Errorf("%w: start node %d not found", gateway.ErrQuery, start)
		}
		if _, ok := s.nodes[end]; !ok {
			return nil, fmt.Errorf("%w: end node %d not found", gateway.ErrQuery, end)
		}
		props, _ := params["props"].(map[string]interface{})
		id := s.addRel(start, end, m[1], graph.Properties(props))
		return []gateway.Record{{"id": id}}, nil
	}

	return nil, fmt.Errorf("%w: unrecognized statement", gateway.ErrQuery)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) sortedNodeIDs() []int64 {
	ids := make([]int64, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) sortedRelIDs() []int64 {
	ids := make([]int64, 0, len(s.rels))
	for id := range s.rels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func paginate(ids []int64, skip, limit int) []int64 {
	if skip >= len(ids) {
		return nil
	}
	end := skip + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[skip:end]
}

func pageParams(params map[string]interface{}) (skip, limit int, err error) {
	s, err := asID(params["skip"])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad skip parameter", gateway.ErrQuery)
	}
	l, err := asID(params["limit"])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad limit parameter", gateway.ErrQuery)
	}
	return int(s), int(l), nil
}

func asID(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: non-numeric identifier %v", gateway.ErrQuery, v)
}

func histogramRecords(hist map[string]int64, keyName string) []gateway.Record {
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if hist[keys[i]] != hist[keys[j]] {
			return hist[keys[i]] > hist[keys[j]]
		}
		return keys[i] < keys[j]
	})
	out := make([]gateway.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, gateway.Record{keyName: k, "count": hist[k]})
	}
	return out
}

var _ gateway.Gateway = (*Store)(nil)

package gateway

import (
	"fmt"
	"strings"

	"github.com/graphvault/graphvault/pkg/graph"
)

// Query templates issued by the exporter and the restore engine. Pages are
// ordered by the store's internal identifier so one export run is stable;
// the order has no further meaning.
const (
	QueryPing = "RETURN 1 AS ok"

	QueryNodePage = "MATCH (n) RETURN id(n) AS id, labels(n) AS labels, " +
		"properties(n) AS props ORDER BY id(n) SKIP $skip LIMIT $limit"

	QueryRelationshipPage = "MATCH (a)-[r]->(b) RETURN id(r) AS id, " +
		"id(a) AS start, id(b) AS end, type(r) AS type, " +
		"properties(r) AS props ORDER BY id(r) SKIP $skip LIMIT $limit"

	QueryNodeCount         = "MATCH (n) RETURN count(n) AS count"
	QueryRelationshipCount = "MATCH ()-[r]->() RETURN count(r) AS count"

	QueryLabelHistogram = "MATCH (n) UNWIND labels(n) AS label " +
		"RETURN label, count(n) AS count"
	QueryTypeHistogram = "MATCH ()-[r]->() RETURN type(r) AS type, " +
		"count(r) AS count"

	QueryDeleteRelationships = "MATCH ()-[r]->() DELETE r"
	QueryDeleteNodes         = "MATCH (n) DELETE n"
)

// CreateNodeQuery builds the node-creation template for a validated label
// set. The labels are the only interpolated tokens; properties travel via
// the $props parameter.
func CreateNodeQuery(labels []graph.SafeLabel) string {
	var b strings.Builder
	b.WriteString("CREATE (n")
	for _, l := range labels {
		b.WriteString(":")
		b.WriteString(string(l))
	}
	b.WriteString(") SET n = $props RETURN id(n) AS id")
	return b.String()
}

// CreateRelationshipQuery builds the relationship-creation template for a
// validated type. Endpoints and properties travel via parameters.
func CreateRelationshipQuery(relType graph.SafeType) string {
	return fmt.Sprintf(
		"MATCH (a) WHERE id(a) = $start MATCH (b) WHERE id(b) = $end "+
			"CREATE (a)-[r:%s]->(b) SET r = $props RETURN id(r) AS id",
		string(relType))
}

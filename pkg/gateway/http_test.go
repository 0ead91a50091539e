package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphvault/graphvault/pkg/gateway"
	"github.com/graphvault/graphvault/pkg/graph"
)

func TestHTTPGateway_Execute(t *testing.T) {
	var gotPath string
	var gotAuth bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "neo4j" && pass == "secret"

		var req struct {
			Statements []struct {
				Statement  string                 `json:"statement"`
				Parameters map[string]interface{} `json:"parameters"`
			} `json:"statements"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Statements, 1)
		assert.Equal(t, gateway.QueryNodeCount, req.Statements[0].Statement)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{
				"columns": []string{"count"},
				"data":    []map[string]interface{}{{"row": []interface{}{12}}},
			}},
			"errors": []interface{}{},
		})
	}))
	defer srv.Close()

	gw := gateway.NewHTTPGateway(gateway.Config{
		URI:      srv.URL,
		Username: "neo4j",
		Password: "secret",
		Database: "memories",
	}, nil)

	records, err := gw.Execute(context.Background(), gateway.QueryNodeCount, nil)
	require.NoError(t, err)

	assert.Equal(t, "/db/memories/tx/commit", gotPath)
	assert.True(t, gotAuth)
	require.Len(t, records, 1)
	assert.Equal(t, float64(12), records[0]["count"])
}

func TestHTTPGateway_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	gw := gateway.NewHTTPGateway(gateway.Config{URI: srv.URL, Password: "wrong"}, nil)

	_, err := gw.Execute(context.Background(), gateway.QueryPing, nil)
	assert.ErrorIs(t, err, gateway.ErrAuth)
}

func TestHTTPGateway_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gw := gateway.NewHTTPGateway(gateway.Config{URI: srv.URL}, nil)

	_, err := gw.Execute(context.Background(), gateway.QueryPing, nil)
	assert.ErrorIs(t, err, gateway.ErrConnection)
}

func TestHTTPGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	gw := gateway.NewHTTPGateway(gateway.Config{URI: srv.URL}, nil)

	_, err := gw.Execute(context.Background(), gateway.QueryPing, nil)
	assert.ErrorIs(t, err, gateway.ErrConnection)
}

func TestHTTPGateway_StoreErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		code string
		want error
	}{
		{"syntax error", "Neo.ClientError.Statement.SyntaxError", gateway.ErrQuery},
		{"unauthorized", "Neo.ClientError.Security.Unauthorized", gateway.ErrAuth},
		{"rate limited", "Neo.ClientError.Security.AuthenticationRateLimit", gateway.ErrAuth},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"results": []interface{}{},
					"errors": []map[string]string{{
						"code":    tc.code,
						"message": "rejected",
					}},
				})
			}))
			defer srv.Close()

			gw := gateway.NewHTTPGateway(gateway.Config{URI: srv.URL}, nil)
			_, err := gw.Execute(context.Background(), gateway.QueryPing, nil)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateNodeQuery(t *testing.T) {
	q := gateway.CreateNodeQuery([]graph.SafeLabel{"Learning", "Memory"})
	assert.Equal(t, "CREATE (n:Learning:Memory) SET n = $props RETURN id(n) AS id", q)

	q = gateway.CreateNodeQuery(nil)
	assert.Equal(t, "CREATE (n) SET n = $props RETURN id(n) AS id", q)
}

func TestCreateRelationshipQuery(t *testing.T) {
	q := gateway.CreateRelationshipQuery(graph.SafeType("RELATED_TO"))
	assert.Equal(t,
		"MATCH (a) WHERE id(a) = $start MATCH (b) WHERE id(b) = $end "+
			"CREATE (a)-[r:RELATED_TO]->(b) SET r = $props RETURN id(r) AS id", q)
}

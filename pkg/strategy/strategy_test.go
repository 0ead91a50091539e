package strategy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphvault/graphvault/internal/memgraph"
	"github.com/graphvault/graphvault/pkg/gateway"
	"github.com/graphvault/graphvault/pkg/graph"
	"github.com/graphvault/graphvault/pkg/strategy"
)

type stubStrategy struct {
	name  string
	snap  *graph.Snapshot
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) AttemptExport(ctx context.Context) (*graph.Snapshot, error) {
	s.calls++
	return s.snap, s.err
}

func TestChain_FirstStrategyWins(t *testing.T) {
	first := &stubStrategy{name: "direct", snap: &graph.Snapshot{}}
	second := &stubStrategy{name: "managed", snap: &graph.Snapshot{}}

	chain := strategy.NewChain(nil, first, second)
	_, method, err := chain.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "direct", method)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls, "later strategies must not run after a success")
}

func TestChain_AdvancesOnFailure(t *testing.T) {
	first := &stubStrategy{name: "direct", err: errors.New("down")}
	second := &stubStrategy{name: "managed", snap: &graph.Snapshot{}}

	chain := strategy.NewChain(nil, first, second)
	_, method, err := chain.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "managed", method)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestChain_Exhausted(t *testing.T) {
	first := &stubStrategy{name: "direct", err: errors.New("down")}
	second := &stubStrategy{name: "managed", err: errors.New("also down")}

	chain := strategy.NewChain(nil, first, second)
	_, _, err := chain.Run(context.Background())

	var exhausted *strategy.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, "direct", exhausted.Attempts[0].Strategy)
	assert.Equal(t, "managed", exhausted.Attempts[1].Strategy)
	assert.Contains(t, err.Error(), "also down")
}

func TestChain_Cancellation(t *testing.T) {
	first := &stubStrategy{name: "direct", snap: &graph.Snapshot{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := strategy.NewChain(nil, first)
	_, _, err := chain.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, first.calls)
}

func TestQueryStrategy_FullExport(t *testing.T) {
	store := memgraph.New()
	a := store.Seed([]string{"Memory"}, nil)
	b := store.Seed([]string{"Learning"}, nil)
	store.SeedRelationship(a, b, "RELATED_TO", nil)

	direct := strategy.NewDirect(store, 100, nil)
	assert.Equal(t, strategy.MethodDirect, direct.Name())

	snap, err := direct.AttemptExport(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Relationships, 1)
	assert.False(t, snap.StatsOnly)
}

func TestQueryStrategy_FailsWhenStoreDown(t *testing.T) {
	store := memgraph.New()
	store.RejectAuth = true

	direct := strategy.NewDirect(store, 100, nil)
	_, err := direct.AttemptExport(context.Background())
	assert.ErrorIs(t, err, gateway.ErrAuth)
}

func TestQueryStrategy_NoGateway(t *testing.T) {
	managed := strategy.NewManaged(nil, 100, nil)
	assert.Equal(t, strategy.MethodManaged, managed.Name())

	_, err := managed.AttemptExport(context.Background())
	assert.ErrorIs(t, err, gateway.ErrConnection)
}

func TestMinimalStrategy_StatsOnly(t *testing.T) {
	store := memgraph.New()
	store.Seed([]string{"Memory"}, nil)
	store.Seed([]string{"Memory"}, nil)

	minimal := strategy.NewMinimal(store, nil)
	assert.Equal(t, strategy.MethodMinimal, minimal.Name())

	snap, err := minimal.AttemptExport(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.StatsOnly)
	assert.Empty(t, snap.Nodes)
	assert.Equal(t, 2, snap.Statistics.TotalNodes)
}

func TestMinimalStrategy_NeverFails(t *testing.T) {
	store := memgraph.New()
	store.RejectAuth = true

	minimal := strategy.NewMinimal(store, nil)
	snap, err := minimal.AttemptExport(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.StatsOnly)
	assert.Zero(t, snap.Statistics.TotalNodes)

	// Even without a gateway at all.
	minimal = strategy.NewMinimal(nil, nil)
	snap, err = minimal.AttemptExport(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.StatsOnly)
}

func TestChain_FallsThroughToMinimal(t *testing.T) {
	store := memgraph.New()
	store.Seed([]string{"Memory"}, nil)
	store.RejectAuth = true

	chain := strategy.NewChain(nil,
		strategy.NewDirect(store, 100, nil),
		strategy.NewManaged(store, 100, nil),
		strategy.NewMinimal(store, nil),
	)

	snap, method, err := chain.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strategy.MethodMinimal, method)
	assert.True(t, snap.StatsOnly)
}

package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphvault/graphvault/pkg/graph"
)

func TestAllowList_Label(t *testing.T) {
	allow := graph.DefaultAllowList()

	safe, err := allow.Label("Learning")
	require.NoError(t, err)
	assert.Equal(t, graph.SafeLabel("Learning"), safe)

	_, err = allow.Label("Person")
	assert.ErrorIs(t, err, graph.ErrValidation)
}

func TestAllowList_RejectsMalformedTokens(t *testing.T) {
	allow := graph.DefaultAllowList()

	malformed := []string{
		"",
		"123Label",
		"Label Name",
		"Label) DETACH DELETE (n",
		"Label`:Admin",
		"Label;",
	}
	for _, raw := range malformed {
		_, err := allow.Label(raw)
		assert.ErrorIs(t, err, graph.ErrValidation, "label %q", raw)
	}
}

func TestAllowList_InjectionShapedTokenNeverPasses(t *testing.T) {
	// A token that is a valid identifier but simply not allow-listed must
	// fail the same way an obviously hostile one does.
	allow := graph.NewAllowList([]string{"Memory"}, []string{"RELATED_TO"})

	_, err := allow.Label("DROP_ALL")
	assert.ErrorIs(t, err, graph.ErrValidation)

	_, err = allow.RelType("MATCH_AND_DELETE")
	assert.ErrorIs(t, err, graph.ErrValidation)
}

func TestAllowList_Labels_PreservesOrder(t *testing.T) {
	allow := graph.DefaultAllowList()

	safe, err := allow.Labels([]string{"Pattern", "Knowledge"})
	require.NoError(t, err)
	assert.Equal(t, []graph.SafeLabel{"Pattern", "Knowledge"}, safe)

	_, err = allow.Labels([]string{"Pattern", "Intruder"})
	assert.ErrorIs(t, err, graph.ErrValidation)
}

func TestAllowList_RelType(t *testing.T) {
	allow := graph.DefaultAllowList()

	safe, err := allow.RelType("SUPERSEDES")
	require.NoError(t, err)
	assert.Equal(t, graph.SafeType("SUPERSEDES"), safe)

	_, err = allow.RelType("KNOWS")
	assert.ErrorIs(t, err, graph.ErrValidation)
}

func TestAllowList_KnownLabels_Sorted(t *testing.T) {
	allow := graph.NewAllowList([]string{"Zeta", "Alpha", "Mid"}, nil)
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, allow.KnownLabels())
}

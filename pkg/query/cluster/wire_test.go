package cluster

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireNodeUnmarshalAcceptsParallelKey(t *testing.T) {
	var n WireNode
	require.NoError(t, json.Unmarshal([]byte(`{"server":"s1","parallel":true}`), &n))
	assert.True(t, n.Parallel)
}

func TestWireNodeUnmarshalAcceptsLegacyParellelismKey(t *testing.T) {
	var n WireNode
	require.NoError(t, json.Unmarshal([]byte(`{"server":"s1","parellelism":true}`), &n))
	assert.True(t, n.Parallel, "the legacy misspelled key must still set Parallel")
}

func TestWireNodeUnmarshalPrefersParallelOverLegacyKey(t *testing.T) {
	var n WireNode
	require.NoError(t, json.Unmarshal([]byte(`{"server":"s1","parallel":false,"parellelism":true}`), &n))
	assert.False(t, n.Parallel, "an explicit \"parallel\" key wins over the legacy spelling")
}

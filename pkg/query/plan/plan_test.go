package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArenaLinkAndWalkOrder(t *testing.T) {
	a := NewArena()
	enum := a.New(NodeEnumerateCollection)
	enum.Collection = "orders"
	filter := a.New(NodeFilter)
	a.Link(enum, filter)

	var visited []NodeType
	a.Walk(filter, func(n *Node) { visited = append(visited, n.Type) })

	assert.Equal(t, []NodeType{NodeEnumerateCollection, NodeFilter}, visited)
}

func TestGatherParallelizableInvariant(t *testing.T) {
	a := NewArena()
	enum := a.New(NodeEnumerateCollection)
	gather := a.New(NodeGather)
	a.Link(enum, gather)
	assert.True(t, a.IsParallelizable(gather))

	mod := a.New(NodeModification)
	a.Link(mod, gather)
	assert.False(t, a.IsParallelizable(gather))
}

func TestRegisterPlanAssignsOncePerVariable(t *testing.T) {
	p := NewRegisterPlan()
	v := Variable{ID: 1, Name: "doc"}

	reg1 := p.Assign(v)
	reg2 := p.Assign(v)
	assert.Equal(t, reg1, reg2)
	assert.Equal(t, 1, p.NumRegisters())

	other := Variable{ID: 2, Name: "x"}
	reg3 := p.Assign(other)
	assert.NotEqual(t, reg1, reg3)
	assert.Equal(t, 2, p.NumRegisters())
}

func TestPropertiesForKnownNodeType(t *testing.T) {
	props := PropertiesFor(NodeFilter)
	assert.True(t, props.PreservesOrder)
	assert.True(t, props.AllowsBlockPassthrough)
}

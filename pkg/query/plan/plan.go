// Package plan defines the execution-plan node model: a per-query arena of
// tagged-variant nodes forming a DAG, plus the register plan that assigns
// each variable a fixed slot in the row/block model (package row).
//
// Node types are represented as tagged variants rather than a class
// hierarchy: a single Node struct carries a NodeType discriminator and the
// handful of fields relevant to that type, with a shared visitor surface
// (Properties, VariablesUsedHere, VariablesSetHere, EstimateCost) resolved
// by table lookup on the tag instead of dynamic dispatch.
package plan

import (
	"fmt"

	"github.com/cuemby/nexusdb/pkg/query/row"
)

// NodeType discriminates the execution-node variants.
type NodeType int

const (
	NodeEnumerateCollection NodeType = iota
	NodeIndexScan
	NodeFilter
	NodeCalculation
	NodeSort
	NodeLimit
	NodeSubqueryStart
	NodeSubqueryEnd
	NodeGather
	NodeScatter
	NodeDistribute
	NodeRemote
	NodeModification
)

func (t NodeType) String() string {
	switch t {
	case NodeEnumerateCollection:
		return "EnumerateCollection"
	case NodeIndexScan:
		return "Index"
	case NodeFilter:
		return "Filter"
	case NodeCalculation:
		return "Calculation"
	case NodeSort:
		return "Sort"
	case NodeLimit:
		return "Limit"
	case NodeSubqueryStart:
		return "SubqueryStart"
	case NodeSubqueryEnd:
		return "SubqueryEnd"
	case NodeGather:
		return "Gather"
	case NodeScatter:
		return "Scatter"
	case NodeDistribute:
		return "Distribute"
	case NodeRemote:
		return "Remote"
	case NodeModification:
		return "Modification"
	default:
		return "Unknown"
	}
}

// Variable names a value flowing through the plan; it is assigned exactly
// one register by the RegisterPlan.
type Variable struct {
	ID   int
	Name string
}

// Properties are the three compile-time properties every executor declares.
type Properties struct {
	PreservesOrder                bool
	AllowsBlockPassthrough        bool
	InputSizeRestrictsOutputSize  bool
}

// propertiesTable resolves a NodeType's Properties by table lookup, the
// capability-pack mechanism called out for a language without open-ended
// dynamic dispatch.
var propertiesTable = map[NodeType]Properties{
	NodeEnumerateCollection: {PreservesOrder: false, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeIndexScan:           {PreservesOrder: true, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeFilter:              {PreservesOrder: true, AllowsBlockPassthrough: true, InputSizeRestrictsOutputSize: true},
	NodeCalculation:         {PreservesOrder: true, AllowsBlockPassthrough: true, InputSizeRestrictsOutputSize: false},
	NodeSort:                {PreservesOrder: false, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeLimit:               {PreservesOrder: true, AllowsBlockPassthrough: true, InputSizeRestrictsOutputSize: true},
	NodeSubqueryStart:       {PreservesOrder: true, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeSubqueryEnd:         {PreservesOrder: true, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeGather:              {PreservesOrder: false, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeScatter:             {PreservesOrder: false, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeDistribute:          {PreservesOrder: false, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeRemote:              {PreservesOrder: true, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
	NodeModification:        {PreservesOrder: true, AllowsBlockPassthrough: false, InputSizeRestrictsOutputSize: false},
}

// PropertiesFor returns the declared Properties for t.
func PropertiesFor(t NodeType) Properties { return propertiesTable[t] }

// GatherMode selects GatherNode's merge strategy.
type GatherMode int

const (
	GatherUnsorted GatherMode = iota
	GatherSorting
)

// SortMode selects how a sorting GatherNode merges upstream heads.
type SortMode int

const (
	SortModeMinElement SortMode = iota
	SortModeHeap
)

// SortElement names one key of a sort specification.
type SortElement struct {
	Register   row.RegisterID
	Ascending  bool
}

// Node is a tagged-variant execution-plan node. Only the fields relevant to
// Type are meaningful; the arena owns the node's lifetime and parent/child
// links are expressed as ids within it, collapsing the DAG's lifetime to
// the arena's.
type Node struct {
	id           int
	Type         NodeType
	Dependencies []int // child node ids, closer to the data source
	Parent       int   // -1 if root
	VarsUsed     []Variable
	VarsSet      []Variable

	// EnumerateCollection / Index
	Database   string
	Collection string
	IndexID    uint64

	// Filter / Calculation
	Expr any // *expr.Node, kept as any to avoid an import cycle with package expr

	// Sort
	SortSpec []SortElement

	// Limit
	Offset, Limit int

	// Subquery
	SubqueryDepth int

	// Gather
	GatherMode           GatherMode
	GatherSort           []SortElement
	SortMode             SortMode
	ConstrainedSortLimit int

	// Scatter
	ScatterClients []string

	// Distribute
	DistributeVar    Variable
	DistributeAltVar *Variable
	CreateKeys       bool
	StrictMode       bool

	// Remote
	RemoteServer       string
	RemoteQueryID      string
	RemoteDatabase     string
	RemoteDistributeID string

	// Modification
	ModificationOp string // insert, update, replace, remove, truncate
}

// ID returns the node's arena-assigned id.
func (n *Node) ID() int { return n.id }

// Properties returns n's declared Properties via table lookup on its Type.
func (n *Node) Properties() Properties { return PropertiesFor(n.Type) }

// VariablesUsedHere returns the variables this node reads.
func (n *Node) VariablesUsedHere() []Variable { return n.VarsUsed }

// VariablesSetHere returns the variables this node defines.
func (n *Node) VariablesSetHere() []Variable { return n.VarsSet }

// Arena owns every node of a single query's plan, indexed by id; this is
// the language-neutral substitute for an owning pointer graph with cyclic
// parent/child references.
type Arena struct {
	nodes []*Node
}

// NewArena creates an empty plan arena.
func NewArena() *Arena { return &Arena{} }

// New allocates a node of the given type, returning it with its id already
// assigned. Dependencies/Parent must be wired by the caller via node ids.
func (a *Arena) New(t NodeType) *Node {
	n := &Node{id: len(a.nodes), Type: t, Parent: -1}
	a.nodes = append(a.nodes, n)
	return n
}

// Get looks up a node by id.
func (a *Arena) Get(id int) *Node {
	if id < 0 || id >= len(a.nodes) {
		return nil
	}
	return a.nodes[id]
}

// Link records that child depends on (reads from) parent, the plan-tree
// edge direction, and sets parent's Parent back-reference to child.
func (a *Arena) Link(parent, child *Node) {
	child.Dependencies = append(child.Dependencies, parent.id)
	parent.Parent = child.id
}

// Walk visits every node reachable from root in dependency (leaf-first)
// order, calling visit once per node.
func (a *Arena) Walk(root *Node, visit func(*Node)) {
	seen := make(map[int]bool)
	var rec func(*Node)
	rec = func(n *Node) {
		if n == nil || seen[n.id] {
			return
		}
		seen[n.id] = true
		for _, depID := range n.Dependencies {
			rec(a.Get(depID))
		}
		visit(n)
	}
	rec(root)
}

// IsParallelizable implements the GatherNode parallelism invariant: a
// GatherNode is parallelizable iff no descendant is a modification node,
// scatter, distribute, or another gather.
func (a *Arena) IsParallelizable(gather *Node) bool {
	if gather.Type != NodeGather {
		return false
	}
	parallelizable := true
	for _, depID := range gather.Dependencies {
		a.Walk(a.Get(depID), func(n *Node) {
			switch n.Type {
			case NodeModification, NodeScatter, NodeDistribute, NodeGather:
				parallelizable = false
			}
		})
	}
	return parallelizable
}

// RegisterPlan assigns every Variable a fixed RegisterID, scoped to a
// single query's arena. Registers are never reused across variables within
// the same plan, matching the write-once-per-(row, register) discipline
// upstream in package row.
type RegisterPlan struct {
	byVariable map[int]row.RegisterID
	next       row.RegisterID
}

// NewRegisterPlan creates an empty register plan.
func NewRegisterPlan() *RegisterPlan {
	return &RegisterPlan{byVariable: make(map[int]row.RegisterID)}
}

// Assign gives v a fresh register if it does not already have one, and
// returns it either way.
func (p *RegisterPlan) Assign(v Variable) row.RegisterID {
	if reg, ok := p.byVariable[v.ID]; ok {
		return reg
	}
	reg := p.next
	p.byVariable[v.ID] = reg
	p.next++
	return reg
}

// RegisterFor looks up v's register without assigning one.
func (p *RegisterPlan) RegisterFor(v Variable) (row.RegisterID, bool) {
	reg, ok := p.byVariable[v.ID]
	return reg, ok
}

// NumRegisters returns the total register width of the plan so far.
func (p *RegisterPlan) NumRegisters() int { return int(p.next) }

// AssignAllFrom walks the arena from root and assigns registers to every
// variable referenced or defined by any visited node, in dependency order.
func AssignAllFrom(a *Arena, root *Node) *RegisterPlan {
	p := NewRegisterPlan()
	a.Walk(root, func(n *Node) {
		for _, v := range n.VarsUsed {
			p.Assign(v)
		}
		for _, v := range n.VarsSet {
			p.Assign(v)
		}
	})
	return p
}

// Describe renders a short human-readable summary of a node, used by
// logging and tests rather than full plan serialization.
func (n *Node) Describe() string {
	switch n.Type {
	case NodeEnumerateCollection:
		return fmt.Sprintf("EnumerateCollection(%s)", n.Collection)
	case NodeIndexScan:
		return fmt.Sprintf("Index(%s, index=%d)", n.Collection, n.IndexID)
	case NodeRemote:
		return fmt.Sprintf("Remote(server=%s, query=%s, distribute=%s)", n.RemoteServer, n.RemoteQueryID, n.RemoteDistributeID)
	default:
		return n.Type.String()
	}
}

// Copyright 2021, Square, Inc.

// Package compose builds composition graphs. A Node pairs a function (or a
// fan-out group of functions) with rendering options and an ordered list of
// downstream nodes. Edges are added with Then, ThenAll and ThenAny:
//
//	hello.Then(bye).Then(double)              // hello -> bye -> double
//	sayHello.ThenAll(shape, animal).Then(noop) // fail-fast fan-out
//	food.ThenAny(console, oops).Then(noop)     // fail-soft fan-out
//
// Building a graph never checks it for cycles; that happens once, when the
// graph is rendered (package render).
package compose

import (
	"context"
	"fmt"
	"strings"

	oerr "github.com/square/orkestra/errors"
)

// Func is a unit of work. event is the decoded workflow input for the step,
// and the returned value becomes the input of the next step.
type Func func(ctx context.Context, event interface{}) (interface{}, error)

// Kind is the shape of a node's payload.
type Kind byte

const (
	Single   Kind = iota // one function
	FailFast             // ordered group; any failed branch fails the workflow
	FailSoft             // group whose branch failures are caught and passed through
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case FailFast:
		return "fail-fast"
	case FailSoft:
		return "fail-soft"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Node is a vertex in a composition graph. Its payload and config are fixed at
// construction; only its downstream edges change, and only through Then,
// ThenAll and ThenAny. A Node is not safe for concurrent graph building.
type Node struct {
	kind    Kind
	fn      Func    // Single only
	ref     FuncRef // Single only
	members []*Node // FailFast and FailSoft only, never empty

	cfg        Config
	downstream []*Node
}

// New wraps fn in a Node with no downstream edges. It returns a
// errors.ConfigConflict if the options conflict, and errors.NotCallable if
// fn is nil.
func New(fn Func, opts ...Option) (*Node, error) {
	if fn == nil {
		return nil, oerr.NotCallable{Node: "<nil>"}
	}
	n := &Node{
		kind: Single,
		fn:   fn,
		ref:  RefOf(fn),
		cfg:  newConfig(opts),
	}
	if err := n.cfg.validate(n.Name(), n.kind); err != nil {
		return nil, err
	}
	return n, nil
}

// Must is like New but panics on error. It simplifies package-level graph
// declarations.
func Must(fn Func, opts ...Option) *Node {
	n, err := New(fn, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

// NewGroup creates a fan-out node of the given kind. members must be non-empty
// and every member must wrap a single function; a group nested in a group
// returns errors.NotCallable.
func NewGroup(kind Kind, members []*Node, opts ...Option) (*Node, error) {
	if kind != FailFast && kind != FailSoft {
		return nil, fmt.Errorf("invalid group kind: %s", kind)
	}
	n := &Node{
		kind:    kind,
		members: make([]*Node, 0, len(members)),
		cfg:     newConfig(opts),
	}
	for i, m := range members {
		if m == nil {
			return nil, fmt.Errorf("group member %d is nil", i)
		}
		if m.kind != Single {
			return nil, oerr.NotCallable{Node: m.Name()}
		}
		n.members = append(n.members, m)
	}
	if len(n.members) == 0 {
		return nil, oerr.NewConfigConflict(n.Name(), "a fan-out group needs at least one member")
	}
	if err := n.cfg.validate(n.Name(), n.kind); err != nil {
		return nil, err
	}
	return n, nil
}

// All groups nodes into a FailFast fan-out whose branches run in parallel; if
// any branch fails, the whole workflow fails. It panics if a member is a group.
func All(first *Node, rest ...*Node) *Node {
	return mustGroup(FailFast, first, rest)
}

// Any groups nodes into a FailSoft fan-out whose branches run in parallel; a
// failed branch is caught and passed through, so the group always succeeds
// and downstream nodes always run. It panics if a member is a group.
func Any(first *Node, rest ...*Node) *Node {
	return mustGroup(FailSoft, first, rest)
}

func mustGroup(kind Kind, first *Node, rest []*Node) *Node {
	n, err := NewGroup(kind, append([]*Node{first}, rest...))
	if err != nil {
		panic(err)
	}
	return n
}

// Then adds an edge n -> next and returns next, so calls chain left to right:
// a.Then(b).Then(c) is the linear chain a -> b -> c. Then may be called
// several times on one node; each call adds another downstream edge.
func (n *Node) Then(next *Node) *Node {
	if next == nil {
		panic(fmt.Sprintf("compose: %s.Then called with a nil node", n.Name()))
	}
	n.downstream = append(n.downstream, next)
	return next
}

// ThenAll wraps the given nodes in a new FailFast group, adds an edge to it,
// and returns the group.
func (n *Node) ThenAll(first *Node, rest ...*Node) *Node {
	return n.Then(All(first, rest...))
}

// ThenAny wraps the given nodes in a new FailSoft group, adds an edge to it,
// and returns the group.
func (n *Node) ThenAny(first *Node, rest ...*Node) *Node {
	return n.Then(Any(first, rest...))
}

// Call invokes the wrapped function directly: locally, synchronously, and
// without touching the graph. Calling a group returns errors.NotCallable.
func (n *Node) Call(ctx context.Context, event interface{}) (interface{}, error) {
	if n.kind != Single {
		return nil, oerr.NotCallable{Node: n.Name()}
	}
	return n.fn(ctx, event)
}

// Func returns n.Call as a Func so a composed node can be used wherever a
// plain function is expected.
func (n *Node) Func() Func {
	return n.Call
}

// Name returns the Name option if set, else the function name for a single
// node, else a name listing the members of a group.
func (n *Node) Name() string {
	if n.cfg.Name != "" {
		return n.cfg.Name
	}
	if n.kind == Single {
		return n.ref.Short()
	}
	names := make([]string, len(n.members))
	for i, m := range n.members {
		names[i] = m.Name()
	}
	return "parallelize [" + strings.Join(names, ", ") + "]"
}

func (n *Node) Kind() Kind     { return n.kind }
func (n *Node) Ref() FuncRef   { return n.ref }
func (n *Node) Config() Config { return n.cfg.copy() }

// Members returns a copy of a group's members. It is nil for a single node.
func (n *Node) Members() []*Node {
	if n.members == nil {
		return nil
	}
	return append([]*Node(nil), n.members...)
}

// Downstream returns a copy of n's downstream nodes in the order they were added.
func (n *Node) Downstream() []*Node {
	return append([]*Node(nil), n.downstream...)
}

func (n *Node) String() string {
	return fmt.Sprintf("Node(name=%s, kind=%s, map_job=%t, len_downstream=%d)",
		n.Name(), n.kind, n.cfg.MapJob, len(n.downstream))
}

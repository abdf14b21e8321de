// Copyright 2021, Square, Inc.

// Package errors provides errors reported to the user. All errors are raised
// at the point of misuse (node construction, direct call, or render) and none
// are retried. The messages are terse because they are reported in context,
// for example "synth: rendering workflow orders: ...".
package errors

import (
	"fmt"
	"strings"
)

var _ error = CompositionError{}

// CompositionError is returned when a composed graph has a path from a node
// back to itself. It is fatal to the synthesis run.
type CompositionError struct {
	Path []string // node names from the first repeated node back to itself
}

func (e CompositionError) Error() string {
	msg := "composition using the chain operator must be acyclic"
	if len(e.Path) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, strings.Join(e.Path, " -> "))
}

// --------------------------------------------------------------------------

var _ error = NotCallable{}

// NotCallable is returned when a fan-out group is called, or nested in another
// group, as if it were a single function. A group has no single calling
// convention.
type NotCallable struct {
	Node string
}

func (e NotCallable) Error() string {
	return fmt.Sprintf("%s is not callable", e.Node)
}

// --------------------------------------------------------------------------

var _ error = ConfigConflict{}

// ConfigConflict is returned when options given to a node are mutually
// exclusive or invalid together.
type ConfigConflict struct {
	Node    string
	Options []string
	Reason  string
}

func NewConfigConflict(node, reason string, options ...string) ConfigConflict {
	return ConfigConflict{
		Node:    node,
		Options: options,
		Reason:  reason,
	}
}

func (e ConfigConflict) Error() string {
	if len(e.Options) == 0 {
		return fmt.Sprintf("node %s: %s", e.Node, e.Reason)
	}
	return fmt.Sprintf("node %s: conflicting options %s: %s", e.Node, strings.Join(e.Options, ", "), e.Reason)
}

// --------------------------------------------------------------------------

var _ error = InvalidSchedule{}

type InvalidSchedule struct {
	Expression string
	Reason     string
}

func (e InvalidSchedule) Error() string {
	return fmt.Sprintf("invalid schedule expression %q: %s", e.Expression, e.Reason)
}

// --------------------------------------------------------------------------

var _ error = WorkflowNotFound{}

type WorkflowNotFound struct {
	Name string
}

func (e WorkflowNotFound) Error() string {
	return fmt.Sprintf("workflow %s not found", e.Name)
}

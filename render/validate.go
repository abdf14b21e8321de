// Copyright 2021, Square, Inc.

package render

import (
	"github.com/square/orkestra/compose"
	oerr "github.com/square/orkestra/errors"
)

// Validate returns an errors.CompositionError if any path from root leads back
// to a node already on the path. It declares nothing, so a cyclic graph is
// rejected before any resource exists.
//
// Diamonds (two paths reaching the same node) are not cycles.
func Validate(root *compose.Node) error {
	done := map[*compose.Node]bool{} // fully searched, no cycle below
	return cycleDFS(root, []*compose.Node{}, map[*compose.Node]bool{}, done)
}

func cycleDFS(n *compose.Node, path []*compose.Node, onPath, done map[*compose.Node]bool) error {
	if onPath[n] {
		return cycleError(path, n)
	}
	if done[n] {
		return nil
	}

	// Add n to the path
	onPath[n] = true
	path = append(path, n)

	for _, next := range n.Downstream() {
		if err := cycleDFS(next, path, onPath, done); err != nil {
			return err
		}
	}

	// Remove n from the path
	delete(onPath, n)
	done[n] = true
	return nil
}

// cycleError returns the cycle that n closes: the names on path from n's
// first occurrence, then n again.
func cycleError(path []*compose.Node, n *compose.Node) oerr.CompositionError {
	start := 0
	for i, p := range path {
		if p == n {
			start = i
			break
		}
	}
	names := make([]string, 0, len(path)-start+1)
	for _, p := range path[start:] {
		names = append(names, p.Name())
	}
	return oerr.CompositionError{Path: append(names, n.Name())}
}

// Copyright 2021, Square, Inc.

// Package render maps composition graphs onto workflow definitions. Each
// single node becomes a Task state backed by a compute resource, a group
// becomes a Parallel state with one branch per member, and a map job becomes a
// Map state. Downstream edges become next transitions.
//
// Names are allocated by a Session, one per synthesis run, so states and
// resources rendered from the same function in different places never
// collide.
package render

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/square/orkestra/compose"
	"github.com/square/orkestra/definition"
	oerr "github.com/square/orkestra/errors"
	"github.com/square/orkestra/id"
	"github.com/square/orkestra/schedule"
)

// Session holds the state of one synthesis run.
type Session struct {
	// ShareFunctions renders one compute resource per node instead of one
	// per occurrence. A node reached by two paths is still rendered as two
	// states.
	ShareFunctions bool

	names   id.Generator
	handles map[*compose.Node]definition.Handle
}

// Names makes the name generators of sessions: "double", "double_2", ...
var Names = id.NewGeneratorFactory("_")

// NewSession starts a synthesis run. Its names come from a new generator made
// by idf, so names restart with every session.
func NewSession(idf id.GeneratorFactory) *Session {
	return &Session{
		names:   idf.Make(),
		handles: map[*compose.Node]definition.Handle{},
	}
}

// Render renders the graph from root in a new session.
func Render(scope Scope, root *compose.Node) (definition.Chain, error) {
	return NewSession(Names).Render(scope, root)
}

// Publish renders the graph from root in a new session and publishes it as a
// workflow named name.
func Publish(scope Scope, root *compose.Node, name string) (Workflow, error) {
	return NewSession(Names).Publish(scope, root, WorkflowConfig{Name: name})
}

// BindSchedule publishes the graph from root as a workflow named name that is
// started on the rate or cron schedule expr.
func BindSchedule(scope Scope, root *compose.Node, name, expr string) (Workflow, error) {
	return NewSession(Names).BindSchedule(scope, root, WorkflowConfig{Name: name}, expr)
}

// BindEvents publishes the graph from root as a workflow named name that is
// started by events matching pattern.
func BindEvents(scope Scope, root *compose.Node, name string, pattern schedule.EventPattern) (Workflow, error) {
	return NewSession(Names).BindEvents(scope, root, WorkflowConfig{Name: name}, pattern)
}

// ScheduleFunction invokes the function of a single node directly on the rate
// or cron schedule expr, without a workflow.
func ScheduleFunction(scope Scope, n *compose.Node, expr string) (definition.Handle, error) {
	return NewSession(Names).ScheduleFunction(scope, n, expr)
}

// --------------------------------------------------------------------------

// Render validates the graph from root and renders it. It returns the chain
// that starts with root's state. Nothing is declared in scope if the graph
// has a cycle.
func (s *Session) Render(scope Scope, root *compose.Node) (definition.Chain, error) {
	if root == nil {
		return definition.Chain{}, fmt.Errorf("nil root node")
	}
	if err := Validate(root); err != nil {
		return definition.Chain{}, err
	}
	r := &renderer{
		session: s,
		scope:   scope,
	}
	return r.render(root, nil, []*compose.Node{})
}

// Publish renders the graph from root and publishes it as a workflow. The
// workflow type defaults to the root node's WorkflowType option.
func (s *Session) Publish(scope Scope, root *compose.Node, cfg WorkflowConfig) (Workflow, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("workflow has no name")
	}
	chain, err := s.Render(scope, root)
	if err != nil {
		return nil, err
	}
	doc, err := definition.Compile(chain, definition.Options{
		Comment: cfg.Comment,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %s", cfg.Name, err)
	}
	if cfg.Type == "" {
		cfg.Type = root.Config().WorkflowType
	}
	wf, err := scope.PublishWorkflow(cfg, doc)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"workflow": cfg.Name,
		"states":   len(doc.States),
		"handles":  len(doc.Handles()),
	}).Debug("published workflow")
	return wf, nil
}

func (s *Session) BindSchedule(scope Scope, root *compose.Node, cfg WorkflowConfig, expr string) (Workflow, error) {
	trigger, err := schedule.NewSchedule(cfg.Name+" schedule", expr)
	if err != nil {
		return nil, err
	}
	return s.bind(scope, root, cfg, trigger)
}

func (s *Session) BindEvents(scope Scope, root *compose.Node, cfg WorkflowConfig, pattern schedule.EventPattern) (Workflow, error) {
	trigger, err := schedule.NewEvents(cfg.Name+" events", pattern)
	if err != nil {
		return nil, err
	}
	return s.bind(scope, root, cfg, trigger)
}

func (s *Session) bind(scope Scope, root *compose.Node, cfg WorkflowConfig, trigger schedule.Trigger) (Workflow, error) {
	wf, err := s.Publish(scope, root, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := scope.BindTrigger(trigger, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *Session) ScheduleFunction(scope Scope, n *compose.Node, expr string) (definition.Handle, error) {
	if n.Kind() != compose.Single {
		return nil, oerr.NotCallable{Node: n.Name()}
	}
	trigger, err := schedule.NewSchedule(n.Name()+" schedule", expr)
	if err != nil {
		return nil, err
	}
	r := &renderer{session: s, scope: scope}
	fn, err := r.compute(n)
	if err != nil {
		return nil, err
	}
	return scope.BindTrigger(trigger, fn)
}

// --------------------------------------------------------------------------

type renderer struct {
	session *Session
	scope   Scope
}

// render renders n, chains it after previous (if any), and renders n's
// downstream nodes after it. path is the nodes from the root to n, exclusive.
func (r *renderer) render(n *compose.Node, previous *definition.Chain, path []*compose.Node) (definition.Chain, error) {
	for _, p := range path {
		if p == n {
			return definition.Chain{}, cycleError(path, n)
		}
	}

	leaf, err := r.leaf(n)
	if err != nil {
		return definition.Chain{}, err
	}

	var chain definition.Chain
	if previous == nil {
		chain = definition.Start(leaf)
	} else {
		chain = previous.Next(leaf)
	}

	path = append(path[:len(path):len(path)], n)
	for _, next := range n.Downstream() {
		if _, err := r.render(next, &chain, path); err != nil {
			return definition.Chain{}, err
		}
	}

	return chain, nil
}

func (r *renderer) leaf(n *compose.Node) (definition.State, error) {
	if n.Kind() == compose.Single {
		return r.single(n)
	}

	cfg := n.Config()
	name := r.session.names.Name(n.Name())
	branches := make([]definition.Chain, 0, len(n.Members()))
	for _, m := range n.Members() {
		if len(m.Downstream()) > 0 {
			log.WithFields(log.Fields{
				"node":    m.Name(),
				"group":   n.Name(),
				"ignored": len(m.Downstream()),
			}).Warn("downstream nodes of a group member are not rendered; chain them after the group")
		}
		s, err := r.single(m)
		if err != nil {
			return nil, err
		}
		branches = append(branches, definition.Start(s))
	}
	p := definition.NewParallel(name, branches, n.Kind() == compose.FailSoft, paths(cfg))
	log.WithFields(log.Fields{
		"node":  n.Name(),
		"state": name,
		"kind":  n.Kind().String(),
	}).Debug("rendered state")
	return p, nil
}

// single renders a single node as a Task, or as a Map iterating a Task.
func (r *renderer) single(n *compose.Node) (definition.State, error) {
	fn, err := r.compute(n)
	if err != nil {
		return nil, err
	}

	cfg := n.Config()
	name := r.session.names.Name(n.Name())
	taskCfg := definition.TaskConfig{
		Paths:              paths(cfg),
		Timeout:            cfg.Timeout,
		ResponseOnly:       cfg.ResponseOnly(),
		InvocationType:     string(cfg.InvocationType),
		IntegrationPattern: string(cfg.IntegrationPattern),
	}

	var s definition.State
	if !cfg.MapJob {
		s = definition.NewTask(name, fn, taskCfg)
	} else {
		// Paths apply to the Map state; the body task sees one item.
		taskCfg.Paths = definition.Paths{}
		body := definition.NewTask(r.session.names.Name(n.Name()+" item"), fn, taskCfg)
		s = definition.NewMap(name, definition.Start(body), definition.MapConfig{
			Paths:          paths(cfg),
			ItemsPath:      cfg.ItemsPath,
			MaxConcurrency: cfg.MaxConcurrency,
		})
	}

	log.WithFields(log.Fields{
		"node":     n.Name(),
		"state":    name,
		"kind":     n.Kind().String(),
		"function": fn.LogicalID(),
	}).Debug("rendered state")
	return s, nil
}

// compute declares the compute resource of a single node, once per call or,
// with ShareFunctions, once per node.
func (r *renderer) compute(n *compose.Node) (definition.Handle, error) {
	if r.session.ShareFunctions {
		if h, ok := r.session.handles[n]; ok {
			return h, nil
		}
	}
	h, err := r.scope.PackageCompute(n.Ref(), n.Config())
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.Name(), err)
	}
	if r.session.ShareFunctions {
		r.session.handles[n] = h
	}
	return h, nil
}

func paths(cfg compose.Config) definition.Paths {
	return definition.Paths{
		Comment:    cfg.Comment,
		InputPath:  cfg.InputPath,
		OutputPath: cfg.OutputPath,
		ResultPath: cfg.ResultPath,
	}
}

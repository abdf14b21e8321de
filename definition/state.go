// Copyright 2021, Square, Inc.

// Package definition models the steps of a rendered workflow and compiles them
// to an Amazon States Language document. States are built with NewTask,
// NewParallel, NewMap and NewPass and linked with a Chain:
//
//	c := definition.Start(hello).Next(bye).Next(double)
//	doc, err := definition.Compile(c, definition.Options{})
//
// The package knows nothing about composition graphs; package render maps a
// graph onto these types.
package definition

import (
	"math"
	"time"
)

// Handle references a compute resource declared elsewhere, usually a function
// in a resource template. A task refers to its function only by logical ID;
// the ID becomes a definition substitution that the template resolves to the
// function ARN.
type Handle interface {
	LogicalID() string
}

// A State is one step of a workflow. Implementations are the exported types of
// this package; outside code creates them with the New* constructors.
type State interface {
	Name() string

	// Next returns the states that follow this one, in the order they were
	// added. More than one next state compiles to a fan-out.
	Next() []State

	addNext(State)
	compile(*compiler) (*StateDoc, error)
}

// Paths are the input and output processing fields common to every state.
type Paths struct {
	Comment    string
	InputPath  string
	OutputPath string
	ResultPath string
}

type base struct {
	name  string
	paths Paths
	next  []State
}

func (b *base) Name() string { return b.name }

func (b *base) Next() []State { return append([]State(nil), b.next...) }

func (b *base) addNext(s State) { b.next = append(b.next, s) }

func (b *base) doc(typ string) *StateDoc {
	return &StateDoc{
		Type:       typ,
		Comment:    b.paths.Comment,
		InputPath:  b.paths.InputPath,
		OutputPath: b.paths.OutputPath,
		ResultPath: b.paths.ResultPath,
	}
}

// --------------------------------------------------------------------------

const lambdaInvoke = "arn:aws:states:::lambda:invoke"

// TaskConfig configures a Task state.
type TaskConfig struct {
	Paths
	Timeout time.Duration

	// ResponseOnly makes the task return only the function's payload. The
	// task then uses the function ARN as its resource. Otherwise it uses the
	// lambda:invoke integration and returns the full invocation response.
	ResponseOnly bool

	InvocationType     string // RequestResponse, Event or DryRun
	IntegrationPattern string // REQUEST_RESPONSE, RUN_JOB or WAIT_FOR_TASK_TOKEN
}

// Task invokes one function.
type Task struct {
	base
	handle Handle
	cfg    TaskConfig
}

var _ State = &Task{}

func NewTask(name string, handle Handle, cfg TaskConfig) *Task {
	return &Task{
		base:   base{name: name, paths: cfg.Paths},
		handle: handle,
		cfg:    cfg,
	}
}

func (t *Task) Handle() Handle { return t.handle }

func (t *Task) compile(c *compiler) (*StateDoc, error) {
	c.reference(t.handle)
	ref := "${" + t.handle.LogicalID() + "}"

	d := t.doc("Task")
	d.TimeoutSeconds = seconds(t.cfg.Timeout)
	if t.cfg.ResponseOnly {
		d.Resource = ref
		return d, nil
	}

	d.Resource = lambdaInvoke
	d.Parameters = map[string]interface{}{
		"FunctionName": ref,
		"Payload.$":    "$",
	}
	if t.cfg.InvocationType != "" {
		d.Parameters["InvocationType"] = t.cfg.InvocationType
	}
	if t.cfg.IntegrationPattern == "WAIT_FOR_TASK_TOKEN" {
		d.Resource += ".waitForTaskToken"
		d.Parameters["Payload"] = map[string]interface{}{
			"input.$": "$",
			"token.$": "$$.Task.Token",
		}
		delete(d.Parameters, "Payload.$")
	}
	return d, nil
}

// --------------------------------------------------------------------------

// Parallel runs its branches concurrently and waits for all of them. If
// continueOnError is set, every step of every branch catches all errors and
// passes them through, so the Parallel state always succeeds.
type Parallel struct {
	base
	branches        []Chain
	continueOnError bool
}

var _ State = &Parallel{}

func NewParallel(name string, branches []Chain, continueOnError bool, paths Paths) *Parallel {
	return &Parallel{
		base:            base{name: name, paths: paths},
		branches:        append([]Chain(nil), branches...),
		continueOnError: continueOnError,
	}
}

func (p *Parallel) Branches() []Chain     { return append([]Chain(nil), p.branches...) }
func (p *Parallel) ContinueOnError() bool { return p.continueOnError }

func (p *Parallel) compile(c *compiler) (*StateDoc, error) {
	d := p.doc("Parallel")
	for _, b := range p.branches {
		doc, err := c.scope(b.start)
		if err != nil {
			return nil, err
		}
		if p.continueOnError {
			if err := c.catchAll(doc); err != nil {
				return nil, err
			}
		}
		d.Branches = append(d.Branches, doc)
	}
	return d, nil
}

// --------------------------------------------------------------------------

// MapConfig configures a Map state.
type MapConfig struct {
	Paths
	ItemsPath      string // default "$"
	MaxConcurrency int    // 0 is unlimited
}

// Map runs its body once for every item of the array at ItemsPath.
type Map struct {
	base
	body Chain
	cfg  MapConfig
}

var _ State = &Map{}

func NewMap(name string, body Chain, cfg MapConfig) *Map {
	return &Map{
		base: base{name: name, paths: cfg.Paths},
		body: body,
		cfg:  cfg,
	}
}

func (m *Map) Body() Chain { return m.body }

func (m *Map) compile(c *compiler) (*StateDoc, error) {
	d := m.doc("Map")
	d.ItemsPath = m.cfg.ItemsPath
	d.MaxConcurrency = m.cfg.MaxConcurrency
	doc, err := c.scope(m.body.start)
	if err != nil {
		return nil, err
	}
	d.Iterator = doc
	return d, nil
}

// --------------------------------------------------------------------------

// Pass passes its input to its output.
type Pass struct {
	base
}

var _ State = &Pass{}

func NewPass(name string, paths Paths) *Pass {
	return &Pass{base: base{name: name, paths: paths}}
}

func (p *Pass) compile(c *compiler) (*StateDoc, error) {
	return p.doc("Pass"), nil
}

// --------------------------------------------------------------------------

// seconds rounds d up to whole seconds.
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

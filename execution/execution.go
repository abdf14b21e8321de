// Copyright 2021, Square, Inc.

// Package execution starts executions of published workflows. Running a
// workflow belongs to the workflow engine; this package only defines how a
// start request is handed to it, plus a Recorder that stands in for the engine
// in dry runs and tests.
package execution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/orcaman/concurrent-map"

	"github.com/square/orkestra/id"
)

// Execution is one started run of a workflow.
type Execution struct {
	ID        string      `json:"id"`
	Workflow  string      `json:"workflow"`
	Input     interface{} `json:"input,omitempty"`
	StartedAt time.Time   `json:"startedAt"`
}

// A Starter starts workflow executions.
type Starter interface {
	StartExecution(ctx context.Context, workflow string, input interface{}) (Execution, error)
}

// Recorder is a Starter that records start requests instead of sending them to
// an engine. It is safe for concurrent use.
type Recorder struct {
	ids id.Generator
	c   cmap.ConcurrentMap // execution id => Execution
	now func() time.Time
}

var _ Starter = &Recorder{}

func NewRecorder() *Recorder {
	return &Recorder{
		ids: id.NewGenerator(""),
		c:   cmap.New(),
		now: time.Now,
	}
}

// StartExecution records an execution of workflow with the given input and
// returns it. It fails only if ctx is done.
func (r *Recorder) StartExecution(ctx context.Context, workflow string, input interface{}) (Execution, error) {
	if err := ctx.Err(); err != nil {
		return Execution{}, err
	}
	e := Execution{
		ID:        r.ids.UID(),
		Workflow:  workflow,
		Input:     input,
		StartedAt: r.now().UTC(),
	}
	r.c.Set(e.ID, e)
	return e, nil
}

// Get returns the recorded execution with the given id.
func (r *Recorder) Get(executionId string) (Execution, bool) {
	val, ok := r.c.Get(executionId)
	if !ok {
		return Execution{}, false
	}
	e, ok := val.(Execution)
	return e, ok
}

// Executions returns the recorded executions of workflow, oldest first. An
// empty workflow name returns every execution.
func (r *Recorder) Executions(workflow string) ([]Execution, error) {
	all := []Execution{}
	for key, val := range r.c.Items() {
		e, ok := val.(Execution)
		if !ok {
			return nil, fmt.Errorf("invalid execution in recorder for key=%s", key) // should be impossible
		}
		if workflow != "" && e.Workflow != workflow {
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].StartedAt.Before(all[j].StartedAt)
	})
	return all, nil
}

// Remove forgets the execution with the given id.
func (r *Recorder) Remove(executionId string) {
	r.c.Remove(executionId)
}

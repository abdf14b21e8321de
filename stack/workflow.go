// Copyright 2021, Square, Inc.

package stack

import (
	"context"
	"fmt"

	"github.com/square/orkestra/definition"
	"github.com/square/orkestra/execution"
	"github.com/square/orkestra/render"
)

// Workflow is a state machine published in a Stack.
type Workflow struct {
	logicalID string
	name      string
	typ       string
	doc       *definition.Document
	starter   execution.Starter
}

var _ render.Workflow = &Workflow{}

func (w *Workflow) LogicalID() string                { return w.logicalID }
func (w *Workflow) Name() string                     { return w.name }
func (w *Workflow) Type() string                     { return w.typ }
func (w *Workflow) Definition() *definition.Document { return w.doc }

// StartExecution starts an execution of the workflow with the given input.
func (w *Workflow) StartExecution(ctx context.Context, input interface{}) (execution.Execution, error) {
	if w.starter == nil {
		return execution.Execution{}, fmt.Errorf("workflow %s: no execution starter", w.name)
	}
	return w.starter.StartExecution(ctx, w.name, input)
}

// Copyright 2021, Square, Inc.

package render

import (
	"context"
	"time"

	"github.com/square/orkestra/compose"
	"github.com/square/orkestra/definition"
	"github.com/square/orkestra/execution"
	"github.com/square/orkestra/schedule"
)

// A Scope declares the resources a rendered graph needs. Package stack
// implements it with a resource template.
type Scope interface {
	// PackageCompute declares a compute resource (a function) for the
	// function identified by ref and returns a handle to it.
	PackageCompute(ref compose.FuncRef, cfg compose.Config) (definition.Handle, error)

	// PublishWorkflow declares a workflow resource with the compiled
	// definition doc.
	PublishWorkflow(cfg WorkflowConfig, doc *definition.Document) (Workflow, error)

	// BindTrigger declares a rule that starts target when trigger fires.
	BindTrigger(trigger schedule.Trigger, target definition.Handle) (definition.Handle, error)
}

// WorkflowConfig configures a published workflow. Zero values are filled in
// by the Scope from its defaults.
type WorkflowConfig struct {
	Name    string
	Type    compose.StateMachineType
	Comment string
	Timeout time.Duration
}

// A Workflow is a published workflow. Starting an execution is delegated to
// the workflow engine.
type Workflow interface {
	definition.Handle

	Name() string
	Definition() *definition.Document
	StartExecution(ctx context.Context, input interface{}) (execution.Execution, error)
}

// Copyright 2021, Square, Inc.

package mock

import (
	"context"
	"errors"
	"fmt"

	"github.com/square/orkestra/compose"
	"github.com/square/orkestra/definition"
	"github.com/square/orkestra/execution"
	"github.com/square/orkestra/render"
	"github.com/square/orkestra/schedule"
)

var (
	ErrScope = errors.New("forced error in scope")
)

// Handle is a definition.Handle with a fixed logical ID.
type Handle string

func (h Handle) LogicalID() string { return string(h) }

// Scope records what is declared in it. Without funcs set, function handles
// are the node name plus "Function" plus a count of all functions declared so
// far: helloFunction1, byeFunction2.
type Scope struct {
	PackageComputeFunc  func(compose.FuncRef, compose.Config) (definition.Handle, error)
	PublishWorkflowFunc func(render.WorkflowConfig, *definition.Document) (render.Workflow, error)
	BindTriggerFunc     func(schedule.Trigger, definition.Handle) (definition.Handle, error)

	Functions []string
	Workflows []render.WorkflowConfig
	Triggers  []schedule.Trigger
	Targets   []string
}

func (s *Scope) PackageCompute(ref compose.FuncRef, cfg compose.Config) (definition.Handle, error) {
	if s.PackageComputeFunc != nil {
		return s.PackageComputeFunc(ref, cfg)
	}
	name := cfg.Name
	if name == "" {
		name = ref.Short()
	}
	id := fmt.Sprintf("%sFunction%d", name, len(s.Functions)+1)
	s.Functions = append(s.Functions, id)
	return Handle(id), nil
}

func (s *Scope) PublishWorkflow(cfg render.WorkflowConfig, doc *definition.Document) (render.Workflow, error) {
	if s.PublishWorkflowFunc != nil {
		return s.PublishWorkflowFunc(cfg, doc)
	}
	s.Workflows = append(s.Workflows, cfg)
	return &Workflow{
		Handle:  Handle(cfg.Name + "StateMachine"),
		NameVal: cfg.Name,
		Doc:     doc,
		Starter: execution.NewRecorder(),
	}, nil
}

func (s *Scope) BindTrigger(trigger schedule.Trigger, target definition.Handle) (definition.Handle, error) {
	if s.BindTriggerFunc != nil {
		return s.BindTriggerFunc(trigger, target)
	}
	s.Triggers = append(s.Triggers, trigger)
	s.Targets = append(s.Targets, target.LogicalID())
	return Handle(fmt.Sprintf("Rule%d", len(s.Triggers))), nil
}

// Declared returns the number of resources declared.
func (s *Scope) Declared() int {
	return len(s.Functions) + len(s.Workflows) + len(s.Triggers)
}

// --------------------------------------------------------------------------

type Workflow struct {
	Handle
	NameVal string
	Doc     *definition.Document
	Starter execution.Starter
}

func (w *Workflow) Name() string                     { return w.NameVal }
func (w *Workflow) Definition() *definition.Document { return w.Doc }

func (w *Workflow) StartExecution(ctx context.Context, input interface{}) (execution.Execution, error) {
	if w.Starter == nil {
		return execution.Execution{}, ErrStarter
	}
	return w.Starter.StartExecution(ctx, w.NameVal, input)
}

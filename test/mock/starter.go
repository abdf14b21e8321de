// Copyright 2021, Square, Inc.

package mock

import (
	"context"
	"errors"

	"github.com/square/orkestra/execution"
)

var (
	ErrStarter = errors.New("forced error in execution starter")
)

type Starter struct {
	StartExecutionFunc func(ctx context.Context, workflow string, input interface{}) (execution.Execution, error)
}

func (s *Starter) StartExecution(ctx context.Context, workflow string, input interface{}) (execution.Execution, error) {
	if s.StartExecutionFunc != nil {
		return s.StartExecutionFunc(ctx, workflow, input)
	}
	return execution.Execution{}, nil
}

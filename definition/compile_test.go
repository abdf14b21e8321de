// Copyright 2021, Square, Inc.

package definition_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/square/orkestra/definition"
)

type fn string

func (f fn) LogicalID() string { return string(f) }

func task(name string) *definition.Task {
	return definition.NewTask(name, fn(name+"Function"), definition.TaskConfig{ResponseOnly: true})
}

func TestCompileLinear(t *testing.T) {
	c := definition.Start(task("hello")).Next(task("bye")).Next(task("double"))

	doc, err := definition.Compile(c, definition.Options{Comment: "greetings", Timeout: 90 * time.Second})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}

	expect := &definition.Document{
		Comment:        "greetings",
		StartAt:        "hello",
		TimeoutSeconds: 90,
		States: map[string]*definition.StateDoc{
			"hello":  {Type: "Task", Resource: "${helloFunction}", Next: "bye"},
			"bye":    {Type: "Task", Resource: "${byeFunction}", Next: "double"},
			"double": {Type: "Task", Resource: "${doubleFunction}", End: true},
		},
	}
	if diff := deep.Equal(doc, expect); diff != nil {
		t.Error(diff)
	}

	var ids []string
	for _, h := range doc.Handles() {
		ids = append(ids, h.LogicalID())
	}
	if diff := deep.Equal(ids, []string{"helloFunction", "byeFunction", "doubleFunction"}); diff != nil {
		t.Error(diff)
	}
}

func TestCompileTaskInvoke(t *testing.T) {
	event := definition.NewTask("notify", fn("NotifyFunction"), definition.TaskConfig{
		Paths:          definition.Paths{ResultPath: "$.notify"},
		Timeout:        1500 * time.Millisecond,
		InvocationType: "Event",
	})
	token := definition.NewTask("approve", fn("ApproveFunction"), definition.TaskConfig{
		IntegrationPattern: "WAIT_FOR_TASK_TOKEN",
	})

	doc, err := definition.Compile(definition.Start(event).Next(token), definition.Options{})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}

	expect := map[string]*definition.StateDoc{
		"notify": {
			Type:     "Task",
			Resource: "arn:aws:states:::lambda:invoke",
			Parameters: map[string]interface{}{
				"FunctionName":   "${NotifyFunction}",
				"Payload.$":      "$",
				"InvocationType": "Event",
			},
			TimeoutSeconds: 2,
			ResultPath:     "$.notify",
			Next:           "approve",
		},
		"approve": {
			Type:     "Task",
			Resource: "arn:aws:states:::lambda:invoke.waitForTaskToken",
			Parameters: map[string]interface{}{
				"FunctionName": "${ApproveFunction}",
				"Payload": map[string]interface{}{
					"input.$": "$",
					"token.$": "$$.Task.Token",
				},
			},
			End: true,
		},
	}
	if diff := deep.Equal(doc.States, expect); diff != nil {
		t.Error(diff)
	}
}

func TestCompileParallel(t *testing.T) {
	branches := []definition.Chain{
		definition.Start(task("shape")),
		definition.Start(task("animal")),
	}

	// Fail fast: no catchers.
	p := definition.NewParallel("fast", branches, false, definition.Paths{})
	doc, err := definition.Compile(definition.Start(p), definition.Options{})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	par := doc.States["fast"]
	if par.Type != "Parallel" || len(par.Branches) != 2 {
		t.Fatalf("got %+v, expected a Parallel state with 2 branches", par)
	}
	for _, b := range par.Branches {
		for name, s := range b.States {
			if len(s.Catch) != 0 {
				t.Errorf("state %s has catchers, expected none", name)
			}
		}
	}

	// Fail soft: every branch catches into its own Pass state.
	p = definition.NewParallel("soft", []definition.Chain{
		definition.Start(task("console")),
		definition.Start(task("oops")),
	}, true, definition.Paths{})
	doc, err = definition.Compile(definition.Start(p), definition.Options{})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	expect := []*definition.Document{
		{
			StartAt: "console",
			States: map[string]*definition.StateDoc{
				"console": {
					Type:     "Task",
					Resource: "${consoleFunction}",
					End:      true,
					Catch: []definition.Catcher{
						{ErrorEquals: []string{"States.ALL"}, Next: "console failed", ResultPath: "$.error"},
					},
				},
				"console failed": {Type: "Pass", End: true},
			},
		},
		{
			StartAt: "oops",
			States: map[string]*definition.StateDoc{
				"oops": {
					Type:     "Task",
					Resource: "${oopsFunction}",
					End:      true,
					Catch: []definition.Catcher{
						{ErrorEquals: []string{"States.ALL"}, Next: "oops failed", ResultPath: "$.error"},
					},
				},
				"oops failed": {Type: "Pass", End: true},
			},
		},
	}
	if diff := deep.Equal(doc.States["soft"].Branches, expect); diff != nil {
		t.Error(diff)
	}
}

func TestCompileMap(t *testing.T) {
	m := definition.NewMap("double", definition.Start(task("double body")), definition.MapConfig{
		ItemsPath:      "$.items",
		MaxConcurrency: 3,
	})
	doc, err := definition.Compile(definition.Start(task("generate")).Next(m), definition.Options{})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	expect := &definition.StateDoc{
		Type:           "Map",
		ItemsPath:      "$.items",
		MaxConcurrency: 3,
		End:            true,
		Iterator: &definition.Document{
			StartAt: "double body",
			States: map[string]*definition.StateDoc{
				"double body": {Type: "Task", Resource: "${double bodyFunction}", End: true},
			},
		},
	}
	if diff := deep.Equal(doc.States["double"], expect); diff != nil {
		t.Error(diff)
	}
	if len(doc.Handles()) != 2 {
		t.Errorf("got %d handles, expected 2 (iterator tasks count)", len(doc.Handles()))
	}
}

func TestCompileFanOut(t *testing.T) {
	hello := definition.Start(task("hello"))
	hello.Next(task("bye"))
	hello.Next(task("alt")).Next(task("after"))

	doc, err := definition.Compile(hello, definition.Options{})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	if doc.States["hello"].Next != "hello fan-out" {
		t.Errorf("hello -> %s, expected hello fan-out", doc.States["hello"].Next)
	}
	fan := doc.States["hello fan-out"]
	if fan == nil || fan.Type != "Parallel" || !fan.End {
		t.Fatalf("got %+v, expected an ending Parallel state", fan)
	}
	if len(fan.Branches) != 2 {
		t.Fatalf("got %d branches, expected 2", len(fan.Branches))
	}
	if fan.Branches[0].StartAt != "bye" || fan.Branches[1].StartAt != "alt" {
		t.Errorf("branches start at %s and %s, expected bye and alt", fan.Branches[0].StartAt, fan.Branches[1].StartAt)
	}
	if fan.Branches[1].States["alt"].Next != "after" || !fan.Branches[1].States["after"].End {
		t.Errorf("second branch is not alt -> after")
	}
}

func TestCompileDuplicateNames(t *testing.T) {
	a := task("a")
	b := task("b")
	definition.Start(a).Next(b).Next(a)
	if _, err := definition.Compile(definition.Start(a), definition.Options{}); err == nil {
		t.Error("cyclic states: no error, expected one")
	}

	c := definition.Start(task("same")).Next(task("same"))
	if _, err := definition.Compile(c, definition.Options{}); err == nil {
		t.Error("duplicate names: no error, expected one")
	}

	if _, err := definition.Compile(definition.Chain{}, definition.Options{}); err == nil {
		t.Error("empty chain: no error, expected one")
	}
}

func TestDocumentJSON(t *testing.T) {
	doc, err := definition.Compile(definition.Start(task("hello")), definition.Options{})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	bytes, err := doc.JSON()
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(bytes, &got); err != nil {
		t.Fatal(err)
	}
	expect := map[string]interface{}{
		"StartAt": "hello",
		"States": map[string]interface{}{
			"hello": map[string]interface{}{
				"Type":     "Task",
				"Resource": "${helloFunction}",
				"End":      true,
			},
		},
	}
	if diff := deep.Equal(got, expect); diff != nil {
		t.Error(diff)
	}
}

func TestChain(t *testing.T) {
	a, b := task("a"), task("b")
	c := definition.Start(a).Next(b)
	if c.StartState() != a || c.EndState() != b {
		t.Errorf("chain = %s..%s, expected a..b", c.StartState().Name(), c.EndState().Name())
	}
	if next := a.Next(); len(next) != 1 || next[0] != b {
		t.Errorf("a.Next() = %v, expected [b]", next)
	}

	var zero definition.Chain
	if !zero.IsZero() {
		t.Error("zero chain is not zero")
	}
	if got := zero.Next(a); got.StartState() != a {
		t.Error("Next on a zero chain does not start a new chain")
	}
}

func TestCompilePass(t *testing.T) {
	skip := definition.NewPass("skip", definition.Paths{Comment: "no-op", ResultPath: "$.skipped"})
	c := definition.Start(task("hello")).Next(skip).Next(task("bye"))

	doc, err := definition.Compile(c, definition.Options{})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	expect := &definition.Document{
		StartAt: "hello",
		States: map[string]*definition.StateDoc{
			"hello": {Type: "Task", Resource: "${helloFunction}", Next: "skip"},
			"skip":  {Type: "Pass", Comment: "no-op", ResultPath: "$.skipped", Next: "bye"},
			"bye":   {Type: "Task", Resource: "${byeFunction}", End: true},
		},
	}
	if diff := deep.Equal(doc, expect); diff != nil {
		t.Error(diff)
	}
}

// Copyright 2021, Square, Inc.

package stack_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"
	"gopkg.in/yaml.v2"

	"github.com/square/orkestra/compose"
	"github.com/square/orkestra/config"
	"github.com/square/orkestra/definition"
	oerr "github.com/square/orkestra/errors"
	"github.com/square/orkestra/execution"
	"github.com/square/orkestra/render"
	"github.com/square/orkestra/schedule"
	"github.com/square/orkestra/stack"
)

func Hello(ctx context.Context, event interface{}) (interface{}, error)  { return "hello", nil }
func Bye(ctx context.Context, event interface{}) (interface{}, error)    { return "bye", nil }
func Double(ctx context.Context, event interface{}) (interface{}, error) { return event, nil }

func newStack() *stack.Stack {
	cfg := config.Defaults()
	cfg.Function.CodeBucket = "artifacts"
	return stack.New(cfg, execution.NewRecorder())
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}

func TestPackageCompute(t *testing.T) {
	s := newStack()
	n := compose.Must(Hello,
		compose.MemorySize(512),
		compose.Timeout(90*time.Second),
		compose.Environment(map[string]string{"GREETING": "hi"}),
		compose.Overrides(map[string]interface{}{"ReservedConcurrentExecutions": 2, "Handler": nil}),
	)

	h, err := s.PackageCompute(n.Ref(), n.Config())
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	if h.LogicalID() != "HelloFunction" {
		t.Errorf("logical ID = %s, expected HelloFunction", h.LogicalID())
	}

	res := s.Template().Resources["HelloFunction"]
	if res.Type != stack.TYPE_FUNCTION {
		t.Fatalf("type = %s, expected %s", res.Type, stack.TYPE_FUNCTION)
	}
	p := res.Properties
	if p["Runtime"] != "go1.x" || p["Handler"] != "main" {
		t.Errorf("runtime/handler = %v/%v, expected go1.x/main", p["Runtime"], p["Handler"])
	}
	if p["MemorySize"] != 512 || p["Timeout"] != 90 {
		t.Errorf("memory/timeout = %v/%v, expected 512/90", p["MemorySize"], p["Timeout"])
	}
	if p["ReservedConcurrentExecutions"] != 2 {
		t.Errorf("override not applied: %v", p["ReservedConcurrentExecutions"])
	}
	expectEnv := map[string]interface{}{
		"Variables": map[string]interface{}{
			"GREETING":             "hi",
			stack.FUNCTION_ENV_VAR: "github.com/square/orkestra/stack_test.Hello",
		},
	}
	if diff := deep.Equal(p["Environment"], expectEnv); diff != nil {
		t.Error(diff)
	}
	expectCode := map[string]interface{}{
		"S3Bucket": "artifacts",
		"S3Key":    "github.com/square/orkestra/stack_test.zip",
	}
	if diff := deep.Equal(p["Code"], expectCode); diff != nil {
		t.Error(diff)
	}

	// The role is declared once, for every function.
	h2, err := s.PackageCompute(n.Ref(), n.Config())
	if err != nil {
		t.Fatal(err)
	}
	if h2.LogicalID() != "HelloFunction2" {
		t.Errorf("logical ID = %s, expected HelloFunction2", h2.LogicalID())
	}
	if diff := deep.Equal(s.Template().ResourcesOfType(stack.TYPE_ROLE), []string{"FunctionRole"}); diff != nil {
		t.Error(diff)
	}
}

func TestPackageComputeDefaults(t *testing.T) {
	cfg := config.Defaults()
	cfg.Function.Layers = []string{"arn:layer:base"}
	s := stack.New(cfg, nil)

	n := compose.Must(Bye, compose.Layers("arn:layer:extra"), compose.DeadLetterQueue(), compose.WithTracing(compose.TracingActive))
	if _, err := s.PackageCompute(n.Ref(), n.Config()); err != nil {
		t.Fatal(err)
	}
	p := s.Template().Resources["ByeFunction"].Properties
	if p["MemorySize"] != config.DEFAULT_MEMORY_SIZE || p["Timeout"] != config.DEFAULT_TIMEOUT {
		t.Errorf("memory/timeout = %v/%v, expected defaults", p["MemorySize"], p["Timeout"])
	}
	if diff := deep.Equal(p["Layers"], []string{"arn:layer:base", "arn:layer:extra"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(p["TracingConfig"], map[string]interface{}{"Mode": "Active"}); diff != nil {
		t.Error(diff)
	}
	if _, ok := s.Template().Resources["ByeFunctionDeadLetterQueue"]; !ok {
		t.Error("no dead letter queue declared")
	}
	if _, ok := s.Template().Parameters["CodeBucket"]; !ok {
		t.Error("no CodeBucket parameter without a configured bucket")
	}
}

func TestPublishWorkflow(t *testing.T) {
	s := newStack()
	hello := compose.Must(Hello)
	hello.Then(compose.Must(Bye)).Then(compose.Must(Double))

	wf, err := render.Publish(s, hello, "greeter")
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	if wf.LogicalID() != "GreeterStateMachine" {
		t.Errorf("logical ID = %s, expected GreeterStateMachine", wf.LogicalID())
	}

	tmpl := s.Template()
	if diff := deep.Equal(sorted(tmpl.ResourcesOfType(stack.TYPE_FUNCTION)), []string{"ByeFunction", "DoubleFunction", "HelloFunction"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(tmpl.ResourcesOfType(stack.TYPE_STATE_MACHINE), []string{"GreeterStateMachine"}); diff != nil {
		t.Error(diff)
	}

	p := tmpl.Resources["GreeterStateMachine"].Properties
	if p["StateMachineType"] != "EXPRESS" {
		t.Errorf("type = %v, expected EXPRESS", p["StateMachineType"])
	}
	if p["StateMachineName"] != "orkestra-Greeter" {
		t.Errorf("name = %v, expected orkestra-Greeter", p["StateMachineName"])
	}
	subs := p["DefinitionSubstitutions"].(map[string]interface{})
	for _, fn := range []string{"HelloFunction", "ByeFunction", "DoubleFunction"} {
		expect := map[string]interface{}{"Fn::GetAtt": []interface{}{fn, "Arn"}}
		if diff := deep.Equal(subs[fn], expect); diff != nil {
			t.Errorf("%s: %v", fn, diff)
		}
	}

	var def map[string]interface{}
	if err := json.Unmarshal([]byte(p["DefinitionString"].(string)), &def); err != nil {
		t.Fatalf("definition is not JSON: %s", err)
	}
	if def["StartAt"] != "Hello" {
		t.Errorf("StartAt = %v, expected Hello", def["StartAt"])
	}

	if _, ok := tmpl.Outputs["GreeterStateMachineArn"]; !ok {
		t.Error("no output for the state machine ARN")
	}

	got, err := s.Workflow("greeter")
	if err != nil || got != wf {
		t.Errorf("Workflow(greeter) = %v, %v; expected the published workflow", got, err)
	}
	if _, err := s.Workflow("nope"); !errors.As(err, &oerr.WorkflowNotFound{}) {
		t.Errorf("err = %v, expected WorkflowNotFound", err)
	}

	// Names are unique per stack.
	if _, err := render.Publish(s, hello, "greeter"); err == nil {
		t.Error("duplicate workflow: no error, expected one")
	}
}

func TestPublishWorkflowType(t *testing.T) {
	s := newStack()
	n := compose.Must(Hello, compose.WorkflowType(compose.Standard))
	if _, err := render.Publish(s, n, "standard"); err != nil {
		t.Fatal(err)
	}
	if typ := s.Template().Resources["StandardStateMachine"].Properties["StateMachineType"]; typ != "STANDARD" {
		t.Errorf("type = %v, expected STANDARD", typ)
	}

	cfg := config.Defaults()
	cfg.StateMachine.Type = "FAST"
	if _, err := render.Publish(stack.New(cfg, nil), compose.Must(Hello), "bad"); err == nil {
		t.Error("invalid type: no error, expected one")
	}
}

func TestBindTrigger(t *testing.T) {
	s := newStack()

	wf, err := render.BindSchedule(s, compose.Must(Hello), "nightly", "cron(0 2 * * ? *)")
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	rule := s.Template().Resources["NightlyScheduleRule"]
	if rule.Type != stack.TYPE_RULE {
		t.Fatalf("no rule declared: %v", s.Template().Resources)
	}
	if rule.Properties["ScheduleExpression"] != "cron(0 2 * * ? *)" {
		t.Errorf("schedule = %v", rule.Properties["ScheduleExpression"])
	}
	target := rule.Properties["Targets"].([]interface{})[0].(map[string]interface{})
	if diff := deep.Equal(target["Arn"], map[string]interface{}{"Ref": wf.LogicalID()}); diff != nil {
		t.Error(diff)
	}
	if _, ok := s.Template().Resources["EventsRole"]; !ok {
		t.Error("no events role declared for a state machine target")
	}

	// A scheduled function gets an invoke permission instead.
	h, err := render.ScheduleFunction(s, compose.Must(Double), "rate(5 minutes)")
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	if _, ok := s.Template().Resources[h.LogicalID()+"Permission"]; !ok {
		t.Errorf("no permission declared for %s", h.LogicalID())
	}

	_, err = render.BindEvents(s, compose.Must(Bye), "orders", schedule.EventPattern{Source: []string{"orders"}})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	pattern := s.Template().Resources["OrdersEventsRule"].Properties["EventPattern"]
	if diff := deep.Equal(pattern, map[string]interface{}{"source": []interface{}{"orders"}}); diff != nil {
		t.Error(diff)
	}

	if _, err := s.BindTrigger(schedule.Trigger{Name: "x", Schedule: "rate(1 hour)"}, stack.Ref("Missing")); err == nil {
		t.Error("missing target: no error, expected one")
	}
}

func TestStartExecution(t *testing.T) {
	recorder := execution.NewRecorder()
	s := stack.New(config.Defaults(), recorder)
	wf, err := render.Publish(s, compose.Must(Hello), "greeter")
	if err != nil {
		t.Fatal(err)
	}

	e, err := wf.StartExecution(context.Background(), map[string]interface{}{"name": "ork"})
	if err != nil {
		t.Fatalf("err = %s, expected nil", err)
	}
	if _, ok := recorder.Get(e.ID); !ok {
		t.Errorf("execution %s not started with the recorder", e.ID)
	}

	s = stack.New(config.Defaults(), nil)
	wf, err = render.Publish(s, compose.Must(Hello), "greeter")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wf.StartExecution(context.Background(), nil); err == nil {
		t.Error("no starter: no error, expected one")
	}
}

func TestTemplateWrite(t *testing.T) {
	s := newStack()
	if _, err := render.Publish(s, compose.Must(Hello), "greeter"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := s.Template().Write(&buf, stack.FORMAT_JSON); err != nil {
		t.Fatalf("json: %s", err)
	}
	var fromJSON map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &fromJSON); err != nil {
		t.Fatalf("written JSON does not parse: %s", err)
	}
	if len(fromJSON["Resources"].(map[string]interface{})) != len(s.Template().Resources) {
		t.Error("JSON template has a different number of resources")
	}

	buf.Reset()
	if err := s.Template().Write(&buf, stack.FORMAT_YAML); err != nil {
		t.Fatalf("yaml: %s", err)
	}
	var fromYAML map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &fromYAML); err != nil {
		t.Fatalf("written YAML does not parse: %s", err)
	}
	if !strings.Contains(buf.String(), "AWS::StepFunctions::StateMachine") {
		t.Error("YAML template has no state machine")
	}

	if err := s.Template().Write(&buf, "xml"); err == nil {
		t.Error("xml: no error, expected one")
	}
}

func TestPublishWorkflowUnknownFunction(t *testing.T) {
	s := newStack()
	task := definition.NewTask("hello", stack.Ref("ElsewhereFunction"), definition.TaskConfig{ResponseOnly: true})
	doc, err := definition.Compile(definition.Start(task), definition.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PublishWorkflow(render.WorkflowConfig{Name: "greeter"}, doc); err == nil {
		t.Error("function not in the stack: no error, expected one")
	}
	if ids := s.Template().ResourcesOfType(stack.TYPE_STATE_MACHINE); len(ids) != 0 {
		t.Errorf("state machines %v declared, expected none", ids)
	}
}

// Copyright 2021, Square, Inc.

// Package stack declares the resources of rendered workflows in a CloudFormation
// template. Stack implements render.Scope: every compute handle is a function
// resource, every published workflow is a state machine resource, and every
// trigger is an event rule. Resource properties are built from config defaults,
// node options, and raw overrides, merged with util.Coalesce in that order.
package stack

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/square/orkestra/compose"
	"github.com/square/orkestra/config"
	"github.com/square/orkestra/definition"
	oerr "github.com/square/orkestra/errors"
	"github.com/square/orkestra/execution"
	"github.com/square/orkestra/id"
	"github.com/square/orkestra/render"
	"github.com/square/orkestra/schedule"
	"github.com/square/orkestra/util"
)

const (
	TYPE_FUNCTION      = "AWS::Lambda::Function"
	TYPE_PERMISSION    = "AWS::Lambda::Permission"
	TYPE_STATE_MACHINE = "AWS::StepFunctions::StateMachine"
	TYPE_RULE          = "AWS::Events::Rule"
	TYPE_ROLE          = "AWS::IAM::Role"
	TYPE_QUEUE         = "AWS::SQS::Queue"

	// Environment variable that tells the function binary which function to run.
	FUNCTION_ENV_VAR = "ORKESTRA_FUNCTION"
)

// Ref is a handle to a resource in the template by logical ID.
type Ref string

func (r Ref) LogicalID() string { return string(r) }

// Stack is a resource template under construction. It is not safe for
// concurrent use; render one graph at a time.
type Stack struct {
	cfg     config.Synth
	starter execution.Starter
	ids     id.Generator
	t       *Template

	workflows []*Workflow
	byName    map[string]*Workflow
	functions map[string]bool // logical IDs of function resources
}

var _ render.Scope = &Stack{}

// New returns an empty stack. Workflows published in it start executions with
// starter, which may be nil if executions are never started.
func New(cfg config.Synth, starter execution.Starter) *Stack {
	return &Stack{
		cfg:       cfg,
		starter:   starter,
		ids:       id.NewGenerator(""),
		t:         newTemplate(cfg.Stack.Description),
		byName:    map[string]*Workflow{},
		functions: map[string]bool{},
	}
}

// Template returns the template. It is the stack's own, not a copy.
func (s *Stack) Template() *Template {
	return s.t
}

// Workflows returns the published workflows in the order they were published.
func (s *Stack) Workflows() []*Workflow {
	return append([]*Workflow(nil), s.workflows...)
}

// Workflow returns the published workflow with the given name or an
// errors.WorkflowNotFound.
func (s *Stack) Workflow(name string) (*Workflow, error) {
	wf, ok := s.byName[name]
	if !ok {
		return nil, oerr.WorkflowNotFound{Name: name}
	}
	return wf, nil
}

// --------------------------------------------------------------------------

// PackageCompute declares a function resource for ref. Every call declares a
// new resource; the logical ID is the node name plus "Function", numbered if
// it repeats.
func (s *Stack) PackageCompute(fn compose.FuncRef, cfg compose.Config) (definition.Handle, error) {
	name := cfg.Name
	if name == "" {
		name = fn.Short()
	}
	if name == "" {
		return nil, fmt.Errorf("function has no name")
	}
	logicalID := s.ids.Name(id.Alnum(name) + "Function")

	f := s.cfg.Function
	defaults := map[string]interface{}{
		"Runtime":       f.Runtime,
		"Handler":       f.Handler,
		"MemorySize":    f.MemorySize,
		"Timeout":       f.Timeout,
		"TracingConfig": map[string]interface{}{"Mode": f.Tracing},
		"Role":          s.role("FunctionRole", "lambda.amazonaws.com", f.Role, nil),
		"Code":          s.code(fn),
	}

	env := map[string]interface{}{}
	for k, v := range f.Environment {
		env[k] = v
	}
	for k, v := range cfg.Function.Environment {
		env[k] = v
	}
	env[FUNCTION_ENV_VAR] = fn.String()

	node := map[string]interface{}{
		"Runtime":     nilIfZero(cfg.Function.Runtime),
		"MemorySize":  nilIfZero(cfg.Function.MemorySize),
		"Timeout":     nilIfZero(functionTimeout(cfg)),
		"Environment": map[string]interface{}{"Variables": env},
	}
	if cfg.Function.Tracing != "" {
		node["TracingConfig"] = map[string]interface{}{"Mode": string(cfg.Function.Tracing)}
	}
	if layers := append(append([]string{}, f.Layers...), cfg.Function.Layers...); len(layers) > 0 {
		node["Layers"] = layers
	}
	if cfg.Function.DeadLetterQueue {
		queue := logicalID + "DeadLetterQueue"
		s.add(queue, Resource{Type: TYPE_QUEUE, Properties: map[string]interface{}{}})
		node["DeadLetterConfig"] = map[string]interface{}{"TargetArn": getAtt(queue, "Arn")}
	}
	if cfg.Comment != "" {
		node["Description"] = cfg.Comment
	}

	s.add(logicalID, Resource{
		Type:       TYPE_FUNCTION,
		Properties: util.Coalesce(defaults, node, cfg.Function.Overrides),
	})
	s.functions[logicalID] = true
	return Ref(logicalID), nil
}

// PublishWorkflow declares a state machine resource for doc. Functions
// referenced by doc are passed in as definition substitutions; each must have
// been declared by PackageCompute on this stack.
func (s *Stack) PublishWorkflow(cfg render.WorkflowConfig, doc *definition.Document) (render.Workflow, error) {
	if _, ok := s.byName[cfg.Name]; ok {
		return nil, fmt.Errorf("workflow %s already published", cfg.Name)
	}
	typ := string(cfg.Type)
	if typ == "" {
		typ = s.cfg.StateMachine.Type
	}
	switch compose.StateMachineType(typ) {
	case compose.Standard, compose.Express:
	default:
		return nil, fmt.Errorf("workflow %s: invalid state machine type %s, expected %s or %s",
			cfg.Name, typ, compose.Standard, compose.Express)
	}

	bytes, err := doc.JSON()
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %s", cfg.Name, err)
	}
	subs := map[string]interface{}{}
	for _, h := range doc.Handles() {
		if !s.functions[h.LogicalID()] {
			return nil, fmt.Errorf("workflow %s: function %s is not in the stack", cfg.Name, h.LogicalID())
		}
		subs[h.LogicalID()] = getAtt(h.LogicalID(), "Arn")
	}

	logicalID := s.ids.Name(id.Alnum(cfg.Name) + "StateMachine")
	props := map[string]interface{}{
		"StateMachineName":        s.physicalName(cfg.Name),
		"StateMachineType":        typ,
		"DefinitionString":        string(bytes),
		"DefinitionSubstitutions": subs,
		"RoleArn":                 s.role("StateMachineRole", "states.amazonaws.com", s.cfg.StateMachine.Role, []string{"lambda:InvokeFunction"}),
	}
	if s.cfg.StateMachine.TracingEnabled {
		props["TracingConfiguration"] = map[string]interface{}{"Enabled": true}
	}
	s.add(logicalID, Resource{Type: TYPE_STATE_MACHINE, Properties: props})
	s.t.Outputs[logicalID+"Arn"] = Output{
		Description: "ARN of workflow " + cfg.Name,
		Value:       ref(logicalID),
	}

	wf := &Workflow{
		logicalID: logicalID,
		name:      cfg.Name,
		typ:       typ,
		doc:       doc,
		starter:   s.starter,
	}
	s.workflows = append(s.workflows, wf)
	s.byName[cfg.Name] = wf
	return wf, nil
}

// BindTrigger declares an event rule that targets a function or a state
// machine in this stack.
func (s *Stack) BindTrigger(trigger schedule.Trigger, target definition.Handle) (definition.Handle, error) {
	targetID := target.LogicalID()
	res, ok := s.t.Resources[targetID]
	if !ok {
		return nil, fmt.Errorf("trigger %s: target %s is not in the stack", trigger.Name, targetID)
	}

	logicalID := s.ids.Name(id.Alnum(trigger.Name) + "Rule")
	t := map[string]interface{}{
		"Id":  "Target0",
		"Arn": getAtt(targetID, "Arn"),
	}
	switch res.Type {
	case TYPE_STATE_MACHINE:
		t["Arn"] = ref(targetID)
		t["RoleArn"] = s.role("EventsRole", "events.amazonaws.com", "", []string{"states:StartExecution"})
	case TYPE_FUNCTION:
		s.add(logicalID+"Permission", Resource{
			Type: TYPE_PERMISSION,
			Properties: map[string]interface{}{
				"Action":       "lambda:InvokeFunction",
				"FunctionName": ref(targetID),
				"Principal":    "events.amazonaws.com",
				"SourceArn":    getAtt(logicalID, "Arn"),
			},
		})
	default:
		return nil, fmt.Errorf("trigger %s: target %s is a %s, expected a function or state machine", trigger.Name, targetID, res.Type)
	}

	props := map[string]interface{}{
		"State":   "ENABLED",
		"Targets": []interface{}{t},
	}
	if trigger.Description != "" {
		props["Description"] = trigger.Description
	}
	if trigger.IsSchedule() {
		props["ScheduleExpression"] = trigger.Schedule
	} else {
		pattern, err := trigger.Pattern.Map()
		if err != nil {
			return nil, fmt.Errorf("trigger %s: %s", trigger.Name, err)
		}
		props["EventPattern"] = pattern
	}
	s.add(logicalID, Resource{Type: TYPE_RULE, Properties: props})
	return Ref(logicalID), nil
}

// --------------------------------------------------------------------------

func (s *Stack) add(logicalID string, r Resource) {
	s.t.Resources[logicalID] = r
	log.WithFields(log.Fields{
		"resource": logicalID,
		"type":     r.Type,
	}).Debug("declared resource")
}

// role returns arn if set, else a reference to a role resource declared once
// per logical ID that the service can assume and that allows actions.
func (s *Stack) role(logicalID, service, arn string, actions []string) interface{} {
	if arn != "" {
		return arn
	}
	if _, ok := s.t.Resources[logicalID]; !ok {
		props := map[string]interface{}{
			"AssumeRolePolicyDocument": map[string]interface{}{
				"Version": "2012-10-17",
				"Statement": []interface{}{
					map[string]interface{}{
						"Effect":    "Allow",
						"Principal": map[string]interface{}{"Service": service},
						"Action":    "sts:AssumeRole",
					},
				},
			},
		}
		if service == "lambda.amazonaws.com" {
			props["ManagedPolicyArns"] = []string{
				"arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole",
				"arn:aws:iam::aws:policy/AWSXRayDaemonWriteAccess",
			}
		}
		if len(actions) > 0 {
			props["Policies"] = []interface{}{
				map[string]interface{}{
					"PolicyName": logicalID + "Policy",
					"PolicyDocument": map[string]interface{}{
						"Version": "2012-10-17",
						"Statement": []interface{}{
							map[string]interface{}{
								"Effect":   "Allow",
								"Action":   actions,
								"Resource": "*",
							},
						},
					},
				},
			}
		}
		s.add(logicalID, Resource{Type: TYPE_ROLE, Properties: props})
	}
	return getAtt(logicalID, "Arn")
}

// code returns the location of fn's code archive. Without a configured bucket
// the bucket is a template parameter.
func (s *Stack) code(fn compose.FuncRef) map[string]interface{} {
	var bucket interface{} = s.cfg.Function.CodeBucket
	if s.cfg.Function.CodeBucket == "" {
		s.t.Parameters["CodeBucket"] = Parameter{
			Type:        "String",
			Description: "S3 bucket with the function code archives",
		}
		bucket = ref("CodeBucket")
	}
	return map[string]interface{}{
		"S3Bucket": bucket,
		"S3Key":    s.cfg.Function.CodePrefix + fn.Package + ".zip",
	}
}

func (s *Stack) physicalName(name string) string {
	if s.cfg.Stack.Name == "" {
		return id.Alnum(name)
	}
	return s.cfg.Stack.Name + "-" + id.Alnum(name)
}

// functionTimeout returns the function timeout of cfg in whole seconds:
// FunctionTimeout if set, else Timeout.
func functionTimeout(cfg compose.Config) int {
	d := cfg.Function.Timeout
	if d == 0 {
		d = cfg.Timeout
	}
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(time.Second)))
}

func nilIfZero(v interface{}) interface{} {
	switch v := v.(type) {
	case string:
		if v == "" {
			return nil
		}
	case int:
		if v == 0 {
			return nil
		}
	}
	return v
}

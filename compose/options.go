// Copyright 2021, Square, Inc.

package compose

import (
	"time"

	"go.uber.org/multierr"

	oerr "github.com/square/orkestra/errors"
)

// InvocationType is how a task invokes its function.
type InvocationType string

const (
	InvocationRequestResponse InvocationType = "RequestResponse"
	InvocationEvent           InvocationType = "Event"
	InvocationDryRun          InvocationType = "DryRun"
)

// IntegrationPattern is how a task waits for its function.
type IntegrationPattern string

const (
	RequestResponse  IntegrationPattern = "REQUEST_RESPONSE"
	RunJob           IntegrationPattern = "RUN_JOB"
	WaitForTaskToken IntegrationPattern = "WAIT_FOR_TASK_TOKEN"
)

// Tracing is the tracing mode of a function.
type Tracing string

const (
	TracingActive      Tracing = "Active"
	TracingPassThrough Tracing = "PassThrough"
	TracingDisabled    Tracing = "Disabled"
)

// StateMachineType is the type of workflow a start node is published as.
type StateMachineType string

const (
	Standard StateMachineType = "STANDARD"
	Express  StateMachineType = "EXPRESS"
)

// Config holds the rendering hints of a node. Zero values mean "use the
// default", which the renderer or the resource stack fills in. Timeouts are
// inert: they are forwarded into the rendered definition, never enforced here.
type Config struct {
	Name    string // state name and function name; defaults to the function symbol
	Comment string

	// Task state
	Timeout             time.Duration
	InputPath           string
	OutputPath          string
	ResultPath          string
	PayloadResponseOnly *bool // nil: true unless an invocation type or task token is used
	InvocationType      InvocationType
	IntegrationPattern  IntegrationPattern

	// Map state, when MapJob is set
	MapJob         bool
	MaxConcurrency int // 0 is unlimited
	ItemsPath      string

	Function Function

	// Used only when the node is published as the start of a workflow.
	WorkflowType StateMachineType
}

// Function holds per-node overrides of the function resource.
type Function struct {
	Runtime         string
	MemorySize      int
	Timeout         time.Duration // defaults to Config.Timeout
	Tracing         Tracing
	Layers          []string
	DeadLetterQueue bool
	Environment     map[string]string
	Overrides       map[string]interface{} // raw resource properties, applied last
}

// ResponseOnly reports whether the task returns only the function payload
// rather than the full invocation response.
func (c Config) ResponseOnly() bool {
	if c.PayloadResponseOnly != nil {
		return *c.PayloadResponseOnly
	}
	return c.InvocationType == "" && c.IntegrationPattern != WaitForTaskToken
}

// An Option sets one field of a node's Config.
type Option func(*Config)

func Name(name string) Option       { return func(c *Config) { c.Name = name } }
func Comment(comment string) Option { return func(c *Config) { c.Comment = comment } }

// Timeout sets the task timeout and, unless FunctionTimeout is given, the
// function timeout.
func Timeout(d time.Duration) Option         { return func(c *Config) { c.Timeout = d } }
func FunctionTimeout(d time.Duration) Option { return func(c *Config) { c.Function.Timeout = d } }

func InputPath(path string) Option  { return func(c *Config) { c.InputPath = path } }
func OutputPath(path string) Option { return func(c *Config) { c.OutputPath = path } }
func ResultPath(path string) Option { return func(c *Config) { c.ResultPath = path } }

func PayloadResponseOnly(b bool) Option {
	return func(c *Config) { c.PayloadResponseOnly = &b }
}

func WithInvocationType(t InvocationType) Option {
	return func(c *Config) { c.InvocationType = t }
}

func WithIntegrationPattern(p IntegrationPattern) Option {
	return func(c *Config) { c.IntegrationPattern = p }
}

// MapJob makes the node iterate over its input: the function is invoked once
// per item of the array at ItemsPath (default "$").
func MapJob() Option                { return func(c *Config) { c.MapJob = true } }
func MaxConcurrency(n int) Option   { return func(c *Config) { c.MaxConcurrency = n } }
func ItemsPath(path string) Option  { return func(c *Config) { c.ItemsPath = path } }
func Runtime(runtime string) Option { return func(c *Config) { c.Function.Runtime = runtime } }
func MemorySize(mb int) Option      { return func(c *Config) { c.Function.MemorySize = mb } }
func WithTracing(t Tracing) Option  { return func(c *Config) { c.Function.Tracing = t } }
func DeadLetterQueue() Option       { return func(c *Config) { c.Function.DeadLetterQueue = true } }
func WorkflowType(t StateMachineType) Option {
	return func(c *Config) { c.WorkflowType = t }
}

// Layers adds layer version ARNs to the function.
func Layers(arns ...string) Option {
	return func(c *Config) { c.Function.Layers = append(c.Function.Layers, arns...) }
}

// Environment adds environment variables to the function.
func Environment(env map[string]string) Option {
	return func(c *Config) {
		if c.Function.Environment == nil {
			c.Function.Environment = map[string]string{}
		}
		for k, v := range env {
			c.Function.Environment[k] = v
		}
	}
}

// Overrides sets raw function resource properties. They are coalesced over
// every other setting, so a nil value leaves the property as it was.
func Overrides(props map[string]interface{}) Option {
	return func(c *Config) {
		if c.Function.Overrides == nil {
			c.Function.Overrides = map[string]interface{}{}
		}
		for k, v := range props {
			c.Function.Overrides[k] = v
		}
	}
}

// --------------------------------------------------------------------------

func newConfig(opts []Option) Config {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// copy returns c with its slices and maps copied so callers cannot change a
// node's config after construction.
func (c Config) copy() Config {
	if c.PayloadResponseOnly != nil {
		b := *c.PayloadResponseOnly
		c.PayloadResponseOnly = &b
	}
	if c.Function.Layers != nil {
		c.Function.Layers = append([]string(nil), c.Function.Layers...)
	}
	if c.Function.Environment != nil {
		env := make(map[string]string, len(c.Function.Environment))
		for k, v := range c.Function.Environment {
			env[k] = v
		}
		c.Function.Environment = env
	}
	if c.Function.Overrides != nil {
		props := make(map[string]interface{}, len(c.Function.Overrides))
		for k, v := range c.Function.Overrides {
			props[k] = v
		}
		c.Function.Overrides = props
	}
	return c
}

// validate returns every conflict in c, combined with multierr.
func (c Config) validate(node string, kind Kind) error {
	var err error
	conflict := func(reason string, options ...string) {
		err = multierr.Append(err, oerr.NewConfigConflict(node, reason, options...))
	}

	responseOnly := c.PayloadResponseOnly != nil && *c.PayloadResponseOnly
	if responseOnly && c.InvocationType != "" {
		conflict("payload-only responses use the default invocation type", "invocation_type", "payload_response_only")
	}
	if responseOnly && c.IntegrationPattern == WaitForTaskToken {
		conflict("a task token callback returns the full response", "integration_pattern", "payload_response_only")
	}

	switch c.InvocationType {
	case "", InvocationRequestResponse, InvocationEvent, InvocationDryRun:
	default:
		conflict("unknown invocation type "+string(c.InvocationType), "invocation_type")
	}
	switch c.IntegrationPattern {
	case "", RequestResponse, RunJob, WaitForTaskToken:
	default:
		conflict("unknown integration pattern "+string(c.IntegrationPattern), "integration_pattern")
	}
	switch c.Function.Tracing {
	case "", TracingActive, TracingPassThrough, TracingDisabled:
	default:
		conflict("unknown tracing mode "+string(c.Function.Tracing), "tracing")
	}
	switch c.WorkflowType {
	case "", Standard, Express:
	default:
		conflict("unknown state machine type "+string(c.WorkflowType), "workflow_type")
	}

	if !c.MapJob && (c.MaxConcurrency != 0 || c.ItemsPath != "") {
		conflict("only map jobs iterate over items", "max_concurrency", "items_path")
	}
	if c.MapJob && kind != Single {
		conflict("a fan-out group cannot be mapped over a collection", "map_job")
	}
	if kind != Single && c.hasInvocationOptions() {
		conflict("invocation and function options do not apply to a fan-out group; set them on the members", "function")
	}

	if c.Timeout < 0 {
		conflict("timeout must not be negative", "timeout")
	}
	if c.Function.Timeout < 0 {
		conflict("function timeout must not be negative", "function_timeout")
	}
	if c.Function.MemorySize < 0 {
		conflict("memory size must not be negative", "memory_size")
	}
	if c.MaxConcurrency < 0 {
		conflict("max concurrency must not be negative", "max_concurrency")
	}

	return err
}

func (c Config) hasInvocationOptions() bool {
	f := c.Function
	return c.Timeout != 0 || f.Runtime != "" || f.MemorySize != 0 || f.Timeout != 0 || f.Tracing != "" ||
		len(f.Layers) > 0 || f.DeadLetterQueue || len(f.Environment) > 0 || len(f.Overrides) > 0 ||
		c.PayloadResponseOnly != nil || c.InvocationType != "" || c.IntegrationPattern != ""
}

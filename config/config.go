// Copyright 2021, Square, Inc.

package config

import (
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"
)

///////////////////////////////////////////////////////////////////////////////
// High-Level Config Structs
///////////////////////////////////////////////////////////////////////////////

// The config used by synth. This is read from in synth/synth.go. Values not
// set in the file keep the value from Defaults.
type Synth struct {
	// The resource template (stack) that synth writes.
	Stack Stack `yaml:"stack"`

	// Defaults for every function resource. Node options override these.
	Function Function `yaml:"function"`

	// Defaults for every state machine resource.
	StateMachine StateMachine `yaml:"state_machine"`

	// Where and how synth writes the template.
	Output Output `yaml:"output"`

	// The config that the workflow API server runs with (synth serve).
	Server Server `yaml:"server"`
}

///////////////////////////////////////////////////////////////////////////////
// Config Components
///////////////////////////////////////////////////////////////////////////////

// Configuration for the resource template.
type Stack struct {
	// The stack name. It prefixes the physical names of state machines.
	Name string `yaml:"name"`

	// The template description.
	Description string `yaml:"description"`
}

// Configuration for function resources.
type Function struct {
	// The function runtime (ex: "go1.x", "provided.al2").
	Runtime string `yaml:"runtime"`

	// The handler passed to the runtime. For go1.x this is the name of the
	// executable in the code archive.
	Handler string `yaml:"handler"`

	// Memory in MB.
	MemorySize int `yaml:"memory_size"`

	// Timeout in seconds.
	Timeout int `yaml:"timeout"`

	// Tracing mode: Active, PassThrough or Disabled.
	Tracing string `yaml:"tracing"`

	// The execution role ARN. If not set, the template declares a role.
	Role string `yaml:"role"`

	// The bucket and key prefix of the code archives. Each function's key is
	// the prefix plus its package path plus ".zip".
	CodeBucket string `yaml:"code_bucket"`
	CodePrefix string `yaml:"code_prefix"`

	// Layer version ARNs added to every function.
	Layers []string `yaml:"layers"`

	// Environment variables set on every function.
	Environment map[string]string `yaml:"environment"`
}

// Configuration for state machine resources.
type StateMachine struct {
	// STANDARD or EXPRESS.
	Type string `yaml:"type"`

	// Enables X-Ray tracing of executions.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// The execution role ARN. If not set, the template declares a role.
	Role string `yaml:"role"`
}

// Configuration for writing the template.
type Output struct {
	// The directory the template file is written to. It is created if needed.
	Dir string `yaml:"dir"`

	// json or yaml.
	Format string `yaml:"format"`
}

// Configuration for a web server.
type Server struct {
	// The address the server will listen on (ex: "127.0.0.1:80").
	ListenAddress string `yaml:"listen_address"`

	// The TLS config used by the server.
	TLS `yaml:"tls_config"`
}

// TLS configuration.
type TLS struct {
	// The certificate file to use.
	CertFile string `yaml:"cert_file"`

	// The key file to use.
	KeyFile string `yaml:"key_file"`

	// The CA file to use.
	CAFile string `yaml:"ca_file"`
}

///////////////////////////////////////////////////////////////////////////////
// Defaults
///////////////////////////////////////////////////////////////////////////////

const (
	DEFAULT_STACK_NAME     = "orkestra"
	DEFAULT_RUNTIME        = "go1.x"
	DEFAULT_HANDLER        = "main"
	DEFAULT_MEMORY_SIZE    = 128
	DEFAULT_TIMEOUT        = 3
	DEFAULT_TRACING        = "PassThrough"
	DEFAULT_STATE_MACHINE  = "EXPRESS"
	DEFAULT_OUTPUT_DIR     = "out"
	DEFAULT_OUTPUT_FORMAT  = "json"
	DEFAULT_LISTEN_ADDRESS = "127.0.0.1:9340"
)

// Defaults returns the config used when no config file is given. Load a file
// into it to override values.
func Defaults() Synth {
	return Synth{
		Stack: Stack{
			Name: DEFAULT_STACK_NAME,
		},
		Function: Function{
			Runtime:    DEFAULT_RUNTIME,
			Handler:    DEFAULT_HANDLER,
			MemorySize: DEFAULT_MEMORY_SIZE,
			Timeout:    DEFAULT_TIMEOUT,
			Tracing:    DEFAULT_TRACING,
		},
		StateMachine: StateMachine{
			Type: DEFAULT_STATE_MACHINE,
		},
		Output: Output{
			Dir:    DEFAULT_OUTPUT_DIR,
			Format: DEFAULT_OUTPUT_FORMAT,
		},
		Server: Server{
			ListenAddress: DEFAULT_LISTEN_ADDRESS,
		},
	}
}

///////////////////////////////////////////////////////////////////////////////
// Loading Config
///////////////////////////////////////////////////////////////////////////////

// Load loads a configuration file into the struct pointed to by the
// configStruct argument.
func Load(configFile string, configStruct interface{}) error {
	// Make sure the file exists.
	_, err := os.Stat(configFile)
	if err != nil {
		return err
	}

	// Read the file.
	data, err := ioutil.ReadFile(configFile)
	if err != nil {
		return err
	}

	// Unmarshal the contents of the file into the provided struct.
	err = yaml.Unmarshal(data, configStruct)
	if err != nil {
		return err
	}

	return nil
}

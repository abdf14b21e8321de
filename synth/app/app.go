// Copyright 2021, Square, Inc.

// Package app provides app-wide data structs and functions.
package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/square/orkestra/compose"
	"github.com/square/orkestra/config"
	"github.com/square/orkestra/execution"
	"github.com/square/orkestra/id"
	"github.com/square/orkestra/render"
	"github.com/square/orkestra/schedule"
)

// Context represents how to run synth. A context is passed to synth.Run().
// A program that declares workflows creates a default context with Defaults,
// adds its workflows, and calls synth.Run(). Integration is done primarily
// with hooks and factories.
type Context struct {
	// Set by the program
	Out       io.Writer           // where to print output (default: stdout)
	Workflows []Workflow          // workflows to synthesize
	Functions []ScheduledFunction // functions invoked on a schedule without a workflow
	Hooks     Hooks               // for integration with other code
	Factories Factories           // for integration with other code

	// Set automatically in synth.Run()
	Options Options      // command line options (--config, etc.)
	Command Command      // command and args, if any ("graph <workflow>", etc.)
	Config  config.Synth // config file and defaults, overridden by options
}

// Workflow is a composition graph published as a workflow. It is started by
// Schedule or Events if either is set.
type Workflow struct {
	Name    string
	Root    *compose.Node
	Comment string
	Timeout time.Duration

	Schedule string // rate(...) or cron(...)
	Events   *schedule.EventPattern
}

// ScheduledFunction is a single node whose function is invoked on a schedule.
type ScheduledFunction struct {
	Node     *compose.Node
	Schedule string
}

type Factories struct {
	// MakeIDGeneratorFactory makes the factory of the render session's name
	// generator. The default repeats names as "double", "double_2", ...
	MakeIDGeneratorFactory func(Context) (id.GeneratorFactory, error)

	// MakeStarter makes the starter that published workflows use to start
	// executions (synth serve). The default records executions.
	MakeStarter func(Context) (execution.Starter, error)
}

type Hooks struct {
	LoadConfig        func(Context) (config.Synth, error)
	AfterParseOptions func(*Options)
}

func Defaults() Context {
	return Context{
		Out: os.Stdout,
		Factories: Factories{
			MakeIDGeneratorFactory: MakeIDGeneratorFactory,
			MakeStarter:            MakeStarter,
		},
		Hooks: Hooks{
			LoadConfig: LoadConfig,
		},
	}
}

// LoadConfig is the default LoadConfig hook. It loads the --config file, if
// any, over the defaults, then applies command line options.
func LoadConfig(ctx Context) (config.Synth, error) {
	cfg := config.Defaults()
	if ctx.Options.Config != "" {
		if err := config.Load(ctx.Options.Config, &cfg); err != nil {
			return cfg, fmt.Errorf("loading config file %s: %s", ctx.Options.Config, err)
		}
	}
	if ctx.Options.Out != "" {
		cfg.Output.Dir = ctx.Options.Out
	}
	if ctx.Options.Format != "" {
		cfg.Output.Format = ctx.Options.Format
	}
	if ctx.Options.Addr != "" {
		cfg.Server.ListenAddress = ctx.Options.Addr
	}
	return cfg, nil
}

// MakeIDGeneratorFactory is the default MakeIDGeneratorFactory factory.
func MakeIDGeneratorFactory(ctx Context) (id.GeneratorFactory, error) {
	return render.Names, nil
}

// MakeStarter is the default MakeStarter factory.
func MakeStarter(ctx Context) (execution.Starter, error) {
	return execution.NewRecorder(), nil
}

// Workflow returns the workflow with the given name.
func (ctx Context) Workflow(name string) (Workflow, bool) {
	for _, wf := range ctx.Workflows {
		if wf.Name == name {
			return wf, true
		}
	}
	return Workflow{}, false
}

// //////////////////////////////////////////////////////////////////////////
// Command line
// //////////////////////////////////////////////////////////////////////////

// Options represents typical command line options: --config, --out, etc.
type Options struct {
	Config         string `arg:"env" help:"config file (YAML)"`
	Out            string `arg:"env" help:"output directory"`
	Format         string `arg:"env" help:"template format: json or yaml"`
	Addr           string `arg:"env" help:"listen address for serve"`
	Debug          bool   `help:"debug logging"`
	ShareFunctions bool   `arg:"--share-functions" help:"one function resource per node, not per occurrence"`
	Version        bool   `help:"print version and exit"`
}

// Command represents a command (synth, graph, etc.) and its values.
type Command struct {
	Cmd  string   `arg:"positional"`
	Args []string `arg:"positional"`
}

// CommandLine represents options (--config, etc.) and commands (graph, etc.).
type CommandLine struct {
	Options
	Command
}

// ParseCommandLine parses args and env vars. Command line options override env
// vars, which override def. If help is requested, the help text is written to
// out and arg.ErrHelp is returned.
func ParseCommandLine(args []string, def Options, out io.Writer) (CommandLine, error) {
	var c CommandLine
	c.Options = def
	p, err := arg.NewParser(arg.Config{Program: "synth"}, &c)
	if err != nil {
		return c, fmt.Errorf("arg.NewParser: %s", err)
	}
	if err := p.Parse(args); err != nil {
		if err == arg.ErrHelp {
			p.WriteHelp(out)
		}
		return c, err
	}
	return c, nil
}

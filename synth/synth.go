// Copyright 2021, Square, Inc.

// Package synth provides the synth command line: it renders the workflows in
// an app.Context into a resource template and, optionally, serves them.
//
// A program that declares workflows is its own synth binary:
//
//	func main() {
//		ctx := app.Defaults()
//		ctx.Workflows = []app.Workflow{{Name: "greeter", Root: hello}}
//		synth.Run(ctx)
//	}
//
// Commands: synth (default), list, graph <workflow>, definition <workflow>,
// serve, version.
package synth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexflint/go-arg"
	log "github.com/sirupsen/logrus"

	"github.com/square/orkestra/api"
	"github.com/square/orkestra/compose"
	"github.com/square/orkestra/execution"
	"github.com/square/orkestra/render"
	"github.com/square/orkestra/stack"
	"github.com/square/orkestra/synth/app"
	"github.com/square/orkestra/version"
)

// Run runs synth with the command line and exits when done.
func Run(ctx app.Context) {
	if err := Main(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

// Main runs synth with the given command line arguments.
func Main(ctx app.Context, args []string) error {
	if ctx.Out == nil {
		ctx.Out = os.Stdout
	}

	// //////////////////////////////////////////////////////////////////////
	// Config and command line
	// //////////////////////////////////////////////////////////////////////
	cmdLine, err := app.ParseCommandLine(args, app.Options{}, ctx.Out)
	if err != nil {
		if err == arg.ErrHelp {
			return nil
		}
		return fmt.Errorf("Error parsing command line: %s", err)
	}
	o := cmdLine.Options
	if o.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if ctx.Hooks.AfterParseOptions != nil {
		ctx.Hooks.AfterParseOptions(&o)
	}
	ctx.Options = o
	ctx.Command = cmdLine.Command
	log.Debugf("command: %#v", ctx.Command)
	log.Debugf("options: %#v", ctx.Options)

	if o.Version || ctx.Command.Cmd == "version" {
		fmt.Fprintln(ctx.Out, version.Banner("synth"))
		return nil
	}

	loadConfig := ctx.Hooks.LoadConfig
	if loadConfig == nil {
		loadConfig = app.LoadConfig
	}
	if ctx.Config, err = loadConfig(ctx); err != nil {
		return err
	}

	// //////////////////////////////////////////////////////////////////////
	// Commands
	// //////////////////////////////////////////////////////////////////////
	switch ctx.Command.Cmd {
	case "", "synth":
		return synthCmd(ctx)
	case "list":
		return listCmd(ctx)
	case "graph":
		return graphCmd(ctx)
	case "definition":
		return definitionCmd(ctx)
	case "serve":
		return serveCmd(ctx)
	}
	return fmt.Errorf("Unknown command: %s. Commands: synth, list, graph, definition, serve, version.", ctx.Command.Cmd)
}

// Synthesize renders every workflow and scheduled function of ctx in one
// session and returns the stack that holds them.
func Synthesize(ctx app.Context, starter execution.Starter) (*stack.Stack, error) {
	makeIDGen := ctx.Factories.MakeIDGeneratorFactory
	if makeIDGen == nil {
		makeIDGen = app.MakeIDGeneratorFactory
	}
	idf, err := makeIDGen(ctx)
	if err != nil {
		return nil, fmt.Errorf("making name generator factory: %s", err)
	}

	s := stack.New(ctx.Config, starter)
	session := render.NewSession(idf)
	session.ShareFunctions = ctx.Options.ShareFunctions

	for _, wf := range ctx.Workflows {
		cfg := render.WorkflowConfig{
			Name:    wf.Name,
			Comment: wf.Comment,
			Timeout: wf.Timeout,
		}
		switch {
		case wf.Schedule != "":
			_, err = session.BindSchedule(s, wf.Root, cfg, wf.Schedule)
		case wf.Events != nil:
			_, err = session.BindEvents(s, wf.Root, cfg, *wf.Events)
		default:
			_, err = session.Publish(s, wf.Root, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("rendering workflow %s: %w", wf.Name, err)
		}
	}

	for _, fn := range ctx.Functions {
		if _, err := session.ScheduleFunction(s, fn.Node, fn.Schedule); err != nil {
			return nil, fmt.Errorf("scheduling function %s: %w", fn.Node.Name(), err)
		}
	}

	log.WithFields(log.Fields{
		"workflows": len(ctx.Workflows),
		"functions": len(ctx.Functions),
		"resources": len(s.Template().Resources),
	}).Info("synthesized")
	return s, nil
}

// --------------------------------------------------------------------------

// synth [--out dir] [--format json|yaml]
func synthCmd(ctx app.Context) error {
	s, err := Synthesize(ctx, nil)
	if err != nil {
		return err
	}

	out := ctx.Config.Output
	if err := os.MkdirAll(out.Dir, 0755); err != nil {
		return err
	}
	file := filepath.Join(out.Dir, ctx.Config.Stack.Name+".template."+out.Format)
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := s.Template().Write(f, out.Format); err != nil {
		f.Close()
		os.Remove(file)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, file)
	return nil
}

// list
func listCmd(ctx app.Context) error {
	for _, wf := range ctx.Workflows {
		trigger := ""
		switch {
		case wf.Schedule != "":
			trigger = " " + wf.Schedule
		case wf.Events != nil:
			trigger = " events"
		}
		fmt.Fprintf(ctx.Out, "%s%s\n", wf.Name, trigger)
	}
	for _, fn := range ctx.Functions {
		fmt.Fprintf(ctx.Out, "%s (function) %s\n", fn.Node.Name(), fn.Schedule)
	}
	return nil
}

// graph <workflow>
func graphCmd(ctx app.Context) error {
	wf, err := workflowArg(ctx)
	if err != nil {
		return err
	}
	return compose.WriteDot(ctx.Out, wf.Name, wf.Root)
}

// definition <workflow>
func definitionCmd(ctx app.Context) error {
	wf, err := workflowArg(ctx)
	if err != nil {
		return err
	}
	s, err := Synthesize(ctx, nil)
	if err != nil {
		return err
	}
	published, err := s.Workflow(wf.Name)
	if err != nil {
		return err
	}
	bytes, err := json.MarshalIndent(published.Definition(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, string(bytes))
	return nil
}

// serve [--addr host:port]
func serveCmd(ctx app.Context) error {
	makeStarter := ctx.Factories.MakeStarter
	if makeStarter == nil {
		makeStarter = app.MakeStarter
	}
	starter, err := makeStarter(ctx)
	if err != nil {
		return fmt.Errorf("making execution starter: %s", err)
	}
	s, err := Synthesize(ctx, starter)
	if err != nil {
		return err
	}

	lister, _ := starter.(api.ExecutionLister)
	a := api.NewAPI(ctx.Config.Server, lister)
	for _, wf := range s.Workflows() {
		if err := a.Register(wf); err != nil {
			return fmt.Errorf("registering workflow %s: %s", wf.Name(), err)
		}
	}
	return a.Run()
}

func workflowArg(ctx app.Context) (app.Workflow, error) {
	if len(ctx.Command.Args) != 1 {
		return app.Workflow{}, fmt.Errorf("Usage: %s <workflow>", ctx.Command.Cmd)
	}
	wf, ok := ctx.Workflow(ctx.Command.Args[0])
	if !ok {
		return app.Workflow{}, fmt.Errorf("Unknown workflow: %s. Run 'synth list' to list workflows.", ctx.Command.Args[0])
	}
	return wf, nil
}

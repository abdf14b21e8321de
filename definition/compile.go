// Copyright 2021, Square, Inc.

package definition

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document is a compiled Amazon States Language document: a whole state
// machine, a Parallel branch, or a Map iterator.
type Document struct {
	Comment        string               `json:"Comment,omitempty"`
	StartAt        string               `json:"StartAt"`
	States         map[string]*StateDoc `json:"States"`
	TimeoutSeconds int                  `json:"TimeoutSeconds,omitempty"`

	handles []Handle
}

// StateDoc is one compiled state.
type StateDoc struct {
	Type           string                 `json:"Type"`
	Comment        string                 `json:"Comment,omitempty"`
	Resource       string                 `json:"Resource,omitempty"`
	Parameters     map[string]interface{} `json:"Parameters,omitempty"`
	TimeoutSeconds int                    `json:"TimeoutSeconds,omitempty"`
	InputPath      string                 `json:"InputPath,omitempty"`
	OutputPath     string                 `json:"OutputPath,omitempty"`
	ResultPath     string                 `json:"ResultPath,omitempty"`
	ItemsPath      string                 `json:"ItemsPath,omitempty"`
	MaxConcurrency int                    `json:"MaxConcurrency,omitempty"`
	Iterator       *Document              `json:"Iterator,omitempty"`
	Branches       []*Document            `json:"Branches,omitempty"`
	Catch          []Catcher              `json:"Catch,omitempty"`
	Next           string                 `json:"Next,omitempty"`
	End            bool                   `json:"End,omitempty"`
}

// Catcher routes matching errors of a state to another state.
type Catcher struct {
	ErrorEquals []string `json:"ErrorEquals"`
	Next        string   `json:"Next"`
	ResultPath  string   `json:"ResultPath,omitempty"`
}

// Handles returns the compute resources referenced by the document's tasks,
// once each, in the order they are first referenced.
func (d *Document) Handles() []Handle {
	return append([]Handle(nil), d.handles...)
}

// JSON returns the document as indented JSON.
func (d *Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Options configure the top level of a compiled document.
type Options struct {
	Comment string
	Timeout time.Duration
}

// Compile compiles the states reachable from the start of c. State names must
// be unique within the whole document, so a state reached twice, by a cycle
// or by two paths, is an error. A state with more than one next state is
// followed by an implicit Parallel state named "<state> fan-out" with one
// branch per next state; every branch ends there.
func Compile(c Chain, opts Options) (*Document, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("empty chain")
	}
	cc := &compiler{
		names: map[string]bool{},
		seen:  map[string]bool{},
	}
	doc, err := cc.scope(c.start)
	if err != nil {
		return nil, err
	}
	doc.Comment = opts.Comment
	doc.TimeoutSeconds = seconds(opts.Timeout)
	doc.handles = cc.handles
	return doc, nil
}

// --------------------------------------------------------------------------

type compiler struct {
	names   map[string]bool // state names used anywhere in the document
	seen    map[string]bool // logical IDs in handles
	handles []Handle
}

func (c *compiler) reference(h Handle) {
	if c.seen[h.LogicalID()] {
		return
	}
	c.seen[h.LogicalID()] = true
	c.handles = append(c.handles, h)
}

func (c *compiler) claim(name string) error {
	if name == "" {
		return fmt.Errorf("state has no name")
	}
	if c.names[name] {
		return fmt.Errorf("state %q is defined more than once", name)
	}
	c.names[name] = true
	return nil
}

// scope compiles one list of states: the states reachable from start by
// single next edges.
func (c *compiler) scope(start State) (*Document, error) {
	doc := &Document{
		StartAt: start.Name(),
		States:  map[string]*StateDoc{},
	}
	for s := start; s != nil; {
		if err := c.claim(s.Name()); err != nil {
			return nil, err
		}
		d, err := s.compile(c)
		if err != nil {
			return nil, fmt.Errorf("state %s: %s", s.Name(), err)
		}
		doc.States[s.Name()] = d

		next := s.Next()
		switch len(next) {
		case 0:
			d.End = true
			s = nil
		case 1:
			d.Next = next[0].Name()
			s = next[0]
		default:
			fan, err := c.fanOut(s.Name()+" fan-out", next)
			if err != nil {
				return nil, err
			}
			d.Next = s.Name() + " fan-out"
			doc.States[d.Next] = fan
			s = nil
		}
	}
	return doc, nil
}

func (c *compiler) fanOut(name string, next []State) (*StateDoc, error) {
	if err := c.claim(name); err != nil {
		return nil, err
	}
	d := &StateDoc{Type: "Parallel", End: true}
	for _, s := range next {
		branch, err := c.scope(s)
		if err != nil {
			return nil, err
		}
		d.Branches = append(d.Branches, branch)
	}
	return d, nil
}

// catchAll makes every state of doc that can fail catch all errors and route
// them to a Pass state that ends the branch with the error in $.error.
func (c *compiler) catchAll(doc *Document) error {
	pass := doc.StartAt + " failed"
	if err := c.claim(pass); err != nil {
		return err
	}
	for _, d := range doc.States {
		switch d.Type {
		case "Task", "Map", "Parallel":
			d.Catch = append(d.Catch, Catcher{
				ErrorEquals: []string{"States.ALL"},
				Next:        pass,
				ResultPath:  "$.error",
			})
		}
	}
	d, err := NewPass(pass, Paths{}).compile(c)
	if err != nil {
		return err
	}
	d.End = true
	doc.States[pass] = d
	return nil
}

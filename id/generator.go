// Copyright 2021, Square, Inc.

// Package id provides name allocation and unique ids for a synthesis run.
package id

import (
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/xid"
)

// A GeneratorFactory makes Generators. Make one Generator per synthesis run so
// that identically-named nodes in unrelated runs do not collide.
type GeneratorFactory interface {
	// Make makes a Generator.
	Make() Generator
}

// generatorFactory implements the GeneratorFactory interface.
type generatorFactory struct {
	sep string // between a base name and its count
}

// NewGeneratorFactory creates a GeneratorFactory. Generators it makes join a
// repeated base name and its count with sep, e.g. "double_2" for sep "_".
func NewGeneratorFactory(sep string) GeneratorFactory {
	return &generatorFactory{
		sep: sep,
	}
}

func (f *generatorFactory) Make() Generator {
	return NewGenerator(f.sep)
}

// A Generator allocates names and ids. It is safe for use in concurrent threads.
type Generator interface {
	// Name returns base the first time base is given, then base+sep+"2",
	// base+sep+"3", and so on. The returned name is unique to the Generator.
	Name(base string) string

	// UID generates a globally unique id.
	UID() string
}

// generator implements the Generator interface.
type generator struct {
	sep    string
	counts map[string]int      // base name -> times requested
	used   map[string]struct{} // every name handed out
	*sync.Mutex
}

// NewGenerator creates a Generator with the given separator.
func NewGenerator(sep string) Generator {
	return &generator{
		sep:    sep,
		counts: map[string]int{},
		used:   map[string]struct{}{},
		Mutex:  &sync.Mutex{},
	}
}

func (g *generator) Name(base string) string {
	g.Lock()
	defer g.Unlock()

	n := g.counts[base]
	for {
		n++
		name := base
		if n > 1 {
			name = base + g.sep + strconv.Itoa(n)
		}
		if _, ok := g.used[name]; !ok {
			g.counts[base] = n
			g.used[name] = struct{}{}
			return name
		}
	}
}

func (g *generator) UID() string {
	return xid.New().String()
}

// ------------------------------------------------------------------------- //

// Alnum converts s to an alphanumeric CamelCase identifier: "say_hello fn"
// becomes "SayHelloFn". Resource logical ids must be alphanumeric. An empty
// result is returned as "Resource".
func Alnum(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "Resource"
	}
	return b.String()
}

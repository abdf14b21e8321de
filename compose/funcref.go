// Copyright 2021, Square, Inc.

package compose

import (
	"reflect"
	"runtime"
	"strings"
)

// FuncRef identifies a function for packaging: the import path of its package
// and its symbol within the package.
type FuncRef struct {
	Package string // e.g. github.com/square/orkestra/examples
	Symbol  string // e.g. Hello, Greeter.Greet, glob..func1
}

// RefOf returns the FuncRef of fn, or the zero FuncRef if fn is not a non-nil
// function.
func RefOf(fn interface{}) FuncRef {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return FuncRef{}
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return FuncRef{}
	}
	return parseFuncName(f.Name())
}

// Short returns the last element of the symbol: "Greet" for "Greeter.Greet".
func (r FuncRef) Short() string {
	if i := strings.LastIndex(r.Symbol, "."); i >= 0 {
		return r.Symbol[i+1:]
	}
	return r.Symbol
}

func (r FuncRef) String() string {
	if r.Package == "" {
		return r.Symbol
	}
	return r.Package + "." + r.Symbol
}

// parseFuncName splits a runtime function name such as
// "github.com/square/orkestra/examples.(*Greeter).Greet-fm" into its package
// path and a cleaned symbol ("Greeter.Greet").
func parseFuncName(full string) FuncRef {
	dir, rest := "", full
	if i := strings.LastIndex(full, "/"); i >= 0 {
		dir, rest = full[:i+1], full[i+1:]
	}
	pkg, sym := rest, ""
	if i := strings.Index(rest, "."); i >= 0 {
		pkg, sym = rest[:i], rest[i+1:]
	}
	sym = strings.TrimSuffix(sym, "-fm")
	sym = strings.NewReplacer("(*", "", "(", "", ")", "").Replace(sym)
	return FuncRef{
		Package: dir + pkg,
		Symbol:  sym,
	}
}

// Copyright 2021, Square, Inc.

package definition

// Chain is a sequence of states with a fixed start. Next links a state to the
// end of the chain and returns a chain that ends at it. Chains are values:
// calling Next twice on the same chain gives its end state two next states,
// which Compile renders as a fan-out.
type Chain struct {
	start State
	end   State
}

// Start returns a chain containing only s.
func Start(s State) Chain {
	return Chain{start: s, end: s}
}

// Next adds s after the end of c and returns the chain from c's start to s.
func (c Chain) Next(s State) Chain {
	if c.end == nil {
		return Start(s)
	}
	c.end.addNext(s)
	return Chain{start: c.start, end: s}
}

func (c Chain) StartState() State { return c.start }
func (c Chain) EndState() State   { return c.end }
func (c Chain) IsZero() bool      { return c.start == nil }

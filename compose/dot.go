// Copyright 2021, Square, Inc.

package compose

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDot writes the graph reachable from root in DOT format. Every node is
// printed once, even if it is reachable by several paths or is on a cycle, so
// WriteDot can be used to look at a graph that fails to render.
func WriteDot(w io.Writer, name string, root *Node) error {
	bw := bufio.NewWriter(w)

	ids := map[*Node]string{}
	order := []*Node{}
	var walk func(n *Node)
	walk = func(n *Node) {
		if _, ok := ids[n]; ok {
			return
		}
		ids[n] = fmt.Sprintf("n%d", len(ids))
		order = append(order, n)
		for _, next := range n.downstream {
			walk(next)
		}
	}
	walk(root)

	fmt.Fprintf(bw, "digraph {\n")
	fmt.Fprintf(bw, "\trankdir=UD;\n")
	fmt.Fprintf(bw, "\tlabelloc=\"t\";\n")
	fmt.Fprintf(bw, "\tlabel=%q\n", name)
	for _, n := range order {
		switch n.kind {
		case Single:
			fmt.Fprintf(bw, "\t%s [style=filled,color=\"#86cedf\",shape=box,label=%q]\n", ids[n], dotLabel(n))
		default:
			style := "solid"
			if n.kind == FailSoft {
				style = "dashed"
			}
			fmt.Fprintf(bw, "\tsubgraph cluster_%s {\n", ids[n])
			fmt.Fprintf(bw, "\t\tstyle=%s;\n", style)
			fmt.Fprintf(bw, "\t\tlabel=%q;\n", n.kind.String())
			fmt.Fprintf(bw, "\t\t%s [shape=point]\n", ids[n])
			for i, m := range n.members {
				fmt.Fprintf(bw, "\t\t%s_%d [style=filled,color=\"#86cedf\",shape=box,label=%q]\n", ids[n], i, dotLabel(m))
			}
			fmt.Fprintf(bw, "\t}\n")
		}
	}
	for _, n := range order {
		for _, next := range n.downstream {
			fmt.Fprintf(bw, "\t%s -> %s;\n", ids[n], ids[next])
		}
	}
	fmt.Fprintf(bw, "}\n")

	return bw.Flush()
}

func dotLabel(n *Node) string {
	if n.cfg.MapJob {
		return n.Name() + "\n(map)"
	}
	return n.Name()
}

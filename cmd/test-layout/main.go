// Command test-layout prints a layout preset and, given -from and -to, the route a train would take.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/layout"
	"nyiyui.ca/hato/shingo/tal/plan"
)

func main() {
	preset := flag.String("preset", "testbench2", "layout preset")
	from := flag.String("from", "", "block to route from")
	to := flag.String("to", "", "block to route to")
	metric := flag.String("metric", "hops", "hops or length")
	flag.Parse()

	build, ok := layout.Presets[*preset]
	if !ok {
		names := make([]string, 0, len(layout.Presets))
		for name := range layout.Presets {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(os.Stderr, "unknown preset %q (have %v)\n", *preset, names)
		os.Exit(2)
	}
	y, err := build()
	if err != nil {
		panic(err)
	}
	for bi, b := range y.Blocks {
		fmt.Printf("block %d %s: %dmm", bi, b.Comment, b.Length/1000)
		if b.Station {
			fmt.Print(" station")
		}
		fmt.Println()
		for _, arc := range y.Neighbors(layout.BlockI(bi)) {
			fmt.Printf("  → %s", y.Blocks[arc.To].Comment)
			if arc.Switch != layout.NoSwitch {
				fmt.Printf(" (%s %s)", y.Switches[arc.Switch].Comment, arc.Position)
			}
			fmt.Println()
		}
	}
	for _, sig := range y.Signals {
		approach := "-"
		if sig.Approach != layout.NoBlock {
			approach = y.Blocks[sig.Approach].Comment
		}
		fmt.Printf("signal %s: %s → %s\n", sig.Comment, approach, y.Blocks[sig.Protects].Comment)
	}

	if *from == "" || *to == "" {
		return
	}
	m, err := plan.ParseMetric(*metric)
	if err != nil {
		panic(err)
	}
	a, ok := y.LookupBlock(*from)
	if !ok {
		panic(fmt.Sprintf("unknown block %s", *from))
	}
	b, ok := y.LookupBlock(*to)
	if !ok {
		panic(fmt.Sprintf("unknown block %s", *to))
	}
	tr := tal.New(y, nil)
	r, err := plan.New(tr, m).Plan(1, a, b, plan.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "plan: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("route %s → %s:", *from, *to)
	for _, bi := range r.Blocks {
		fmt.Printf(" %s", y.Blocks[bi].Comment)
	}
	fmt.Println()
	for _, ei := range r.Edges {
		if e := y.Edges[ei]; e.HasSwitch() {
			fmt.Printf("  set %s %s\n", y.Switches[e.Switch].Comment, e.Position)
		}
	}
}

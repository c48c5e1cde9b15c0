package visualize

import (
	"fmt"
	"sort"
	"strings"
)

// RenderText renders snap as a short human-readable status report, the
// default format for `exec show`.
func RenderText(snap Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "paths: %d total, %d active\n", len(snap.AllPaths), len(snap.ActivePaths))
	for _, p := range snap.AllPaths {
		fmt.Fprintf(&b, "  %-12s %-10s node=%s priority=%d\n", p.ID, p.Status, p.CurrentNode, p.Priority)
	}

	if len(snap.NodeStates) > 0 {
		b.WriteString("nodes:\n")
		names := make([]string, 0, len(snap.NodeStates))
		for name := range snap.NodeStates {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ns := snap.NodeStates[name]
			active := ""
			if ns.IsActive {
				active = " (active)"
			}
			fmt.Fprintf(&b, "  %-20s visits=%d%s\n", name, ns.VisitCount, active)
		}
	}

	if len(snap.AvailableTransitions) > 0 {
		b.WriteString("available transitions:\n")
		for _, t := range snap.AvailableTransitions {
			fmt.Fprintf(&b, "  %s: %s -> %s\n", t.PathID, t.From, t.To)
		}
	}

	return b.String()
}

// RenderDOT renders snap as a Graphviz DOT graph: one node per entry in
// NodeStates, one edge per AvailableTransitions entry, active nodes filled.
func RenderDOT(snap Snapshot) string {
	var b strings.Builder
	b.WriteString("digraph execution {\n")
	b.WriteString("  rankdir=LR;\n")

	names := make([]string, 0, len(snap.NodeStates))
	for name := range snap.NodeStates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ns := snap.NodeStates[name]
		style := "style=solid"
		if ns.IsActive {
			style = "style=filled,fillcolor=lightgreen"
		}
		fmt.Fprintf(&b, "  %q [label=%q,%s];\n", name, fmt.Sprintf("%s (%d)", name, ns.VisitCount), style)
	}

	for _, t := range snap.AvailableTransitions {
		fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", t.From, t.To, t.PathID)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderSVG renders snap as a minimal self-contained SVG: nodes laid out
// left to right in name order, transitions drawn as straight arrows. This
// is not a general graph-layout engine — it is deliberately simple, a
// diagnostic view rather than a publication-quality diagram.
func RenderSVG(snap Snapshot) string {
	names := make([]string, 0, len(snap.NodeStates))
	for name := range snap.NodeStates {
		names = append(names, name)
	}
	sort.Strings(names)

	const boxWidth, boxHeight, gapX, marginY = 140, 40, 60, 40
	positions := make(map[string][2]int, len(names))
	for i, name := range names {
		positions[name] = [2]int{i*(boxWidth+gapX) + 20, marginY}
	}

	width := len(names)*(boxWidth+gapX) + 40
	if width < 200 {
		width = 200
	}
	height := marginY*2 + boxHeight + 40

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`+"\n", width, height)

	for _, t := range snap.AvailableTransitions {
		from, fromOK := positions[t.From]
		to, toOK := positions[t.To]
		if !fromOK || !toOK {
			continue
		}
		x1, y1 := from[0]+boxWidth, from[1]+boxHeight/2
		x2, y2 := to[0], to[1]+boxHeight/2
		fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black" marker-end="url(#arrow)"/>`+"\n", x1, y1, x2, y2)
	}

	for _, name := range names {
		ns := snap.NodeStates[name]
		pos := positions[name]
		fill := "white"
		if ns.IsActive {
			fill = "lightgreen"
		}
		fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" stroke="black"/>`+"\n",
			pos[0], pos[1], boxWidth, boxHeight, fill)
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="12" text-anchor="middle">%s (%d)</text>`+"\n",
			pos[0]+boxWidth/2, pos[1]+boxHeight/2+4, escapeSVGText(name), ns.VisitCount)
	}

	b.WriteString(`<defs><marker id="arrow" markerWidth="10" markerHeight="10" refX="9" refY="3" orient="auto"><path d="M0,0 L0,6 L9,3 z"/></marker></defs>` + "\n")
	b.WriteString("</svg>\n")
	return b.String()
}

func escapeSVGText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

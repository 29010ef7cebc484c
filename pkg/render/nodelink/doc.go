// Package nodelink draws a wiring graph as a node-link diagram.
//
// Each revision is a box. Resolved revisions are white, unresolved ones
// pink, removal-pending ones grey and fragments use a folded-note shape.
// Wires become arrows from requirer to provider, merged per pair of
// revisions and styled by namespace: packages solid, bundles bold and
// fragment hosts dashed.
//
//	dot := nodelink.ToDOT(st.All(), nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// [Options.Namespace] keeps only the wires of one namespace. The DOT
// source is deterministic for a given input so it can be cached by
// [Hash].
package nodelink

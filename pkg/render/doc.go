// Package render turns resolved wirings into pictures.
//
// The [nodelink] subpackage emits Graphviz DOT for a set of revisions and
// renders it to SVG in process. [ToPDF] and [ToPNG] convert that SVG with
// the external rsvg-convert tool (from librsvg).
//
//	dot := nodelink.ToDOT(st.All(), nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//	pdf, err := render.ToPDF(ctx, svg)
//
// [nodelink]: github.com/matzehuels/bundlewire/pkg/render/nodelink
package render

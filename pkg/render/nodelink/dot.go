package nodelink

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/render"
)

// Options configures diagram generation.
type Options struct {
	// Detailed lists the wired names on each arrow and the id and
	// location in each box.
	Detailed bool
	// Namespace keeps only wires in this namespace, e.g.
	// "osgi.wiring.package". Empty keeps all.
	Namespace string
	// HideUnresolved omits revisions without a wiring.
	HideUnresolved bool
}

type edge struct {
	from, to *model.Revision
	ns       model.Namespace
	names    []string
}

// ToDOT converts revisions and their wirings to Graphviz DOT. Wires to
// revisions not in revs are dropped.
func ToDOT(revs []*model.Revision, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph wiring {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\", fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("\n")

	shown := make(map[*model.Revision]bool, len(revs))
	for _, r := range revs {
		if opts.HideUnresolved && !r.IsResolved() {
			continue
		}
		shown[r] = true
		fmt.Fprintf(&buf, "  %q [%s];\n", nodeID(r), strings.Join(fmtAttrs(r, opts.Detailed), ", "))
	}

	edges := collectEdges(revs, shown, opts.Namespace)
	if len(edges) > 0 {
		buf.WriteString("\n")
	}
	for _, e := range edges {
		attrs := edgeAttrs(e, opts.Detailed)
		if len(attrs) == 0 {
			fmt.Fprintf(&buf, "  %q -> %q;\n", nodeID(e.from), nodeID(e.to))
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", nodeID(e.from), nodeID(e.to), strings.Join(attrs, ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeID(r *model.Revision) string {
	return "r" + strconv.FormatInt(r.ID(), 10)
}

func fmtLabel(r *model.Revision, detailed bool) string {
	name := r.SymbolicName()
	if name == "" {
		name = fmt.Sprintf("#%d", r.ID())
	}
	label := name + "\n" + r.Version().String()
	if !detailed {
		return label
	}
	label += fmt.Sprintf("\nid: %d", r.ID())
	if r.Location() != "" {
		label += "\n" + r.Location()
	}
	return label
}

func fmtAttrs(r *model.Revision, detailed bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(r, detailed))}
	if r.IsFragment() {
		attrs = append(attrs, "shape=note")
	}
	switch {
	case r.Lifecycle() == model.RemovalPending:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
	case !r.IsResolved():
		attrs = append(attrs, "fillcolor=mistyrose", "color=firebrick")
	}
	return attrs
}

// collectEdges merges wires per (requirer, provider, namespace) in first
// appearance order.
func collectEdges(revs []*model.Revision, shown map[*model.Revision]bool, ns string) []*edge {
	var edges []*edge
	index := map[string]*edge{}
	for _, r := range revs {
		w := r.Wiring()
		if w == nil || !shown[r] {
			continue
		}
		for _, wire := range w.Required {
			if !shown[wire.Provider] {
				continue
			}
			cns := wire.Capability.Namespace
			if ns != "" && cns.String() != ns {
				continue
			}
			key := fmt.Sprintf("%d>%d|%s", wire.Requirer.ID(), wire.Provider.ID(), cns)
			e, ok := index[key]
			if !ok {
				e = &edge{from: wire.Requirer, to: wire.Provider, ns: cns}
				index[key] = e
				edges = append(edges, e)
			}
			if name := wireName(wire); name != "" {
				e.names = append(e.names, name)
			}
		}
	}
	return edges
}

func wireName(w *model.Wire) string {
	if w.Capability.Name != "" {
		return w.Capability.Name
	}
	return w.Requirement.Name
}

func edgeAttrs(e *edge, detailed bool) []string {
	var attrs []string
	switch e.ns.Kind() {
	case model.KindBundle:
		attrs = append(attrs, "style=bold")
	case model.KindHost:
		attrs = append(attrs, "style=dashed", "arrowhead=empty")
	case model.KindPackage:
	default:
		attrs = append(attrs, "style=dotted")
	}
	if detailed && len(e.names) > 0 && e.ns.Kind() != model.KindHost {
		attrs = append(attrs, fmt.Sprintf("label=%q", strings.Join(e.names, "\n")))
	}
	return attrs
}

// Hash digests the declarations and wirings of revs. Equal hashes draw the
// same diagram for the same options.
func Hash(revs []*model.Revision) string {
	h := sha256.New()
	for _, r := range revs {
		fmt.Fprintf(h, "%s|%s|", r.Fingerprint(), r.Lifecycle())
		if w := r.Wiring(); w != nil {
			h.Write([]byte(w.Fingerprint()))
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render")
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element so the SVG
// scales to its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}

// Render produces the diagram in the given format (see [render.Formats]).
func Render(ctx context.Context, revs []*model.Revision, format string, opts Options) ([]byte, error) {
	if !slices.Contains(render.Formats, format) {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported render format %q", format)
	}
	dot := ToDOT(revs, opts)
	if format == render.FormatDOT {
		return []byte(dot), nil
	}
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	switch format {
	case render.FormatPDF:
		return render.ToPDF(ctx, svg)
	case render.FormatPNG:
		return render.ToPNG(ctx, svg, 2.0)
	}
	return svg, nil
}

// Package filter parses and evaluates LDAP-style filter expressions.
//
// Filters select capabilities in generic requirements, restrict revisions to
// platforms, and match native-code requirements against the platform
// context. The grammar follows RFC 1960:
//
//	filter     = "(" filtercomp ")"
//	filtercomp = "&" filter+ | "|" filter+ | "!" filter | item
//	item       = attr ("=" | "~=" | ">=" | "<=") value
//
// A value containing an unescaped "*" is a substring match; "(attr=*)" tests
// presence. Attribute names are case-insensitive.
//
// Comparison is typed by the attribute value being tested: strings compare
// lexically, integers and floats numerically, booleans by truth value,
// [version.Version] by version order, and slices match when any element does.
package filter

import (
	"strings"

	"github.com/matzehuels/bundlewire/pkg/errors"
)

type op int

const (
	opAnd op = iota
	opOr
	opNot
	opEqual
	opApprox
	opGreaterEq
	opLessEq
	opPresent
	opSubstring
)

// Filter is a parsed filter expression. Filters are immutable and safe for
// concurrent use.
type Filter struct {
	op       op
	attr     string
	value    string
	parts    []string // substring fragments split at unescaped '*'
	children []*Filter
}

// Parse parses a filter expression.
func Parse(s string) (*Filter, error) {
	p := &parser{src: s}
	p.skipSpace()
	f, err := p.filter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return f, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the normalized expression. Parse(f.String()) yields an
// equivalent filter.
func (f *Filter) String() string {
	var b strings.Builder
	f.write(&b)
	return b.String()
}

func (f *Filter) write(b *strings.Builder) {
	b.WriteByte('(')
	switch f.op {
	case opAnd, opOr, opNot:
		b.WriteByte("&|!"[f.op])
		for _, c := range f.children {
			c.write(b)
		}
	case opPresent:
		b.WriteString(f.attr)
		b.WriteString("=*")
	case opSubstring:
		b.WriteString(f.attr)
		b.WriteByte('=')
		for i, part := range f.parts {
			if i > 0 {
				b.WriteByte('*')
			}
			b.WriteString(escape(part))
		}
	default:
		b.WriteString(f.attr)
		b.WriteString([...]string{opEqual: "=", opApprox: "~=", opGreaterEq: ">=", opLessEq: "<="}[f.op])
		b.WriteString(escape(f.value))
	}
	b.WriteByte(')')
}

// MarshalText implements encoding.TextMarshaler.
func (f *Filter) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// Attributes returns the attribute names the filter references, lower-cased
// and deduplicated, in first-use order.
func (f *Filter) Attributes() []string {
	seen := map[string]bool{}
	var out []string
	var walk func(*Filter)
	walk = func(n *Filter) {
		if n.attr != "" && !seen[n.attr] {
			seen[n.attr] = true
			out = append(out, n.attr)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(f)
	return out
}

func escape(s string) string {
	if !strings.ContainsAny(s, `()*\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '*', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidFilter, "filter %q at offset %d: "+format, append([]any{p.src, p.pos}, args...)...)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) filter() (*Filter, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.skipSpace()

	var f *Filter
	var err error
	switch p.peek() {
	case '&':
		p.pos++
		f, err = p.list(opAnd)
	case '|':
		p.pos++
		f, err = p.list(opOr)
	case '!':
		p.pos++
		var child *Filter
		child, err = p.filter()
		f = &Filter{op: opNot, children: []*Filter{child}}
	default:
		f, err = p.item()
	}
	if err != nil {
		return nil, err
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *parser) list(o op) (*Filter, error) {
	f := &Filter{op: o}
	for {
		p.skipSpace()
		if p.peek() != '(' {
			break
		}
		child, err := p.filter()
		if err != nil {
			return nil, err
		}
		f.children = append(f.children, child)
	}
	if len(f.children) == 0 {
		return nil, p.errorf("empty filter list")
	}
	return f, nil
}

func (p *parser) item() (*Filter, error) {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("=~<>()", rune(p.src[p.pos])) {
		p.pos++
	}
	attr := strings.ToLower(strings.TrimSpace(p.src[start:p.pos]))
	if attr == "" {
		return nil, p.errorf("missing attribute name")
	}

	f := &Filter{attr: attr}
	switch {
	case strings.HasPrefix(p.src[p.pos:], "~="):
		f.op, p.pos = opApprox, p.pos+2
	case strings.HasPrefix(p.src[p.pos:], ">="):
		f.op, p.pos = opGreaterEq, p.pos+2
	case strings.HasPrefix(p.src[p.pos:], "<="):
		f.op, p.pos = opLessEq, p.pos+2
	case strings.HasPrefix(p.src[p.pos:], "="):
		f.op, p.pos = opEqual, p.pos+1
	default:
		return nil, p.errorf("expected operator after %q", attr)
	}

	parts, err := p.value()
	if err != nil {
		return nil, err
	}

	switch {
	case f.op != opEqual && len(parts) > 1:
		return nil, p.errorf("wildcard not allowed with this operator")
	case f.op == opEqual && len(parts) == 2 && parts[0] == "" && parts[1] == "":
		f.op = opPresent
	case f.op == opEqual && len(parts) > 1:
		f.op = opSubstring
		f.parts = parts
	default:
		f.value = parts[0]
	}
	return f, nil
}

// value reads up to the closing parenthesis, splitting at unescaped '*'.
func (p *parser) value() ([]string, error) {
	var parts []string
	var cur strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case ')':
			return append(parts, cur.String()), nil
		case '(':
			return nil, p.errorf("unescaped '(' in value")
		case '*':
			parts = append(parts, cur.String())
			cur.Reset()
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return nil, p.errorf("dangling escape")
			}
			cur.WriteByte(p.src[p.pos])
		default:
			cur.WriteByte(c)
		}
		p.pos++
	}
	return nil, p.errorf("unterminated value")
}

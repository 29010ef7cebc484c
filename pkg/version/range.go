package version

import (
	"strings"

	"github.com/matzehuels/bundlewire/pkg/errors"
)

// Range is a version interval. The zero value matches every version.
type Range struct {
	Min          Version
	MinExclusive bool
	Max          *Version // nil means unbounded
	MaxExclusive bool
}

// Any matches every version.
var Any = Range{}

// AtLeast returns the range [v, ∞).
func AtLeast(v Version) Range {
	return Range{Min: v}
}

// Exactly returns the range [v, v].
func Exactly(v Version) Range {
	max := v
	return Range{Min: v, Max: &max}
}

// Between returns [min, max).
func Between(min, max Version) Range {
	return Range{Min: min, Max: &max, MaxExclusive: true}
}

// ParseRange parses interval notation or a bare minimum version.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Any, nil
	}

	first := s[0]
	if first != '[' && first != '(' {
		v, err := ParseLenient(s)
		if err != nil {
			return Any, err
		}
		return AtLeast(v), nil
	}

	last := s[len(s)-1]
	if last != ']' && last != ')' {
		return Any, errors.New(errors.ErrCodeInvalidVersion, "invalid range %q: missing closing bracket", s)
	}
	bounds := strings.Split(s[1:len(s)-1], ",")
	if len(bounds) != 2 {
		return Any, errors.New(errors.ErrCodeInvalidVersion, "invalid range %q: want two bounds", s)
	}

	min, err := ParseLenient(bounds[0])
	if err != nil {
		return Any, err
	}
	max, err := ParseLenient(bounds[1])
	if err != nil {
		return Any, err
	}

	r := Range{
		Min:          min,
		MinExclusive: first == '(',
		Max:          &max,
		MaxExclusive: last == ')',
	}
	if r.IsEmpty() {
		return Any, errors.New(errors.ErrCodeInvalidVersion, "invalid range %q: empty interval", s)
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Includes reports whether v lies within the range.
func (r Range) Includes(v Version) bool {
	c := v.Compare(r.Min)
	if c < 0 || (c == 0 && r.MinExclusive) {
		return false
	}
	if r.Max == nil {
		return true
	}
	c = v.Compare(*r.Max)
	return c < 0 || (c == 0 && !r.MaxExclusive)
}

// IsAny reports whether the range matches every version.
func (r Range) IsAny() bool {
	return r.Max == nil && r.Min.IsEmpty() && !r.MinExclusive
}

// IsEmpty reports whether no version can satisfy the range.
func (r Range) IsEmpty() bool {
	if r.Max == nil {
		return false
	}
	c := r.Min.Compare(*r.Max)
	return c > 0 || (c == 0 && (r.MinExclusive || r.MaxExclusive))
}

// Intersect returns the overlap of r and o and whether it is non-empty.
func (r Range) Intersect(o Range) (Range, bool) {
	out := r
	if c := o.Min.Compare(r.Min); c > 0 || (c == 0 && o.MinExclusive) {
		out.Min, out.MinExclusive = o.Min, o.MinExclusive
	}
	if o.Max != nil {
		if r.Max == nil {
			out.Max, out.MaxExclusive = o.Max, o.MaxExclusive
		} else if c := o.Max.Compare(*r.Max); c < 0 || (c == 0 && o.MaxExclusive) {
			out.Max, out.MaxExclusive = o.Max, o.MaxExclusive
		}
	}
	return out, !out.IsEmpty()
}

// Equal reports whether both ranges describe the same interval.
func (r Range) Equal(o Range) bool {
	if !r.Min.Equal(o.Min) || r.MinExclusive != o.MinExclusive {
		return false
	}
	if (r.Max == nil) != (o.Max == nil) {
		return false
	}
	if r.Max == nil {
		return true
	}
	return r.Max.Equal(*o.Max) && r.MaxExclusive == o.MaxExclusive
}

// String renders the range in the notation accepted by ParseRange.
func (r Range) String() string {
	if r.IsAny() {
		return ""
	}
	if r.Max == nil && !r.MinExclusive {
		return r.Min.String()
	}
	var b strings.Builder
	if r.MinExclusive {
		b.WriteByte('(')
	} else {
		b.WriteByte('[')
	}
	b.WriteString(r.Min.String())
	b.WriteByte(',')
	if r.Max == nil {
		// Exclusive lower bound with no upper bound has no interval form;
		// approximate with the largest representable major version.
		b.WriteString(Version{Major: 1<<31 - 1}.String())
		b.WriteByte(')')
		return b.String()
	}
	b.WriteString(r.Max.String())
	if r.MaxExclusive {
		b.WriteByte(')')
	} else {
		b.WriteByte(']')
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (r Range) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Range) UnmarshalText(b []byte) error {
	p, err := ParseRange(string(b))
	if err != nil {
		return err
	}
	*r = p
	return nil
}

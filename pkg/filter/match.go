package filter

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/matzehuels/bundlewire/pkg/version"
)

// Match evaluates the filter against attrs. Attribute keys are matched
// case-insensitively. A nil filter matches everything.
func (f *Filter) Match(attrs map[string]any) bool {
	if f == nil {
		return true
	}
	switch f.op {
	case opAnd:
		for _, c := range f.children {
			if !c.Match(attrs) {
				return false
			}
		}
		return true
	case opOr:
		for _, c := range f.children {
			if c.Match(attrs) {
				return true
			}
		}
		return false
	case opNot:
		return !f.children[0].Match(attrs)
	}

	v, ok := lookup(attrs, f.attr)
	if !ok {
		return false
	}
	if f.op == opPresent {
		return true
	}
	return f.compare(v)
}

func lookup(attrs map[string]any, key string) (any, bool) {
	if v, ok := attrs[key]; ok {
		return v, true
	}
	for k, v := range attrs {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func (f *Filter) compare(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return f.compareString(x)
	case []string:
		for _, s := range x {
			if f.compareString(s) {
				return true
			}
		}
		return false
	case []any:
		for _, e := range x {
			if f.compare(e) {
				return true
			}
		}
		return false
	case bool:
		if f.op != opEqual && f.op != opApprox {
			return false
		}
		b, err := strconv.ParseBool(strings.TrimSpace(f.value))
		return err == nil && b == x
	case version.Version:
		want, err := version.ParseLenient(f.value)
		if err != nil {
			return false
		}
		return f.ordered(x.Compare(want))
	case []version.Version:
		for _, e := range x {
			if f.compare(e) {
				return true
			}
		}
		return false
	case float32:
		return f.compareFloat(float64(x))
	case float64:
		return f.compareFloat(x)
	case fmt.Stringer:
		return f.compareString(x.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		want, err := strconv.ParseInt(strings.TrimSpace(f.value), 10, 64)
		if err != nil {
			return f.compareFloat(float64(rv.Int()))
		}
		return f.ordered(cmp(rv.Int(), want))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		want, err := strconv.ParseUint(strings.TrimSpace(f.value), 10, 64)
		if err != nil {
			return false
		}
		return f.ordered(cmp(rv.Uint(), want))
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if f.compare(rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	return f.compareString(fmt.Sprint(v))
}

func (f *Filter) compareString(s string) bool {
	switch f.op {
	case opSubstring:
		return matchSubstring(s, f.parts)
	case opApprox:
		return normalize(s) == normalize(f.value)
	}
	return f.ordered(strings.Compare(s, f.value))
}

func (f *Filter) compareFloat(x float64) bool {
	want, err := strconv.ParseFloat(strings.TrimSpace(f.value), 64)
	if err != nil {
		return false
	}
	return f.ordered(cmp(x, want))
}

// ordered maps a three-way comparison result onto the filter operator.
func (f *Filter) ordered(c int) bool {
	switch f.op {
	case opEqual, opApprox:
		return c == 0
	case opGreaterEq:
		return c >= 0
	case opLessEq:
		return c <= 0
	}
	return false
}

func cmp[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func matchSubstring(s string, parts []string) bool {
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := len(parts) - 1
	for _, mid := range parts[1:last] {
		i := strings.Index(s, mid)
		if i < 0 {
			return false
		}
		s = s[i+len(mid):]
	}
	return strings.HasSuffix(s, parts[last])
}

// normalize implements approximate matching: case and whitespace are ignored.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

package store

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/matzehuels/bundlewire/pkg/version"
)

// Attribute value kinds.
const (
	kindString uint8 = iota + 1
	kindVersion
	kindInt
	kindFloat
	kindBool
	kindStrings
	kindVersions
	kindList
)

// value is the persisted form of an attribute or platform value. Each kind
// keeps the Go type it decodes to so declaration fingerprints survive a
// round trip.
type value struct {
	Kind uint8   `cbor:"1,keyasint"`
	S    string  `cbor:"2,keyasint,omitempty"`
	I    int64   `cbor:"3,keyasint,omitempty"`
	F    float64 `cbor:"4,keyasint,omitempty"`
	B    bool    `cbor:"5,keyasint,omitempty"`
	L    []value `cbor:"6,keyasint,omitempty"`
}

type entry struct {
	Key   string `cbor:"1,keyasint"`
	Value value  `cbor:"2,keyasint"`
}

func encodeValue(v any) (value, error) {
	switch x := v.(type) {
	case string:
		return value{Kind: kindString, S: x}, nil
	case version.Version:
		return value{Kind: kindVersion, S: x.String()}, nil
	case bool:
		return value{Kind: kindBool, B: x}, nil
	case float64:
		return value{Kind: kindFloat, F: x}, nil
	case float32:
		return value{Kind: kindFloat, F: float64(x)}, nil
	case []string:
		out := value{Kind: kindStrings, L: make([]value, len(x))}
		for i, s := range x {
			out.L[i] = value{Kind: kindString, S: s}
		}
		return out, nil
	case []version.Version:
		out := value{Kind: kindVersions, L: make([]value, len(x))}
		for i, s := range x {
			out.L[i] = value{Kind: kindVersion, S: s.String()}
		}
		return out, nil
	case []any:
		out := value{Kind: kindList, L: make([]value, len(x))}
		for i, e := range x {
			ev, err := encodeValue(e)
			if err != nil {
				return value{}, err
			}
			out.L[i] = ev
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value{Kind: kindInt, I: rv.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value{Kind: kindInt, I: int64(rv.Uint())}, nil
	}
	return value{}, fmt.Errorf("unsupported attribute type %T", v)
}

func decodeValue(v value) (any, error) {
	switch v.Kind {
	case kindString:
		return v.S, nil
	case kindVersion:
		return version.Parse(v.S)
	case kindInt:
		return v.I, nil
	case kindFloat:
		return v.F, nil
	case kindBool:
		return v.B, nil
	case kindStrings:
		out := make([]string, len(v.L))
		for i, e := range v.L {
			out[i] = e.S
		}
		return out, nil
	case kindVersions:
		out := make([]version.Version, len(v.L))
		for i, e := range v.L {
			ver, err := version.Parse(e.S)
			if err != nil {
				return nil, err
			}
			out[i] = ver
		}
		return out, nil
	case kindList:
		out := make([]any, len(v.L))
		for i, e := range v.L {
			d, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.Kind)
}

// encodeMap sorts entries by key so equal maps encode to equal bytes.
func encodeMap(m map[string]any) ([]entry, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]entry, len(keys))
	for i, k := range keys {
		v, err := encodeValue(m[k])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[i] = entry{Key: k, Value: v}
	}
	return out, nil
}

func decodeMap(entries []entry) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		v, err := decodeValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", e.Key, err)
		}
		out[e.Key] = v
	}
	return out, nil
}

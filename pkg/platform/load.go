package platform

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/bundlewire/pkg/errors"
)

// file is the on-disk layout shared by all formats:
//
//	[[platform]]
//	"osgi.os" = "linux"
//	"org.osgi.framework.executionenvironment" = ["JavaSE-17"]
type file struct {
	Platform []map[string]any `toml:"platform" yaml:"platform" json:"platform"`
}

// Load reads a platform file. The format follows the extension: .toml,
// .yaml/.yml or .json.
func Load(path string) (Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read platform file %s", path)
	}
	return Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Parse decodes platform dictionaries in the given format.
func Parse(data []byte, format string) (Properties, error) {
	var f file
	var err error
	switch strings.ToLower(format) {
	case "toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &f)
	case "json":
		err = json.Unmarshal(data, &f)
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported platform format %q", format)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode platform (%s)", format)
	}

	props := make(Properties, 0, len(f.Platform))
	for _, d := range f.Platform {
		props = append(props, Normalize(d))
	}
	return props, nil
}

// Normalize converts decoder-specific numeric types so that filters and the
// state store see the same values regardless of source format.
func Normalize(d map[string]any) Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case []any:
		strs := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				out := make([]any, len(x))
				for i, e := range x {
					out[i] = normalizeValue(e)
				}
				return out
			}
			strs = append(strs, s)
		}
		return strs
	}
	return v
}

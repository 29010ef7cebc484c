// Package version implements the four-part revision version and version
// ranges used by capabilities and requirements.
//
// A Version has the form major.minor.micro.qualifier. The numeric components
// compare numerically; the qualifier compares lexically and an empty
// qualifier sorts lowest, so 1.0.0 < 1.0.0.beta < 1.0.1.
//
// A Range uses interval notation:
//
//	[1.0,2.0)   at least 1.0, below 2.0
//	(1.0,2.0]   above 1.0, at most 2.0
//	1.0         at least 1.0 (unbounded above)
//	""          any version
//
// ParseLenient additionally accepts semantic-version strings through
// github.com/Masterminds/semver/v3, so declaration files written with
// "v1.4.2-rc.1" style versions load without conversion.
package version

import (
	"fmt"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"

	"github.com/matzehuels/bundlewire/pkg/errors"
)

// Version is an immutable four-part version.
type Version struct {
	Major     int
	Minor     int
	Micro     int
	Qualifier string
}

// Empty is the 0.0.0 version, the default for declarations without one.
var Empty = Version{}

// New returns a version with no qualifier.
func New(major, minor, micro int) Version {
	return Version{Major: major, Minor: minor, Micro: micro}
}

// Parse parses a version in major[.minor[.micro[.qualifier]]] form.
// Surrounding whitespace is ignored and an empty string yields Empty.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty, nil
	}

	parts := strings.SplitN(s, ".", 4)
	var nums [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 || parts[i] == "" || strings.HasPrefix(parts[i], "+") {
			return Empty, errors.New(errors.ErrCodeInvalidVersion, "invalid version %q: component %q is not a non-negative integer", s, parts[i])
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1], Micro: nums[2]}
	if len(parts) == 4 {
		if !validQualifier(parts[3]) {
			return Empty, errors.New(errors.ErrCodeInvalidVersion, "invalid version %q: bad qualifier %q", s, parts[3])
		}
		v.Qualifier = parts[3]
	}
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level literals.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseLenient parses s as a native version, falling back to semantic
// version syntax. The semver pre-release and build metadata become the
// qualifier with dots replaced by underscores.
func ParseLenient(s string) (Version, error) {
	if v, err := Parse(s); err == nil {
		return v, nil
	}
	sv, err := mm.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return Empty, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid version %q", s)
	}
	return FromSemver(sv), nil
}

// FromSemver converts a semantic version.
func FromSemver(sv *mm.Version) Version {
	q := sv.Prerelease()
	if md := sv.Metadata(); md != "" {
		if q != "" {
			q += "_"
		}
		q += md
	}
	return Version{
		Major:     int(sv.Major()),
		Minor:     int(sv.Minor()),
		Micro:     int(sv.Patch()),
		Qualifier: strings.NewReplacer(".", "_", "+", "_").Replace(q),
	}
}

func validQualifier(q string) bool {
	if q == "" {
		return false
	}
	for _, r := range q {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or higher than o.
func (v Version) Compare(o Version) int {
	if c := cmpInt(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmpInt(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmpInt(v.Micro, o.Micro); c != 0 {
		return c
	}
	return strings.Compare(v.Qualifier, o.Qualifier)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports whether v and o are the same version.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// IsEmpty reports whether v is 0.0.0 with no qualifier.
func (v Version) IsEmpty() bool { return v == Empty }

// String returns the canonical form, always with three numeric components.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
	if v.Qualifier != "" {
		s += "." + v.Qualifier
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler using lenient parsing.
func (v *Version) UnmarshalText(b []byte) error {
	p, err := ParseLenient(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

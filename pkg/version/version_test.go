package version

import (
	"fmt"
	"testing"

	"github.com/matzehuels/bundlewire/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"", Empty, false},
		{"1", New(1, 0, 0), false},
		{"1.2", New(1, 2, 0), false},
		{"1.2.3", New(1, 2, 3), false},
		{" 1.2.3 ", New(1, 2, 3), false},
		{"1.2.3.beta-1", Version{1, 2, 3, "beta-1"}, false},
		{"1.2.3.beta.1", Version{}, true},
		{"1.x", Version{}, true},
		{"-1.0", Version{}, true},
		{"+1.0", Version{}, true},
		{"1..2", Version{}, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, errors.ErrCodeInvalidVersion) {
				t.Errorf("Parse(%q) code = %v, want %v", tt.in, errors.GetCode(err), errors.ErrCodeInvalidVersion)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseLenient(t *testing.T) {
	tests := []struct {
		in   string
		want Version
	}{
		{"1.2.3", New(1, 2, 3)},
		{"v1.2.3", New(1, 2, 3)},
		{"1.2.3-rc.1", Version{1, 2, 3, "rc_1"}},
		{"1.2.3+build.7", Version{1, 2, 3, "build_7"}},
	}

	for _, tt := range tests {
		got, err := ParseLenient(tt.in)
		if err != nil {
			t.Errorf("ParseLenient(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLenient(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLenient("not-a-version"); err == nil {
		t.Error("ParseLenient(not-a-version) error = nil, want error")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.10.0", "1.9.0", 1},
		{"1.0.0", "1.0.0.a", -1},
		{"1.0.0.b", "1.0.0.a", 1},
		{"2", "1.99.99", 1},
	}

	for _, tt := range tests {
		got := MustParse(tt.a).Compare(MustParse(tt.b))
		if got != tt.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	if got := MustParse("1.2").String(); got != "1.2.0" {
		t.Errorf("String() = %q, want %q", got, "1.2.0")
	}
	if got := MustParse("1.2.3.q").String(); got != "1.2.3.q" {
		t.Errorf("String() = %q, want %q", got, "1.2.3.q")
	}
}

func TestVersionText(t *testing.T) {
	var v Version
	if err := v.UnmarshalText([]byte("v2.1.0")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	b, _ := v.MarshalText()
	if string(b) != "2.1.0" {
		t.Errorf("MarshalText() = %q, want %q", b, "2.1.0")
	}
}

func ExampleVersion_Compare() {
	a := MustParse("1.0.0")
	b := MustParse("1.0.0.beta")
	fmt.Println(a.Compare(b), b.Compare(a))
	// Output: -1 1
}

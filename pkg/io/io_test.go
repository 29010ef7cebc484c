package io

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/observability"
)

func loadExample(t *testing.T) *Set {
	t.Helper()
	set, err := Load(context.Background(), filepath.Join("testdata", "example.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return set
}

func TestLoad(t *testing.T) {
	set := loadExample(t)

	if got := len(set.Revisions); got != 4 {
		t.Fatalf("revisions = %d, want 4", got)
	}
	api, _ := set.Revision(1)
	if !api.IsSingleton() || api.Location() != "file:api.jar" {
		t.Errorf("api identity = %v singleton=%t location=%q", api, api.IsSingleton(), api.Location())
	}
	if got := api.PlatformFilter().String(); got != "(osgi.os=linux)" {
		t.Errorf("platform filter = %q", got)
	}
	if got := api.Attributes()["tier"]; got != int64(2) {
		t.Errorf("tier attribute = %#v, want int64(2)", got)
	}

	exports := api.CapabilitiesOf(model.Package)
	if len(exports) != 1 || !reflect.DeepEqual(exports[0].Uses, []string{"org.example.util"}) {
		t.Errorf("exports = %v", exports)
	}
	if got := api.CapabilitiesOf(model.Generic("osgi.extender")); len(got) != 1 {
		t.Errorf("extender capabilities = %v", got)
	}

	reqs := api.Requirements()
	if len(reqs) != 4 {
		t.Fatalf("requirements = %d, want 4", len(reqs))
	}
	if got := reqs[0].Range.String(); got != "[1.0.0,2.0.0)" {
		t.Errorf("import range = %q", got)
	}
	if !reqs[1].IsDynamic() {
		t.Error("second import should be dynamic")
	}
	if reqs[2].Namespace != model.Bundle || reqs[2].Visibility != model.Reexport || !reqs[2].IsOptional() {
		t.Errorf("bundle requirement = %+v", reqs[2])
	}
	if reqs[3].Namespace != model.ExecutionEnvironment || reqs[3].Filter == nil {
		t.Errorf("ee requirement = %+v", reqs[3])
	}

	nl, _ := set.Revision(3)
	if !nl.IsFragment() || nl.Host().Name != "org.example.api" {
		t.Errorf("fragment host = %v", nl.Host())
	}
	if len(set.Disabled) != 1 || set.Disabled[0].Revision != nl || set.Disabled[0].Policy != "license" {
		t.Errorf("disabled = %v", set.Disabled)
	}

	if len(set.Platform) != 1 {
		t.Fatalf("platform dictionaries = %d, want 1", len(set.Platform))
	}
	if got := set.Platform[0]["cores"]; got != int64(8) {
		t.Errorf("cores = %#v, want int64(8)", got)
	}
	if got := set.Platform[0]["org.osgi.framework.executionenvironment"]; !reflect.DeepEqual(got, []string{"JavaSE-17"}) {
		t.Errorf("execution environments = %#v", got)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	want := loadExample(t)
	for _, format := range []string{"toml", "yaml", "json"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, want, format); err != nil {
				t.Fatalf("Write() error: %v", err)
			}
			got, err := Read(&buf, format)
			if err != nil {
				t.Fatalf("Read() error: %v\n%s", err, buf.String())
			}
			if len(got.Revisions) != len(want.Revisions) {
				t.Fatalf("revisions = %d, want %d", len(got.Revisions), len(want.Revisions))
			}
			for i, r := range want.Revisions {
				if got.Revisions[i].Fingerprint() != r.Fingerprint() {
					t.Errorf("%s changed in round trip", r)
				}
			}
			if len(got.Disabled) != 1 || got.Disabled[0].Revision.ID() != 3 {
				t.Errorf("disabled = %v", got.Disabled)
			}
			if !got.Platform.Equal(want.Platform) {
				t.Errorf("platform = %v, want %v", got.Platform, want.Platform)
			}
		})
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code errors.Code
	}{
		{"bad version", "[[bundle]]\nid = 1\nname = \"a\"\nversion = \"x.y\"", errors.ErrCodeInvalidVersion},
		{"bad filter", "[[bundle]]\nid = 1\nname = \"a\"\nfilter = \"(a=\"", errors.ErrCodeInvalidFilter},
		{"duplicate id", "[[bundle]]\nid = 1\nname = \"a\"\n[[bundle]]\nid = 1\nname = \"b\"", errors.ErrCodeInvalidInput},
		{"unknown disabled bundle", "[[bundle]]\nid = 1\nname = \"a\"\n[[disabled]]\nbundle = 9\npolicy = \"p\"", errors.ErrCodeInvalidInput},
		{"optional dynamic", "[[bundle]]\nid = 1\nname = \"a\"\n[[bundle.imports]]\nname = \"x\"\noptional = true\ndynamic = true", errors.ErrCodeInvalidInput},
		{"generic without namespace", "[[bundle]]\nid = 1\nname = \"a\"\n[[bundle.requirements]]\nfilter = \"(a=b)\"", errors.ErrCodeInvalidInput},
		{"wrong section namespace", "[[bundle]]\nid = 1\nname = \"a\"\n[[bundle.imports]]\nnamespace = \"osgi.wiring.bundle\"\nname = \"x\"", errors.ErrCodeInvalidInput},
		{"declared identity", "[[bundle]]\nid = 1\nname = \"a\"\n[[bundle.capabilities]]\nnamespace = \"osgi.identity\"", errors.ErrCodeInvalidDeclaration},
		{"malformed", "[[bundle]\n", errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.doc), "toml")
			if !errors.Is(err, tt.code) {
				t.Errorf("Read() error = %v, want code %s", err, tt.code)
			}
		})
	}

	if _, err := Read(strings.NewReader("{}"), "ini"); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("Read(ini) error = %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.yaml", "bundle:\n  - id: 2\n    name: b\n    version: 2.0.0\n")
	write("a.json", `{"bundle":[{"id":1,"name":"a","version":"1.0"}]}`)
	write("notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.toml"), 0755); err != nil {
		t.Fatal(err)
	}

	set, err := LoadPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	var names []string
	for _, r := range set.Revisions {
		names = append(names, r.SymbolicName())
	}
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("revisions = %v, want [a b]", names)
	}

	write("c.toml", "[[bundle]]\nid = 1\nname = \"c\"\n")
	if _, err := LoadDir(context.Background(), dir); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("duplicate id across files: error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, errors.ErrCodeIO) {
		t.Errorf("Load() error = %v, want %s", err, errors.ErrCodeIO)
	}
}

type loadRecorder struct {
	observability.NoopResolveHooks
	sources   []string
	revisions int
	err       error
}

func (r *loadRecorder) OnLoadComplete(_ context.Context, source string, revisions int, _ time.Duration, err error) {
	r.sources = append(r.sources, source)
	r.revisions = revisions
	r.err = err
}

func TestLoadHooks(t *testing.T) {
	rec := &loadRecorder{}
	observability.Install(observability.Hooks{Resolve: rec})
	defer observability.Reset()

	loadExample(t)
	if len(rec.sources) != 1 || rec.revisions != 4 || rec.err != nil {
		t.Errorf("hook saw sources=%v revisions=%d err=%v", rec.sources, rec.revisions, rec.err)
	}
}

func TestIsDeclarationFile(t *testing.T) {
	for name, want := range map[string]bool{
		"a.toml": true, "b.YAML": true, "c.yml": true, "d.json": true, "e.txt": false, "toml": false,
	} {
		if got := IsDeclarationFile(name); got != want {
			t.Errorf("IsDeclarationFile(%q) = %t, want %t", name, got, want)
		}
	}
}

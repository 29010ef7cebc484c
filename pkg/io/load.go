package io

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/filter"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/observability"
	"github.com/matzehuels/bundlewire/pkg/platform"
	"github.com/matzehuels/bundlewire/pkg/version"
)

// Extensions lists the file extensions [LoadDir] picks up.
var Extensions = []string{".toml", ".yaml", ".yml", ".json"}

// Set is the decoded content of one or more declaration files.
type Set struct {
	Revisions []*model.Revision
	Disabled  []model.DisabledInfo
	Platform  platform.Properties
}

// Revision returns the revision with the given id.
func (s *Set) Revision(id int64) (*model.Revision, bool) {
	for _, r := range s.Revisions {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Load reads a declaration file. The format follows the extension.
func Load(ctx context.Context, path string) (*Set, error) {
	start := time.Now()
	observability.Resolve().OnLoadStart(ctx, path)
	set, err := load(path)
	observability.Resolve().OnLoadComplete(ctx, path, set.len(), time.Since(start), err)
	return set, err
}

func load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "open %s", path)
	}
	defer f.Close()
	set, err := Read(f, formatOf(path))
	if err != nil {
		return nil, annotate(err, "%s", path)
	}
	return set, nil
}

// LoadDir reads every declaration file directly inside dir in name order and
// merges them. Bundle ids must be unique across files.
func LoadDir(ctx context.Context, dir string) (*Set, error) {
	start := time.Now()
	observability.Resolve().OnLoadStart(ctx, dir)
	set, err := loadDir(dir)
	observability.Resolve().OnLoadComplete(ctx, dir, set.len(), time.Since(start), err)
	return set, err
}

func loadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read %s", dir)
	}
	out := &Set{}
	for _, e := range entries {
		if e.IsDir() || !IsDeclarationFile(e.Name()) {
			continue
		}
		set, err := load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if err := out.merge(set); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s", e.Name())
		}
	}
	return out, nil
}

// LoadPath reads a file or, for a directory, every declaration file in it.
func LoadPath(ctx context.Context, path string) (*Set, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "stat %s", path)
	}
	if info.IsDir() {
		return LoadDir(ctx, path)
	}
	return Load(ctx, path)
}

// IsDeclarationFile reports whether name has a supported extension.
func IsDeclarationFile(name string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(name)))
}

func formatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (s *Set) len() int {
	if s == nil {
		return 0
	}
	return len(s.Revisions)
}

func (s *Set) merge(o *Set) error {
	for _, r := range o.Revisions {
		if prev, ok := s.Revision(r.ID()); ok {
			return errors.New(errors.ErrCodeInvalidInput, "bundle id %d declared by %s and %s", r.ID(), prev, r)
		}
	}
	s.Revisions = append(s.Revisions, o.Revisions...)
	s.Disabled = append(s.Disabled, o.Disabled...)
	s.Platform = append(s.Platform, o.Platform...)
	return nil
}

// Read decodes declarations in format ("toml", "yaml", "yml" or "json")
// and builds revisions from them. Read does not close r.
func Read(r io.Reader, format string) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read declarations")
	}
	var f file
	switch format {
	case "toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &f)
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported declaration format %q", format)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode %s", format)
	}
	return f.build()
}

func (f *file) build() (*Set, error) {
	set := &Set{}
	for i, b := range f.Bundles {
		d, err := b.declaration()
		if err != nil {
			return nil, annotate(err, "bundle %d (%s)", i, b.Name)
		}
		r, err := model.NewRevision(d)
		if err != nil {
			return nil, err
		}
		if prev, ok := set.Revision(r.ID()); ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "bundle id %d declared by %s and %s", r.ID(), prev, r)
		}
		set.Revisions = append(set.Revisions, r)
	}
	for _, d := range f.Disabled {
		r, ok := set.Revision(d.Bundle)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "disabled info names unknown bundle %d", d.Bundle)
		}
		if d.Policy == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "disabled info for %s has no policy", r)
		}
		set.Disabled = append(set.Disabled, model.DisabledInfo{Policy: d.Policy, Message: d.Message, Revision: r})
	}
	for _, p := range f.Platform {
		set.Platform = append(set.Platform, platform.Normalize(p))
	}
	return set, nil
}

func (b bundle) declaration() (model.Declaration, error) {
	d := model.Declaration{
		ID:           b.ID,
		SymbolicName: b.Name,
		Location:     b.Location,
		Singleton:    b.Singleton,
		Attributes:   attrs(b.Attributes),
	}
	var err error
	if d.Version, err = parseVersion(b.Version); err != nil {
		return d, err
	}
	if b.Filter != "" {
		if d.PlatformFilter, err = filter.Parse(b.Filter); err != nil {
			return d, err
		}
	}
	if b.Host != nil {
		if d.Host, err = b.Host.requirement(model.Host); err != nil {
			return d, err
		}
	}

	for _, c := range b.Exports {
		out, err := c.capability(model.Package)
		if err != nil {
			return d, err
		}
		d.Capabilities = append(d.Capabilities, out)
	}
	for _, c := range b.Capabilities {
		out, err := c.capability(model.Namespace{})
		if err != nil {
			return d, err
		}
		d.Capabilities = append(d.Capabilities, out)
	}

	groups := []struct {
		reqs []requirement
		ns   model.Namespace
	}{{b.Imports, model.Package}, {b.Requires, model.Bundle}, {b.Requirements, model.Namespace{}}}
	for _, g := range groups {
		for _, r := range g.reqs {
			req, err := r.requirement(g.ns)
			if err != nil {
				return d, err
			}
			d.Requirements = append(d.Requirements, req)
		}
	}
	return d, nil
}

// namespace picks the section's namespace, or the declared one for the
// generic sections.
func namespace(fixed model.Namespace, declared string) (model.Namespace, error) {
	if fixed.IsValid() {
		if declared != "" && model.ParseNamespace(declared) != fixed {
			return fixed, errors.New(errors.ErrCodeInvalidInput, "namespace %q not allowed here, expected %s", declared, fixed)
		}
		return fixed, nil
	}
	if declared == "" {
		return fixed, errors.New(errors.ErrCodeInvalidInput, "missing namespace")
	}
	return model.ParseNamespace(declared), nil
}

func (c capability) capability(ns model.Namespace) (*model.Capability, error) {
	var err error
	out := &model.Capability{
		Name:       c.Name,
		Attributes: attrs(c.Attributes),
		Uses:       c.Uses,
		Mandatory:  c.Mandatory,
	}
	if out.Namespace, err = namespace(ns, c.Namespace); err != nil {
		return nil, err
	}
	if out.Version, err = parseVersion(c.Version); err != nil {
		return nil, err
	}
	if out.Effective, err = parseEffective(c.Effective); err != nil {
		return nil, err
	}
	return out, nil
}

func (r requirement) requirement(ns model.Namespace) (*model.Requirement, error) {
	var err error
	out := &model.Requirement{
		Name:       r.Name,
		Attributes: attrs(r.Attributes),
	}
	if out.Namespace, err = namespace(ns, r.Namespace); err != nil {
		return nil, err
	}
	if out.Range, err = version.ParseRange(r.Range); err != nil {
		return nil, err
	}
	if r.Filter != "" {
		if out.Filter, err = filter.Parse(r.Filter); err != nil {
			return nil, err
		}
	}
	if out.Effective, err = parseEffective(r.Effective); err != nil {
		return nil, err
	}
	switch {
	case r.Dynamic && r.Optional:
		return nil, errors.New(errors.ErrCodeInvalidInput, "requirement %s cannot be both optional and dynamic", r.Name)
	case r.Dynamic:
		out.Resolution = model.Dynamic
	case r.Optional:
		out.Resolution = model.Optional
	}
	if r.Multiple {
		out.Cardinality = model.Multiple
	}
	if r.Reexport {
		out.Visibility = model.Reexport
	}
	return out, nil
}

func parseVersion(s string) (version.Version, error) {
	if s == "" {
		return version.Empty, nil
	}
	return version.ParseLenient(s)
}

func parseEffective(s string) (model.Effective, error) {
	switch s {
	case "", model.EffectiveResolve.String():
		return model.EffectiveResolve, nil
	case model.EffectiveActive.String():
		return model.EffectiveActive, nil
	}
	return model.EffectiveResolve, errors.New(errors.ErrCodeInvalidInput, "unknown effective directive %q", s)
}

// annotate adds context to err and keeps its code.
func annotate(err error, format string, args ...any) error {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInvalidInput
	}
	return errors.Wrap(code, err, format, args...)
}

func attrs(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return platform.Normalize(m)
}

package io

import (
	"encoding/json"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
)

// Write encodes set in format. Requirements are grouped by section, so a
// revision that interleaves namespaces reads back with a different
// requirement order. Platform values that cannot be encoded are skipped.
func Write(w io.Writer, set *Set, format string) error {
	f := fromSet(set)
	var err error
	switch format {
	case "toml":
		err = toml.NewEncoder(w).Encode(f)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(f); err == nil {
			err = enc.Close()
		}
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(f)
	default:
		return errors.New(errors.ErrCodeInvalidFormat, "unsupported declaration format %q", format)
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "encode %s", format)
	}
	return nil
}

// Export writes set to path in the format its extension names.
func Export(set *Set, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", path)
	}
	if err := Write(f, set, formatOf(path)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "close %s", path)
	}
	return nil
}

func fromSet(set *Set) file {
	var f file
	for _, r := range set.Revisions {
		f.Bundles = append(f.Bundles, fromRevision(r))
	}
	for _, d := range set.Disabled {
		f.Disabled = append(f.Disabled, disabled{Bundle: d.Revision.ID(), Policy: d.Policy, Message: d.Message})
	}
	props, _ := set.Platform.Serializable()
	for _, d := range props {
		f.Platform = append(f.Platform, map[string]any(d))
	}
	return f
}

func fromRevision(r *model.Revision) bundle {
	b := bundle{
		ID:         r.ID(),
		Name:       r.SymbolicName(),
		Location:   r.Location(),
		Singleton:  r.IsSingleton(),
		Attributes: r.Attributes(),
	}
	if !r.Version().IsEmpty() {
		b.Version = r.Version().String()
	}
	if pf := r.PlatformFilter(); pf != nil {
		b.Filter = pf.String()
	}
	if h := r.Host(); h != nil {
		req := fromRequirement(h)
		req.Namespace = ""
		b.Host = &req
	}
	for _, c := range r.DeclaredCapabilities() {
		out := capability{
			Name:       c.Name,
			Attributes: c.Attributes,
			Uses:       c.Uses,
			Mandatory:  c.Mandatory,
		}
		if !c.Version.IsEmpty() {
			out.Version = c.Version.String()
		}
		if c.Effective != model.EffectiveResolve {
			out.Effective = c.Effective.String()
		}
		if c.Namespace == model.Package {
			b.Exports = append(b.Exports, out)
			continue
		}
		out.Namespace = c.Namespace.String()
		b.Capabilities = append(b.Capabilities, out)
	}
	for _, req := range r.Requirements() {
		out := fromRequirement(req)
		switch req.Namespace {
		case model.Package:
			out.Namespace = ""
			b.Imports = append(b.Imports, out)
		case model.Bundle:
			out.Namespace = ""
			b.Requires = append(b.Requires, out)
		default:
			b.Requirements = append(b.Requirements, out)
		}
	}
	return b
}

func fromRequirement(req *model.Requirement) requirement {
	out := requirement{
		Namespace:  req.Namespace.String(),
		Name:       req.Name,
		Range:      req.Range.String(),
		Attributes: req.Attributes,
		Optional:   req.Resolution == model.Optional,
		Dynamic:    req.Resolution == model.Dynamic,
		Multiple:   req.Cardinality == model.Multiple,
		Reexport:   req.Visibility == model.Reexport,
	}
	if req.Filter != nil {
		out.Filter = req.Filter.String()
	}
	if req.Effective != model.EffectiveResolve {
		out.Effective = req.Effective.String()
	}
	return out
}

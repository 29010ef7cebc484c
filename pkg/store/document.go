package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/matzehuels/bundlewire/pkg/filter"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/platform"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/version"
)

// document is the CBOR payload. Revisions are referenced by their ordinal
// in Revisions, requirements and capabilities by their index within the
// owning revision.
type document struct {
	ID        []byte        `cbor:"1,keyasint"`
	Timestamp int64         `cbor:"2,keyasint"`
	Platform  [][]entry     `cbor:"3,keyasint,omitempty"`
	Revisions []revisionDoc `cbor:"4,keyasint"`
	Wirings   []wiringDoc   `cbor:"5,keyasint,omitempty"`
	Disabled  []disabledDoc `cbor:"6,keyasint,omitempty"`
}

type revisionDoc struct {
	ID        int64            `cbor:"1,keyasint"`
	Name      string           `cbor:"2,keyasint,omitempty"`
	Version   string           `cbor:"3,keyasint"`
	Location  string           `cbor:"4,keyasint,omitempty"`
	Singleton bool             `cbor:"5,keyasint,omitempty"`
	Attrs     []entry          `cbor:"6,keyasint,omitempty"`
	Host      *requirementDoc  `cbor:"7,keyasint,omitempty"`
	Filter    string           `cbor:"8,keyasint,omitempty"`
	Reqs      []requirementDoc `cbor:"9,keyasint,omitempty"`
	Caps      []capabilityDoc  `cbor:"10,keyasint,omitempty"`
	Pending   bool             `cbor:"11,keyasint,omitempty"`
}

type rangeDoc struct {
	Min          string  `cbor:"1,keyasint"`
	MinExclusive bool    `cbor:"2,keyasint,omitempty"`
	Max          *string `cbor:"3,keyasint,omitempty"`
	MaxExclusive bool    `cbor:"4,keyasint,omitempty"`
}

type requirementDoc struct {
	Namespace   string   `cbor:"1,keyasint"`
	Name        string   `cbor:"2,keyasint,omitempty"`
	Range       rangeDoc `cbor:"3,keyasint"`
	Filter      string   `cbor:"4,keyasint,omitempty"`
	Attrs       []entry  `cbor:"5,keyasint,omitempty"`
	Resolution  uint8    `cbor:"6,keyasint,omitempty"`
	Cardinality uint8    `cbor:"7,keyasint,omitempty"`
	Effective   uint8    `cbor:"8,keyasint,omitempty"`
	Visibility  uint8    `cbor:"9,keyasint,omitempty"`
}

type capabilityDoc struct {
	Namespace string   `cbor:"1,keyasint"`
	Name      string   `cbor:"2,keyasint,omitempty"`
	Version   string   `cbor:"3,keyasint"`
	Attrs     []entry  `cbor:"4,keyasint,omitempty"`
	Uses      []string `cbor:"5,keyasint,omitempty"`
	Mandatory []string `cbor:"6,keyasint,omitempty"`
	Effective uint8    `cbor:"7,keyasint,omitempty"`
}

// ref points at a requirement or capability: Index -1 is a fragment's host
// requirement, capability indices past the declared ones are platform
// capabilities of the system revision.
type ref struct {
	Rev   int `cbor:"1,keyasint"`
	Index int `cbor:"2,keyasint"`
}

type wireDoc struct {
	Requirer    int `cbor:"1,keyasint"`
	Requirement ref `cbor:"2,keyasint"`
	Provider    int `cbor:"3,keyasint"`
	Capability  ref `cbor:"4,keyasint"`
}

type wiringDoc struct {
	Rev          int       `cbor:"1,keyasint"`
	Required     []wireDoc `cbor:"2,keyasint,omitempty"`
	Capabilities []ref     `cbor:"3,keyasint,omitempty"`
	Requirements []ref     `cbor:"4,keyasint,omitempty"`
	Fragments    []int     `cbor:"5,keyasint,omitempty"`
}

type disabledDoc struct {
	Rev     int    `cbor:"1,keyasint"`
	Policy  string `cbor:"2,keyasint"`
	Message string `cbor:"3,keyasint,omitempty"`
}

// =============================================================================
// Encoding
// =============================================================================

// encoder turns a State image into a document.
type encoder struct {
	ordinal map[*model.Revision]int
}

// encodeState builds the document for st. It returns the platform keys that
// were dropped because their values cannot be persisted.
func encodeState(st *state.State) (*document, []string, error) {
	img := st.Image()
	e := encoder{ordinal: make(map[*model.Revision]int, len(img.Revisions))}
	for i, r := range img.Revisions {
		e.ordinal[r] = i
	}

	props, dropped := st.Platform().Serializable()
	doc := &document{ID: img.ID[:], Timestamp: img.Timestamp}
	for _, d := range props {
		entries, err := encodeMap(d)
		if err != nil {
			return nil, nil, err
		}
		doc.Platform = append(doc.Platform, entries)
	}

	for _, r := range img.Revisions {
		rd, err := encodeRevision(r)
		if err != nil {
			return nil, nil, fmt.Errorf("revision %s: %w", r, err)
		}
		rd.Pending = img.Pending[r]
		doc.Revisions = append(doc.Revisions, rd)
	}

	for _, r := range img.Revisions {
		w, ok := img.Wirings[r]
		if !ok {
			continue
		}
		wd, err := e.wiring(r, w)
		if err != nil {
			return nil, nil, fmt.Errorf("wiring of %s: %w", r, err)
		}
		doc.Wirings = append(doc.Wirings, wd)
	}

	for _, info := range img.Disabled {
		doc.Disabled = append(doc.Disabled, disabledDoc{
			Rev:     e.ordinal[info.Revision],
			Policy:  info.Policy,
			Message: info.Message,
		})
	}
	return doc, dropped, nil
}

func encodeRevision(r *model.Revision) (revisionDoc, error) {
	attrs, err := encodeMap(r.Attributes())
	if err != nil {
		return revisionDoc{}, err
	}
	rd := revisionDoc{
		ID:        r.ID(),
		Name:      r.SymbolicName(),
		Version:   r.Version().String(),
		Location:  r.Location(),
		Singleton: r.IsSingleton(),
		Attrs:     attrs,
	}
	if f := r.PlatformFilter(); f != nil {
		rd.Filter = f.String()
	}
	if h := r.Host(); h != nil {
		hd, err := encodeRequirement(h)
		if err != nil {
			return revisionDoc{}, err
		}
		rd.Host = &hd
	}
	for _, req := range r.Requirements() {
		d, err := encodeRequirement(req)
		if err != nil {
			return revisionDoc{}, err
		}
		rd.Reqs = append(rd.Reqs, d)
	}
	for _, c := range r.DeclaredCapabilities() {
		d, err := encodeCapability(c)
		if err != nil {
			return revisionDoc{}, err
		}
		rd.Caps = append(rd.Caps, d)
	}
	return rd, nil
}

func encodeRequirement(req *model.Requirement) (requirementDoc, error) {
	attrs, err := encodeMap(req.Attributes)
	if err != nil {
		return requirementDoc{}, err
	}
	d := requirementDoc{
		Namespace:   req.Namespace.String(),
		Name:        req.Name,
		Range:       encodeRange(req.Range),
		Attrs:       attrs,
		Resolution:  uint8(req.Resolution),
		Cardinality: uint8(req.Cardinality),
		Effective:   uint8(req.Effective),
		Visibility:  uint8(req.Visibility),
	}
	if req.Filter != nil {
		d.Filter = req.Filter.String()
	}
	return d, nil
}

func encodeCapability(c *model.Capability) (capabilityDoc, error) {
	attrs, err := encodeMap(c.Attributes)
	if err != nil {
		return capabilityDoc{}, err
	}
	return capabilityDoc{
		Namespace: c.Namespace.String(),
		Name:      c.Name,
		Version:   c.Version.String(),
		Attrs:     attrs,
		Uses:      c.Uses,
		Mandatory: c.Mandatory,
		Effective: uint8(c.Effective),
	}, nil
}

func encodeRange(r version.Range) rangeDoc {
	d := rangeDoc{Min: r.Min.String(), MinExclusive: r.MinExclusive, MaxExclusive: r.MaxExclusive}
	if r.Max != nil {
		s := r.Max.String()
		d.Max = &s
	}
	return d
}

func (e encoder) wiring(r *model.Revision, w *model.Wiring) (wiringDoc, error) {
	wd := wiringDoc{Rev: e.ordinal[r]}
	for _, wire := range w.Required {
		req, err := e.requirementRef(wire.Requirement)
		if err != nil {
			return wd, err
		}
		c, err := e.capabilityRef(wire.Capability)
		if err != nil {
			return wd, err
		}
		requirer, ok1 := e.ordinal[wire.Requirer]
		provider, ok2 := e.ordinal[wire.Provider]
		if !ok1 || !ok2 {
			return wd, fmt.Errorf("wire %s leaves the state", wire)
		}
		wd.Required = append(wd.Required, wireDoc{Requirer: requirer, Requirement: req, Provider: provider, Capability: c})
	}
	for _, c := range w.Capabilities {
		cr, err := e.capabilityRef(c)
		if err != nil {
			return wd, err
		}
		wd.Capabilities = append(wd.Capabilities, cr)
	}
	for _, req := range w.Requirements {
		rr, err := e.requirementRef(req)
		if err != nil {
			return wd, err
		}
		wd.Requirements = append(wd.Requirements, rr)
	}
	for _, f := range w.Fragments {
		wd.Fragments = append(wd.Fragments, e.ordinal[f])
	}
	return wd, nil
}

func (e encoder) requirementRef(req *model.Requirement) (ref, error) {
	i, ok := e.ordinal[req.Revision()]
	if !ok {
		return ref{}, fmt.Errorf("requirement %s has no owner in the state", req)
	}
	return ref{Rev: i, Index: req.Index()}, nil
}

func (e encoder) capabilityRef(c *model.Capability) (ref, error) {
	i, ok := e.ordinal[c.Revision()]
	if !ok {
		return ref{}, fmt.Errorf("capability %s has no owner in the state", c)
	}
	return ref{Rev: i, Index: c.Index()}, nil
}

// =============================================================================
// Decoding
// =============================================================================

// decoder rebuilds revisions and wirings from a document. Any inconsistency
// is reported as an error and treated by the caller as a corrupt blob.
type decoder struct {
	st   *state.State
	revs []*model.Revision
}

func decodeState(doc *document, opts state.Options) (*state.State, error) {
	id, err := uuid.FromBytes(doc.ID)
	if err != nil {
		return nil, err
	}

	var props platform.Properties
	for _, entries := range doc.Platform {
		m, err := decodeMap(entries)
		if err != nil {
			return nil, err
		}
		if m == nil {
			m = map[string]any{}
		}
		props = append(props, platform.Dict(m))
	}
	opts.Platform = props

	d := decoder{st: state.New(opts)}
	img := state.Image{
		ID:        id,
		Timestamp: doc.Timestamp,
		Pending:   map[*model.Revision]bool{},
		Wirings:   map[*model.Revision]*model.Wiring{},
	}
	for _, rd := range doc.Revisions {
		r, err := decodeRevision(rd)
		if err != nil {
			return nil, err
		}
		d.revs = append(d.revs, r)
		if rd.Pending {
			img.Pending[r] = true
		}
	}
	img.Revisions = d.revs

	for _, wd := range doc.Wirings {
		r, err := d.rev(wd.Rev)
		if err != nil {
			return nil, err
		}
		w, err := d.wiring(r, wd)
		if err != nil {
			return nil, err
		}
		img.Wirings[r] = w
	}

	for _, dd := range doc.Disabled {
		r, err := d.rev(dd.Rev)
		if err != nil {
			return nil, err
		}
		img.Disabled = append(img.Disabled, model.DisabledInfo{Policy: dd.Policy, Message: dd.Message, Revision: r})
	}

	if err := d.st.Restore(img); err != nil {
		return nil, err
	}
	return d.st, nil
}

func decodeRevision(rd revisionDoc) (*model.Revision, error) {
	v, err := version.Parse(rd.Version)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeMap(rd.Attrs)
	if err != nil {
		return nil, err
	}
	decl := model.Declaration{
		ID:           rd.ID,
		SymbolicName: rd.Name,
		Version:      v,
		Location:     rd.Location,
		Singleton:    rd.Singleton,
		Attributes:   attrs,
	}
	if rd.Filter != "" {
		if decl.PlatformFilter, err = filter.Parse(rd.Filter); err != nil {
			return nil, err
		}
	}
	if rd.Host != nil {
		if decl.Host, err = decodeRequirement(*rd.Host); err != nil {
			return nil, err
		}
	}
	for _, qd := range rd.Reqs {
		req, err := decodeRequirement(qd)
		if err != nil {
			return nil, err
		}
		decl.Requirements = append(decl.Requirements, req)
	}
	for _, cd := range rd.Caps {
		c, err := decodeCapability(cd)
		if err != nil {
			return nil, err
		}
		decl.Capabilities = append(decl.Capabilities, c)
	}
	return model.NewRevision(decl)
}

func decodeRequirement(d requirementDoc) (*model.Requirement, error) {
	rng, err := decodeRange(d.Range)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeMap(d.Attrs)
	if err != nil {
		return nil, err
	}
	req := &model.Requirement{
		Namespace:   model.ParseNamespace(d.Namespace),
		Name:        d.Name,
		Range:       rng,
		Attributes:  attrs,
		Resolution:  model.Resolution(d.Resolution),
		Cardinality: model.Cardinality(d.Cardinality),
		Effective:   model.Effective(d.Effective),
		Visibility:  model.Visibility(d.Visibility),
	}
	if d.Filter != "" {
		if req.Filter, err = filter.Parse(d.Filter); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func decodeCapability(d capabilityDoc) (*model.Capability, error) {
	v, err := version.Parse(d.Version)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeMap(d.Attrs)
	if err != nil {
		return nil, err
	}
	return &model.Capability{
		Namespace:  model.ParseNamespace(d.Namespace),
		Name:       d.Name,
		Version:    v,
		Attributes: attrs,
		Uses:       d.Uses,
		Mandatory:  d.Mandatory,
		Effective:  model.Effective(d.Effective),
	}, nil
}

func decodeRange(d rangeDoc) (version.Range, error) {
	min, err := version.Parse(d.Min)
	if err != nil {
		return version.Any, err
	}
	r := version.Range{Min: min, MinExclusive: d.MinExclusive, MaxExclusive: d.MaxExclusive}
	if d.Max != nil {
		max, err := version.Parse(*d.Max)
		if err != nil {
			return version.Any, err
		}
		r.Max = &max
	}
	return r, nil
}

func (d decoder) rev(i int) (*model.Revision, error) {
	if i < 0 || i >= len(d.revs) {
		return nil, fmt.Errorf("revision ordinal %d out of range", i)
	}
	return d.revs[i], nil
}

func (d decoder) requirement(x ref) (*model.Requirement, error) {
	r, err := d.rev(x.Rev)
	if err != nil {
		return nil, err
	}
	if x.Index == -1 {
		if r.Host() == nil {
			return nil, fmt.Errorf("%s has no host requirement", r)
		}
		return r.Host(), nil
	}
	reqs := r.Requirements()
	if x.Index < 0 || x.Index >= len(reqs) {
		return nil, fmt.Errorf("%s: requirement index %d out of range", r, x.Index)
	}
	return reqs[x.Index], nil
}

func (d decoder) capability(x ref) (*model.Capability, error) {
	r, err := d.rev(x.Rev)
	if err != nil {
		return nil, err
	}
	caps := r.Capabilities()
	if x.Index >= 0 && x.Index < len(caps) {
		return caps[x.Index], nil
	}
	system := d.st.SystemCapabilities(r)
	if i := x.Index - len(caps); i >= 0 && i < len(system) {
		return system[i], nil
	}
	return nil, fmt.Errorf("%s: capability index %d out of range", r, x.Index)
}

func (d decoder) wiring(r *model.Revision, wd wiringDoc) (*model.Wiring, error) {
	w := &model.Wiring{Revision: r}
	for _, wr := range wd.Required {
		requirer, err := d.rev(wr.Requirer)
		if err != nil {
			return nil, err
		}
		provider, err := d.rev(wr.Provider)
		if err != nil {
			return nil, err
		}
		req, err := d.requirement(wr.Requirement)
		if err != nil {
			return nil, err
		}
		c, err := d.capability(wr.Capability)
		if err != nil {
			return nil, err
		}
		w.Required = append(w.Required, &model.Wire{Requirer: requirer, Requirement: req, Provider: provider, Capability: c})
	}
	for _, x := range wd.Capabilities {
		c, err := d.capability(x)
		if err != nil {
			return nil, err
		}
		w.Capabilities = append(w.Capabilities, c)
	}
	for _, x := range wd.Requirements {
		req, err := d.requirement(x)
		if err != nil {
			return nil, err
		}
		w.Requirements = append(w.Requirements, req)
	}
	for _, i := range wd.Fragments {
		f, err := d.rev(i)
		if err != nil {
			return nil, err
		}
		w.Fragments = append(w.Fragments, f)
	}
	return w, nil
}

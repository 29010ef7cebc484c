package io

// file is the decoded layout shared by all formats.
type file struct {
	Bundles  []bundle         `toml:"bundle" yaml:"bundle" json:"bundle"`
	Disabled []disabled       `toml:"disabled,omitempty" yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Platform []map[string]any `toml:"platform,omitempty" yaml:"platform,omitempty" json:"platform,omitempty"`
}

type bundle struct {
	ID           int64          `toml:"id" yaml:"id" json:"id"`
	Name         string         `toml:"name" yaml:"name" json:"name"`
	Version      string         `toml:"version,omitempty" yaml:"version,omitempty" json:"version,omitempty"`
	Location     string         `toml:"location,omitempty" yaml:"location,omitempty" json:"location,omitempty"`
	Singleton    bool           `toml:"singleton,omitempty" yaml:"singleton,omitempty" json:"singleton,omitempty"`
	Filter       string         `toml:"filter,omitempty" yaml:"filter,omitempty" json:"filter,omitempty"`
	Attributes   map[string]any `toml:"attributes,omitempty" yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Host         *requirement   `toml:"host,omitempty" yaml:"host,omitempty" json:"host,omitempty"`
	Exports      []capability   `toml:"exports,omitempty" yaml:"exports,omitempty" json:"exports,omitempty"`
	Imports      []requirement  `toml:"imports,omitempty" yaml:"imports,omitempty" json:"imports,omitempty"`
	Requires     []requirement  `toml:"requires,omitempty" yaml:"requires,omitempty" json:"requires,omitempty"`
	Capabilities []capability   `toml:"capabilities,omitempty" yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Requirements []requirement  `toml:"requirements,omitempty" yaml:"requirements,omitempty" json:"requirements,omitempty"`
}

type capability struct {
	Namespace  string         `toml:"namespace,omitempty" yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Name       string         `toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty"`
	Version    string         `toml:"version,omitempty" yaml:"version,omitempty" json:"version,omitempty"`
	Attributes map[string]any `toml:"attributes,omitempty" yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Uses       []string       `toml:"uses,omitempty" yaml:"uses,omitempty" json:"uses,omitempty"`
	Mandatory  []string       `toml:"mandatory,omitempty" yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
	Effective  string         `toml:"effective,omitempty" yaml:"effective,omitempty" json:"effective,omitempty"`
}

type requirement struct {
	Namespace  string         `toml:"namespace,omitempty" yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Name       string         `toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty"`
	Range      string         `toml:"range,omitempty" yaml:"range,omitempty" json:"range,omitempty"`
	Filter     string         `toml:"filter,omitempty" yaml:"filter,omitempty" json:"filter,omitempty"`
	Attributes map[string]any `toml:"attributes,omitempty" yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Optional   bool           `toml:"optional,omitempty" yaml:"optional,omitempty" json:"optional,omitempty"`
	Dynamic    bool           `toml:"dynamic,omitempty" yaml:"dynamic,omitempty" json:"dynamic,omitempty"`
	Multiple   bool           `toml:"multiple,omitempty" yaml:"multiple,omitempty" json:"multiple,omitempty"`
	Reexport   bool           `toml:"reexport,omitempty" yaml:"reexport,omitempty" json:"reexport,omitempty"`
	Effective  string         `toml:"effective,omitempty" yaml:"effective,omitempty" json:"effective,omitempty"`
}

type disabled struct {
	Bundle  int64  `toml:"bundle" yaml:"bundle" json:"bundle"`
	Policy  string `toml:"policy" yaml:"policy" json:"policy"`
	Message string `toml:"message,omitempty" yaml:"message,omitempty" json:"message,omitempty"`
}

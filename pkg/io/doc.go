// Package io reads and writes bundle declaration files.
//
// A declaration file lists bundles, optional disabled infos and optional
// platform dictionaries. TOML, YAML and JSON share one layout; the format
// follows the file extension:
//
//	[[bundle]]
//	id = 1
//	name = "org.example.api"
//	version = "1.2.0"
//	singleton = true
//
//	  [[bundle.exports]]
//	  name = "org.example.api"
//	  version = "1.2.0"
//	  uses = ["org.example.util"]
//
//	  [[bundle.imports]]
//	  name = "org.example.util"
//	  range = "[1.0,2.0)"
//
//	[[bundle]]
//	id = 2
//	name = "org.example.api.nl"
//	version = "1.0.0"
//	host = { name = "org.example.api" }
//
//	[[disabled]]
//	bundle = 2
//	policy = "license"
//	message = "not yet approved"
//
// Bundle sections:
//
//   - exports / imports: package capabilities and requirements
//   - requires: bundle requirements (reexport = true re-exports)
//   - capabilities / requirements: any namespace, selected by filter
//   - host: fragment-host requirement; its presence makes a fragment
//
// [Load] reads one file and [LoadDir] merges every declaration file in a
// directory in name order. [Write] emits the same layout back from live
// revisions, so declarations round-trip.
//
// Decoded attribute values are normalized: integers become int64 and lists
// of strings become []string regardless of the source format.
package io

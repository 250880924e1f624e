// Package aggregation reduces raw health records into daily summaries.
//
// Everything in this package is pure: no I/O, no shared mutable state. Callers
// may aggregate independent (user, record type, date) keys concurrently.
package aggregation

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Record is one raw timestamped measurement from a source application.
type Record struct {
	Data  map[string]any `json:"data"`
	Start string         `json:"start,omitempty"`
	Time  string         `json:"time,omitempty"`
	End   string         `json:"end,omitempty"`
	App   Origin         `json:"app"`
}

// Timestamp returns start, falling back to time. Empty means the record has neither.
func (r Record) Timestamp() string {
	if r.Start != "" {
		return r.Start
	}
	return r.Time
}

// Origin identifies the application that produced a record. On the wire it is
// either {"packageName": "..."} or a bare string.
type Origin struct {
	PackageName string
	bare        bool
}

// PackageOrigin builds an origin that encodes as {"packageName": name}.
func PackageOrigin(name string) Origin {
	return Origin{PackageName: name}
}

// BareOrigin builds an origin that encodes as a plain string.
func BareOrigin(name string) Origin {
	return Origin{PackageName: name, bare: true}
}

// UnmarshalJSON accepts both the mapping and the bare-string form.
func (o *Origin) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*o = Origin{}
		return nil
	}
	if raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return err
		}
		*o = Origin{PackageName: name, bare: true}
		return nil
	}
	if raw[0] != '{' {
		// Unknown shapes contribute no origin.
		*o = Origin{}
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	name, _ := obj["packageName"].(string)
	*o = Origin{PackageName: name}
	return nil
}

// MarshalJSON writes the origin back in the shape it was read in.
func (o Origin) MarshalJSON() ([]byte, error) {
	if o.bare {
		return json.Marshal(o.PackageName)
	}
	if o.PackageName == "" {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]string{"packageName": o.PackageName})
}

// originSet collects distinct, non-empty origin identifiers.
type originSet map[string]struct{}

func (s originSet) add(o Origin) {
	if o.PackageName != "" {
		s[o.PackageName] = struct{}{}
	}
}

// list returns the identifiers sorted so results are reproducible.
func (s originSet) list() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

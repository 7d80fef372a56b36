// Package params holds experiment parameters: a case-insensitive bag of
// named values, plus helpers for overlaying command-line arguments over a
// JSON or YAML config file. A Parameters bag is the usual producer of a
// run's metadata row.
package params

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parameters is a case-insensitive mapping from parameter name to value.
// Keys are folded to lower case; constructing a bag with two keys that
// differ only in case is an error.
type Parameters struct {
	m map[string]any
}

// New builds a bag from the given values.
func New(values map[string]any) (*Parameters, error) {
	p := &Parameters{m: make(map[string]any, len(values))}
	for k, v := range values {
		folded := strings.ToLower(k)
		if _, ok := p.m[folded]; ok {
			return nil, fmt.Errorf("parameter keys collide under case folding: %q", folded)
		}
		p.m[folded] = v
	}
	return p, nil
}

// Get returns the value for key, or nil if absent.
func (p *Parameters) Get(key string) any {
	return p.m[strings.ToLower(key)]
}

// Has reports whether key is present.
func (p *Parameters) Has(key string) bool {
	_, ok := p.m[strings.ToLower(key)]
	return ok
}

// Set stores a value under key.
func (p *Parameters) Set(key string, v any) {
	p.m[strings.ToLower(key)] = v
}

// Delete removes key.
func (p *Parameters) Delete(key string) {
	delete(p.m, strings.ToLower(key))
}

// Len returns the number of parameters.
func (p *Parameters) Len() int { return len(p.m) }

// Keys returns the parameter names, sorted.
func (p *Parameters) Keys() []string {
	keys := make([]string, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsMap returns a copy of the underlying mapping.
func (p *Parameters) AsMap() map[string]any {
	out := make(map[string]any, len(p.m))
	for k, v := range p.m {
		out[k] = v
	}
	return out
}

// String renders the bag as indented JSON.
func (p *Parameters) String() string {
	data, err := json.MarshalIndent(p.m, "", "  ")
	if err != nil {
		return fmt.Sprintf("Parameters(%v)", p.m)
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler.
func (p *Parameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	np, err := New(m)
	if err != nil {
		return err
	}
	p.m = np.m
	return nil
}

// Consistent returns new if old is nil, and otherwise requires the two to
// be equal. Used when the same parameter can arrive from more than one
// source.
func Consistent(old, new any) (any, error) {
	if old == nil {
		return new, nil
	}
	if fmt.Sprint(old) != fmt.Sprint(new) {
		return nil, fmt.Errorf("inconsistent values: %v vs %v", old, new)
	}
	return old, nil
}

// OverrideJSON overlays the non-nil values of args over the parameters in
// a JSON config file and returns the result. Nil-valued args keys absent
// from the file stay present as nils, so the result's key set covers both
// sources.
//
// With strict set, the key sets of args and the file must match exactly;
// the error lists the keys missing from either side.
func OverrideJSON(args *Parameters, path string, strict bool) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fileParams map[string]any
	if err := json.Unmarshal(data, &fileParams); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return override(args, fileParams, strict)
}

// OverrideYAML is OverrideJSON for YAML config files.
func OverrideYAML(args *Parameters, path string, strict bool) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fileParams map[string]any
	if err := yaml.Unmarshal(data, &fileParams); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return override(args, fileParams, strict)
}

func override(args *Parameters, fileParams map[string]any, strict bool) (*Parameters, error) {
	file, err := New(fileParams)
	if err != nil {
		return nil, err
	}

	if strict {
		var missingFromArgs, missingFromFile []string
		for _, k := range file.Keys() {
			if !args.Has(k) {
				missingFromArgs = append(missingFromArgs, k)
			}
		}
		for _, k := range args.Keys() {
			if !file.Has(k) {
				missingFromFile = append(missingFromFile, k)
			}
		}
		if len(missingFromArgs) > 0 || len(missingFromFile) > 0 {
			return nil, fmt.Errorf("config mismatch: keys not in args: %v; keys not in config: %v",
				missingFromArgs, missingFromFile)
		}
	}

	merged := file.AsMap()
	for _, k := range args.Keys() {
		if v := args.Get(k); v != nil {
			merged[k] = v
		} else if !file.Has(k) {
			merged[k] = nil
		}
	}
	return New(merged)
}

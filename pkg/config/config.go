// Package config resolves settings from an ordered list of layers merged
// left to right: base file, then file overrides, then inline JSON. Later
// layers win. Lookups take a caller-supplied default and never fail; an
// unresolved path is not an error.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"
)

// Layer is one plain key/value snapshot in the merge order.
type Layer struct {
	Name   string
	Values map[string]any
}

// FileLayer reads a YAML/TOML/JSON file (format by extension) into a
// layer.
func FileLayer(path string) (Layer, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Layer{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Layer{Name: path, Values: v.AllSettings()}, nil
}

// JSONLayer parses an inline JSON object into a layer. Typically the
// highest-precedence layer, passed on the command line or per request.
func JSONLayer(raw []byte) (Layer, error) {
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return Layer{}, fmt.Errorf("parse inline config: %w", err)
	}
	return Layer{Name: "inline", Values: values}, nil
}

// MapLayer wraps an in-memory map, mostly for tests and defaults.
func MapLayer(name string, values map[string]any) Layer {
	return Layer{Name: name, Values: values}
}

// Accessor is a read-only view over the merged layers. Keys use dotted
// paths ("stages.semantic.top_k").
type Accessor struct {
	v *viper.Viper
}

// New merges layers in order and returns the accessor. Overlapping keys
// resolve to the rightmost layer that sets them. Each layer is copied
// before merging; viper merges nested maps in place, and a Layer is a
// snapshot the caller may reuse.
func New(layers ...Layer) (*Accessor, error) {
	v := viper.New()
	for _, layer := range layers {
		if layer.Values == nil {
			continue
		}
		if err := v.MergeConfigMap(copyValues(layer.Values)); err != nil {
			return nil, fmt.Errorf("merge layer %s: %w", layer.Name, err)
		}
	}
	return &Accessor{v: v}, nil
}

func copyValues(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyValues(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// Int returns the integer at path, or def when unset.
func (a *Accessor) Int(path string, def int) int {
	if !a.v.IsSet(path) {
		return def
	}
	return a.v.GetInt(path)
}

// Float returns the float at path, or def when unset.
func (a *Accessor) Float(path string, def float64) float64 {
	if !a.v.IsSet(path) {
		return def
	}
	return a.v.GetFloat64(path)
}

// Bool returns the boolean at path, or def when unset.
func (a *Accessor) Bool(path string, def bool) bool {
	if !a.v.IsSet(path) {
		return def
	}
	return a.v.GetBool(path)
}

// String returns the string at path, or def when unset.
func (a *Accessor) String(path, def string) string {
	if !a.v.IsSet(path) {
		return def
	}
	return a.v.GetString(path)
}

// Strings returns the string slice at path, or def when unset.
func (a *Accessor) Strings(path string, def []string) []string {
	if !a.v.IsSet(path) {
		return def
	}
	return a.v.GetStringSlice(path)
}

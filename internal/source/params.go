// Package source models the upstream report-repository API: the request
// parameter object, the paged response, and the validated query a crawl runs.
package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Condition is a single filter clause such as {"field": "country", "value": "Chad"}.
type Condition struct {
	Field string `json:"field" yaml:"field"`
	Value any    `json:"value" yaml:"value"`
}

// Filter combines conditions with an operator ("AND" or "OR").
type Filter struct {
	Operator   string      `json:"operator,omitempty" yaml:"operator,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Params is the parameter object POSTed for each page.
type Params struct {
	Offset int            `json:"offset" yaml:"offset"`
	Limit  int            `json:"limit,omitempty" yaml:"limit,omitempty"`
	Filter *Filter        `json:"filter,omitempty" yaml:"filter,omitempty"`
	Sort   []string       `json:"sort,omitempty" yaml:"sort,omitempty"`
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	Preset string         `json:"preset,omitempty" yaml:"preset,omitempty"`
}

// Clone returns a copy whose slices and filter can be modified independently.
// Condition values and Fields are shared; they are treated as read-only.
func (p Params) Clone() Params {
	out := p
	if p.Sort != nil {
		out.Sort = append([]string(nil), p.Sort...)
	}
	if p.Filter != nil {
		f := *p.Filter
		f.Conditions = append([]Condition(nil), p.Filter.Conditions...)
		out.Filter = &f
	}
	return out
}

// LoadParams reads a parameter object from a JSON or YAML file.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied query file.
	if err != nil {
		return Params{}, fmt.Errorf("read query file: %w", err)
	}
	var p Params
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return Params{}, fmt.Errorf("decode json query: %w", err)
		}
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Params{}, fmt.Errorf("decode yaml query: %w", err)
		}
	default:
		return Params{}, &ConfigurationError{Reason: fmt.Sprintf("query file %q must be JSON or YAML", path)}
	}
	return p, nil
}

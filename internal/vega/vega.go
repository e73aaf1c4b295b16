// Package vega holds the chart templates served by the visualization
// endpoints and injects query results into them.
//
// Templates are parsed once and never mutated: Load hands out a private
// copy and InjectValues returns a new spec instead of editing its input, so
// concurrent requests never share a map.
package vega

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/roadwatch/backend/internal/domain"
)

// Template file names
const (
	TemplateSeverityBreakdown = "collisions_by_severity.vega.json"
	TemplateTopLocations      = "horizontal_bar_graph.vega.json"
	TemplateTimeSeries        = "line_chart.vega.json"
	TemplateHeatmap           = "collision_heatmap.vega.json"
)

// TableDataset is the name of the data source that receives query values
const TableDataset = "table"

const templateSuffix = ".vega.json"

//go:embed templates/*.vega.json
var embedded embed.FS

// Spec is a parsed Vega specification
type Spec map[string]any

// Store keeps the raw template bytes keyed by file name
type Store struct {
	raw map[string][]byte
}

// NewStore loads the templates shipped with the binary
func NewStore() (*Store, error) {
	return NewStoreFS(embedded, "templates")
}

// NewStoreFS loads every *.vega.json file under dir. Each file must parse as
// a JSON object.
func NewStoreFS(fsys fs.FS, dir string) (*Store, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("vega: read template dir: %w", err)
	}

	raw := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), templateSuffix) {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("vega: read %s: %w", entry.Name(), err)
		}
		var probe Spec
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("vega: parse %s: %w", entry.Name(), err)
		}
		raw[entry.Name()] = data
	}
	return &Store{raw: raw}, nil
}

// Names lists the loaded templates
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.raw))
	for name := range s.raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load returns a fresh copy of the named template
func (s *Store) Load(name string) (Spec, error) {
	data, ok := s.raw[name]
	if !ok {
		return nil, fmt.Errorf("vega: unknown template %q: %w", name, domain.ErrConfiguration)
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("vega: parse %s: %w", name, err)
	}
	return spec, nil
}

// InjectValues returns a copy of spec whose "table" data source carries
// values. The input spec is left untouched.
func InjectValues(spec Spec, values any) (Spec, error) {
	data, _ := spec["data"].([]any)

	idx := -1
	for i, d := range data {
		if ds, ok := d.(map[string]any); ok && ds["name"] == TableDataset {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("vega: no %q data source: %w", TableDataset, domain.ErrConfiguration)
	}

	table := make(map[string]any, len(data[idx].(map[string]any))+1)
	for k, v := range data[idx].(map[string]any) {
		table[k] = v
	}
	table["values"] = values

	newData := make([]any, len(data))
	copy(newData, data)
	newData[idx] = table

	out := make(Spec, len(spec))
	for k, v := range spec {
		out[k] = v
	}
	out["data"] = newData
	return out, nil
}

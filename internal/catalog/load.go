package catalog

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Segments []Segment         `yaml:"segments" validate:"required,min=1,dive"`
	Factors  []Factor          `yaml:"factors" validate:"required,min=1,dive"`
	Layers   []Layer           `yaml:"layers" validate:"required,min=1,dive"`
	Roles    map[string]string `yaml:"roles"`
}

var structValidator = validator.New()

// Load reads and validates a catalog YAML file. Any defect is a
// ConfigurationError; a partially valid catalog is never returned.
func Load(path string) (*Catalog, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(blob, &file); err != nil {
		return nil, configErr("file", path, "invalid yaml: %v", err)
	}
	return New(file.Segments, file.Factors, file.Layers, file.Roles)
}

// New builds a validated catalog from in-memory entries. Tests and embedded
// defaults use this directly.
func New(segments []Segment, factors []Factor, layers []Layer, roles map[string]string) (*Catalog, error) {
	c := &Catalog{Segments: segments, Factors: factors, Layers: layers, Roles: roles}
	if c.Roles == nil {
		c.Roles = map[string]string{}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.index()
	return c, nil
}

func (c *Catalog) validate() error {
	file := catalogFile{Segments: c.Segments, Factors: c.Factors, Layers: c.Layers, Roles: c.Roles}
	if err := structValidator.Struct(file); err != nil {
		return configErr("file", "", "schema: %v", err)
	}

	segIDs := map[string]struct{}{}
	for _, s := range c.Segments {
		if _, dup := segIDs[s.ID]; dup {
			return configErr("segment", s.ID, "duplicate id")
		}
		segIDs[s.ID] = struct{}{}
	}
	factorIDs := map[string]string{}
	for _, f := range c.Factors {
		if _, dup := factorIDs[f.ID]; dup {
			return configErr("factor", f.ID, "duplicate id")
		}
		factorIDs[f.ID] = f.SegmentID
		if _, ok := segIDs[f.SegmentID]; !ok {
			return configErr("factor", f.ID, "unknown segment %q", f.SegmentID)
		}
		members := map[string]struct{}{}
		for _, lid := range f.LayerIDs {
			if _, dup := members[lid]; dup {
				return configErr("factor", f.ID, "duplicate member layer %q", lid)
			}
			members[lid] = struct{}{}
		}
		for lid, w := range f.Weights {
			if _, ok := members[lid]; !ok {
				return configErr("factor", f.ID, "weight for non-member layer %q", lid)
			}
			if w <= 0 || w > 1 {
				return configErr("factor", f.ID, "weight for layer %q must be in (0,1], got %g", lid, w)
			}
		}
	}
	layerIDs := map[string]struct{}{}
	for _, l := range c.Layers {
		if _, dup := layerIDs[l.ID]; dup {
			return configErr("layer", l.ID, "duplicate id")
		}
		layerIDs[l.ID] = struct{}{}
		if _, ok := factorIDs[l.FactorID]; !ok {
			return configErr("layer", l.ID, "unknown factor %q", l.FactorID)
		}
	}
	for _, f := range c.Factors {
		for _, lid := range f.LayerIDs {
			if _, ok := layerIDs[lid]; !ok {
				return configErr("factor", f.ID, "member layer %q not in catalog", lid)
			}
		}
	}
	for _, s := range c.Segments {
		members := map[string]struct{}{}
		for _, fid := range s.FactorIDs {
			if _, dup := members[fid]; dup {
				return configErr("segment", s.ID, "duplicate member factor %q", fid)
			}
			owner, ok := factorIDs[fid]
			if !ok {
				return configErr("segment", s.ID, "member factor %q not in catalog", fid)
			}
			if owner != s.ID {
				return configErr("segment", s.ID, "member factor %q belongs to segment %q", fid, owner)
			}
			members[fid] = struct{}{}
		}
		for _, metric := range MetricNames {
			fids, ok := s.Metrics[metric]
			if !ok || len(fids) == 0 {
				return configErr("segment", s.ID, "metric %q has no factor mapping", metric)
			}
			for _, fid := range fids {
				if _, ok := members[fid]; !ok {
					return configErr("segment", s.ID, "metric %q references non-member factor %q", metric, fid)
				}
			}
		}
		for metric := range s.Metrics {
			if !knownMetric(metric) {
				return configErr("segment", s.ID, "unknown metric %q", metric)
			}
		}
	}
	for role, fid := range c.Roles {
		if _, ok := factorIDs[fid]; !ok {
			return configErr("role", role, "unresolved factor %q", fid)
		}
	}
	return nil
}

func knownMetric(name string) bool {
	for _, m := range MetricNames {
		if m == name {
			return true
		}
	}
	return false
}

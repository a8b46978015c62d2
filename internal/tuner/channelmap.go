package tuner

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ChannelMap names one scan table: a regulatory region and delivery type the
// hardware knows how to walk. EstimatedSteps exists purely for progress
// display; the scan's real end is the hardware's exhaustion signal.
type ChannelMap struct {
	ID             string `yaml:"id"`
	Description    string `yaml:"description"`
	EstimatedSteps int    `yaml:"estimated_steps"`
}

// ChannelMapTable is the fixed per-map lookup the scan engine consults.
type ChannelMapTable struct {
	maps map[string]ChannelMap
}

// defaultEstimatedSteps is used for maps the table has no entry for.
const defaultEstimatedSteps = 100

// DefaultChannelMaps returns the built-in table of scan maps.
func DefaultChannelMaps() *ChannelMapTable {
	t := &ChannelMapTable{maps: make(map[string]ChannelMap)}
	for _, m := range []ChannelMap{
		{ID: "us-bcast", Description: "US terrestrial broadcast", EstimatedSteps: 69},
		{ID: "us-cable", Description: "US cable (standard)", EstimatedSteps: 135},
		{ID: "us-hrc", Description: "US cable (HRC)", EstimatedSteps: 135},
		{ID: "us-irc", Description: "US cable (IRC)", EstimatedSteps: 135},
		{ID: "eu-bcast", Description: "EU terrestrial broadcast", EstimatedSteps: 49},
		{ID: "eu-cable", Description: "EU cable", EstimatedSteps: 113},
		{ID: "kr-bcast", Description: "KR terrestrial broadcast", EstimatedSteps: 69},
		{ID: "kr-cable", Description: "KR cable", EstimatedSteps: 135},
	} {
		t.maps[m.ID] = m
	}
	return t
}

// LoadChannelMaps starts from the built-in table and overlays entries from a
// YAML file of the form:
//
//	maps:
//	  - id: us-bcast
//	    description: ...
//	    estimated_steps: 69
func LoadChannelMaps(path string) (*ChannelMapTable, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Maps []ChannelMap `yaml:"maps"`
	}
	if err := yaml.Unmarshal(source, &file); err != nil {
		return nil, fmt.Errorf("parse channel maps %s: %w", path, err)
	}

	t := DefaultChannelMaps()
	for _, m := range file.Maps {
		if m.ID == "" {
			continue
		}
		t.maps[m.ID] = m
	}
	return t, nil
}

// EstimatedSteps returns the progress-display estimate for the given map, or
// a generic fallback for unknown maps. The figure is advisory only.
func (t *ChannelMapTable) EstimatedSteps(id string) int {
	if m, ok := t.maps[id]; ok && m.EstimatedSteps > 0 {
		return m.EstimatedSteps
	}
	return defaultEstimatedSteps
}

// Known reports whether the table has an entry for id.
func (t *ChannelMapTable) Known(id string) bool {
	_, ok := t.maps[id]
	return ok
}

// IDs returns all map identifiers, sorted.
func (t *ChannelMapTable) IDs() []string {
	ids := make([]string, 0, len(t.maps))
	for id := range t.maps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

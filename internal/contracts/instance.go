package contracts

import (
	"sort"
	"strings"
)

// SectorAll matches every instance regardless of its sectors
const SectorAll = "ALL"

// StrategyInstance is one configured strategy: a template plus its parameters
// ⭐ SSOT: 레지스트리 → 엔진 인스턴스 전달
type StrategyInstance struct {
	ID         string                 `json:"id" yaml:"id"`
	Template   string                 `json:"template" yaml:"template"`
	Parameters map[string]interface{} `json:"parameters" yaml:"parameters"`
	Priority   int                    `json:"priority" yaml:"priority"`
	Enabled    bool                   `json:"enabled" yaml:"enabled"`
	Sectors    []string               `json:"sectors,omitempty" yaml:"sectors"`

	// Evolution is opaque metadata maintained by whoever tunes the instance
	Evolution map[string]interface{} `json:"evolution,omitempty" yaml:"evolution"`
}

// MatchesSector reports whether the instance belongs to the given sector filter.
// Instances without sectors only match ALL.
func (s StrategyInstance) MatchesSector(filter string) bool {
	if filter == "" || strings.EqualFold(filter, SectorAll) {
		return true
	}
	for _, sector := range s.Sectors {
		if strings.EqualFold(sector, filter) {
			return true
		}
	}
	return false
}

// SortInstances orders instances by priority desc, then id asc
func SortInstances(instances []StrategyInstance) {
	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].Priority != instances[j].Priority {
			return instances[i].Priority > instances[j].Priority
		}
		return instances[i].ID < instances[j].ID
	})
}

// Template is a named prompt body with placeholders
type Template struct {
	ID   string `json:"id" yaml:"id"`
	Body string `json:"body" yaml:"body"`
}

package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// ValidationError is an instance record that cannot be used at all
type ValidationError struct {
	Source  string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Field, e.Message)
}

// instanceRecord is the on-disk form of a strategy instance.
// enabled defaults to true when omitted.
type instanceRecord struct {
	ID         string                 `yaml:"id" json:"id"`
	Template   string                 `yaml:"template" json:"template"`
	Parameters map[string]interface{} `yaml:"parameters" json:"parameters"`
	Priority   int                    `yaml:"priority" json:"priority"`
	Enabled    *bool                  `yaml:"enabled" json:"enabled"`
	Sectors    []string               `yaml:"sectors" json:"sectors"`
	Evolution  map[string]interface{} `yaml:"evolution" json:"evolution"`
}

func (r instanceRecord) toInstance(source string) (contracts.StrategyInstance, error) {
	if strings.TrimSpace(r.ID) == "" {
		return contracts.StrategyInstance{}, ValidationError{source, "id", "required"}
	}

	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	params := r.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}

	return contracts.StrategyInstance{
		ID:         r.ID,
		Template:   r.Template,
		Parameters: params,
		Priority:   r.Priority,
		Enabled:    enabled,
		Sectors:    r.Sectors,
		Evolution:  r.Evolution,
	}, nil
}

// filterActive keeps enabled instances of the sector and sorts them
func filterActive(all []contracts.StrategyInstance, sectorFilter string) []contracts.StrategyInstance {
	active := make([]contracts.StrategyInstance, 0, len(all))
	for _, inst := range all {
		if !inst.Enabled || !inst.MatchesSector(sectorFilter) {
			continue
		}
		active = append(active, inst)
	}
	contracts.SortInstances(active)
	return active
}

// NormalizeNumbers converts json.Number values into int64 or float64 in place.
// Integers stay integers so they render without a fraction.
func NormalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		for k, item := range t {
			t[k] = NormalizeNumbers(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = NormalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}

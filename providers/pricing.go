package providers

import (
	"fmt"
	"log"
	"math"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// modelPrice is one pricing table entry, USD per 1K tokens.
type modelPrice struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type pricingFile struct {
	Pricing struct {
		Models map[string]map[string]modelPrice `yaml:"models"`
	} `yaml:"pricing"`
}

// PricingTable maps provider -> model -> prices. It is read-only after load
// and safe for concurrent use. Unknown models price at zero with a logged
// warning, matching the sparse source table.
type PricingTable struct {
	models map[string]map[string]modelPrice

	warnMu sync.Mutex
	warned map[string]bool
}

// LoadPricingTable reads the YAML pricing table at path. A missing or empty
// path yields an empty table (everything prices at zero).
func LoadPricingTable(path string) (*PricingTable, error) {
	table := &PricingTable{
		models: map[string]map[string]modelPrice{},
		warned: map[string]bool{},
	}
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing table %s: %w", path, err)
	}

	var file pricingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pricing table %s: %w", path, err)
	}

	for provider, models := range file.Pricing.Models {
		for model, price := range models {
			if price.InputPer1K < 0 || price.OutputPer1K < 0 {
				return nil, fmt.Errorf("negative price for %s/%s in %s", provider, model, path)
			}
		}
		table.models[provider] = models
	}

	log.Printf("Loaded pricing for %d providers from %s", len(table.models), path)
	return table, nil
}

// NewPricingTable builds a table from an in-memory map, used by tests.
func NewPricingTable(models map[string]map[string]float64) *PricingTable {
	table := &PricingTable{
		models: map[string]map[string]modelPrice{},
		warned: map[string]bool{},
	}
	for provider, m := range models {
		entries := map[string]modelPrice{}
		for model, per1k := range m {
			entries[model] = modelPrice{InputPer1K: per1k, OutputPer1K: per1k}
		}
		table.models[provider] = entries
	}
	return table
}

func (t *PricingTable) lookup(provider, model string) (modelPrice, bool) {
	if models, ok := t.models[provider]; ok {
		if price, ok := models[model]; ok {
			return price, true
		}
	}
	return modelPrice{}, false
}

func (t *PricingTable) warnUnknown(provider, model string) {
	key := provider + "/" + model
	t.warnMu.Lock()
	defer t.warnMu.Unlock()
	if !t.warned[key] {
		t.warned[key] = true
		log.Printf("WARNING: no pricing entry for %s, costing at zero", key)
	}
}

// PromptPricePer1K returns the USD price per 1K prompt tokens, zero for
// unknown models.
func (t *PricingTable) PromptPricePer1K(provider, model string) float64 {
	price, ok := t.lookup(provider, model)
	if !ok {
		t.warnUnknown(provider, model)
		return 0
	}
	return price.InputPer1K
}

// CompletionPricePer1K returns the USD price per 1K completion tokens, zero
// for unknown models.
func (t *PricingTable) CompletionPricePer1K(provider, model string) float64 {
	price, ok := t.lookup(provider, model)
	if !ok {
		t.warnUnknown(provider, model)
		return 0
	}
	return price.OutputPer1K
}

// CostForSplit computes the USD cost of a call from its token split, rounded
// to six decimal places.
func (t *PricingTable) CostForSplit(provider, model string, promptTokens, completionTokens int) float64 {
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}

	cost := float64(promptTokens)/1000.0*t.PromptPricePer1K(provider, model) +
		float64(completionTokens)/1000.0*t.CompletionPricePer1K(provider, model)
	return math.Round(cost*1e6) / 1e6
}

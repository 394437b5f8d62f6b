package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePricingFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPricingTable(t *testing.T) {
	path := writePricingFile(t, `
pricing:
  models:
    openai:
      gpt-4o:
        input_per_1k: 0.0025
        output_per_1k: 0.01
      text-embedding-3-small:
        input_per_1k: 0.00002
        output_per_1k: 0
    anthropic:
      claude-sonnet-4-20250514:
        input_per_1k: 0.003
        output_per_1k: 0.015
`)

	table, err := LoadPricingTable(path)
	require.NoError(t, err)

	assert.Equal(t, 0.0025, table.PromptPricePer1K("openai", "gpt-4o"))
	assert.Equal(t, 0.01, table.CompletionPricePer1K("openai", "gpt-4o"))
	assert.Equal(t, 0.003, table.PromptPricePer1K("anthropic", "claude-sonnet-4-20250514"))
}

func TestLoadPricingTable_EmptyPath(t *testing.T) {
	table, err := LoadPricingTable("")
	require.NoError(t, err)
	assert.Equal(t, 0.0, table.PromptPricePer1K("openai", "gpt-4o"))
}

func TestLoadPricingTable_NegativePrice(t *testing.T) {
	path := writePricingFile(t, `
pricing:
  models:
    openai:
      gpt-4o:
        input_per_1k: -1
        output_per_1k: 0.01
`)
	_, err := LoadPricingTable(path)
	assert.Error(t, err)
}

func TestCostForSplit(t *testing.T) {
	path := writePricingFile(t, `
pricing:
  models:
    openai:
      gpt-4o:
        input_per_1k: 0.0025
        output_per_1k: 0.01
`)
	table, err := LoadPricingTable(path)
	require.NoError(t, err)

	// 2000 prompt tokens at 0.0025/1K plus 500 completion tokens at 0.01/1K.
	assert.InDelta(t, 0.01, table.CostForSplit("openai", "gpt-4o", 2000, 500), 1e-9)

	// Unknown models cost zero.
	assert.Equal(t, 0.0, table.CostForSplit("openai", "mystery-model", 2000, 500))

	// Negative counts are treated as zero.
	assert.Equal(t, 0.0, table.CostForSplit("openai", "gpt-4o", -10, -10))
}

func TestCostForSplit_SixDecimalPlaces(t *testing.T) {
	table := NewPricingTable(map[string]map[string]float64{
		"openai": {"gpt-4o-mini": 0.00015},
	})

	// 10 tokens at 0.00015/1K is 1.5e-6 USD, rounded up to 2e-6.
	cost := table.CostForSplit("openai", "gpt-4o-mini", 7, 3)
	assert.InDelta(t, 2e-6, cost, 1e-12)
}

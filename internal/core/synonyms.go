package core

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fitflow/fitflow-backend/internal/store"
)

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// SynonymTable maps a canonical tag to the variants that widen its recall.
type SynonymTable map[string][]string

// LoadSynonyms reads the table at path, or the embedded default when path is empty.
func LoadSynonyms(path string) (SynonymTable, error) {
	if path == "" {
		return ParseSynonyms(defaultSynonymsYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file %s: %w", path, err)
	}
	return ParseSynonyms(data)
}

// ParseSynonyms decodes a YAML mapping of tag to variant list. Keys and variants are lowercased.
func ParseSynonyms(data []byte) (SynonymTable, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse synonyms: %w", err)
	}
	table := make(SynonymTable, len(raw))
	for tag, variants := range raw {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == "" {
			continue
		}
		table[key] = append(table[key], store.NormalizeTags(variants)...)
	}
	return table, nil
}

// Expand returns the variants of every tag found in the table, in tag order.
func (t SynonymTable) Expand(tags []string) []string {
	var variants []string
	for _, tag := range tags {
		variants = append(variants, t[tag]...)
	}
	return variants
}

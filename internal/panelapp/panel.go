// Package panelapp loads PanelApp disease panels and keeps a local,
// version-gated copy of the Mendeliome panel.
package panelapp

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LocalFileName is the on-disk name of the synced panel payload.
const LocalFileName = "mendeliome_australia.json"

// PanelGene is one panel entry keyed by gene symbol.
type PanelGene struct {
	Symbol     string
	Confidence string // PanelApp level as a string: "3" green, "2" amber, "1" red
	MOI        string // mode of inheritance
	Phenotypes string // phenotype list joined with " | "
}

// Panel is the locally stored panel payload.
type Panel struct {
	ID      int
	Name    string
	Version string
	Genes   []PanelGene
}

// GreenCount returns the number of green (confidence level 3) genes.
func (p *Panel) GreenCount() int {
	n := 0
	for _, g := range p.Genes {
		if g.Confidence == "3" {
			n++
		}
	}
	return n
}

type payloadGene struct {
	ConfidenceLevel   any      `json:"confidence_level"`
	ModeOfInheritance string   `json:"mode_of_inheritance"`
	Phenotypes        []string `json:"phenotypes"`
	GeneData          struct {
		GeneSymbol string `json:"gene_symbol"`
		HGNCSymbol string `json:"hgnc_symbol"`
	} `json:"gene_data"`
}

type payload struct {
	PanelID int           `json:"panel_id"`
	Name    string        `json:"name"`
	Version any           `json:"version"`
	Genes   []payloadGene `json:"genes"`
}

// LoadFile reads a synced panel payload. Gene entries without any symbol
// are skipped; confidence levels are normalized to strings whether the
// source holds them as JSON numbers or strings.
func LoadFile(path string) (*Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open panel file: %w", err)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode panel file: %w", err)
	}

	panel := &Panel{
		ID:      p.PanelID,
		Name:    p.Name,
		Version: stringify(p.Version),
	}

	for _, entry := range p.Genes {
		symbol := entry.GeneData.GeneSymbol
		if symbol == "" {
			symbol = entry.GeneData.HGNCSymbol
		}
		if symbol == "" {
			continue
		}

		var kept []string
		for _, ph := range entry.Phenotypes {
			if ph != "" {
				kept = append(kept, ph)
			}
		}

		panel.Genes = append(panel.Genes, PanelGene{
			Symbol:     symbol,
			Confidence: stringify(entry.ConfidenceLevel),
			MOI:        entry.ModeOfInheritance,
			Phenotypes: strings.Join(kept, " | "),
		})
	}

	return panel, nil
}

// stringify renders a JSON string-or-number value as a string.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Index maps gene symbol to its panel entry.
type Index map[string]*PanelGene

// NewIndex builds a symbol-keyed map over the panel; duplicate symbols keep
// their first occurrence.
func NewIndex(p *Panel) Index {
	if p == nil {
		return nil
	}
	index := make(Index, len(p.Genes))
	for i := range p.Genes {
		g := &p.Genes[i]
		if _, ok := index[g.Symbol]; !ok {
			index[g.Symbol] = g
		}
	}
	return index
}

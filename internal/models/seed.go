package models

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed/solutions.yaml
var seedSolutionsYAML []byte

type seedSolution struct {
	Plant                string   `yaml:"plant"`
	Disease              string   `yaml:"disease"`
	Title                string   `yaml:"title"`
	Description          string   `yaml:"description"`
	Severity             string   `yaml:"severity"`
	Symptoms             []string `yaml:"symptoms"`
	Treatment            []string `yaml:"treatment"`
	Prevention           []string `yaml:"prevention"`
	AffectedParts        []string `yaml:"affected_parts"`
	Seasonality          []string `yaml:"seasonality"`
	EnvironmentalFactors []string `yaml:"environmental_factors"`
	OrganicTreatment     []string `yaml:"organic_treatment"`
	ChemicalTreatment    []string `yaml:"chemical_treatment"`
}

// SeedSolutions returns the built-in treatment records.
func SeedSolutions() ([]Solution, error) {
	var raw []seedSolution
	if err := yaml.Unmarshal(seedSolutionsYAML, &raw); err != nil {
		return nil, fmt.Errorf("parse seed solutions: %w", err)
	}

	out := make([]Solution, 0, len(raw))
	for _, r := range raw {
		severity := r.Severity
		if !ValidSeverity(severity) {
			severity = SeverityMedium
		}
		out = append(out, Solution{
			Plant:                NormalizeKey(r.Plant),
			Disease:              NormalizeKey(r.Disease),
			Title:                r.Title,
			Description:          r.Description,
			Severity:             severity,
			Symptoms:             r.Symptoms,
			Treatment:            r.Treatment,
			Prevention:           r.Prevention,
			AffectedParts:        r.AffectedParts,
			Seasonality:          r.Seasonality,
			EnvironmentalFactors: r.EnvironmentalFactors,
			OrganicTreatment:     r.OrganicTreatment,
			ChemicalTreatment:    r.ChemicalTreatment,
			IsActive:             true,
		})
	}
	return out, nil
}

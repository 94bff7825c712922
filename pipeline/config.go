// Package pipeline wires the stages of a run together: load, filter,
// differential expression, plots, target lookup, enrichment and report.
package pipeline

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/mirnade"
	"github.com/carbocation/mirnade/diffexpr"
	"github.com/carbocation/mirnade/enrich"
	"github.com/carbocation/mirnade/expression"
	"github.com/carbocation/mirnade/geo"
	"github.com/carbocation/mirnade/mirtarget"
	"github.com/carbocation/mirnade/report"
	"github.com/carbocation/pfx"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of a run. It can be read from a JSON or YAML
// file and then overridden by command line flags.
type Config struct {
	ConfigPath string `json:"-" yaml:"-"`

	Accession     string      `json:"accession" yaml:"accession"`
	CacheDir      string      `json:"cache_dir" yaml:"cache_dir"`
	OutDir        string      `json:"out_dir" yaml:"out_dir"`
	GEOBaseURL    string      `json:"geo_base_url" yaml:"geo_base_url"`
	MatrixPattern string      `json:"matrix_pattern" yaml:"matrix_pattern"`
	GroupField    string      `json:"group_field" yaml:"group_field"`
	FetchPlatform bool        `json:"fetch_platform" yaml:"fetch_platform"`
	Platform      geo.Columns `json:"platform_columns" yaml:"platform_columns"`

	FilterMature bool   `json:"filter_mature" yaml:"filter_mature"`
	MaturePrefix string `json:"mature_prefix" yaml:"mature_prefix"`

	DE diffexpr.Config `json:"de" yaml:"de"`

	Org             string                 `json:"org" yaml:"org"`
	TargetDB        string                 `json:"target_db" yaml:"target_db"`
	TargetURL       string                 `json:"target_url" yaml:"target_url"`
	TargetCacheSize int                    `json:"target_cache_size" yaml:"target_cache_size"`
	PredictedCutoff float64                `json:"predicted_cutoff" yaml:"predicted_cutoff"`
	CutoffType      mirtarget.CutoffType   `json:"predicted_cutoff_type" yaml:"predicted_cutoff_type"`
	JoinStrategy    mirtarget.JoinStrategy `json:"join_strategy" yaml:"join_strategy"`

	GeneSets     []string      `json:"gene_sets" yaml:"gene_sets"`
	TargetMatrix string        `json:"target_matrix" yaml:"target_matrix"`
	Enrich       enrich.Config `json:"enrich" yaml:"enrich"`

	TopN            int     `json:"top_n" yaml:"top_n"`
	Alpha           float64 `json:"alpha" yaml:"alpha"`
	VolcanoLabels   int     `json:"volcano_labels" yaml:"volcano_labels"`
	HeatmapClusters int     `json:"heatmap_clusters" yaml:"heatmap_clusters"`
}

// DefaultConfig compares MUO against MHO with GEO defaults.
func DefaultConfig() Config {
	return Config{
		CacheDir:      "~/.cache/mirnade",
		OutDir:        "mirnade-out",
		GEOBaseURL:    geo.DefaultBaseURL,
		MatrixPattern: geo.DefaultMatrixPattern,
		GroupField:    geo.DefaultGroupField,
		FetchPlatform: true,
		Platform:      geo.Columns{Accession: "Accession", Mirna: "miRNA_ID", Targets: "Target Genes"},
		FilterMature:  true,
		MaturePrefix:  expression.DefaultMaturePrefix,
		DE: diffexpr.Config{
			Reference:  "MHO",
			Comparison: "MUO",
			PValue:     diffexpr.DefaultPValue,
			Adjust:     diffexpr.AdjustNone,
		},
		Org:             mirtarget.DefaultOrg,
		TargetCacheSize: 4096,
		PredictedCutoff: mirtarget.DefaultCutoff,
		CutoffType:      mirtarget.CutoffPercent,
		JoinStrategy:    mirtarget.JoinFirst,
		Enrich: enrich.Config{
			Compare: enrich.CompareUnpaired,
			MinSize: enrich.DefaultMinSize,
			MaxSize: enrich.DefaultMaxSize,
		},
		TopN:            report.DefaultTopN,
		Alpha:           report.DefaultAlpha,
		VolcanoLabels:   10,
		HeatmapClusters: 2,
	}
}

// ParseConfigFromPath reads a config file on top of DefaultConfig. Files
// ending in .yaml or .yml are YAML; anything else is JSON.
func ParseConfigFromPath(path string) (Config, error) {
	out := DefaultConfig()

	f, err := os.Open(mirnade.ExpandHome(path))
	if err != nil {
		return out, pfx.Err(err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(f).Decode(&out); err != nil {
			return out, pfx.Err(err)
		}
	default:
		if err := json.NewDecoder(f).Decode(&out); err != nil {
			if e, ok := err.(*json.SyntaxError); ok {
				log.Printf("syntax error at byte offset %d", e.Offset)
			}
			return out, pfx.Err(err)
		}
	}

	out.ConfigPath = path

	return out, nil
}

// Validate checks the settings and expands ~ in paths.
func (c *Config) Validate() error {
	if c.Accession == "" {
		return fmt.Errorf("an accession is required")
	}
	if err := geo.ValidateAccession(c.Accession); err != nil {
		return err
	}
	if c.DE.Reference == "" || c.DE.Comparison == "" || c.DE.Reference == c.DE.Comparison {
		return fmt.Errorf("two distinct groups are required, got reference %q and comparison %q", c.DE.Reference, c.DE.Comparison)
	}
	if c.TargetDB != "" && c.TargetURL != "" {
		return fmt.Errorf("use either a target database or a target service, not both")
	}

	var err error
	if c.DE.Adjust, err = diffexpr.ParseAdjustMethod(string(c.DE.Adjust)); err != nil {
		return err
	}
	if c.CutoffType, err = mirtarget.ParseCutoffType(string(c.CutoffType)); err != nil {
		return err
	}
	if c.JoinStrategy, err = mirtarget.ParseJoinStrategy(string(c.JoinStrategy)); err != nil {
		return err
	}
	if c.Enrich.Compare, err = enrich.ParseCompareMode(string(c.Enrich.Compare)); err != nil {
		return err
	}

	if c.Enrich.ReferencePrefix == "" {
		c.Enrich.ReferencePrefix = c.DE.Reference
	}
	if c.Enrich.SamplePrefix == "" {
		c.Enrich.SamplePrefix = c.DE.Comparison
	}

	c.CacheDir = mirnade.ExpandHome(c.CacheDir)
	c.OutDir = mirnade.ExpandHome(c.OutDir)
	c.TargetDB = mirnade.ExpandHome(c.TargetDB)
	c.TargetMatrix = mirnade.ExpandHome(c.TargetMatrix)
	for i, g := range c.GeneSets {
		c.GeneSets[i] = mirnade.ExpandHome(g)
	}

	return nil
}

// usesGoogleStorage reports whether any input lives in a gs:// bucket.
func (c *Config) usesGoogleStorage() bool {
	for _, p := range append([]string{c.TargetMatrix}, c.GeneSets...) {
		if mirnade.IsGoogleStoragePath(p) {
			return true
		}
	}
	return false
}

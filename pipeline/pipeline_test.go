package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carbocation/mirnade"
	"github.com/carbocation/mirnade/diffexpr"
	"github.com/carbocation/mirnade/mirtarget"
)

const seriesMatrix = `!Series_title	"Circulating miRNAs in metabolically healthy and unhealthy obesity"
!Series_geo_accession	"GSE0042"
!Series_platform_id	"GPL0007"
!Series_submission_date	"Mar 14 2020"
!Sample_title	"S1"	"S2"	"S3"	"S4"	"S5"	"S6"
!Sample_geo_accession	"GSM1"	"GSM2"	"GSM3"	"GSM4"	"GSM5"	"GSM6"
!Sample_characteristics_ch1	"group: MHO"	"group: MUO"	"group: MHO"	"group: MUO"	"group: MHO"	"group: MUO"
!series_matrix_table_begin
"ID_REF"	"GSM1"	"GSM2"	"GSM3"	"GSM4"	"GSM5"	"GSM6"
"MIMAT0000001"	1.0	4.0	1.1	4.2	0.9	3.9
"MIMAT0000002"	8.0	5.0	8.2	5.1	7.9	4.9
"MIMAT0000003"	5.0	5.1	5.2	4.95	4.9	5.05
"MIMAT0000004"	6.0	6.2	6.1	6.0	6.2	6.1
"MIMAT0000005"	7.0	7.2	7.3	7.0	7.1	7.2
"MIMAT0000006"	3.0	3.05	3.1	2.95	2.9	3.1
"AFFX-BioB-5_at"	9.0	9.1	9.2	9.3	9.1	9.0
!series_matrix_table_end
`

const platformSOFT = "^PLATFORM = GPL0007\n" +
	"!Platform_title = miRNA array\n" +
	"!platform_table_begin\n" +
	"ID\tAccession\tmiRNA_ID\n" +
	"MIMAT0000001\tMIMAT0000001\thsa-miR-1-5p\n" +
	"MIMAT0000002\tMIMAT0000002\thsa-miR-2-5p\n" +
	"MIMAT0000003\tMIMAT0000003\thsa-miR-3-5p\n" +
	"MIMAT0000004\tMIMAT0000004\thsa-miR-4-5p\n" +
	"MIMAT0000005\tMIMAT0000005\thsa-miR-5-5p\n" +
	"MIMAT0000006\tMIMAT0000006\thsa-miR-6-5p\n" +
	"!platform_table_end\n"

const gmt = "SET_UP\tup targets\tGENE_A\tGENE_B\n" +
	"SET_DOWN\tdown targets\tGENE_C\tGENE_D\n" +
	"SET_NONE\tnothing measured\tXYZ\n"

func gzipped(t *testing.T, s string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newGEOServer(t *testing.T) *httptest.Server {
	matrix := gzipped(t, seriesMatrix)
	platform := gzipped(t, platformSOFT)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo/series/GSE0nnn/GSE0042/matrix/":
			fmt.Fprint(w, `<pre><a href="GSE0042_series_matrix.txt.gz">GSE0042_series_matrix.txt.gz</a></pre>`)
		case "/geo/series/GSE0nnn/GSE0042/matrix/GSE0042_series_matrix.txt.gz":
			w.Write(matrix)
		case "/geo/platforms/GPL0nnn/GPL0007/soft/GPL0007_family.soft.gz":
			w.Write(platform)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTargetDB(t *testing.T, dir string) string {
	path := filepath.Join(dir, "targets.sqlite")
	src, err := mirtarget.OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx := context.Background()
	if err := src.CreateSchema(ctx); err != nil {
		t.Fatal(err)
	}
	if err := src.Insert(ctx, mirtarget.DefaultOrg, mirtarget.TableValidated, []mirtarget.Target{
		{MatureMirnaID: "hsa-miR-1-5p", TargetSymbol: "GENE_A", Database: "mirtarbase"},
		{MatureMirnaID: "hsa-miR-1-5p", TargetSymbol: "GENE_B", Database: "mirtarbase"},
		{MatureMirnaID: "hsa-miR-2-5p", TargetSymbol: "GENE_C", Database: "tarbase"},
		{MatureMirnaID: "hsa-miR-2-5p", TargetSymbol: "GENE_D", Database: "tarbase"},
	}); err != nil {
		t.Fatal(err)
	}

	return path
}

func testConfig(t *testing.T, baseURL string) Config {
	dir := t.TempDir()

	gmtPath := filepath.Join(dir, "kegg.gmt")
	if err := os.WriteFile(gmtPath, []byte(gmt), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Accession = "GSE0042"
	cfg.GEOBaseURL = baseURL
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.OutDir = filepath.Join(dir, "out")
	cfg.TargetDB = newTargetDB(t, dir)
	cfg.GeneSets = []string{gmtPath}

	return cfg
}

func TestRun(t *testing.T) {
	srv := newGEOServer(t)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	p, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Loader.Backoff = time.Millisecond

	var out bytes.Buffer
	p.Out = &out

	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out.String(), "2 significant (1 up, 1 down)") {
		t.Fatalf("Unexpected report:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "hsa-miR-1-5p\tGENE_A") {
		t.Fatalf("Expected the first validated target in the up table:\n%s", out.String())
	}

	for _, name := range []string{
		"volcano.png",
		"heatmap.png",
		"de_all.tsv",
		"de_significant.tsv",
		"targets_validated.tsv",
		"targets_predicted.tsv",
		"enrich_kegg_greater.tsv",
		"enrich_kegg_less.tsv",
		"enrich_kegg_combined.tsv",
		"ora_kegg.tsv",
	} {
		if _, err := os.Stat(filepath.Join(cfg.OutDir, name)); err != nil {
			t.Errorf("Expected output %s: %v", name, err)
		}
	}
}

func TestFilterFeaturesToggle(t *testing.T) {
	srv := newGEOServer(t)
	defer srv.Close()

	for _, filter := range []bool{true, false} {
		cfg := testConfig(t, srv.URL)
		cfg.FilterMature = filter

		p, err := New(context.Background(), cfg)
		if err != nil {
			t.Fatal(err)
		}

		ds, err := p.LoadDataset(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		n, _ := p.FilterFeatures(ds).Dims()

		expected := 7
		if filter {
			expected = 6
		}
		if n != expected {
			t.Fatalf("FilterMature=%v: expected %d features, got %d", filter, expected, n)
		}
		p.Close()
	}
}

func TestRunEmptyResultSet(t *testing.T) {
	srv := newGEOServer(t)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.DE.PValue = 1e-40

	p, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Out = &bytes.Buffer{}

	err = p.Run(context.Background())
	if !errors.Is(err, mirnade.ErrEmptyResultSet) || !IsEmptyResult(err) {
		t.Fatalf("Expected ErrEmptyResultSet, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutDir, "de_all.tsv")); err != nil {
		t.Fatalf("Expected the DE table to be written before failing: %v", err)
	}
}

func TestParseConfigFromPath(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(yamlPath, []byte("accession: GSE0042\nde:\n  reference: lean\n  comparison: obese\n  adjust: BH\ngene_sets:\n  - kegg.gmt\n"), 0644); err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, "run.json")
	if err := os.WriteFile(jsonPath, []byte(`{"accession": "GSE0042", "de": {"reference": "lean", "comparison": "obese", "adjust": "BH"}, "gene_sets": ["kegg.gmt"]}`), 0644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{yamlPath, jsonPath} {
		cfg, err := ParseConfigFromPath(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatal(err)
		}

		if cfg.Accession != "GSE0042" || cfg.DE.Reference != "lean" || cfg.DE.Comparison != "obese" || cfg.DE.Adjust != diffexpr.AdjustBH {
			t.Fatalf("%s: overrides not applied: %+v", path, cfg.DE)
		}
		if cfg.DE.PValue != diffexpr.DefaultPValue || cfg.JoinStrategy != mirtarget.JoinFirst {
			t.Fatalf("%s: defaults lost: %+v", path, cfg)
		}
		if cfg.Enrich.ReferencePrefix != "lean" || cfg.Enrich.SamplePrefix != "obese" {
			t.Fatalf("%s: enrichment prefixes should follow the DE groups, got %+v", path, cfg.Enrich)
		}
		if len(cfg.GeneSets) != 1 || cfg.ConfigPath != path {
			t.Fatalf("%s: unexpected config %+v", path, cfg)
		}
	}
}

func TestDefaultConfigAnnotatesProbes(t *testing.T) {
	srv := newGEOServer(t)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	if !cfg.FetchPlatform {
		t.Fatalf("Platform annotation should be on by default")
	}

	p, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ds, err := p.LoadDataset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if label := ds.Features[0].Label(); label != "hsa-miR-1-5p" {
		t.Fatalf("Expected the platform miRNA ID as the feature label, got %q", label)
	}
}

func TestValidate(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Accession = "" },
		func(c *Config) { c.Accession = "GDS123" },
		func(c *Config) { c.DE.Comparison = c.DE.Reference },
		func(c *Config) { c.JoinStrategy = "random" },
		func(c *Config) { c.CutoffType = "x" },
		func(c *Config) { c.TargetDB, c.TargetURL = "a.sqlite", "http://x" },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		cfg.Accession = "GSE0042"
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("Case %d: expected a validation error", i)
		}
	}
}

package report

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carbocation/mirnade/diffexpr"
	"github.com/carbocation/mirnade/enrich"
	"github.com/carbocation/mirnade/mirtarget"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/guregu/null.v3"
)

func testReport() *Report {
	sig := []diffexpr.Row{
		{Rank: 1, FeatureID: "p1", MirnaID: "hsa-miR-21-5p", LogFC: 1.5, PValue: 0.001, AdjPValue: 0.001},
		{Rank: 2, FeatureID: "p2", MirnaID: "hsa-let-7a-5p", LogFC: -0.8, PValue: 0.01, AdjPValue: 0.01},
		{Rank: 3, FeatureID: "p3", MirnaID: "hsa-miR-122-5p", LogFC: 2.2, PValue: 0.02, AdjPValue: 0.02},
	}
	up, down := diffexpr.Partition(sig)

	return &Report{
		Accession: "GSE0042",
		DE: &diffexpr.Result{
			Contrast:    "MUO-MHO",
			All:         append(append([]diffexpr.Row(nil), sig...), diffexpr.Row{Rank: 4, FeatureID: "p4", PValue: 0.5, AdjPValue: 0.5}),
			Significant: sig,
			Up:          up,
			Down:        down,
		},
		Validated: mirtarget.NewAnnotation(mirtarget.TableValidated, []mirtarget.Target{
			{MatureMirnaID: "hsa-miR-21-5p", TargetSymbol: "PTEN", Database: "mirtarbase"},
			{MatureMirnaID: "hsa-miR-21-5p", TargetSymbol: "PDCD4", Database: "mirtarbase"},
		}),
		Predicted: mirtarget.NewAnnotation(mirtarget.TablePredicted, []mirtarget.Target{
			{MatureMirnaID: "hsa-miR-122-5p", TargetSymbol: "SLC7A1", Database: "targetscan", Score: null.FloatFrom(0.9)},
		}),
		Join: mirtarget.JoinFirst,
		Enrichment: []*enrich.Result{{
			Collection: "kegg",
			Greater:    []enrich.SetStat{{Set: "UP", Size: 5, PValue: 0.001, QValue: 0.002}},
			Less:       []enrich.SetStat{{Set: "UP", Size: 5, PValue: 0.9, QValue: 0.9}},
			Combined:   []enrich.SetStat{{Set: "UP", Size: 5, PValue: 0.002, QValue: 0.004}},
			Skipped:    []string{"ABSENT"},
		}},
		ORA: []ORA{{Collection: "kegg", Rows: []enrich.ORAStat{{Set: "UP", Size: 5, Overlap: 2, PValue: 0.01, QValue: 0.01}}}},
	}
}

func TestTop(t *testing.T) {
	r := testReport()

	got := r.Top(r.DE.Up, 5)
	expected := []TopRow{
		{Mirna: "hsa-miR-21-5p", Target: "PTEN", LogFC: 1.5, PValue: 0.001},
		{Mirna: "hsa-miR-122-5p", Target: "SLC7A1", LogFC: 2.2, PValue: 0.02},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("Top (-want +got):\n%s", diff)
	}

	if got := r.Top(r.DE.Down, 5); len(got) != 1 || got[0].Target != "" {
		t.Fatalf("Expected one down row without a target, got %+v", got)
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	testReport().Print(&buf, 5, 0.05)
	out := buf.String()

	for _, want := range []string{
		"3 significant (2 up, 1 down)",
		"hsa-miR-21-5p\tPTEN\t1.500",
		"hsa-let-7a-5p\t-\t-0.800",
		"kegg\t1\t1\t1\t0\t1",
		"kegg: 1 of 1 sets over-represented",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("Expected %q in report output:\n%s", want, out)
		}
	}
}

func TestWriteTSVs(t *testing.T) {
	dir := t.TempDir()
	written, err := testReport().WriteTSVs(dir)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, p := range written {
		names = append(names, filepath.Base(p))
	}
	expected := []string{
		"de_all.tsv",
		"de_significant.tsv",
		"targets_validated.tsv",
		"targets_predicted.tsv",
		"enrich_kegg_greater.tsv",
		"enrich_kegg_less.tsv",
		"enrich_kegg_combined.tsv",
		"ora_kegg.tsv",
	}
	if diff := cmp.Diff(expected, names); diff != "" {
		t.Fatalf("Written files (-want +got):\n%s", diff)
	}

	f, err := os.Open(filepath.Join(dir, "de_all.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 5 {
		t.Fatalf("Expected a header and 4 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "rank\tfeature_id\tmirna_id\tlogFC") {
		t.Fatalf("Unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1\tp1\thsa-miR-21-5p\t") {
		t.Fatalf("Unexpected first row %q", lines[1])
	}
}

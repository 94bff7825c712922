package expression

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

var matComparer = cmp.Comparer(func(a, b *mat.Dense) bool {
	if a == nil || b == nil {
		return a == b
	}
	return mat.Equal(a, b)
})

func fixture() *Dataset {
	return &Dataset{
		Accession: "GSE0001",
		Features: []Feature{
			{ID: "p1", Accession: "MIMAT0000062", MirnaID: "hsa-let-7a-5p"},
			{ID: "p2", Accession: "MI0000060", MirnaID: "hsa-let-7a-1"},
			{ID: "MIMAT0000063_st"},
			{ID: "p4", Accession: "MIMAT0000064", MirnaID: "hsa-let-7c-5p"},
		},
		Samples: []Sample{
			{ID: "GSM1", Title: "A01", Group: "MHO"},
			{ID: "GSM2", Title: "A02", Group: "MUO"},
			{ID: "GSM3", Title: "A03", Group: "MHO"},
		},
		Values: mat.NewDense(4, 3, []float64{
			1, 2, 3,
			4, 5, 6,
			7, 8, 9,
			10, 11, 12,
		}),
	}
}

func TestFilterFeaturesFixedPoint(t *testing.T) {
	pred := MatureMirna(DefaultMaturePrefix)

	once := FilterFeatures(fixture(), pred)
	if err := once.Validate(); err != nil {
		t.Fatal(err)
	}
	if n, _ := once.Dims(); n != 3 {
		t.Fatalf("Expected 3 mature features, got %d", n)
	}

	twice := FilterFeatures(once, pred)
	if diff := cmp.Diff(once, twice, matComparer); diff != "" {
		t.Fatalf("Filtering twice changed the dataset (-once +twice):\n%s", diff)
	}
}

func TestFilterKeepsSamples(t *testing.T) {
	ds := fixture()
	out := FilterFeatures(ds, MatureMirna(DefaultMaturePrefix))
	if diff := cmp.Diff(ds.Samples, out.Samples); diff != "" {
		t.Fatalf("Samples changed:\n%s", diff)
	}
	if got := out.Row(1); !cmp.Equal(got, []float64{7, 8, 9}) {
		t.Fatalf("Unexpected row values %v", got)
	}

	// The source dataset is untouched
	if n, _ := ds.Dims(); n != 4 {
		t.Fatalf("Source dataset was narrowed to %d features", n)
	}
}

func TestFilterNothingMatches(t *testing.T) {
	out := FilterFeatures(fixture(), MatureMirna("XYZ"))
	if err := out.Validate(); err != nil {
		t.Fatal(err)
	}
	if n, m := out.Dims(); n != 0 || m != 3 {
		t.Fatalf("Expected 0x3, got %dx%d", n, m)
	}
}

func TestGroupTitles(t *testing.T) {
	out := GroupTitles(fixture())
	expected := []string{"MHO_1", "MUO_1", "MHO_2"}
	if diff := cmp.Diff(expected, out.SampleTitles()); diff != "" {
		t.Fatalf("Unexpected titles:\n%s", diff)
	}
	if out.Samples[1].Attributes["original_title"] != "A02" {
		t.Fatalf("Original title not kept: %v", out.Samples[1].Attributes)
	}
}

func TestToMatrixOrientation(t *testing.T) {
	m := fixture().ToMatrix()
	if r, c := m.Dims(); r != 3 || c != 4 {
		t.Fatalf("Expected 3 samples x 4 features, got %dx%d", r, c)
	}
	if v := m.Values.At(2, 1); v != 6 {
		t.Fatalf("Expected 6 at sample 3 feature 2, got %v", v)
	}
	if m.Cols[2] != "MIMAT0000063_st" {
		t.Fatalf("Expected probe ID fallback label, got %s", m.Cols[2])
	}
}

func TestReadMatrix(t *testing.T) {
	in := "gene,MHO_1,MUO_1\nIL6,1,2\nTNF,3,NA\n"
	m, err := ReadMatrix(bytes.NewBufferString(in))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"IL6", "TNF"}, m.Rows); diff != "" {
		t.Fatal(diff)
	}
	if !math.IsNaN(m.Values.At(1, 1)) {
		t.Fatalf("Expected NaN for NA, got %v", m.Values.At(1, 1))
	}
	if idx := m.ColumnsWithPrefix("MUO"); len(idx) != 1 || idx[0] != 1 {
		t.Fatalf("Unexpected prefix match %v", idx)
	}
}

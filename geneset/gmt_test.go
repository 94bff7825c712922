package geneset

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testGMT = "KEGG_INSULIN\thttp://kegg/insulin\tINSR\tIRS1\tPIK3CA\tIRS1\n" +
	"\n" +
	"# comment\n" +
	"KEGG_EMPTY\tno genes\n" +
	"KEGG_MAPK\thttp://kegg/mapk\tKRAS\tMAPK1\tINSR\r\n"

func TestLoadGMT(t *testing.T) {
	coll, err := LoadGMT(strings.NewReader(testGMT), "kegg")
	if err != nil {
		t.Fatal(err)
	}

	expected := &Collection{
		Name: "kegg",
		Sets: []Set{
			{Name: "KEGG_INSULIN", Description: "http://kegg/insulin", Genes: []string{"INSR", "IRS1", "PIK3CA"}},
			{Name: "KEGG_EMPTY", Description: "no genes"},
			{Name: "KEGG_MAPK", Description: "http://kegg/mapk", Genes: []string{"KRAS", "MAPK1", "INSR"}},
		},
	}
	if diff := cmp.Diff(expected, coll); diff != "" {
		t.Fatalf("LoadGMT (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"INSR", "IRS1", "PIK3CA", "KRAS", "MAPK1"}, coll.Universe()); diff != "" {
		t.Fatalf("Universe (-want +got):\n%s", diff)
	}
}

func TestLoadGMTMalformed(t *testing.T) {
	if _, err := LoadGMT(strings.NewReader("ONLYNAME\n"), "bad"); err == nil {
		t.Fatalf("Expected an error for a line without a description")
	}
}

func TestOpenGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(testGMT)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "c2.cp.kegg.v7.gmt.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	coll, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if coll.Name != "c2.cp.kegg.v7" || len(coll.Sets) != 3 {
		t.Fatalf("Unexpected collection %q with %d sets", coll.Name, len(coll.Sets))
	}
}

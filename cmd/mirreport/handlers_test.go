package main

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testServer(t *testing.T) *httptest.Server {
	dir := t.TempDir()
	files := map[string]string{
		"de_all.tsv":  "rank\tfeature_id\tlogFC\n1\tMIMAT0000001\t3.03\n2\tMIMAT0000002\t-3.03\n3\tMIMAT0000003\t0.01\n",
		"volcano.png": "not really a png",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	h, err := router(&Global{Site: "test", Dir: dir, MaxRows: 2, log: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewServer(h)
}

func get(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestIndex(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	status, body := get(t, srv.URL+"/")
	if status != http.StatusOK {
		t.Fatalf("Unexpected status %d", status)
	}
	for _, want := range []string{`href="/table/de_all.tsv"`, `src="/files/volcano.png"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("Expected %q in index:\n%s", want, body)
		}
	}
}

func TestTable(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	status, body := get(t, srv.URL+"/table/de_all.tsv")
	if status != http.StatusOK {
		t.Fatalf("Unexpected status %d", status)
	}
	if !strings.Contains(body, "<th>feature_id</th>") || !strings.Contains(body, "<td>MIMAT0000002</td>") {
		t.Fatalf("Table not rendered:\n%s", body)
	}
	if strings.Contains(body, "MIMAT0000003") || !strings.Contains(body, "first 2 rows") {
		t.Fatalf("Expected the table to be truncated at 2 rows:\n%s", body)
	}

	if status, _ := get(t, srv.URL+"/table/missing.tsv"); status != http.StatusNotFound {
		t.Fatalf("Expected 404 for a missing table, got %d", status)
	}
	if status, _ := get(t, srv.URL+"/table/volcano.png"); status != http.StatusBadRequest {
		t.Fatalf("Expected 400 for a non-table, got %d", status)
	}
}

func TestFiles(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/de_all.tsv")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "max-age") {
		t.Fatalf("Expected a max-age Cache-Control header, got %q", cc)
	}
}

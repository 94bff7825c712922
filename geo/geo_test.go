package geo

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carbocation/mirnade"
)

const seriesMatrixFixture = `!Series_title	"Circulating miRNAs in obesity"
!Series_geo_accession	"GSE0042"
!Series_platform_id	"GPL0007"
!Series_submission_date	"Jan 02 2019"
!Sample_title	"P01"	"P02"	"P03"	"P04"
!Sample_geo_accession	"GSM1"	"GSM2"	"GSM3"	"GSM4"
!Sample_characteristics_ch1	"group: MHO"	"group: MUO"	"group: MHO"	"group: MUO"
!Sample_characteristics_ch1	"age: 41"	"age: 39"	"age: 50"	"age: 45"
!series_matrix_table_begin
"ID_REF"	"GSM1"	"GSM2"	"GSM3"	"GSM4"
"MIMAT0000062_st"	1.5	2.5	1.6	2.4
"MIMAT0000063_st"	3.0	3.1	null	2.9
"AFFX-BioB-5_at"	9.0	9.1	9.2	9.3
!series_matrix_table_end
`

func TestStub(t *testing.T) {
	for _, v := range []struct{ in, expected string }{
		{"GSE123456", "GSE123nnn"},
		{"GSE1234", "GSE1nnn"},
		{"GSE12", "GSEnnn"},
		{"GPL21572", "GPL21nnn"},
	} {
		if got := Stub(v.in); got != v.expected {
			t.Errorf("Stub(%s) = %s, expected %s", v.in, got, v.expected)
		}
	}
}

func TestParseSeriesMatrix(t *testing.T) {
	ds, err := ParseSeriesMatrix(strings.NewReader(seriesMatrixFixture), "group")
	if err != nil {
		t.Fatal(err)
	}

	if ds.Accession != "GSE0042" || ds.Platform != "GPL0007" {
		t.Fatalf("Unexpected series header %s / %s", ds.Accession, ds.Platform)
	}
	if ds.Submitted.Year() != 2019 {
		t.Fatalf("Unexpected submission date %v", ds.Submitted)
	}
	if n, m := ds.Dims(); n != 3 || m != 4 {
		t.Fatalf("Expected 3x4, got %dx%d", n, m)
	}
	if g := ds.Groups(); len(g) != 2 || g[0] != "MHO" || g[1] != "MUO" {
		t.Fatalf("Unexpected groups %v", g)
	}
	if ds.Samples[2].Attributes["age"] != "50" {
		t.Fatalf("Expected repeated characteristics to be parsed, got %v", ds.Samples[2].Attributes)
	}
	if ds.Samples[0].Attributes["characteristics_ch1.1"] != "age: 41" {
		t.Fatalf("Expected numbered duplicate keys, got %v", ds.Samples[0].Attributes)
	}
	if v := ds.Values.At(1, 2); !math.IsNaN(v) {
		t.Fatalf("Expected NaN for null value, got %v", v)
	}
	if v := ds.Values.At(0, 1); v != 2.5 {
		t.Fatalf("Expected 2.5, got %v", v)
	}
}

func TestParseSeriesMatrixMissingGroup(t *testing.T) {
	_, err := ParseSeriesMatrix(strings.NewReader(seriesMatrixFixture), "disease state")
	if !errors.Is(err, mirnade.ErrDatasetFormat) {
		t.Fatalf("Expected ErrDatasetFormat, got %v", err)
	}
}

func TestPlatformAnnotate(t *testing.T) {
	soft := "^PLATFORM = GPL0007\n!Platform_title = miRNA array\n!platform_table_begin\n" +
		"ID\tAccession\tmiRNA_ID\tTargets\n" +
		"MIMAT0000062_st\tMIMAT0000062\thsa-let-7a-5p\tHMGA2///KRAS\n" +
		"!platform_table_end\n"

	p, err := ParsePlatformSOFT(strings.NewReader(soft))
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "GPL0007" {
		t.Fatalf("Unexpected platform ID %q", p.ID)
	}

	ds, err := ParseSeriesMatrix(strings.NewReader(seriesMatrixFixture), "group")
	if err != nil {
		t.Fatal(err)
	}
	out := p.Annotate(ds, Columns{Accession: "Accession", Mirna: "miRNA_ID", Targets: "Targets"})

	if out.Features[0].MirnaID != "hsa-let-7a-5p" || out.Features[0].Accession != "MIMAT0000062" {
		t.Fatalf("Annotation not applied: %+v", out.Features[0])
	}
	if out.Features[1].MirnaID != "" {
		t.Fatalf("Unannotated probe should keep only its ID: %+v", out.Features[1])
	}
	if ds.Features[0].MirnaID != "" {
		t.Fatalf("Annotate must not modify its input")
	}
}

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

func newGEOServer(t *testing.T, requests *int64) *httptest.Server {
	body := gzipped(t, seriesMatrixFixture)
	listing := `<html><body><pre><a href="/geo/series/">Parent Directory</a>
<a href="GSE0042_series_matrix.txt.gz">GSE0042_series_matrix.txt.gz</a>
<a href="README.txt">README.txt</a></pre></body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/geo/series/GSE0nnn/GSE0042/matrix/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(requests, 1)
		switch r.URL.Path {
		case "/geo/series/GSE0nnn/GSE0042/matrix/":
			fmt.Fprint(w, listing)
		case "/geo/series/GSE0nnn/GSE0042/matrix/GSE0042_series_matrix.txt.gz":
			w.Write(body)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(requests, 1)
		http.NotFound(w, r)
	})

	return httptest.NewServer(mux)
}

func testLoader(baseURL, cacheDir string) *Loader {
	l := NewLoader(cacheDir)
	l.BaseURL = baseURL
	l.Backoff = time.Millisecond
	return l
}

func TestLoadUsesCache(t *testing.T) {
	var requests int64
	srv := newGEOServer(t, &requests)
	defer srv.Close()

	l := testLoader(srv.URL, t.TempDir())

	first, err := l.Load(context.Background(), "GSE0042")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("Expected 1 dataset, got %d", len(first))
	}
	afterFirst := atomic.LoadInt64(&requests)
	if afterFirst != 2 {
		t.Fatalf("Expected a listing and a download, got %d requests", afterFirst)
	}

	second, err := l.Load(context.Background(), "GSE0042")
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt64(&requests) != afterFirst {
		t.Fatalf("Second load hit the network: %d requests", atomic.LoadInt64(&requests))
	}
	if n, _ := second[0].Dims(); n != 3 {
		t.Fatalf("Cached dataset has %d features", n)
	}
}

func TestLoadNotFound(t *testing.T) {
	var requests int64
	srv := newGEOServer(t, &requests)
	defer srv.Close()

	l := testLoader(srv.URL, t.TempDir())

	if _, err := l.Load(context.Background(), "GSE9999"); !errors.Is(err, mirnade.ErrDatasetNotFound) {
		t.Fatalf("Expected ErrDatasetNotFound, got %v", err)
	}
	if _, err := l.Load(context.Background(), "not-an-accession"); !errors.Is(err, mirnade.ErrDatasetNotFound) {
		t.Fatalf("Expected ErrDatasetNotFound for a malformed accession, got %v", err)
	}
}

func TestLoadRetriesServerErrors(t *testing.T) {
	var calls int64
	body := gzipped(t, seriesMatrixFixture)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			fmt.Fprint(w, `<a href="GSE0042_series_matrix.txt.gz">x</a>`)
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	l := testLoader(srv.URL, t.TempDir())
	if _, err := l.Load(context.Background(), "GSE0042"); err != nil {
		t.Fatalf("Expected the 503 to be retried, got %v", err)
	}
	if n := atomic.LoadInt64(&calls); n != 3 {
		t.Fatalf("Expected 3 calls (503, listing, download), got %d", n)
	}
}

func TestLoadResumesPartialCache(t *testing.T) {
	body := gzipped(t, seriesMatrixFixture)
	names := []string{"GSE0042-GPL1_series_matrix.txt.gz", "GSE0042-GPL2_series_matrix.txt.gz"}

	var failSecond int32 = 1
	var downloads []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			for _, name := range names {
				fmt.Fprintf(w, "<a href=\"%s\">%s</a>\n", name, name)
			}
			return
		}
		name := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if name == names[1] && atomic.LoadInt32(&failSecond) == 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		downloads = append(downloads, name)
		w.Write(body)
	}))
	defer srv.Close()

	l := testLoader(srv.URL, t.TempDir())
	if _, err := l.Load(context.Background(), "GSE0042"); err == nil {
		t.Fatalf("Expected the failed download to fail the load")
	}

	atomic.StoreInt32(&failSecond, 0)
	datasets, err := l.Load(context.Background(), "GSE0042")
	if err != nil {
		t.Fatal(err)
	}
	if len(datasets) != 2 {
		t.Fatalf("Expected both matrices after resuming, got %d", len(datasets))
	}
	if len(downloads) != 2 || downloads[0] != names[0] || downloads[1] != names[1] {
		t.Fatalf("Expected each matrix to be downloaded once, got %v", downloads)
	}

	if _, err := l.Load(context.Background(), "GSE0042"); err != nil {
		t.Fatal(err)
	}
	if len(downloads) != 2 {
		t.Fatalf("Complete cache was not reused: %v", downloads)
	}
}

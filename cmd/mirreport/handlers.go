package main

import (
	"embed"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carbocation/mirnade/compileinfo"
	"github.com/gorilla/mux"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// Global holds the settings shared by every handler.
type Global struct {
	Site    string
	Dir     string
	MaxRows int

	log *log.Logger
}

type handler struct {
	*Global

	templates map[string]*template.Template
}

func parseTemplates() (map[string]*template.Template, error) {
	out := make(map[string]*template.Template)
	for _, name := range []string{"index.html", "table.html"} {
		tpl, err := template.ParseFS(embeddedTemplates, "templates/_base.html", "templates/"+name)
		if err != nil {
			return nil, err
		}
		out[name] = tpl
	}
	return out, nil
}

func (h *handler) render(w http.ResponseWriter, name, title string, data interface{}) {
	output := struct {
		Site  string
		Title string
		Data  interface{}
	}{h.Site, title, data}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates[name].ExecuteTemplate(w, "_base.html", output); err != nil {
		h.log.Println(err)
	}
}

func (h *handler) httpError(w http.ResponseWriter, status int, err error) {
	h.log.Println(err)
	http.Error(w, err.Error(), status)
}

// Index lists the run's plots and tables.
func (h *handler) Index(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.Dir)
	if err != nil {
		h.httpError(w, http.StatusInternalServerError, err)
		return
	}

	var images, tables []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png":
			images = append(images, e.Name())
		case ".tsv":
			tables = append(tables, e.Name())
		}
	}
	sort.Strings(images)
	sort.Strings(tables)

	h.render(w, "index.html", filepath.Base(h.Dir), struct {
		Images []string
		Tables []string
	}{images, tables})
}

// Table renders one TSV file as an HTML table.
func (h *handler) Table(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name != filepath.Base(name) || filepath.Ext(name) != ".tsv" {
		h.httpError(w, http.StatusBadRequest, fmt.Errorf("%q is not a table of this run", name))
		return
	}

	f, err := os.Open(filepath.Join(h.Dir, name))
	if os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		h.httpError(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	header, rows, truncated, err := readTable(f, h.MaxRows)
	if err != nil {
		h.httpError(w, http.StatusInternalServerError, fmt.Errorf("%s: %v", name, err))
		return
	}

	h.render(w, "table.html", name, struct {
		Name      string
		Header    []string
		Rows      [][]string
		Truncated bool
	}{name, header, rows, truncated})
}

// Version reports the build of the running server.
func (h *handler) Version(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, compileinfo.Get())
}

// readTable reads a header and up to maxRows rows of a TSV.
func readTable(r io.Reader, maxRows int) (header []string, rows [][]string, truncated bool, err error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err = cr.Read()
	if err == io.EOF {
		return nil, nil, false, nil
	} else if err != nil {
		return nil, nil, false, err
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, false, err
		}
		if maxRows > 0 && len(rows) >= maxRows {
			truncated = true
			break
		}
		rows = append(rows, rec)
	}

	return header, rows, truncated, nil
}

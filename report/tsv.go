package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
)

// WriteTSV writes a slice of csv-tagged structs as a tab-delimited file.
func WriteTSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'

	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(w)); err != nil {
		f.Close()
		return pfx.Err(fmt.Errorf("%s: %v", path, err))
	}

	return f.Close()
}

// WriteTSVs writes every table of the report into dir and returns the paths
// written.
func (r *Report) WriteTSVs(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, pfx.Err(err)
	}

	type table struct {
		name string
		rows interface{}
	}
	var tables []table

	if r.DE != nil {
		tables = append(tables,
			table{"de_all.tsv", r.DE.All},
			table{"de_significant.tsv", r.DE.Significant},
		)
	}
	if r.Validated != nil {
		tables = append(tables, table{"targets_validated.tsv", r.Validated.Rows})
	}
	if r.Predicted != nil {
		tables = append(tables, table{"targets_predicted.tsv", r.Predicted.Rows})
	}
	for _, res := range r.Enrichment {
		tables = append(tables,
			table{fmt.Sprintf("enrich_%s_greater.tsv", res.Collection), res.Greater},
			table{fmt.Sprintf("enrich_%s_less.tsv", res.Collection), res.Less},
			table{fmt.Sprintf("enrich_%s_combined.tsv", res.Collection), res.Combined},
		)
	}
	for _, o := range r.ORA {
		tables = append(tables, table{fmt.Sprintf("ora_%s.tsv", o.Collection), o.Rows})
	}

	var written []string
	for _, t := range tables {
		path := filepath.Join(dir, t.name)
		if err := WriteTSV(path, t.rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	return written, nil
}

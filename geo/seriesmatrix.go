package geo

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/carbocation/mirnade"
	"github.com/carbocation/mirnade/expression"
	"github.com/carbocation/pfx"
	"gonum.org/v1/gonum/mat"
)

const (
	tableBegin = "!series_matrix_table_begin"
	tableEnd   = "!series_matrix_table_end"
)

// seriesMatrix is the raw content of a GEO series matrix file.
type seriesMatrix struct {
	series     map[string]string
	sampleKeys []string
	samples    map[string][]string
	header     []string
	rows       []string
	values     [][]float64
}

// ParseSeriesMatrix reads a (decompressed) GEO series matrix. Sample rows
// (!Sample_*) become per-sample attributes; repeated keys are numbered
// key, key.1, key.2 and characteristics of the form "k: v" are also exposed
// as attribute k. groupField names the attribute that holds the group label.
func ParseSeriesMatrix(r io.Reader, groupField string) (*expression.Dataset, error) {
	sm, err := readSeriesMatrix(r)
	if err != nil {
		return nil, err
	}

	return sm.dataset(groupField)
}

func readSeriesMatrix(r io.Reader) (*seriesMatrix, error) {
	sm := &seriesMatrix{
		series:  make(map[string]string),
		samples: make(map[string][]string),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	inTable := false
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		switch {
		case line == tableBegin:
			inTable = true
			continue
		case line == tableEnd:
			inTable = false
			continue
		}

		fields := splitFields(line)

		if inTable {
			if sm.header == nil {
				sm.header = fields
				continue
			}
			if len(fields) != len(sm.header) {
				return nil, fmt.Errorf("%w: line %d has %d fields, header has %d", mirnade.ErrDatasetFormat, lineNo, len(fields), len(sm.header))
			}
			row := make([]float64, len(fields)-1)
			for j, v := range fields[1:] {
				val, err := expression.ParseValue(v)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", mirnade.ErrDatasetFormat, lineNo, err)
				}
				row[j] = val
			}
			sm.rows = append(sm.rows, fields[0])
			sm.values = append(sm.values, row)
			continue
		}

		switch {
		case strings.HasPrefix(fields[0], "!Series_"):
			key := strings.TrimPrefix(fields[0], "!Series_")
			val := strings.Join(fields[1:], "; ")
			if prior, exists := sm.series[key]; exists {
				val = prior + "; " + val
			}
			sm.series[key] = val
		case strings.HasPrefix(fields[0], "!Sample_"):
			key := uniqueKey(sm.samples, strings.TrimPrefix(fields[0], "!Sample_"))
			sm.sampleKeys = append(sm.sampleKeys, key)
			sm.samples[key] = fields[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}

	if sm.header == nil {
		return nil, fmt.Errorf("%w: no %s section", mirnade.ErrDatasetFormat, tableBegin)
	}

	return sm, nil
}

func (sm *seriesMatrix) dataset(groupField string) (*expression.Dataset, error) {
	ids, ok := sm.samples["geo_accession"]
	if !ok {
		return nil, fmt.Errorf("%w: no !Sample_geo_accession row", mirnade.ErrDatasetFormat)
	}

	samples := make([]expression.Sample, len(ids))
	byID := make(map[string]int, len(ids))
	for j, id := range ids {
		attrs := make(map[string]string)
		for _, key := range sm.sampleKeys {
			vals := sm.samples[key]
			if j >= len(vals) {
				continue
			}
			attrs[key] = vals[j]
			if strings.HasPrefix(key, "characteristics") {
				if k, v, found := cutCharacteristic(vals[j]); found {
					attrs[k] = v
				}
			}
		}

		group, exists := attrs[groupField]
		if !exists {
			return nil, fmt.Errorf("%w: sample %s has no %q field", mirnade.ErrDatasetFormat, id, groupField)
		}

		samples[j] = expression.Sample{
			ID:         id,
			Title:      attrs["title"],
			Group:      group,
			Attributes: attrs,
		}
		byID[id] = j
	}

	// The table columns are expected to follow the sample rows, but map by
	// accession rather than trusting position.
	colToSample := make([]int, len(sm.header)-1)
	for c, id := range sm.header[1:] {
		j, exists := byID[id]
		if !exists {
			return nil, fmt.Errorf("%w: table column %s is not a described sample", mirnade.ErrDatasetFormat, id)
		}
		colToSample[c] = j
	}
	if len(colToSample) != len(samples) {
		return nil, fmt.Errorf("%w: %d table columns for %d samples", mirnade.ErrDatasetFormat, len(colToSample), len(samples))
	}

	features := make([]expression.Feature, len(sm.rows))
	var values *mat.Dense
	if len(sm.rows) > 0 && len(samples) > 0 {
		values = mat.NewDense(len(sm.rows), len(samples), nil)
	}
	for i, id := range sm.rows {
		features[i] = expression.Feature{ID: id}
		for c, v := range sm.values[i] {
			values.Set(i, colToSample[c], v)
		}
	}

	ds := &expression.Dataset{
		Accession: sm.series["geo_accession"],
		Platform:  sm.series["platform_id"],
		Title:     sm.series["title"],
		Submitted: parseDate(sm.series["submission_date"]),
		Features:  features,
		Samples:   samples,
		Values:    values,
	}

	return ds, ds.Validate()
}

// splitFields splits a tab-delimited series matrix line and strips the
// double quotes GEO puts around every text value.
func splitFields(line string) []string {
	fields := strings.Split(line, "\t")
	for i, f := range fields {
		if unq, err := strconv.Unquote(f); err == nil {
			fields[i] = unq
		} else {
			fields[i] = strings.Trim(f, `"`)
		}
	}
	return fields
}

func uniqueKey(m map[string][]string, key string) string {
	if _, exists := m[key]; !exists {
		return key
	}
	for i := 1; ; i++ {
		candidate := key + "." + strconv.Itoa(i)
		if _, exists := m[candidate]; !exists {
			return candidate
		}
	}
}

func cutCharacteristic(v string) (key, value string, found bool) {
	i := strings.Index(v, ":")
	if i < 1 {
		return "", "", false
	}
	return strings.TrimSpace(v[:i]), strings.TrimSpace(v[i+1:]), true
}

// geoDateLayout is the layout GEO uses for submission and update dates.
const geoDateLayout = "Jan 02 2006"

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(geoDateLayout, s); err == nil {
		return t
	}

	// Mirrors and hand-edited files use other layouts.
	t, err := dateparse.ParseAny(s)
	if err != nil {
		log.Printf("Could not parse GEO date %q: %v\n", s, err)
		return time.Time{}
	}
	return t
}

package geo

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/mirnade"
	"github.com/carbocation/mirnade/expression"
	"github.com/carbocation/pfx"
)

// Columns names the platform table columns that feed the per-feature
// annotation. Empty names are skipped.
type Columns struct {
	Accession string `json:"accession" yaml:"accession"`
	Mirna     string `json:"mirna" yaml:"mirna"`
	Targets   string `json:"targets" yaml:"targets"`
}

// Platform is the probe annotation table of a GEO platform.
type Platform struct {
	ID      string
	Columns []string
	Rows    map[string]map[string]string
}

// ParsePlatformSOFT reads the platform table out of a GPL family SOFT file.
func ParsePlatformSOFT(r io.Reader) (*Platform, error) {
	p := &Platform{Rows: make(map[string]map[string]string)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	inTable := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case strings.HasPrefix(line, "^PLATFORM"):
			if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
				p.ID = strings.TrimSpace(parts[1])
			}
			continue
		case line == "!platform_table_begin":
			inTable = true
			continue
		case line == "!platform_table_end":
			inTable = false
			continue
		}

		if !inTable || line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if p.Columns == nil {
			p.Columns = fields
			continue
		}

		row := make(map[string]string, len(p.Columns))
		for i, col := range p.Columns {
			if i < len(fields) {
				row[col] = fields[i]
			}
		}
		p.Rows[fields[0]] = row
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}

	if p.Columns == nil {
		return nil, fmt.Errorf("%w: no platform table", mirnade.ErrDatasetFormat)
	}

	return p, nil
}

// Annotate returns a copy of ds whose features carry the platform annotation.
// Probes absent from the platform keep only their ID.
func (p *Platform) Annotate(ds *expression.Dataset, cols Columns) *expression.Dataset {
	idx := make([]int, len(ds.Features))
	for i := range idx {
		idx[i] = i
	}
	out := ds.SubsetFeatures(idx)

	for i, f := range out.Features {
		row, exists := p.Rows[f.ID]
		if !exists {
			continue
		}
		f.Attributes = row
		f.Accession = row[cols.Accession]
		f.MirnaID = row[cols.Mirna]
		f.TargetGenes = row[cols.Targets]
		out.Features[i] = f
	}

	return out
}

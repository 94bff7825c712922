// Package mirtarget maps mature miRNA IDs to experimentally validated or
// computationally predicted target genes.
package mirtarget

import (
	"context"
	"fmt"

	"gopkg.in/guregu/null.v3"
)

// Table selects the interaction class.
type Table string

const (
	TableValidated Table = "validated"
	TablePredicted Table = "predicted"
)

// ParseTable accepts "validated" and "predicted".
func ParseTable(s string) (Table, error) {
	switch t := Table(s); t {
	case TableValidated, TablePredicted:
		return t, nil
	}
	return "", fmt.Errorf("unknown target table %q", s)
}

// Target is one miRNA-gene interaction. Score is null for validated
// interactions; for predicted ones a higher score is a stronger prediction.
type Target struct {
	MatureMirnaID string     `db:"mature_mirna_id" csv:"mature_mirna_id"`
	TargetSymbol  string     `db:"target_symbol" csv:"target_symbol"`
	TargetEntrez  string     `db:"target_entrez" csv:"target_entrez"`
	Database      string     `db:"database" csv:"database"`
	Score         null.Float `db:"score" csv:"score"`
}

// Source returns the interactions for the given miRNAs of one organism.
// Rows come back in the source's own order, which determines first-match
// joins downstream.
type Source interface {
	Targets(ctx context.Context, org string, table Table, mirnas []string) ([]Target, error)
}

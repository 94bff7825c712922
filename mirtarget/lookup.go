package mirtarget

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/carbocation/mirnade"
	"github.com/montanaflynn/stats"
)

// DefaultOrg is the organism code for human.
const DefaultOrg = "hsa"

// CutoffType selects how Query.Cutoff trims predicted interactions.
type CutoffType string

const (
	// CutoffPercent keeps the top Cutoff percent of scores per database.
	CutoffPercent CutoffType = "p"

	// CutoffNumber keeps the top Cutoff rows per database.
	CutoffNumber CutoffType = "n"
)

// DefaultCutoff keeps the top 20% of predictions per database.
const DefaultCutoff = 20

// ParseCutoffType accepts "p" and "n".
func ParseCutoffType(s string) (CutoffType, error) {
	switch c := CutoffType(s); c {
	case CutoffPercent, CutoffNumber:
		return c, nil
	case "":
		return CutoffPercent, nil
	}
	return "", fmt.Errorf("unknown cutoff type %q", s)
}

// Query describes one annotation lookup.
type Query struct {
	Org        string
	Mirnas     []string
	Table      Table
	Cutoff     float64
	CutoffType CutoffType
}

// Annotation is the result of a lookup: rows in source order, grouped by
// miRNA for joins.
type Annotation struct {
	Table Table
	Rows  []Target

	byMirna map[string][]Target
}

// NewAnnotation indexes rows by miRNA.
func NewAnnotation(table Table, rows []Target) *Annotation {
	a := &Annotation{Table: table, Rows: rows, byMirna: make(map[string][]Target)}
	for _, r := range rows {
		a.byMirna[r.MatureMirnaID] = append(a.byMirna[r.MatureMirnaID], r)
	}
	return a
}

// Lookup queries src. Predicted rows are trimmed by score and then reduced
// to the first row per target symbol. Any source failure is reported as
// mirnade.ErrAnnotationQuery.
func Lookup(ctx context.Context, src Source, q Query) (*Annotation, error) {
	if q.Org == "" {
		q.Org = DefaultOrg
	}
	if q.Table == "" {
		q.Table = TableValidated
	}

	rows, err := src.Targets(ctx, q.Org, q.Table, q.Mirnas)
	if err != nil {
		return nil, fmt.Errorf("%w: %s targets of %d miRNAs: %v", mirnade.ErrAnnotationQuery, q.Table, len(q.Mirnas), err)
	}

	if q.Table == TablePredicted {
		if rows, err = applyCutoff(rows, q.Cutoff, q.CutoffType); err != nil {
			return nil, fmt.Errorf("%w: %v", mirnade.ErrAnnotationQuery, err)
		}
		rows = DedupBySymbol(rows)
	}

	log.Printf("Found %d %s targets for %d miRNAs\n", len(rows), q.Table, len(q.Mirnas))

	return NewAnnotation(q.Table, rows), nil
}

// applyCutoff trims predicted rows per database, keeping source order. Rows
// without a score cannot be ranked and are dropped.
func applyCutoff(rows []Target, cutoff float64, kind CutoffType) ([]Target, error) {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	if kind == "" {
		kind = CutoffPercent
	}

	byDB := make(map[string][]int)
	var dbOrder []string
	unscored := 0
	for i, r := range rows {
		if !r.Score.Valid {
			unscored++
			continue
		}
		if _, ok := byDB[r.Database]; !ok {
			dbOrder = append(dbOrder, r.Database)
		}
		byDB[r.Database] = append(byDB[r.Database], i)
	}
	if unscored > 0 {
		log.Printf("Dropped %d predicted targets without a score\n", unscored)
	}

	keep := make([]bool, len(rows))
	for _, db := range dbOrder {
		idx := byDB[db]

		switch kind {
		case CutoffPercent:
			if cutoff >= 100 {
				for _, i := range idx {
					keep[i] = true
				}
				continue
			}
			scores := make(stats.Float64Data, len(idx))
			for k, i := range idx {
				scores[k] = rows[i].Score.Float64
			}
			// A percentile below the first order statistic is under every
			// score, so the whole database is kept.
			threshold, err := stats.Min(scores)
			if (100-cutoff)/100*float64(len(scores)) >= 1 {
				threshold, err = stats.Percentile(scores, 100-cutoff)
			}
			if err != nil {
				return nil, fmt.Errorf("score percentile for %s: %v", db, err)
			}
			for _, i := range idx {
				keep[i] = rows[i].Score.Float64 >= threshold
			}

		case CutoffNumber:
			ranked := append([]int(nil), idx...)
			sort.SliceStable(ranked, func(a, b int) bool {
				return rows[ranked[a]].Score.Float64 > rows[ranked[b]].Score.Float64
			})
			n := int(cutoff)
			if n > len(ranked) {
				n = len(ranked)
			}
			for _, i := range ranked[:n] {
				keep[i] = true
			}

		default:
			return nil, fmt.Errorf("unknown cutoff type %q", kind)
		}
	}

	out := make([]Target, 0, len(rows))
	for i, r := range rows {
		if keep[i] {
			out = append(out, r)
		}
	}

	return out, nil
}

// DedupBySymbol keeps the first row for each target symbol.
func DedupBySymbol(rows []Target) []Target {
	seen := make(map[string]struct{}, len(rows))
	out := make([]Target, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.TargetSymbol]; dup {
			continue
		}
		seen[r.TargetSymbol] = struct{}{}
		out = append(out, r)
	}
	return out
}

// JoinStrategy picks the single target shown for a miRNA.
type JoinStrategy string

const (
	// JoinFirst takes the first row in source order.
	JoinFirst JoinStrategy = "first"

	// JoinBestScore takes the highest-scoring row, ties to source order.
	JoinBestScore JoinStrategy = "best_score"
)

// ParseJoinStrategy accepts "first" (or "") and "best_score".
func ParseJoinStrategy(s string) (JoinStrategy, error) {
	switch j := JoinStrategy(s); j {
	case JoinFirst, JoinBestScore:
		return j, nil
	case "":
		return JoinFirst, nil
	}
	return "", fmt.Errorf("unknown join strategy %q", s)
}

// ForMirna returns the rows for one miRNA in source order.
func (a *Annotation) ForMirna(mirna string) []Target {
	return a.byMirna[mirna]
}

// FirstTargets returns one target symbol per miRNA, parallel to mirnas, or ""
// where a miRNA has no target. A miRNA usually has many targets; which one is
// shown depends on strategy.
func (a *Annotation) FirstTargets(mirnas []string, strategy JoinStrategy) []string {
	if strategy == "" {
		strategy = JoinFirst
	}
	log.Printf("Showing one %s target per miRNA using the %q join; most miRNAs have several\n", a.Table, strategy)

	out := make([]string, len(mirnas))
	for i, m := range mirnas {
		rows := a.byMirna[m]
		if len(rows) == 0 {
			continue
		}

		best := rows[0]
		if strategy == JoinBestScore {
			for _, r := range rows[1:] {
				if r.Score.Valid && (!best.Score.Valid || r.Score.Float64 > best.Score.Float64) {
					best = r
				}
			}
		}
		out[i] = best.TargetSymbol
	}

	return out
}

// Symbols lists distinct target symbols in first-seen order.
func (a *Annotation) Symbols() []string {
	rows := DedupBySymbol(a.Rows)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.TargetSymbol)
	}
	return out
}

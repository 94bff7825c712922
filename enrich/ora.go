package enrich

import (
	"math"
	"sort"
	"strings"

	"github.com/carbocation/mirnade/diffexpr"
	"github.com/carbocation/mirnade/geneset"
	fet "github.com/glycerine/golang-fisher-exact"
)

// ORAStat is the overlap between target genes and one gene set.
type ORAStat struct {
	Set      string  `csv:"set"`
	Size     int     `csv:"set.size"`
	Overlap  int     `csv:"overlap"`
	Expected float64 `csv:"expected"`
	PValue   float64 `csv:"p.val"`
	QValue   float64 `csv:"q.val"`
	Genes    string  `csv:"genes"`
}

// OverRepresentation runs a one-sided Fisher's exact test of each set for
// more targets than expected by chance. Only genes in universe count; a nil
// universe means every gene of the collection plus the targets. Sets with no
// genes in the universe are left out. Rows are sorted by p.
func OverRepresentation(targets []string, coll *geneset.Collection, universe []string) []ORAStat {
	if universe == nil {
		universe = append(coll.Universe(), targets...)
	}
	inUniverse := make(map[string]struct{}, len(universe))
	for _, g := range universe {
		inUniverse[g] = struct{}{}
	}

	isTarget := make(map[string]struct{}, len(targets))
	for _, g := range targets {
		if _, ok := inUniverse[g]; ok {
			isTarget[g] = struct{}{}
		}
	}
	nUniverse, nTargets := len(inUniverse), len(isTarget)

	var out []ORAStat
	for _, s := range coll.Sets {
		size := 0
		var hits []string
		for _, g := range s.Genes {
			if _, ok := inUniverse[g]; !ok {
				continue
			}
			size++
			if _, ok := isTarget[g]; ok {
				hits = append(hits, g)
			}
		}
		if size == 0 {
			continue
		}

		a := len(hits)
		b := nTargets - a
		c := size - a
		d := nUniverse - a - b - c
		_, _, right, _ := fet.FisherExactTest(a, b, c, d)

		out = append(out, ORAStat{
			Set:      s.Name,
			Size:     size,
			Overlap:  a,
			Expected: float64(size) * float64(nTargets) / float64(nUniverse),
			PValue:   math.Min(1, right),
			Genes:    strings.Join(hits, ","),
		})
	}

	p := make([]float64, len(out))
	for i, r := range out {
		p[i] = r.PValue
	}
	q := diffexpr.AdjustPValues(p, diffexpr.AdjustBH)
	for i := range out {
		out[i].QValue = q[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PValue < out[j].PValue })

	return out
}

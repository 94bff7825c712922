package mirtarget

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedSource memoizes per-miRNA results of another Source. Rows are
// returned grouped by miRNA in request order, each group in source order.
type CachedSource struct {
	Source Source
	cache  *lru.Cache[string, []Target]
}

// NewCachedSource caches up to size miRNA lookups in front of src.
func NewCachedSource(src Source, size int) (*CachedSource, error) {
	cache, err := lru.New[string, []Target](size)
	if err != nil {
		return nil, err
	}

	return &CachedSource{Source: src, cache: cache}, nil
}

func cacheKey(org string, table Table, mirna string) string {
	return org + "\t" + string(table) + "\t" + mirna
}

// Targets implements Source.
func (c *CachedSource) Targets(ctx context.Context, org string, table Table, mirnas []string) ([]Target, error) {
	// Hits are copied out before any Add, which may evict them.
	groups := make(map[string][]Target, len(mirnas))
	var misses []string
	for _, m := range mirnas {
		if _, dup := groups[m]; dup {
			continue
		}
		if rows, ok := c.cache.Get(cacheKey(org, table, m)); ok {
			groups[m] = rows
			continue
		}
		groups[m] = []Target{}
		misses = append(misses, m)
	}

	if len(misses) > 0 {
		rows, err := c.Source.Targets(ctx, org, table, misses)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			groups[r.MatureMirnaID] = append(groups[r.MatureMirnaID], r)
		}
		for _, m := range misses {
			c.cache.Add(cacheKey(org, table, m), groups[m])
		}
	}

	var out []Target
	for _, m := range mirnas {
		rows, pending := groups[m]
		if !pending {
			continue
		}
		delete(groups, m)
		out = append(out, rows...)
	}

	return out, nil
}

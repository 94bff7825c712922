// Package geneset reads gene set collections in the GMT format: one set per
// line, tab-separated name, description and member genes.
package geneset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/mirnade"
	"github.com/carbocation/pfx"
)

// Set is a named group of gene symbols.
type Set struct {
	Name        string
	Description string
	Genes       []string
}

// Collection is a list of gene sets from one source, such as KEGG.
type Collection struct {
	Name string
	Sets []Set
}

// LoadGMT parses a GMT stream. Duplicate genes within a set are dropped,
// keeping first occurrences; blank lines and lines starting with # are
// skipped.
func LoadGMT(r io.Reader, name string) (*Collection, error) {
	coll := &Collection{Name: name}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s line %d: expected a name and description, got %d fields", name, line, len(fields))
		}

		set := Set{Name: strings.TrimSpace(fields[0]), Description: strings.TrimSpace(fields[1])}
		seen := make(map[string]struct{}, len(fields)-2)
		for _, g := range fields[2:] {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			set.Genes = append(set.Genes, g)
		}

		coll.Sets = append(coll.Sets, set)
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}

	return coll, nil
}

// Open reads a GMT file from local disk or gs://, decompressing if needed.
// The collection is named after the file.
func Open(ctx context.Context, path string, client *storage.Client) (*Collection, error) {
	r, err := mirnade.OpenMaybeCompressed(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return LoadGMT(r, CollectionName(path))
}

// CollectionName derives a collection name from a file path:
// "/x/c2.cp.kegg.v7.gmt.gz" becomes "c2.cp.kegg.v7".
func CollectionName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".gz", ".bz2", ".xz", ".zip", ".gmt", ".txt"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Universe lists every distinct gene across the collection in first-seen
// order.
func (c *Collection) Universe() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range c.Sets {
		for _, g := range s.Genes {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}

package geo

import (
	"io"
	"path"
	"strings"

	"github.com/carbocation/pfx"
	"golang.org/x/net/html"
)

// parseListing extracts file names from an HTTP directory index such as the
// ones served for GEO's FTP tree.
func parseListing(r io.Reader) ([]string, error) {
	z := html.NewTokenizer(r)
	seen := make(map[string]struct{})
	out := make([]string, 0)

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return out, nil
			}
			return nil, pfx.Err(z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if file := listingEntry(string(val)); file != "" {
						if _, exists := seen[file]; !exists {
							seen[file] = struct{}{}
							out = append(out, file)
						}
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

// listingEntry reduces an href to a bare file name, dropping directories,
// parent links and query strings.
func listingEntry(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	if href == "" || strings.HasSuffix(href, "/") {
		return ""
	}
	return path.Base(href)
}

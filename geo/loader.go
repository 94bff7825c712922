// Package geo downloads GEO series matrices by accession, caches them on
// disk, and parses them into expression datasets.
package geo

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/carbocation/mirnade"
	"github.com/carbocation/mirnade/expression"
	"github.com/carbocation/pfx"
	"github.com/gobwas/glob"
)

const (
	DefaultBaseURL       = "https://ftp.ncbi.nlm.nih.gov"
	DefaultMatrixPattern = "*_series_matrix.txt.gz"
	DefaultGroupField    = "group"
)

// Loader fetches GEO series into a local cache. The zero value is not usable;
// construct with NewLoader.
type Loader struct {
	BaseURL       string
	CacheDir      string
	Client        *http.Client
	Attempts      int
	Backoff       time.Duration
	MatrixPattern string
	GroupField    string

	// FetchPlatform also downloads the GPL family SOFT file and maps Columns
	// onto the features.
	FetchPlatform bool
	Columns       Columns
}

// NewLoader returns a Loader with GEO defaults caching under cacheDir.
func NewLoader(cacheDir string) *Loader {
	return &Loader{
		BaseURL:       DefaultBaseURL,
		CacheDir:      mirnade.ExpandHome(cacheDir),
		Client:        &http.Client{Timeout: 5 * time.Minute},
		Attempts:      4,
		Backoff:       2 * time.Second,
		MatrixPattern: DefaultMatrixPattern,
		GroupField:    DefaultGroupField,
	}
}

// Load returns one dataset per series matrix file of the accession that
// matches the loader's pattern. Files already in the cache are reused without
// any network I/O.
func (l *Loader) Load(ctx context.Context, accession string) ([]*expression.Dataset, error) {
	if err := ValidateAccession(accession); err != nil {
		return nil, err
	}

	paths, err := l.matrixFiles(ctx, accession)
	if err != nil {
		return nil, err
	}

	out := make([]*expression.Dataset, 0, len(paths))
	for _, path := range paths {
		log.Println("Parsing", path)
		ds, err := l.parseFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}

		if l.FetchPlatform && ds.Platform != "" {
			platform, err := l.platform(ctx, ds.Platform)
			if err != nil {
				return nil, err
			}
			ds = platform.Annotate(ds, l.Columns)
		}

		nFeatures, nSamples := ds.Dims()
		log.Printf("%s: %d features x %d samples (platform %s)\n", filepath.Base(path), nFeatures, nSamples, ds.Platform)
		out = append(out, ds)
	}

	return out, nil
}

func (l *Loader) parseFile(path string) (*expression.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	r, err := mirnade.MaybeDecompressReadCloser(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	defer r.Close()

	return ParseSeriesMatrix(r, l.GroupField)
}

// manifestName records, inside an accession's cache directory, the pattern
// and the complete set of matrix files downloaded for it.
const manifestName = "matrices.complete"

// matrixFiles returns local paths of the matching series matrices. The cache
// is only trusted when its manifest shows that every file of the listing
// arrived; otherwise the listing is fetched again and missing files are
// downloaded.
func (l *Loader) matrixFiles(ctx context.Context, accession string) ([]string, error) {
	pattern, err := glob.Compile(l.MatrixPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid matrix pattern %q: %w", l.MatrixPattern, err)
	}

	dir := filepath.Join(l.CacheDir, accession)
	if cached, ok := cachedSeries(dir, l.MatrixPattern); ok {
		log.Printf("Using %d cached series matrix file(s) for %s from %s\n", len(cached), accession, dir)
		return cached, nil
	}

	listingURL := fmt.Sprintf("%s/geo/series/%s/%s/matrix/", strings.TrimSuffix(l.BaseURL, "/"), Stub(accession), accession)
	log.Println("Listing", listingURL)

	var names []string
	err = l.fetch(ctx, listingURL, func(body io.Reader) error {
		var err error
		names, err = parseListing(body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", accession, err)
	}

	matches := make([]string, 0)
	for _, name := range names {
		if pattern.Match(name) {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s has no file matching %s", mirnade.ErrDatasetNotFound, accession, l.MatrixPattern)
	}
	sort.Strings(matches)

	out := make([]string, 0, len(matches))
	for _, name := range matches {
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			log.Println("Using cached", dest)
		} else if err := l.download(ctx, listingURL+name, dest); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}

	if err := writeManifest(dir, l.MatrixPattern, matches); err != nil {
		return nil, err
	}

	return out, nil
}

func (l *Loader) platform(ctx context.Context, gpl string) (*Platform, error) {
	if err := ValidateAccession(gpl); err != nil {
		return nil, err
	}

	name := gpl + "_family.soft.gz"
	dest := filepath.Join(l.CacheDir, gpl, name)
	if _, err := os.Stat(dest); err != nil {
		url := fmt.Sprintf("%s/geo/platforms/%s/%s/soft/%s", strings.TrimSuffix(l.BaseURL, "/"), Stub(gpl), gpl, name)
		if err := l.download(ctx, url, dest); err != nil {
			return nil, err
		}
	} else {
		log.Println("Using cached platform", dest)
	}

	f, err := os.Open(dest)
	if err != nil {
		return nil, pfx.Err(err)
	}
	r, err := mirnade.MaybeDecompressReadCloser(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	defer r.Close()

	return ParsePlatformSOFT(r)
}

// download writes url to dest through a temporary file so that an interrupted
// transfer never leaves a partial file that would later look like a cache hit.
func (l *Loader) download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return pfx.Err(err)
	}

	log.Println("Downloading", url)
	return l.fetch(ctx, url, func(body io.Reader) error {
		tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part*")
		if err != nil {
			return pfx.Err(err)
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, body); err != nil {
			tmp.Close()
			return mirnade.Transient(err)
		}
		if err := tmp.Close(); err != nil {
			return pfx.Err(err)
		}

		if err := os.Rename(tmp.Name(), dest); err != nil {
			return pfx.Err(err)
		}
		return nil
	})
}

// fetch GETs url and hands the body to consume, retrying transient failures.
func (l *Loader) fetch(ctx context.Context, url string, consume func(io.Reader) error) error {
	return mirnade.Retry(ctx, l.Attempts, l.Backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := l.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return mirnade.Transient(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return consume(resp.Body)
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s returned 404", mirnade.ErrDatasetNotFound, url)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return mirnade.Transient(fmt.Errorf("%s returned %s", url, resp.Status))
		}

		return fmt.Errorf("%s returned %s", url, resp.Status)
	})
}

// cachedSeries returns the files named by the manifest in dir if it was
// written for pattern and all of them are present.
func cachedSeries(dir, pattern string) ([]string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, false
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 || lines[0] != pattern {
		return nil, false
	}

	out := make([]string, 0, len(lines)-1)
	for _, name := range lines[1:] {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, false
		}
		out = append(out, path)
	}

	return out, true
}

func writeManifest(dir, pattern string, names []string) error {
	body := pattern + "\n" + strings.Join(names, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, manifestName), []byte(body), 0644); err != nil {
		return pfx.Err(err)
	}
	return nil
}

package mirtarget

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carbocation/mirnade"
	"github.com/gocarina/gocsv"
)

// HTTPSource queries an annotation web service at
// <BaseURL>/<table>?org=<org>&mirna=<id>&mirna=<id>... which answers with a
// tab-delimited table whose header names the Target csv fields.
type HTTPSource struct {
	BaseURL  string
	Client   *http.Client
	Attempts int
	Backoff  time.Duration
}

// NewHTTPSource returns a source with a per-request timeout and retries.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		Client:   &http.Client{Timeout: 2 * time.Minute},
		Attempts: 4,
		Backoff:  2 * time.Second,
	}
}

// Targets implements Source.
func (s *HTTPSource) Targets(ctx context.Context, org string, table Table, mirnas []string) ([]Target, error) {
	if _, err := ParseTable(string(table)); err != nil {
		return nil, err
	}
	if len(mirnas) == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("org", org)
	for _, m := range mirnas {
		q.Add("mirna", m)
	}
	u := fmt.Sprintf("%s/%s?%s", strings.TrimSuffix(s.BaseURL, "/"), table, q.Encode())

	var out []Target
	err := mirnade.Retry(ctx, s.Attempts, s.Backoff, func() error {
		rows, err := s.get(ctx, u)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})

	return out, err
}

func (s *HTTPSource) get(ctx context.Context, u string) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, mirnade.Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, mirnade.Transient(fmt.Errorf("%s: %s", u, resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: %s", u, resp.Status)
	}

	r := csv.NewReader(resp.Body)
	r.Comma = '\t'
	r.LazyQuotes = true

	rows := []Target{}
	if err := gocsv.UnmarshalCSV(r, &rows); err != nil {
		if err == gocsv.ErrEmptyCSVFile {
			return rows, nil
		}
		return nil, err
	}

	return rows, nil
}

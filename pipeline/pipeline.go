package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/mirnade"
	"github.com/carbocation/mirnade/diffexpr"
	"github.com/carbocation/mirnade/enrich"
	"github.com/carbocation/mirnade/expression"
	"github.com/carbocation/mirnade/geneset"
	"github.com/carbocation/mirnade/geo"
	"github.com/carbocation/mirnade/mirtarget"
	"github.com/carbocation/mirnade/plot"
	"github.com/carbocation/mirnade/report"
	"github.com/carbocation/pfx"
)

// Pipeline runs the stages in order. Each stage method takes the previous
// stage's output, so stages can also be driven one at a time.
type Pipeline struct {
	Config Config
	Loader *geo.Loader

	// Targets is nil when no annotation source is configured; target lookup
	// and enrichment are then skipped.
	Targets mirtarget.Source

	// Storage is only created when an input lives in gs://.
	Storage *storage.Client

	// Out receives the printed report and the p-value histogram.
	Out io.Writer

	closers []io.Closer
}

// New validates cfg and connects the configured sources.
func New(ctx context.Context, cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loader := geo.NewLoader(cfg.CacheDir)
	if cfg.GEOBaseURL != "" {
		loader.BaseURL = strings.TrimSuffix(cfg.GEOBaseURL, "/")
	}
	if cfg.MatrixPattern != "" {
		loader.MatrixPattern = cfg.MatrixPattern
	}
	if cfg.GroupField != "" {
		loader.GroupField = cfg.GroupField
	}
	loader.FetchPlatform = cfg.FetchPlatform
	loader.Columns = cfg.Platform

	p := &Pipeline{Config: cfg, Loader: loader, Out: os.Stdout}

	if cfg.usesGoogleStorage() {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, pfx.Err(err)
		}
		p.Storage = client
		p.closers = append(p.closers, client)
	}

	var src mirtarget.Source
	switch {
	case cfg.TargetDB != "":
		db, err := mirtarget.OpenSQLite(cfg.TargetDB)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, db)
		src = db
	case cfg.TargetURL != "":
		src = mirtarget.NewHTTPSource(cfg.TargetURL)
	}
	if src != nil && cfg.TargetCacheSize > 0 {
		cached, err := mirtarget.NewCachedSource(src, cfg.TargetCacheSize)
		if err != nil {
			p.Close()
			return nil, err
		}
		src = cached
	}
	p.Targets = src

	return p, nil
}

// Close releases database and storage handles.
func (p *Pipeline) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// Run executes every stage. An empty significant set ends the run with
// mirnade.ErrEmptyResultSet after the DE table and plots are written.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := os.MkdirAll(p.Config.OutDir, 0755); err != nil {
		return pfx.Err(err)
	}

	log.Println("Loading", p.Config.Accession)
	ds, err := p.LoadDataset(ctx)
	if err != nil {
		return err
	}

	ds = p.FilterFeatures(ds)

	log.Println("Fitting differential expression")
	res, err := p.DifferentialExpression(ds)
	if err != nil {
		return err
	}

	rep := &report.Report{Accession: p.Config.Accession, DE: res, Join: p.Config.JoinStrategy}

	log.Println("Plotting")
	if err := p.Visualize(ds, res); err != nil {
		return err
	}

	if len(res.Significant) == 0 {
		if _, err := rep.WriteTSVs(p.Config.OutDir); err != nil {
			return err
		}
		return fmt.Errorf("%w: no feature of %s reaches p <= %g", mirnade.ErrEmptyResultSet, res.Contrast, p.Config.DE.PValue)
	}

	if p.Targets != nil {
		log.Println("Looking up miRNA targets")
		if rep.Validated, rep.Predicted, err = p.Annotate(ctx, res); err != nil {
			return err
		}
	}

	if len(p.Config.GeneSets) > 0 {
		log.Println("Running gene set enrichment")
		m, err := p.TargetMatrix(ctx, ds, res, rep.Validated, rep.Predicted)
		if err != nil {
			return err
		}

		var targets []string
		for _, ann := range []*mirtarget.Annotation{rep.Validated, rep.Predicted} {
			if ann != nil {
				targets = append(targets, ann.Symbols()...)
			}
		}

		if rep.Enrichment, rep.ORA, err = p.Enrich(ctx, m, targets); err != nil {
			return err
		}
	}

	log.Println("Writing report to", p.Config.OutDir)
	return p.Report(rep)
}

// LoadDataset loads the accession. A series split over several matrix files
// yields several datasets; the first one is used.
func (p *Pipeline) LoadDataset(ctx context.Context) (*expression.Dataset, error) {
	datasets, err := p.Loader.Load(ctx, p.Config.Accession)
	if err != nil {
		return nil, err
	}
	if len(datasets) > 1 {
		log.Printf("%s has %d series matrices; using the first (platform %s)\n", p.Config.Accession, len(datasets), datasets[0].Platform)
	}

	return datasets[0], nil
}

// FilterFeatures applies the mature miRNA filter when enabled.
func (p *Pipeline) FilterFeatures(ds *expression.Dataset) *expression.Dataset {
	before, _ := ds.Dims()
	if !p.Config.FilterMature {
		log.Printf("Mature miRNA filter disabled; keeping all %d features\n", before)
		return ds
	}

	out := expression.FilterFeatures(ds, expression.MatureMirna(p.Config.MaturePrefix))
	after, _ := out.Dims()
	log.Printf("Mature miRNA filter (%s): kept %d of %d features\n", p.Config.MaturePrefix, after, before)

	return out
}

// DifferentialExpression compares the configured groups.
func (p *Pipeline) DifferentialExpression(ds *expression.Dataset) (*diffexpr.Result, error) {
	return diffexpr.Run(ds, p.Config.DE)
}

// Visualize writes the volcano plot and the heatmap of significant features
// and prints the p-value histogram.
func (p *Pipeline) Visualize(ds *expression.Dataset, res *diffexpr.Result) error {
	title := fmt.Sprintf("%s %s", p.Config.Accession, res.Contrast)

	if err := p.writeFile("volcano.png", func(w io.Writer) error {
		return plot.Volcano(w, res.All, plot.VolcanoOptions{
			Threshold: p.Config.DE.PValue,
			Labels:    p.Config.VolcanoLabels,
			Title:     title,
		})
	}); err != nil {
		return err
	}

	if err := plot.PValueHistogram(p.Out, res.All); err != nil {
		log.Println("Skipping p-value histogram:", err)
	}

	if len(res.Significant) < 2 {
		log.Printf("Skipping heatmap: %d significant features\n", len(res.Significant))
		return nil
	}

	m := p.significantMatrix(ds, res)
	return p.writeFile("heatmap.png", func(w io.Writer) error {
		return plot.Heatmap(w, m, plot.HeatmapOptions{Title: title, Clusters: p.Config.HeatmapClusters})
	})
}

// significantMatrix returns samples x significant features with group-coded
// sample titles.
func (p *Pipeline) significantMatrix(ds *expression.Dataset, res *diffexpr.Result) *expression.Matrix {
	byID := make(map[string]int, len(ds.Features))
	for i, f := range ds.Features {
		byID[f.ID] = i
	}

	idx := make([]int, 0, len(res.Significant))
	for _, r := range res.Significant {
		idx = append(idx, byID[r.FeatureID])
	}

	sub := expression.DropIncompleteSamples(ds.SubsetFeatures(idx), []string{p.Config.DE.Reference, p.Config.DE.Comparison})

	return expression.GroupTitles(sub).ToMatrix()
}

func (p *Pipeline) writeFile(name string, render func(io.Writer) error) error {
	path := filepath.Join(p.Config.OutDir, name)
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}

	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}

	log.Println("Wrote", path)
	return f.Close()
}

// Annotate looks up validated and predicted targets of the significant
// miRNAs.
func (p *Pipeline) Annotate(ctx context.Context, res *diffexpr.Result) (validated, predicted *mirtarget.Annotation, err error) {
	mirnas := make([]string, 0, len(res.Significant))
	unannotated := 0
	for _, r := range res.Significant {
		if r.MirnaID == "" {
			unannotated++
		}
		mirnas = append(mirnas, r.Label())
	}
	if unannotated > 0 {
		log.Printf("WARNING: %d of %d significant features have no miRNA ID and are looked up by probe ID; enable fetch_platform or check platform_columns\n", unannotated, len(mirnas))
	}

	query := mirtarget.Query{
		Org:        p.Config.Org,
		Mirnas:     mirnas,
		Cutoff:     p.Config.PredictedCutoff,
		CutoffType: p.Config.CutoffType,
	}

	query.Table = mirtarget.TableValidated
	if validated, err = mirtarget.Lookup(ctx, p.Targets, query); err != nil {
		return nil, nil, err
	}

	query.Table = mirtarget.TablePredicted
	if predicted, err = mirtarget.Lookup(ctx, p.Targets, query); err != nil {
		return nil, nil, err
	}

	return validated, predicted, nil
}

// TargetMatrix returns the genes x samples matrix used for enrichment. A
// configured file wins; otherwise each target gene gets the mean expression
// of the significant miRNAs that target it.
func (p *Pipeline) TargetMatrix(ctx context.Context, ds *expression.Dataset, res *diffexpr.Result, annotations ...*mirtarget.Annotation) (*expression.Matrix, error) {
	if p.Config.TargetMatrix != "" {
		return expression.OpenMatrix(ctx, p.Config.TargetMatrix, p.Storage)
	}

	ds = expression.GroupTitles(expression.DropIncompleteSamples(ds, []string{p.Config.DE.Reference, p.Config.DE.Comparison}))

	byLabel := make(map[string]int, len(ds.Features))
	for i, f := range ds.Features {
		byLabel[f.Label()] = i
	}

	var genes []string
	sources := make(map[string][]int)
	for _, r := range res.Significant {
		row, ok := byLabel[r.Label()]
		if !ok {
			continue
		}
		seen := make(map[string]struct{})
		for _, ann := range annotations {
			if ann == nil {
				continue
			}
			for _, t := range ann.ForMirna(r.Label()) {
				if _, dup := seen[t.TargetSymbol]; dup {
					continue
				}
				seen[t.TargetSymbol] = struct{}{}
				if _, known := sources[t.TargetSymbol]; !known {
					genes = append(genes, t.TargetSymbol)
				}
				sources[t.TargetSymbol] = append(sources[t.TargetSymbol], row)
			}
		}
	}
	if len(genes) == 0 {
		return nil, fmt.Errorf("%w: no target genes for the %d significant miRNAs", mirnade.ErrEmptyResultSet, len(res.Significant))
	}

	_, nSamples := ds.Dims()
	values := make([][]float64, len(genes))
	for g, gene := range genes {
		values[g] = make([]float64, nSamples)
		for j := 0; j < nSamples; j++ {
			sum := 0.0
			for _, row := range sources[gene] {
				sum += ds.Values.At(row, j)
			}
			values[g][j] = sum / float64(len(sources[gene]))
		}
	}

	log.Printf("Built a %d gene x %d sample target expression matrix\n", len(genes), nSamples)

	return expression.NewMatrix(genes, ds.SampleTitles(), values)
}

// Enrich tests every configured collection.
func (p *Pipeline) Enrich(ctx context.Context, m *expression.Matrix, targets []string) ([]*enrich.Result, []report.ORA, error) {
	var results []*enrich.Result
	var oras []report.ORA

	for _, path := range p.Config.GeneSets {
		coll, err := geneset.Open(ctx, path, p.Storage)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("%s: %d gene sets\n", coll.Name, len(coll.Sets))

		res, err := enrich.Run(m, coll, p.Config.Enrich)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", coll.Name, err)
		}
		results = append(results, res)

		if len(targets) > 0 {
			oras = append(oras, report.ORA{Collection: coll.Name, Rows: enrich.OverRepresentation(targets, coll, nil)})
		}
	}

	return results, oras, nil
}

// Report prints the summary and writes every table.
func (p *Pipeline) Report(rep *report.Report) error {
	rep.Print(p.Out, p.Config.TopN, p.Config.Alpha)

	written, err := rep.WriteTSVs(p.Config.OutDir)
	for _, path := range written {
		log.Println("Wrote", path)
	}

	return err
}

// IsEmptyResult reports whether err only means that nothing was significant.
func IsEmptyResult(err error) bool {
	return errors.Is(err, mirnade.ErrEmptyResultSet)
}

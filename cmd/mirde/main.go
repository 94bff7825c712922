// mirde downloads a GEO miRNA series, tests two groups for differential
// expression, looks up targets of the significant miRNAs and runs gene set
// enrichment on them.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/carbocation/mirnade/diffexpr"
	"github.com/carbocation/mirnade/enrich"
	"github.com/carbocation/mirnade/mirtarget"
	"github.com/carbocation/mirnade/pipeline"

	_ "github.com/carbocation/mirnade/compileinfoprint"
)

func main() {
	var (
		configPath    string
		accession     string
		cacheDir      string
		outDir        string
		reference     string
		comparison    string
		pValue        float64
		adjust        string
		groupField    string
		fetchPlatform bool
		filterMature  bool
		targetDB      string
		targetURL     string
		cutoff        float64
		cutoffType    string
		join          string
		geneSets      string
		targetMatrix  string
		compare       string
		topN          int
	)

	defaults := pipeline.DefaultConfig()

	flag.StringVar(&configPath, "config", "", "(Optional) JSON or YAML config file. Flags that are set override its values.")
	flag.StringVar(&accession, "accession", "", "GEO series accession, e.g. GSE123456")
	flag.StringVar(&cacheDir, "cache", defaults.CacheDir, "Directory where downloaded series are cached")
	flag.StringVar(&outDir, "out", defaults.OutDir, "Directory for plots and tables. Will be created if it does not exist.")
	flag.StringVar(&reference, "reference", defaults.DE.Reference, "Reference group label; positive logFC means higher in the comparison group")
	flag.StringVar(&comparison, "comparison", defaults.DE.Comparison, "Comparison group label")
	flag.Float64Var(&pValue, "p", defaults.DE.PValue, "Significance threshold on the (adjusted) p-value")
	flag.StringVar(&adjust, "adjust", string(defaults.DE.Adjust), "P-value adjustment: none or BH")
	flag.StringVar(&groupField, "group-field", defaults.GroupField, "Sample characteristic holding the group label")
	flag.BoolVar(&fetchPlatform, "platform", defaults.FetchPlatform, "Download the GPL annotation to map probes to miRNA IDs")
	flag.BoolVar(&filterMature, "mature-only", defaults.FilterMature, "Keep only mature miRNA probes (MIMAT accessions)")
	flag.StringVar(&targetDB, "target-db", "", "(Optional) SQLite database of validated and predicted miRNA targets")
	flag.StringVar(&targetURL, "target-url", "", "(Optional) Base URL of a miRNA target web service")
	flag.Float64Var(&cutoff, "predicted-cutoff", defaults.PredictedCutoff, "Predicted target cutoff per database")
	flag.StringVar(&cutoffType, "predicted-cutoff-type", string(defaults.CutoffType), "p: cutoff is a top percentage of scores. n: cutoff is a number of rows.")
	flag.StringVar(&join, "join", string(defaults.JoinStrategy), "Which target to show per miRNA: first or best_score")
	flag.StringVar(&geneSets, "gene-sets", "", "(Optional) Comma-separated GMT files (local, .gz or gs://)")
	flag.StringVar(&targetMatrix, "target-matrix", "", "(Optional) Genes x samples expression matrix for enrichment. If empty, built from the significant miRNAs.")
	flag.StringVar(&compare, "compare", string(defaults.Enrich.Compare), "Enrichment comparison: unpaired, 1ongroup or as.group")
	flag.IntVar(&topN, "top", defaults.TopN, "Rows in the up and down tables")
	flag.Parse()

	cfg := defaults
	if configPath != "" {
		var err error
		cfg, err = pipeline.ParseConfigFromPath(configPath)
		if err != nil {
			log.Fatalln(err)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "accession":
			cfg.Accession = accession
		case "cache":
			cfg.CacheDir = cacheDir
		case "out":
			cfg.OutDir = outDir
		case "reference":
			cfg.DE.Reference = reference
		case "comparison":
			cfg.DE.Comparison = comparison
		case "p":
			cfg.DE.PValue = pValue
		case "adjust":
			cfg.DE.Adjust = diffexpr.AdjustMethod(adjust)
		case "group-field":
			cfg.GroupField = groupField
		case "platform":
			cfg.FetchPlatform = fetchPlatform
		case "mature-only":
			cfg.FilterMature = filterMature
		case "target-db":
			cfg.TargetDB = targetDB
		case "target-url":
			cfg.TargetURL = targetURL
		case "predicted-cutoff":
			cfg.PredictedCutoff = cutoff
		case "predicted-cutoff-type":
			cfg.CutoffType = mirtarget.CutoffType(cutoffType)
		case "join":
			cfg.JoinStrategy = mirtarget.JoinStrategy(join)
		case "gene-sets":
			cfg.GeneSets = strings.Split(geneSets, ",")
		case "target-matrix":
			cfg.TargetMatrix = targetMatrix
		case "compare":
			cfg.Enrich.Compare = enrich.CompareMode(compare)
		case "top":
			cfg.TopN = topN
		}
	})

	if cfg.Accession == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		log.Fatalln(err)
	}
	defer p.Close()

	if err := p.Run(ctx); err != nil {
		p.Close()
		log.Fatalln(err)
	}

	log.Println("Done")
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"queryforge/internal/config"
	"queryforge/internal/core/batch"
	"queryforge/internal/core/compose"
	"queryforge/internal/core/evidence"
	"queryforge/internal/core/packager"
	"queryforge/internal/core/pdftext"
	"queryforge/internal/core/search"
	"queryforge/internal/logger"
	"queryforge/internal/persona"
	"queryforge/internal/platform/eino"
	"queryforge/internal/spec"
)

type flags struct {
	config        string
	output        string
	packageDir    string
	limit         int
	maxWorkers    int
	skipDownloads bool
	noInverse     bool
	incremental   bool
	splitViews    bool
	emitText      bool
	logLevel      string
	industry      string
	profession    string
	level         string
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:   "queryforge",
		Short: "Build packaged evaluation tasks from a spec catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVar(&f.config, "config", "", "spec catalog (YAML or JSON)")
	root.Flags().StringVar(&f.output, "output", "runs/queries.jsonl", "output JSONL path or directory")
	root.Flags().StringVar(&f.packageDir, "package-dir", "packages", "package root directory")
	root.Flags().IntVar(&f.limit, "limit", 0, "process at most N specs after filtering")
	root.Flags().IntVar(&f.maxWorkers, "max-workers", 0, "concurrent items (default from QUERY_AGENT_MAX_WORKERS)")
	root.Flags().BoolVar(&f.skipDownloads, "skip-downloads", false, "write metadata only, fetch no payloads")
	root.Flags().BoolVar(&f.noInverse, "no-inverse", false, "do not derive inverse twins")
	root.Flags().BoolVar(&f.incremental, "incremental", false, "skip items already packaged or present in prior outputs")
	root.Flags().BoolVar(&f.splitViews, "split-views", false, "additionally write solver_query.json per package")
	root.Flags().BoolVar(&f.emitText, "emit-txt", false, "additionally write task.txt per package")
	root.Flags().StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	root.Flags().StringVar(&f.industry, "industry", "", "only build specs for this industry")
	root.Flags().StringVar(&f.profession, "profession", "", "only build specs for this profession")
	root.Flags().StringVar(&f.level, "level", "", "only build specs at this level")
	root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, f flags) error {
	logger.SetLevel(f.logLevel)
	log := logger.New("main")
	cfg := config.Load()

	catalog, err := spec.Load(f.config)
	if err != nil {
		return fmt.Errorf("load spec catalog: %w", err)
	}

	filter := spec.Filter{Industry: f.industry, Profession: f.profession, Level: f.level, Limit: f.limit}
	selected := filter.Apply(catalog)
	if !f.noInverse {
		selected, err = spec.ExpandInverse(selected)
		if err != nil {
			return fmt.Errorf("expand inverse specs: %w", err)
		}
	}
	if len(selected) == 0 {
		log.LogWarn("no specs selected, nothing to do")
		return nil
	}
	log.LogInfof("selected %d specs from %s", len(selected), f.config)

	chain, err := buildSearchChain(cfg)
	if err != nil {
		return err
	}

	llm, err := eino.NewService(eino.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.DefaultLLMModel,
	})
	if err != nil {
		return fmt.Errorf("initialize llm: %w", err)
	}
	composer := compose.NewService(llm, compose.Options{
		MaxRetries:       cfg.ComposeMaxRetry,
		Timeout:          cfg.RequestTimeout,
		TemplateFallback: cfg.TemplateFallback,
	})

	var cacher batch.Cacher
	if !f.skipDownloads {
		cacheOpts := evidence.CacheOptions{Dir: cfg.CacheDir}
		if cfg.PDFTextEnabled() {
			extractor, err := pdftext.NewClient(cfg.PDFTextAPIKey, cfg.PDFTextSecret, cfg.PDFTextBaseURL)
			if err != nil {
				log.LogWarnf("pdf extraction disabled: %v", err)
			} else {
				cacheOpts.Extractor = extractor
			}
		}
		cache, err := evidence.NewCache(cacheOpts)
		if err != nil {
			return fmt.Errorf("initialize evidence cache: %w", err)
		}
		cacher = cache
	}

	var personas *persona.Registry
	if cfg.PersonaRegistry != "" {
		personas, err = persona.LoadRegistry(cfg.PersonaRegistry)
		if err != nil {
			return fmt.Errorf("load persona registry: %w", err)
		}
		log.LogInfof("loaded %d personas", personas.Len())
	}

	packages := packager.New(packager.Options{
		Dir:               f.packageDir,
		IncludeReferences: true,
		SkipDownloads:     f.skipDownloads,
		SplitViews:        f.splitViews,
		EmitText:          f.emitText,
	})

	outputPath := taggedOutputPath(f.output)
	writer, err := batch.NewJSONLWriter(outputPath)
	if err != nil {
		return fmt.Errorf("prepare output %s: %w", outputPath, err)
	}
	log.LogInfof("writing results to %s", outputPath)

	var priorIDs map[string]bool
	if f.incremental {
		priorIDs, err = batch.LoadPriorIDs(siblingOutputs(f.output))
		if err != nil {
			return fmt.Errorf("scan prior outputs: %w", err)
		}
		log.LogInfof("found %d query ids in prior outputs", len(priorIDs))
	}

	maxWorkers := f.maxWorkers
	if maxWorkers <= 0 {
		maxWorkers = cfg.MaxWorkers
	}

	scheduler := batch.New(chain, evidence.NewSelector(evidence.SelectorOptions{}), cacher, composer, packages, personas, writer, batch.Options{
		MaxWorkers:     maxWorkers,
		RetryBudget:    cfg.ComposeMaxRetry,
		Incremental:    f.incremental,
		PriorIDs:       priorIDs,
		RewriteQueries: cfg.RewriteQueries,
	})

	specs := make([]*spec.TaskSpec, len(selected))
	for i := range selected {
		specs[i] = &selected[i]
	}

	result, err := scheduler.Run(cmd.Context(), specs)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", result.Failed, len(specs))
	}
	return nil
}

// buildSearchChain assembles the provider chain: overrides first, then
// Serper, Google CSE and the DuckDuckGo proxy as fallbacks.
func buildSearchChain(cfg config.Config) (*search.Chain, error) {
	var override *search.Override
	if cfg.OverridesFile != "" {
		loaded, err := search.LoadOverrides(cfg.OverridesFile)
		if err != nil {
			return nil, fmt.Errorf("load search overrides: %w", err)
		}
		override = loaded
	}

	var providers []search.Provider
	if cfg.SerperAPIKey != "" {
		providers = append(providers, search.NewSerper(cfg.SerperAPIKey, cfg.SerperEndpoint, cfg.SearchMarket, cfg.RequestTimeout))
	}
	if cfg.GoogleAPIKey != "" && cfg.SearchEngineID != "" {
		providers = append(providers, search.NewGoogleCSE(cfg.GoogleAPIKey, cfg.SearchEngineID, cfg.RequestTimeout))
	}
	providers = append(providers, search.NewDuckDuckGo(cfg.RequestTimeout))

	return search.NewChain(override, providers...), nil
}

// taggedOutputPath appends a run tag so reruns never clobber earlier output.
func taggedOutputPath(output string) string {
	tag := time.Now().UTC().Format("20060102-150405") + "-" + strings.Split(uuid.NewString(), "-")[0]
	if ext := filepath.Ext(output); ext != "" {
		stem := strings.TrimSuffix(output, ext)
		return fmt.Sprintf("%s_%s%s", stem, tag, ext)
	}
	return filepath.Join(output, tag+".jsonl")
}

// siblingOutputs lists earlier run files next to the requested output.
func siblingOutputs(output string) []string {
	var pattern string
	if ext := filepath.Ext(output); ext != "" {
		pattern = strings.TrimSuffix(output, ext) + "_*" + ext
	} else {
		pattern = filepath.Join(output, "*.jsonl")
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	return matches
}

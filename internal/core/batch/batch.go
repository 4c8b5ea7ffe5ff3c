// Package batch schedules the per-item pipeline (search, evidence selection,
// composition, packaging) across a bounded worker pool.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"queryforge/internal/core/compose"
	"queryforge/internal/core/evidence"
	"queryforge/internal/core/search"
	"queryforge/internal/fault"
	"queryforge/internal/logger"
	"queryforge/internal/persona"
	"queryforge/internal/spec"
	"queryforge/prompts"
)

// Item states.
const (
	StatePending    = "pending"
	StateInProgress = "in_progress"
	StateSucceeded  = "succeeded"
	StateSkipped    = "skipped"
	StateFailed     = "failed"
)

// Searcher runs the provider chain for one spec's queries.
type Searcher interface {
	Run(ctx context.Context, queries []string, language string, numResults int) ([]search.Result, error)
}

// Selector picks the evidence bundle out of search results.
type Selector interface {
	Select(queryID string, results []search.Result) evidence.Bundle
}

// Cacher downloads the bundle payloads and returns cache metadata.
type Cacher interface {
	CacheBundle(ctx context.Context, bundle evidence.Bundle) map[string]any
}

// Composer builds the task payload.
type Composer interface {
	Compose(ctx context.Context, in compose.Input) (*compose.Task, error)
	RewriteQueries(ctx context.Context, sp *spec.TaskSpec) []string
}

// Saver persists a finished task as a package.
type Saver interface {
	Save(ctx context.Context, task *compose.Task) (string, error)
	Exists(industry, level, orientation, queryID string) bool
}

// Options tune a batch run.
type Options struct {
	// MaxWorkers bounds concurrent items. Zero or negative means 1.
	MaxWorkers int
	// RetryBudget is the number of composition attempts per item, consumed
	// only by transient faults. Zero means the default of 3.
	RetryBudget int
	// NumResults is the search result target per item. Zero means 5.
	NumResults int
	// Incremental skips items whose package already exists or whose ID
	// appears in PriorIDs.
	Incremental bool
	// PriorIDs holds query IDs found in earlier output files.
	PriorIDs map[string]bool
	// RewriteQueries runs the LLM search-query rewrite before searching.
	RewriteQueries bool
	// ContextBlocks are shared supplementary documents for every item.
	ContextBlocks []prompts.ContextBlock
}

// ItemResult is the outcome for one spec, in input order.
type ItemResult struct {
	QueryID    string `json:"query_id"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
	PackageDir string `json:"package_dir,omitempty"`
	Provenance string `json:"provenance,omitempty"`
}

// Result summarizes a run.
type Result struct {
	Items     []ItemResult
	Succeeded int
	Skipped   int
	Failed    int
}

// FailureReasons lists "id: reason" lines for every failed item.
func (r *Result) FailureReasons() []string {
	var reasons []string
	for _, item := range r.Items {
		if item.State == StateFailed {
			reasons = append(reasons, fmt.Sprintf("%s: %s", item.QueryID, item.Reason))
		}
	}
	return reasons
}

// Scheduler runs batches.
type Scheduler struct {
	searcher Searcher
	selector Selector
	cacher   Cacher
	composer Composer
	saver    Saver
	personas *persona.Registry
	output   *JSONLWriter
	opts     Options
	log      *logger.Logger

	mu          sync.Mutex
	searchCache map[string][]search.Result
}

// New wires the pipeline components into a scheduler. cacher, personas and
// output may be nil.
func New(searcher Searcher, selector Selector, cacher Cacher, composer Composer, saver Saver, personas *persona.Registry, output *JSONLWriter, opts Options) *Scheduler {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = 3
	}
	if opts.NumResults <= 0 {
		opts.NumResults = 5
	}
	return &Scheduler{
		searcher:    searcher,
		selector:    selector,
		cacher:      cacher,
		composer:    composer,
		saver:       saver,
		personas:    personas,
		output:      output,
		opts:        opts,
		log:         logger.New("Batch"),
		searchCache: make(map[string][]search.Result),
	}
}

// Run processes every spec and returns the per-item outcomes in input order.
// A fatal fault cancels the remaining items; the error is returned alongside
// the partial result.
func (s *Scheduler) Run(ctx context.Context, specs []*spec.TaskSpec) (*Result, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	items := make([]ItemResult, len(specs))
	sem := semaphore.NewWeighted(int64(s.opts.MaxWorkers))
	var wg sync.WaitGroup

	for i, sp := range specs {
		items[i] = ItemResult{QueryID: sp.QueryID, State: StatePending}
		if err := sem.Acquire(runCtx, 1); err != nil {
			items[i].State = StateFailed
			items[i].Reason = fmt.Sprintf("run aborted: %v", context.Cause(runCtx))
			continue
		}
		wg.Add(1)
		go func(i int, sp *spec.TaskSpec) {
			defer wg.Done()
			defer sem.Release(1)
			item, err := s.processItem(runCtx, sp)
			items[i] = item
			if err != nil && fault.Classify(err) == fault.KindFatal {
				cancel(fmt.Errorf("fatal failure on %s: %w", sp.QueryID, err))
			}
		}(i, sp)
	}
	wg.Wait()

	result := &Result{Items: items}
	for _, item := range items {
		switch item.State {
		case StateSucceeded:
			result.Succeeded++
		case StateSkipped:
			result.Skipped++
		case StateFailed:
			result.Failed++
		}
	}
	s.log.LogInfof("batch finished: %d succeeded, %d skipped, %d failed",
		result.Succeeded, result.Skipped, result.Failed)
	for _, reason := range result.FailureReasons() {
		s.log.LogWarnf("failed item %s", reason)
	}
	if cause := context.Cause(runCtx); cause != nil && cause != context.Canceled {
		return result, cause
	}
	return result, nil
}

func (s *Scheduler) processItem(ctx context.Context, sp *spec.TaskSpec) (ItemResult, error) {
	item := ItemResult{QueryID: sp.QueryID, State: StateInProgress}
	level, err := sp.NormalizedLevel()
	if err != nil {
		return failed(item, err)
	}
	orientation, err := sp.NormalizedOrientation()
	if err != nil {
		return failed(item, err)
	}

	if s.opts.Incremental {
		if s.opts.PriorIDs[sp.QueryID] || s.saver.Exists(sp.Industry, level, orientation, sp.QueryID) {
			item.State = StateSkipped
			item.Reason = "package already exists"
			s.log.LogInfof("skipping %s, already packaged", sp.QueryID)
			return item, nil
		}
	}

	s.log.LogInfof("generating %s (level=%s, orientation=%s)", sp.QueryID, level, orientation)

	queries := sp.SearchQueries
	if s.opts.RewriteQueries {
		queries = s.composer.RewriteQueries(ctx, sp)
	}

	results, err := s.searchCached(ctx, queries, sp.Language)
	if err != nil {
		if fault.Classify(err) == fault.KindFatal {
			return failed(item, fmt.Errorf("search: %w", err))
		}
		// No usable evidence is a valid degraded state: the composed task
		// carries primary = none instead of being dropped.
		s.log.LogWarnf("search failed for %s, continuing without evidence: %v", sp.QueryID, err)
		results = nil
	}

	bundle := s.selector.Select(sp.QueryID, results)
	var cacheMeta map[string]any
	if s.cacher != nil {
		cacheMeta = s.cacher.CacheBundle(ctx, bundle)
	}

	in := compose.Input{
		Spec:          sp,
		Context:       s.taskContext(sp),
		ContextBlocks: s.contextBlocks(sp),
		Bundle:        bundle,
		CacheMeta:     cacheMeta,
		Results:       results,
	}

	var task *compose.Task
	var lastErr error
	for attempt := 0; attempt < s.opts.RetryBudget; attempt++ {
		task, lastErr = s.composer.Compose(ctx, in)
		if lastErr == nil {
			break
		}
		if fault.Classify(lastErr) != fault.KindTransient {
			return failed(item, lastErr)
		}
		s.log.LogWarnf("attempt %d/%d failed for %s: %v", attempt+1, s.opts.RetryBudget, sp.QueryID, lastErr)
	}
	if task == nil {
		return failed(item, fmt.Errorf("composition exhausted retries: %w", lastErr))
	}

	dir, err := s.saver.Save(ctx, task)
	if err != nil {
		return failed(item, fmt.Errorf("package: %w", err))
	}

	item.State = StateSucceeded
	item.PackageDir = dir
	item.Provenance = task.Provenance
	if s.output != nil {
		record := struct {
			*compose.Task
			PackageDir string `json:"_package_dir"`
		}{task, dir}
		if err := s.output.Append(record); err != nil {
			s.log.LogErrorf("could not append output record for %s: %v", sp.QueryID, err)
		}
	}
	return item, nil
}

// searchCached shares results between items that issue the same queries.
func (s *Scheduler) searchCached(ctx context.Context, queries []string, language string) ([]search.Result, error) {
	key := strings.Join(queries, "\x1f") + "\x1e" + strings.ToLower(language)
	s.mu.Lock()
	cached, ok := s.searchCache[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	results, err := s.searcher.Run(ctx, queries, language, s.opts.NumResults)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.searchCache[key] = results
	s.mu.Unlock()
	return results, nil
}

func (s *Scheduler) taskContext(sp *spec.TaskSpec) prompts.TaskContext {
	var rec persona.Record
	switch {
	case s.personas != nil && sp.PersonaRef != "":
		if found, ok := s.personas.Get(sp.PersonaRef); ok {
			rec = found
			break
		}
		fallthrough
	case s.personas != nil:
		rec = s.personas.Select(sp.Industry, sp.Profession, focusTags(sp))
	default:
		rec = persona.DefaultProfile(sp.Industry, sp.Profession)
	}
	return compose.ContextFromPersona(rec, sp)
}

func (s *Scheduler) contextBlocks(sp *spec.TaskSpec) []prompts.ContextBlock {
	blocks := append([]prompts.ContextBlock(nil), s.opts.ContextBlocks...)
	for _, doc := range sp.ContextDocs {
		blocks = append(blocks, prompts.ContextBlock{
			Name:    doc.Title,
			Path:    doc.Path,
			Content: doc.Summary,
		})
	}
	return blocks
}

func focusTags(sp *spec.TaskSpec) []string {
	raw, ok := sp.Metadata["focus_tags"].([]any)
	if !ok {
		return nil
	}
	var tags []string
	for _, item := range raw {
		if tag, ok := item.(string); ok && tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func failed(item ItemResult, err error) (ItemResult, error) {
	item.State = StateFailed
	item.Reason = err.Error()
	return item, err
}

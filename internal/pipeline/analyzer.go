// Package pipeline turns a retrieve archive into stored components and
// dependency edges, and drives a job through its lifecycle while doing so.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/archive"
	"github.com/xkilldash9x/metagraph/internal/extractor"
	"github.com/xkilldash9x/metagraph/internal/resolver"
)

// DefaultConcurrency bounds extraction when the analyzer is given none.
const DefaultConcurrency = 4

// ProgressFunc receives the analyzer's progress messages. (*jobs.Run).Progress
// satisfies it.
type ProgressFunc func(ctx context.Context, format string, args ...any) error

// ComponentSet is the result of the first pass: every known artifact of the
// run has a stored component and an entry in the name index. Only
// StoreComponents can build one, so edges cannot be linked before all
// components exist.
type ComponentSet struct {
	jobID   string
	index   *resolver.Index
	sources []storedSource
	stats   schemas.JobStats
}

type storedSource struct {
	id  int64
	src extractor.Source
}

// JobID returns the job the components belong to.
func (s *ComponentSet) JobID() string { return s.jobID }

// Len returns the number of stored components.
func (s *ComponentSet) Len() int { return len(s.sources) }

// Stats returns the first-pass counters.
func (s *ComponentSet) Stats() schemas.JobStats { return s.stats }

// Analyzer runs the two passes over an archive.
type Analyzer struct {
	store       schemas.ComponentStore
	registry    *extractor.Registry
	apiVersion  string
	concurrency int
	log         *zap.Logger
}

// AnalyzerConfig holds the analyzer's tunables.
type AnalyzerConfig struct {
	APIVersion  string
	Concurrency int
}

// NewAnalyzer creates an analyzer writing to store. A nil registry uses the
// built-in extractors.
func NewAnalyzer(store schemas.ComponentStore, registry *extractor.Registry, cfg AnalyzerConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = extractor.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Analyzer{
		store:       store,
		registry:    registry,
		apiVersion:  cfg.APIVersion,
		concurrency: cfg.Concurrency,
		log:         logger.Named("analyzer"),
	}
}

// StoreComponents is the first pass. It creates one component per entry of a
// known family, in archive order, and indexes it by canonical name. Unknown
// entries are counted and skipped. Components written before a failure stay
// in the store.
func (a *Analyzer) StoreComponents(ctx context.Context, jobID string, scope schemas.Scope, arc *archive.Archive) (*ComponentSet, error) {
	set := &ComponentSet{jobID: jobID, index: resolver.NewIndex()}

	for entry, err := range arc.Entries() {
		if err != nil {
			return set, err
		}
		set.stats.TotalFiles++
		if !entry.Known() {
			set.stats.SkippedFiles++
			continue
		}

		src := extractor.Source{
			Path:    entry.Path,
			Name:    entry.Name(),
			Family:  entry.Family,
			Content: entry.Text(),
		}
		id, err := a.store.CreateComponent(ctx, schemas.ComponentInput{
			Family:     entry.Family,
			Name:       src.Name,
			Label:      entry.Label(),
			Path:       entry.Path,
			Content:    src.Content,
			APIVersion: a.apiVersion,
			Notes:      "Extracted from " + entry.Path,
			JobID:      jobID,
			Scope:      scope,
		})
		if err != nil {
			return set, err
		}
		set.index.Add(id, entry.Family, src.Name)
		set.sources = append(set.sources, storedSource{id: id, src: src})
		set.stats.ComponentsStored++
	}
	return set, nil
}

type extraction struct {
	edges []schemas.RawEdge
	err   error
}

// LinkComponents is the second pass. Extraction fans out over a bounded
// group; resolution and edge writes then happen on the calling goroutine in
// archive order. A parse failure drops only that artifact's edges.
func (a *Analyzer) LinkComponents(ctx context.Context, set *ComponentSet) (schemas.JobStats, error) {
	stats := set.stats
	results := make([]extraction, len(set.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range set.sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			edges, err := a.registry.Extract(set.sources[i].src)
			results[i] = extraction{edges: edges, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("extraction interrupted: %w", err)
	}

	res := resolver.New(set.index)
	for i, r := range results {
		from := set.sources[i]
		if r.err != nil {
			stats.ParseFailures++
			a.log.Warn("Failed to parse artifact",
				zap.String("job_id", set.jobID),
				zap.String("path", from.src.Path),
				zap.String("family", string(from.src.Family)),
				zap.Error(r.err),
			)
			continue
		}
		for _, edge := range r.edges {
			to, ok := res.Resolve(from.id, edge)
			if !ok {
				stats.UnresolvedReferences++
				a.log.Debug("Unresolved reference",
					zap.String("path", from.src.Path),
					zap.String("target", edge.ToName),
					zap.String("kind", string(edge.Kind)),
				)
				continue
			}
			id, err := a.store.CreateEdge(ctx, set.jobID, from.id, to, edge.Kind, edge.Description)
			if err != nil {
				return stats, err
			}
			if id != 0 {
				stats.DependenciesStored++
			}
		}
	}
	return stats, nil
}

// Analyze runs both passes over raw archive bytes.
func (a *Analyzer) Analyze(ctx context.Context, jobID string, scope schemas.Scope, data []byte, progress ProgressFunc) (schemas.JobStats, error) {
	if progress == nil {
		progress = func(context.Context, string, ...any) error { return nil }
	}
	arc, err := archive.Open(data)
	if err != nil {
		return schemas.JobStats{}, err
	}

	set, err := a.StoreComponents(ctx, jobID, scope, arc)
	if err != nil {
		return set.Stats(), err
	}
	if err := progress(ctx, "Found %d files in archive", set.stats.TotalFiles); err != nil {
		return set.Stats(), err
	}
	if err := progress(ctx, "Stored %d components", set.Len()); err != nil {
		return set.Stats(), err
	}

	stats, err := a.LinkComponents(ctx, set)
	if err != nil {
		return stats, err
	}
	if err := progress(ctx, "Created %d dependencies", stats.DependenciesStored); err != nil {
		return stats, err
	}
	return stats, nil
}

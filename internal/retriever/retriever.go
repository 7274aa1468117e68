// Package retriever selects a weighted, budgeted set of chunks per source document.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/chunkstore"
	"exampaper-rag/internal/embedding"
	"exampaper-rag/internal/logger"
	"exampaper-rag/internal/models"
)

// Result is the retrieval outcome of one request
type Result struct {
	// Chunks maps document id to its ranked chunks
	Chunks      map[string][]models.ScoredChunk
	Allocations []Allocation
	Total       int
}

// Retriever runs the weighted retrieval over a chunk store
type Retriever struct {
	searcher        chunkstore.Searcher
	embedder        embedding.Embedder
	minContentRatio float64
	log             *logger.Logger
}

// New creates a Retriever. minContentRatio is the fraction of the budget that
// must be retrieved for the result to count as sufficient.
func New(searcher chunkstore.Searcher, embedder embedding.Embedder, minContentRatio float64, log *logger.Logger) *Retriever {
	if log == nil {
		log = logger.NewNop()
	}
	return &Retriever{
		searcher:        searcher,
		embedder:        embedder,
		minContentRatio: minContentRatio,
		log:             log.With("component", "retriever"),
	}
}

type sourceRun struct {
	weighting models.SourceWeighting
	alloc     int
	vector    []float64
	hits      []models.ScoredChunk
}

// Retrieve returns up to budget chunks split across weightings
func (r *Retriever) Retrieve(ctx context.Context, query string, weightings []models.SourceWeighting, budget int) (*Result, error) {
	allocs, err := Allocate(weightings, budget)
	if err != nil {
		return nil, err
	}

	var runs []*sourceRun
	for i, a := range allocs {
		if a.Count == 0 {
			r.log.Debug("skipping source with zero allocation", "document_id", a.DocumentID)
			continue
		}
		runs = append(runs, &sourceRun{weighting: weightings[i], alloc: a.Count})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		g.Go(func() error {
			q := QueryText(run.weighting, query)
			vec, err := r.embedder.EmbedText(gctx, q)
			if err != nil {
				return apperr.New(apperr.UpstreamUnavailable, fmt.Errorf("failed to embed query for %s: %w", run.weighting.DocumentID, err))
			}
			run.vector = vec
			hits, err := r.searcher.Search(gctx, vec, []string{run.weighting.DocumentID}, run.alloc)
			if err != nil {
				return err
			}
			run.hits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := r.redistribute(ctx, runs); err != nil {
		return nil, err
	}

	res := &Result{
		Chunks:      make(map[string][]models.ScoredChunk, len(runs)),
		Allocations: allocs,
	}
	for _, run := range runs {
		res.Chunks[run.weighting.DocumentID] = append(res.Chunks[run.weighting.DocumentID], run.hits...)
		res.Total += len(run.hits)
	}

	need := MinimumContent(budget, r.minContentRatio)
	if res.Total < need {
		return nil, apperr.Errorf(apperr.InsufficientContent, "retrieved %d chunks, need at least %d of %d", res.Total, need, budget)
	}
	r.log.Info("retrieval complete", "sources", len(runs), "retrieved", res.Total, "budget", budget)
	return res, nil
}

// redistribute hands each sparse source's shortfall to the other sources in
// descending weight order, skipping any that came up short themselves. A
// recipient that cannot cover the rest is marked exhausted and the remainder
// moves on to the next one. Each sparse source gives its shortfall away once.
func (r *Retriever) redistribute(ctx context.Context, runs []*sourceRun) error {
	exhausted := make(map[*sourceRun]bool)
	for _, run := range runs {
		if len(run.hits) < run.alloc {
			exhausted[run] = true
		}
	}

	byWeight := make([]*sourceRun, len(runs))
	copy(byWeight, runs)
	sort.SliceStable(byWeight, func(i, j int) bool {
		return byWeight[i].weighting.Weight > byWeight[j].weighting.Weight
	})

	for _, sparse := range runs {
		short := sparse.alloc - len(sparse.hits)
		if short <= 0 {
			continue
		}
		for _, to := range byWeight {
			if short == 0 {
				break
			}
			if to == sparse || exhausted[to] {
				continue
			}
			added, err := r.topUp(ctx, to, short)
			if err != nil {
				return err
			}
			if added > 0 {
				r.log.Info("redistributing shortfall",
					"from", sparse.weighting.DocumentID, "to", to.weighting.DocumentID, "moved", added)
			}
			if added < short {
				exhausted[to] = true
			}
			short -= added
		}
		if short > 0 {
			r.log.Warn("no source can absorb shortfall", "document_id", sparse.weighting.DocumentID, "shortfall", short)
		}
	}
	return nil
}

// topUp fetches up to n chunks for run beyond those it already holds and
// returns how many were added.
func (r *Retriever) topUp(ctx context.Context, run *sourceRun, n int) (int, error) {
	want := len(run.hits) + n
	hits, err := r.searcher.Search(ctx, run.vector, []string{run.weighting.DocumentID}, want)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(run.hits))
	for _, h := range run.hits {
		seen[h.Chunk.ID] = struct{}{}
	}
	added := 0
	for _, h := range hits {
		if added == n {
			break
		}
		if _, ok := seen[h.Chunk.ID]; ok {
			continue
		}
		seen[h.Chunk.ID] = struct{}{}
		run.hits = append(run.hits, h)
		added++
	}
	run.alloc += added
	return added, nil
}

// QueryText builds the search text for one source: its focus topics followed
// by the global query, or the global query alone.
func QueryText(w models.SourceWeighting, query string) string {
	var topics []string
	for _, t := range w.FocusTopics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return strings.TrimSpace(query)
	}
	return strings.TrimSpace(strings.Join(topics, ", ") + " " + query)
}

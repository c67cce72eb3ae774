package usecase

import (
	"context"
	"fmt"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/ports"
)

// Retriever executes any of the retrieval strategies against the shared
// embedder, vector store and reranker.
type Retriever struct {
	embedder ports.Embedder
	store    ports.VectorStore
	reranker ports.Reranker
}

func NewRetriever(embedder ports.Embedder, store ports.VectorStore, reranker ports.Reranker) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		reranker: reranker,
	}
}

// DefaultStrategies builds the candidate set evaluated against each other:
// dense-only, lexical-only, and hybrid with cross-encoder reranking. Order
// matters: it is the final tie-break during selection.
func DefaultStrategies(topK, candidates int, rerankModel string) []domain.RetrievalStrategy {
	if topK <= 0 {
		topK = 5
	}
	if candidates < topK {
		candidates = topK * 6
	}
	return []domain.RetrievalStrategy{
		{ID: fmt.Sprintf("dense_k%d", topK), Kind: domain.StrategyDense, TopK: topK},
		{ID: fmt.Sprintf("lexical_k%d", topK), Kind: domain.StrategyLexical, TopK: topK},
		{
			ID:          fmt.Sprintf("hybrid_rerank_k%d", topK),
			Kind:        domain.StrategyHybrid,
			TopK:        topK,
			Candidates:  candidates,
			RerankModel: rerankModel,
		},
	}
}

func (r *Retriever) Retrieve(ctx context.Context, strategy domain.RetrievalStrategy, question string) ([]domain.ScoredChunk, error) {
	switch strategy.Kind {
	case domain.StrategyDense:
		return r.dense(ctx, question, strategy.TopK)
	case domain.StrategyLexical:
		return r.lexical(ctx, question, strategy.TopK)
	case domain.StrategyHybrid:
		return r.hybrid(ctx, strategy, question)
	default:
		return nil, fmt.Errorf("unknown strategy kind: %q", strategy.Kind)
	}
}

func (r *Retriever) dense(ctx context.Context, question string, k int) ([]domain.ScoredChunk, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := r.store.SearchDense(ctx, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	return chunks, nil
}

func (r *Retriever) lexical(ctx context.Context, question string, k int) ([]domain.ScoredChunk, error) {
	chunks, err := r.store.SearchLexical(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return chunks, nil
}

// hybrid unions dense and lexical candidate pools, deduplicates by chunk ID
// keeping the higher score, reranks the pool with the cross-encoder and cuts
// to top-k. The reranker's scores are authoritative.
func (r *Retriever) hybrid(ctx context.Context, strategy domain.RetrievalStrategy, question string) ([]domain.ScoredChunk, error) {
	poolSize := strategy.Candidates
	if poolSize < strategy.TopK {
		poolSize = strategy.TopK
	}

	dense, err := r.dense(ctx, question, poolSize)
	if err != nil {
		return nil, err
	}
	lexical, err := r.lexical(ctx, question, poolSize)
	if err != nil {
		return nil, err
	}

	pool := mergeCandidates(dense, lexical)
	if len(pool) == 0 {
		return nil, nil
	}

	ranked, err := r.reranker.Rerank(ctx, question, pool)
	if err != nil {
		return nil, fmt.Errorf("rerank candidates: %w", err)
	}
	if len(ranked) > strategy.TopK {
		ranked = ranked[:strategy.TopK]
	}
	return ranked, nil
}

// mergeCandidates deduplicates by chunk ID, keeping the best score seen.
// Dense order wins for chunks both searches found: first occurrence keeps
// its slot, so the merge is deterministic for identical inputs.
func mergeCandidates(lists ...[]domain.ScoredChunk) []domain.ScoredChunk {
	seen := make(map[string]int)
	var merged []domain.ScoredChunk
	for _, list := range lists {
		for _, sc := range list {
			if idx, ok := seen[sc.Chunk.ID]; ok {
				if sc.Score > merged[idx].Score {
					merged[idx].Score = sc.Score
				}
				continue
			}
			seen[sc.Chunk.ID] = len(merged)
			merged = append(merged, sc)
		}
	}
	return merged
}

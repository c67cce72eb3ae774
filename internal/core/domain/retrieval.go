package domain

// StrategyKind identifies how candidates are produced for a query.
type StrategyKind string

const (
	StrategyDense   StrategyKind = "dense"
	StrategyLexical StrategyKind = "lexical"
	StrategyHybrid  StrategyKind = "hybrid"
)

// RetrievalStrategy is a named retrieval configuration. Immutable once
// constructed; exactly one strategy is active after selection.
type RetrievalStrategy struct {
	ID          string       `json:"id"`
	Kind        StrategyKind `json:"kind"`
	TopK        int          `json:"top_k"`
	Candidates  int          `json:"candidates,omitempty"`
	RerankModel string       `json:"rerank_model,omitempty"`
}

// ScoredChunk pairs a retrieved chunk with its relevance score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Answer is a synthesized response with the evidence that produced it.
// CitedChunkIDs maps the answer back to evidence chunks; when the model
// emits no per-segment markers it covers the whole answer.
type Answer struct {
	Text          string        `json:"text"`
	Sources       []ScoredChunk `json:"sources"`
	CitedChunkIDs []string      `json:"cited_chunk_ids,omitempty"`
}

// QueryResult is the per-request record of an answered question. It is not
// persisted beyond the response except as a trace to the tracking service.
type QueryResult struct {
	Question string `json:"question"`
	Answer   Answer `json:"answer"`
	Strategy string `json:"strategy"`
}

// InsufficientContextAnswer is returned verbatim when retrieval yields no
// evidence. The language model is not called on this path.
const InsufficientContextAnswer = "I don't have enough information in the indexed texts to answer that."

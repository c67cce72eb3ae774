package domain

// MetricName is one of the ranked-retrieval quality metrics computed at top-k.
type MetricName string

const (
	MetricHitRate   MetricName = "hit_rate"
	MetricMRR       MetricName = "mrr"
	MetricPrecision MetricName = "precision"
	MetricRecall    MetricName = "recall"
	MetricAP        MetricName = "ap"
	MetricNDCG      MetricName = "ndcg"
)

// MetricNames lists all retrieval metrics in report order.
var MetricNames = []MetricName{
	MetricHitRate, MetricMRR, MetricPrecision, MetricRecall, MetricAP, MetricNDCG,
}

// QAPair is one synthetic question with its reference answer, generated
// by the language model from a single chunk.
type QAPair struct {
	Question        string `json:"question"`
	ReferenceAnswer string `json:"reference_answer"`
}

// DatasetItem is one entry of a response-evaluation dataset held by the
// tracking service.
type DatasetItem struct {
	Question        string   `json:"question"`
	ReferenceAnswer string   `json:"reference_answer"`
	Contexts        []string `json:"contexts,omitempty"`
}

// EvalExample is one synthetic question with the chunks that should be
// retrieved for it.
type EvalExample struct {
	Question         string   `json:"question"`
	RelevantChunkIDs []string `json:"relevant_chunk_ids"`
}

// StrategyReport aggregates one strategy over a full evaluation dataset.
// Failed is set when the strategy errored on any question; such strategies
// are excluded from selection, not scored as zero.
type StrategyReport struct {
	StrategyID string                 `json:"strategy_id"`
	Questions  int                    `json:"questions"`
	Metrics    map[MetricName]float64 `json:"metrics,omitempty"`
	Failed     bool                   `json:"failed,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// RetrievalEvalResult is the outcome of one evaluate-retrieval run.
type RetrievalEvalResult struct {
	BestStrategyID string           `json:"best_strategy_id"`
	Reports        []StrategyReport `json:"reports"`
}

// ResponseEvalResult aggregates LLM-judged answer quality over a dataset.
type ResponseEvalResult struct {
	Dataset   string             `json:"dataset"`
	Questions int                `json:"questions"`
	Metrics   map[string]float64 `json:"metrics"`
}

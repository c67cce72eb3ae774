package openai

import (
	"fmt"
	"strings"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

const answerSystemPrompt = `You answer questions about classic literature using only the numbered excerpts provided.
Cite excerpts inline with bracketed numbers, for example [1] or [2][3].
If the excerpts do not contain the answer, say so plainly instead of guessing.`

const qaSystemPrompt = `You write evaluation questions for a literature question-answering system.
Return a strict JSON object: {"pairs": [{"question": "...", "reference_answer": "..."}]}.
No markdown, no extra keys.`

const judgeSystemPrompt = `You grade one answer produced by a question-answering system.
Return a strict JSON object: {"score": <number from 0 to 1>}.
No markdown, no extra keys.`

func buildAnswerPrompt(question string, evidence []domain.ScoredChunk) string {
	var contextBuilder strings.Builder
	for idx, sc := range evidence {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] title=%s source=%s score=%.3f\n%s\n\n",
			idx+1,
			sc.Chunk.Title,
			sc.Chunk.Source,
			sc.Score,
			sc.Chunk.Text,
		))
	}

	return fmt.Sprintf(`Answer the question using only the excerpts below.

Question:
%s

Excerpts:
%s`, question, contextBuilder.String())
}

func buildQAPrompt(chunkText string, n int) string {
	const maxSnippet = 4000
	snippet := chunkText
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return fmt.Sprintf(`Write %d question/answer pairs that can be answered from the passage alone.
Each question must be self-contained and each reference answer must be short and factual.

Passage:
%s`, n, snippet)
}

// Judge metric names follow the response-evaluation report keys.
const (
	JudgeAnswerRelevance  = "answer_relevance"
	JudgeFaithfulness     = "faithfulness"
	JudgeContextPrecision = "context_precision"
	JudgeContextRecall    = "context_recall"
)

// JudgeMetrics lists the response-quality metrics in report order.
var JudgeMetrics = []string{
	JudgeAnswerRelevance,
	JudgeFaithfulness,
	JudgeContextPrecision,
	JudgeContextRecall,
}

func buildJudgePrompt(metric, question, answer string, contexts []string, reference string) (string, error) {
	var criterion string
	switch metric {
	case JudgeAnswerRelevance:
		criterion = "Score how directly the answer addresses the question. Ignore factual accuracy."
	case JudgeFaithfulness:
		criterion = "Score how well every claim in the answer is supported by the context passages. Unsupported claims lower the score."
	case JudgeContextPrecision:
		criterion = "Score what fraction of the context passages are actually relevant to answering the question."
	case JudgeContextRecall:
		criterion = "Score how much of the reference answer is covered by the context passages."
	default:
		return "", fmt.Errorf("unknown judge metric: %q", metric)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nQuestion:\n%s\n\nAnswer:\n%s\n", criterion, question, answer)
	if len(contexts) > 0 {
		b.WriteString("\nContext passages:\n")
		for i, c := range contexts {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
		}
	}
	if reference != "" {
		fmt.Fprintf(&b, "\nReference answer:\n%s\n", reference)
	}
	return b.String(), nil
}

package domain

import "time"

// SessionState is the durable snapshot of a completed strategy selection:
// the active strategy plus everything needed to resume query serving
// without re-ingesting. One instance per deployment, replaced whole on
// every re-evaluation.
type SessionState struct {
	Strategy   RetrievalStrategy `json:"strategy"`
	Collection string            `json:"collection"`
	EmbedModel string            `json:"embed_model"`
	ChunkCount int               `json:"chunk_count"`
	Revision   int               `json:"revision"`
	SelectedAt time.Time         `json:"selected_at"`
}

package domain

// Chunk is a bounded, possibly overlapping slice of one document's normalized
// text. Chunks are ephemeral: produced by the chunker and consumed immediately
// by ingestion. Index values for one filename are dense and zero-based over
// the kept (non-empty) windows.
type Chunk struct {
	Text     string
	Index    int
	Filename string
}

// UploadedChunk describes one chunk whose storage batch was committed. On
// partial ingestion failure the set of UploadedChunks is a strict subset of
// the submitted chunks.
type UploadedChunk struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	FileID     string `json:"file_id"`
}

// ChunkInfo is one chunk of a grouped file listing.
type ChunkInfo struct {
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// FileGroup is the per-file view derived from the flat store: all chunks
// sharing one file_id, ordered ascending by chunk index. It is rebuilt on
// every read, never persisted.
type FileGroup struct {
	FileID   string      `json:"file_id"`
	Filename string      `json:"filename"`
	Chunks   []ChunkInfo `json:"chunks"`
}

// ContextSnippet is one retrieved passage backing a generated answer,
// ordered by descending similarity score. Its position in the result set
// (0..k-1) is the citation rank, which is distinct from ChunkIndex.
type ContextSnippet struct {
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunk_index"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is a generated reply together with the retrieved context that
// grounds it.
type Answer struct {
	Text    string           `json:"text"`
	Context []ContextSnippet `json:"context"`
}

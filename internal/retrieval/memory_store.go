package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// EmbeddingClient is the embeddings slice of the OpenAI client.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

const chunkSize = 1000

// MemoryStore keeps document embeddings in memory and retrieves by cosine
// similarity. Re-indexing a document ID replaces its previous chunks, so a
// synced document never contributes stale snippets.
type MemoryStore struct {
	client EmbeddingClient
	model  string
	logger *logging.Logger

	mu        sync.RWMutex
	documents map[string][]storedChunk // keyed by document ID
}

type storedChunk struct {
	content   string
	embedding []float32
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(client EmbeddingClient, model string, logger *logging.Logger) *MemoryStore {
	if client == nil {
		panic("retrieval: embedding client cannot be nil")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryStore{
		client:    client,
		model:     model,
		logger:    logger,
		documents: make(map[string][]storedChunk),
	}
}

// IndexDocument chunks, embeds, and stores the document text, replacing any
// prior chunks for the same ID. Empty text removes the document.
func (s *MemoryStore) IndexDocument(ctx context.Context, documentID, text string) error {
	chunks := splitText(text, chunkSize)
	if len(chunks) == 0 {
		s.mu.Lock()
		delete(s.documents, documentID)
		s.mu.Unlock()
		s.logger.Info("document removed from index", "document_id", documentID)
		return nil
	}

	resp, err := s.client.CreateEmbeddings(ctx, &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: chunks,
	})
	if err != nil {
		return fmt.Errorf("retrieval: embed document %s: %w", documentID, err)
	}
	if len(resp.Data) != len(chunks) {
		return fmt.Errorf("retrieval: embedding response size mismatch for %s: got %d, want %d", documentID, len(resp.Data), len(chunks))
	}

	stored := make([]storedChunk, len(chunks))
	for i, item := range resp.Data {
		stored[i] = storedChunk{content: chunks[i], embedding: item.Embedding}
	}

	s.mu.Lock()
	s.documents[documentID] = stored
	s.mu.Unlock()
	s.logger.Info("document indexed", "document_id", documentID, "chunks", len(stored))
	return nil
}

// Retrieve returns the k most similar chunks across all documents.
func (s *MemoryStore) Retrieve(ctx context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = 3
	}
	resp, err := s.client.CreateEmbeddings(ctx, &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: []string{query},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	queryVec := resp.Data[0].Embedding

	type scored struct {
		score   float64
		snippet Snippet
	}
	s.mu.RLock()
	var results []scored
	for docID, chunks := range s.documents {
		for _, c := range chunks {
			results = append(results, scored{
				score:   cosineSimilarity(queryVec, c.embedding),
				snippet: Snippet{Content: c.content, Source: docID},
			})
		}
	}
	s.mu.RUnlock()

	if len(results) == 0 {
		return nil, nil
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > k {
		results = results[:k]
	}
	out := make([]Snippet, len(results))
	for i, r := range results {
		out[i] = r.snippet
	}
	return out, nil
}

// splitText breaks text into chunks of at most max characters, preferring
// paragraph then line boundaries. Whitespace-only text yields nothing.
func splitText(text string, max int) []string {
	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > max {
			flush()
		}
		if len(para) > max {
			flush()
			for _, line := range strings.Split(para, "\n") {
				if current.Len() > 0 && current.Len()+len(line)+1 > max {
					flush()
				}
				if current.Len() > 0 {
					current.WriteByte('\n')
				}
				current.WriteString(line)
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

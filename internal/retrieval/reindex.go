package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// reindexJob carries only the document ID. Workers fetch everything else
// fresh, so a queued job never holds a stale snapshot of the document.
type reindexJob struct {
	DocumentID string
}

// DocumentSource fetches the current text of an external document.
type DocumentSource interface {
	FetchText(ctx context.Context, documentID string) (string, error)
}

// Reindexer runs document re-indexing on a small worker pool. Enqueueing is
// fire-and-forget: a full queue drops the job with a log line rather than
// blocking the webhook that triggered it.
type Reindexer struct {
	source  DocumentSource
	indexer Indexer
	logger  *logging.Logger

	queue chan reindexJob
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewReindexer builds the pool with the given worker count (minimum 1) and
// starts it.
func NewReindexer(source DocumentSource, indexer Indexer, workers int, logger *logging.Logger) *Reindexer {
	if source == nil {
		panic("retrieval: document source is required")
	}
	if indexer == nil {
		panic("retrieval: indexer is required")
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Reindexer{
		source:  source,
		indexer: indexer,
		logger:  logger,
		queue:   make(chan reindexJob, workers*8),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue schedules a document for re-indexing. Returns an error when the
// queue is full or the pool is shut down; the caller logs and moves on.
func (r *Reindexer) Enqueue(documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return fmt.Errorf("retrieval: reindexer is shut down")
	}
	select {
	case r.queue <- reindexJob{DocumentID: documentID}:
		return nil
	default:
		r.logger.Warn("reindex queue full; dropping job", "document_id", documentID)
		return fmt.Errorf("retrieval: reindex queue full")
	}
}

// Shutdown stops accepting jobs and waits for in-flight work to finish.
func (r *Reindexer) Shutdown() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reindexer) worker() {
	defer r.wg.Done()
	for job := range r.queue {
		r.process(job)
	}
}

func (r *Reindexer) process(job reindexJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	text, err := r.source.FetchText(ctx, job.DocumentID)
	if errors.Is(err, ErrUnsupportedDocument) {
		r.logger.Info("reindex skipped", "document_id", job.DocumentID, "reason", err)
		return
	}
	if err != nil {
		r.logger.Error("failed to fetch document for reindex", "document_id", job.DocumentID, "error", err)
		return
	}
	if err := r.indexer.IndexDocument(ctx, job.DocumentID, text); err != nil {
		r.logger.Error("failed to reindex document", "document_id", job.DocumentID, "error", err)
		return
	}
	r.logger.Info("document reindexed", "document_id", job.DocumentID)
}

package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// Reindexer rebuilds the search index from the library tables.
type Reindexer interface {
	Reindex(ctx context.Context) error
}

// SystemRecorder writes the outcome of maintenance work to the audit log.
type SystemRecorder interface {
	LogSystem(action string, affected int64, err error)
}

// ReindexLibraryTask rebuilds the books, series and authors indexes.
type ReindexLibraryTask struct{}

func (t ReindexLibraryTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "reindex_library",
		MaxAttempts: 2,
		Backoff:     time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
		},
	}
}

// ReindexLibraryProcessor creates a processor function for ReindexLibraryTask.
func ReindexLibraryProcessor(indexer Reindexer, recorder SystemRecorder) backlite.QueueProcessor[ReindexLibraryTask] {
	return func(ctx context.Context, _ ReindexLibraryTask) error {
		start := time.Now()
		err := indexer.Reindex(ctx)
		if recorder != nil {
			recorder.LogSystem("reindex_library", 0, err)
		}
		if err != nil {
			return fmt.Errorf("reindex library: %w", err)
		}
		log.Printf("[TASK] Rebuilt search index in %s", time.Since(start).Round(time.Millisecond))
		return nil
	}
}

func NewReindexLibraryQueue(indexer Reindexer, recorder SystemRecorder) backlite.Queue {
	return backlite.NewQueue(ReindexLibraryProcessor(indexer, recorder))
}

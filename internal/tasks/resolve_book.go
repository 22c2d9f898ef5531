package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/shelfmark/shelfmark/internal/canonical"
)

// ResolveBookTask retries canonical resolution for one provisional record.
// Enqueued when an import degrades to a fallback identity and by the
// scheduled sweep over unverified records.
type ResolveBookTask struct {
	CanonicalID uint `json:"canonical_id"`
}

// Config returns the queue configuration for canonical resolution tasks.
func (t ResolveBookTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "resolve_book",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ResolveBookProcessor creates a processor function for ResolveBookTask.
func ResolveBookProcessor(resolver *canonical.Resolver) backlite.QueueProcessor[ResolveBookTask] {
	return func(ctx context.Context, task ResolveBookTask) error {
		if resolver == nil {
			return fmt.Errorf("canonical resolver not configured")
		}

		upgraded, err := resolver.Reconcile(ctx, task.CanonicalID)
		if err != nil {
			return fmt.Errorf("reconcile canonical %d: %w", task.CanonicalID, err)
		}

		if upgraded {
			log.Printf("[TASK] Canonical %d upgraded to a verified provider match", task.CanonicalID)
		} else {
			log.Printf("[TASK] Canonical %d left as-is (no confident match yet)", task.CanonicalID)
		}

		return nil
	}
}

// NewResolveBookQueue creates a backlite queue for canonical resolution tasks.
func NewResolveBookQueue(resolver *canonical.Resolver) backlite.Queue {
	return backlite.NewQueue(ResolveBookProcessor(resolver))
}

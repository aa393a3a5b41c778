// Package videostore persists Video records: the single source of truth
// the Pipeline Orchestrator, Access Gate, and HLS Server all read from.
// Components never share in-memory state for a video.
package videostore

import (
	"context"
	"errors"
	"time"

	"github.com/vaultstream/vaultstream/internal/model"
)

// Standard errors returned by the videostore layer.
var (
	ErrNotFound = errors.New("video not found")
	ErrConflict = errors.New("video conflict")
)

// Store is implemented by both the in-memory and PostgreSQL backends.
type Store interface {
	Create(ctx context.Context, v model.Video) error
	Get(ctx context.Context, id string) (*model.Video, error)

	// UpdateStatus performs an optimistic-concurrency compare-and-swap: it
	// only applies when the stored status still equals expected, enforcing
	// monotone status transitions without an external lock.
	UpdateStatus(ctx context.Context, id string, expected, next model.Status, mutate func(*model.Video)) error

	// ListByStatus supports the crash-recovery requeue scan on startup and
	// cursor-based pagination for future listing needs.
	ListByStatus(ctx context.Context, status model.Status, limit int, cursor string) (videos []model.Video, nextCursor string, err error)

	Delete(ctx context.Context, id string) error
}

// idempotent helper shared by both backends for views increments etc. is
// intentionally absent: view counting is out of scope (playlist/channel
// metadata CRUD).

// nowUTC is a small seam kept for test readability.
func nowUTC() time.Time { return time.Now().UTC() }

package outbox

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/buildrite/siteops/libs/db"
)

// Recorder stages a domain event in its own short transaction after the
// entity write has committed. Failures are logged, never propagated: events
// feed downstream consumers, not the request path.
type Recorder struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
}

func NewRecorder(pool *db.Pool, repo *Repository, logger *slog.Logger) *Recorder {
	return &Recorder{pool: pool, repo: repo, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("event payload marshal failed", "event_type", eventType, "err", err)
		return
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("event record begin failed", "event_type", eventType, "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.repo.Insert(ctx, tx, Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}); err != nil {
		r.logger.Error("event record insert failed", "event_type", eventType, "err", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("event record commit failed", "event_type", eventType, "err", err)
	}
}

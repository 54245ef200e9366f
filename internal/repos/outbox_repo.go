package repos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

const EventOrderCreated = "order.created"

// OutboxEvent is a fact recorded in the same transaction as the change it describes.
type OutboxEvent struct {
	ID          string    `db:"id"`
	Type        string    `db:"event_type"`
	AggregateID string    `db:"aggregate_id"`
	Payload     string    `db:"payload"`
	Attempts    int       `db:"attempts"`
	LastError   string    `db:"last_error"`
	CreatedAt   time.Time `db:"created_at"`
}

type OutboxRepo struct{ db *sqlx.DB }

func NewOutboxRepo(db *sqlx.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// Pending returns unpublished events, least-tried first and then oldest, so
// events that keep failing cannot crowd new ones out of the batch.
func (r *OutboxRepo) Pending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []OutboxEvent
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT id, event_type, aggregate_id, payload, attempts, last_error, created_at
		FROM outbox_events WHERE published_at IS NULL
		ORDER BY attempts, created_at, id LIMIT ?`), limit)
	return out, err
}

// Delivered lists the consumers that have already processed eventID.
func (r *OutboxRepo) Delivered(ctx context.Context, eventID string) (map[string]bool, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names, r.db.Rebind(`SELECT consumer FROM outbox_deliveries WHERE event_id = ?`), eventID); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (r *OutboxRepo) MarkDelivered(ctx context.Context, eventID, consumer string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO outbox_deliveries(event_id, consumer, delivered_at) VALUES(?, ?, ?)
		ON CONFLICT(event_id, consumer) DO NOTHING`), eventID, consumer, time.Now().UTC())
	return err
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, eventID string, cause error) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`), cause.Error(), eventID)
	return err
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE outbox_events SET published_at = ? WHERE id = ? AND published_at IS NULL`), time.Now().UTC(), eventID)
	return err
}

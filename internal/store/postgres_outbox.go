package store

import (
	"context"
	"time"
)

const claimOutboxSQL = `
	UPDATE event_outbox AS o
	SET status = 'processing',
		processing_started_at = NOW(),
		attempts = o.attempts + 1
	WHERE o.id IN (
		SELECT id FROM event_outbox
		WHERE (status = 'pending' AND next_attempt_at <= NOW())
			OR (status = 'processing' AND processing_started_at < $2)
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING o.id, o.exchange, o.routing_key, o.payload, o.attempts`

// A NULL retry_at settles the row as published; otherwise it goes back to
// pending until retry_at.
const settleOutboxSQL = `
	UPDATE event_outbox AS o
	SET status = CASE WHEN r.retry_at IS NULL THEN 'published' ELSE 'pending' END,
		published_at = CASE WHEN r.retry_at IS NULL THEN NOW() ELSE o.published_at END,
		next_attempt_at = COALESCE(r.retry_at, o.next_attempt_at),
		processing_started_at = NULL,
		last_error = r.last_error
	FROM unnest($1::bigint[], $2::timestamptz[], $3::text[]) AS r(id, retry_at, last_error)
	WHERE o.id = r.id`

// ClaimOutboxMessages moves up to limit due messages to processing, together
// with processing rows whose claim started before staleBefore.
func (r *PostgresRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleBefore time.Time) ([]OutboxMessage, error) {
	rows, err := r.db.Query(ctx, claimOutboxSQL, claimLimit(limit), staleBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &msg.Payload, &msg.Attempts); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SettleOutboxMessages records the outcome of a claimed batch in one statement.
func (r *PostgresRepository) SettleOutboxMessages(ctx context.Context, results []OutboxResult) error {
	if len(results) == 0 {
		return nil
	}
	ids := make([]int64, len(results))
	retryAt := make([]*time.Time, len(results))
	lastError := make([]*string, len(results))
	for i := range results {
		ids[i] = results[i].ID
		if !results[i].Published() {
			retryAt[i] = &results[i].RetryAt
			lastError[i] = &results[i].Error
		}
	}
	_, err := r.db.Exec(ctx, settleOutboxSQL, ids, retryAt, lastError)
	return err
}

// PurgePublishedOutbox deletes published rows older than olderThan.
func (r *PostgresRepository) PurgePublishedOutbox(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM event_outbox WHERE status = 'published' AND published_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

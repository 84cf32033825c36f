// Package historian implements the optional move-audit pipeline of
// SPEC_FULL.md §4.4: a Redis-queue publisher fed by consensus.Engine's
// FinalizeSink hook, and a batch writer that upserts into Postgres.
// Grounded on the teacher's internal/cache/redis.go (PublishGameAction) and
// cmd/db/historian.go (HistorianService).
package historian

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the publisher pushes onto and the
// service pops from.
const DefaultQueueName = "peerlobby_moves"

// MoveRecord is the wire shape pushed onto the Redis queue. MovePayload
// carries the already-JSON-marshaled game move so the historian never needs
// to know the concrete move type.
type MoveRecord struct {
	LobbyCode   string          `json:"lobby_code"`
	MoveID      string          `json:"move_id"`
	ProposerID  string          `json:"proposer_id"`
	FinalizedAt int64           `json:"finalized_at"`
	MovePayload json.RawMessage `json:"move_payload"`
}

// Publisher pushes finalized-move records onto a Redis list. It is the
// concrete type a consensus.FinalizeSink closes over.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher wraps an already-connected *redis.Client. An empty
// queueName falls back to DefaultQueueName.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queueName: queueName}
}

// Publish JSON-marshals record and RPushes it onto the queue. It does not
// block on anything beyond the network round trip, matching the teacher's
// "this does not block the calling logic" contract for PublishGameAction.
func (p *Publisher) Publish(ctx context.Context, record MoveRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("historian: marshal move record: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("historian: rpush to %q: %w", p.queueName, err)
	}
	return nil
}

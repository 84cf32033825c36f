package historian

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// TestPublisherPublishesToQueue mirrors the teacher's historian_test.go: a
// minimal push against a real local Redis, not a full pipeline run.
func TestPublisherPublishesToQueue(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	queue := "peerlobby_moves_test"
	defer rdb.Del(ctx, queue)

	pub := NewPublisher(rdb, queue)
	rec := MoveRecord{
		LobbyCode:   "ABCDEF",
		MoveID:      "m1",
		ProposerID:  "p1",
		FinalizedAt: time.Now().UnixMilli(),
		MovePayload: json.RawMessage(`{"position":4,"mark":"X"}`),
	}
	require.NoError(t, pub.Publish(ctx, rec))

	data, err := rdb.LPop(ctx, queue).Result()
	require.NoError(t, err)

	var got MoveRecord
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	require.Equal(t, rec.MoveID, got.MoveID)
}

func TestNewPublisherFallsBackToDefaultQueue(t *testing.T) {
	pub := NewPublisher(nil, "")
	require.Equal(t, DefaultQueueName, pub.queueName)
}

package historian

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewServiceAppliesDefaults(t *testing.T) {
	s := NewService(nil, nil, Config{}, nil)
	assert.Equal(t, DefaultQueueName, s.queueName)
	assert.Equal(t, 20, s.batchSize)
	assert.Equal(t, 500*time.Millisecond, s.flushEvery)
	assert.NotNil(t, s.log)
}

func TestNewServiceHonorsExplicitConfig(t *testing.T) {
	log := logrus.New()
	s := NewService(nil, nil, Config{QueueName: "custom", BatchSize: 5, FlushEvery: time.Second}, log)
	assert.Equal(t, "custom", s.queueName)
	assert.Equal(t, 5, s.batchSize)
	assert.Equal(t, time.Second, s.flushEvery)
	assert.Same(t, log, s.log)
}

// appendToBatch is pure bookkeeping below the configured threshold: it
// should accumulate without attempting to flush (flushing without a real
// db would panic on a nil pool).
func TestAppendToBatchAccumulatesBelowThreshold(t *testing.T) {
	s := NewService(nil, nil, Config{BatchSize: 10}, nil)
	s.appendToBatch(MoveRecord{MoveID: "m1"})
	s.appendToBatch(MoveRecord{MoveID: "m2"})

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	assert.Len(t, s.batch, 2)
}

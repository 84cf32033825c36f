package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service is the standalone Redis-to-Postgres batch writer behind
// cmd/historian, grounded on the teacher's HistorianService.
type Service struct {
	rdb        *redis.Client
	db         *pgxpool.Pool
	queueName  string
	batchSize  int
	flushEvery time.Duration
	log        *logrus.Logger

	batchMu sync.Mutex
	batch   []MoveRecord

	ctx    context.Context
	cancel context.CancelFunc
}

// Config parameterizes a Service; zero values fall back to the teacher's
// defaults (batch 20, flush every 500ms).
type Config struct {
	QueueName  string
	BatchSize  int
	FlushEvery time.Duration
}

// NewService constructs a Service over already-connected clients.
func NewService(rdb *redis.Client, db *pgxpool.Pool, cfg Config, log *logrus.Logger) *Service {
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 500 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		rdb:        rdb,
		db:         db,
		queueName:  cfg.QueueName,
		batchSize:  cfg.BatchSize,
		flushEvery: cfg.FlushEvery,
		log:        log,
		batch:      make([]MoveRecord, 0, cfg.BatchSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run blocks, draining the Redis queue into batched Postgres upserts, until
// Stop is called.
func (s *Service) Run() {
	go s.readLoop()
	s.log.Info("historian service started")
	<-s.ctx.Done()
	s.flushBatchToDB()
	s.log.Info("historian service stopped")
}

// Stop signals Run to flush the remaining batch and return.
func (s *Service) Stop() {
	s.cancel()
}

func (s *Service) readLoop() {
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.flushBatchToDB()
		default:
			res, err := s.rdb.BLPop(s.ctx, 3*time.Second, s.queueName).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && s.ctx.Err() == nil {
					s.log.WithError(err).Warn("historian: blpop failed")
				}
				continue
			}
			if len(res) < 2 {
				continue
			}
			var rec MoveRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				s.log.WithError(err).Warn("historian: dropping malformed move record")
				continue
			}
			s.appendToBatch(rec)
		}
	}
}

func (s *Service) appendToBatch(rec MoveRecord) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.batchSize {
		s.flushBatchToDBLocked()
	}
}

func (s *Service) flushBatchToDB() {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushBatchToDBLocked()
}

func (s *Service) flushBatchToDBLocked() {
	if len(s.batch) == 0 {
		return
	}
	batchCopy := make([]MoveRecord, len(s.batch))
	copy(batchCopy, s.batch)
	s.batch = s.batch[:0]

	ctx := context.Background()
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertMoveRecordTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert move record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("count", len(batchCopy)).Error("historian: flush failed")
		return
	}
	s.log.WithField("count", len(batchCopy)).Debug("historian: flushed moves to db")
}

func (s *Service) withTx(ctx context.Context, f func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback: %v; original: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}

func insertMoveRecordTx(ctx context.Context, tx pgx.Tx, rec MoveRecord) error {
	const q = `
		INSERT INTO move_history (
			lobby_code, move_id, proposer_id, finalized_at, move_payload
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (move_id) DO NOTHING
	`
	_, err := tx.Exec(ctx, q, rec.LobbyCode, rec.MoveID, rec.ProposerID, rec.FinalizedAt, rec.MovePayload)
	return err
}

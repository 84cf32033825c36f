// cmd/historian runs the standalone Redis-to-Postgres move-audit batch
// writer, mirroring the teacher's cmd/db/historian.go.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/peerlobby/internal/historian"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		DB:   getEnvInt("REDIS_DB", 0),
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatalf("redis ping: %v", err)
	}
	cancel()

	db, err := connectDB(logger)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer db.Close()

	svc := historian.NewService(rdb, db, historian.Config{
		QueueName:  getEnv("HISTORIAN_QUEUE_NAME", ""),
		BatchSize:  getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		FlushEvery: time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
	}, logger)

	go svc.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	svc.Stop()
	logger.Info("historian shutdown complete")
}

func connectDB(logger *logrus.Logger) (*pgxpool.Pool, error) {
	connStr := "postgres://" + getEnv("POSTGRES_USER", "postgres") +
		":" + getEnv("POSTGRES_PASSWORD", "postgres") +
		"@" + getEnv("PG_HOST", "localhost") +
		":" + getEnv("PG_PORT", "5432") +
		"/" + getEnv("PG_DATABASE", "peerlobby")

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	logger.Info("connected to postgres")
	return pool, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

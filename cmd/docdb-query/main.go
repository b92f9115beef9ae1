// Command docdb-query runs a cross-partition query against a document
// service account and prints the merged result as JSON.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docdb-go/docdb-client/pkg/client"
	"github.com/docdb-go/docdb-client/pkg/logging"
	"github.com/docdb-go/docdb-client/pkg/sessions"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	endpoint := os.Getenv("DOCDB_ENDPOINT")
	masterKey := os.Getenv("DOCDB_KEY")
	dbID := os.Getenv("DOCDB_DATABASE")
	collID := os.Getenv("DOCDB_COLLECTION")
	queryText := getEnv("DOCDB_QUERY", "SELECT * FROM c")

	if endpoint == "" || masterKey == "" || dbID == "" || collID == "" {
		logger.Fatal().Msg("DOCDB_ENDPOINT, DOCDB_KEY, DOCDB_DATABASE and DOCDB_COLLECTION are required")
	}

	cfg := client.DefaultConfig(endpoint, masterKey)

	// Optional Redis-backed session store for cross-process
	// read-your-writes.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}
		cfg.Sessions = sessions.NewRedisStore(redisClient, time.Hour)
		cfg.UseSessionConsistency = true
		logger.Info().Str("redis", redisURL).Msg("Using Redis session store")
	}

	c, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	agg, err := c.QueryCrossPartition(ctx, dbID, collID, client.NewQuery(queryText), client.CombineConcat, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Query failed")
	}

	logger.Info().
		Int("documents", len(agg.Documents)).
		Float64("request_charge", agg.RequestCharge).
		Dur("duration", time.Since(start)).
		Msg("Query complete")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(agg.Documents); err != nil {
		logger.Fatal().Err(err).Msg("Failed to encode result")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

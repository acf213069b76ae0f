package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Environment variables that point tests at real servers. Tests needing
// them are skipped when unset.
const (
	EnvMongoURI  = "HANDSPM_TEST_MONGO_URI"
	EnvRedisAddr = "HANDSPM_TEST_REDIS_ADDR"
)

// RequireReplicaSet connects to the MongoDB named by HANDSPM_TEST_MONGO_URI
// and returns a throwaway database, dropped on cleanup. The test is skipped
// when the variable is unset or the server is not a replica set member,
// since change streams and transactions need one.
func RequireReplicaSet(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv(EnvMongoURI)
	if uri == "" {
		t.Skipf("%s not set", EnvMongoURI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("mongo connect: %v", err)
	}
	var hello struct {
		SetName string `bson:"setName"`
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("mongo hello: %v", err)
	}
	if hello.SetName == "" {
		_ = client.Disconnect(context.Background())
		t.Skip("mongo is not a replica set member")
	}

	db := client.Database(fmt.Sprintf("handspm_test_%s", uuid.NewString()[:8]))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

// RequireRedis returns a client for HANDSPM_TEST_REDIS_ADDR, skipping the
// test when unset or unreachable. Keys are the caller's to clean up.
func RequireRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv(EnvRedisAddr)
	if addr == "" {
		t.Skipf("%s not set", EnvRedisAddr)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis ping: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

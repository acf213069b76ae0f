// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Backend is always set. The Mongo handles are nil with the memory
// backend, and Redis is nil when no redis_addr is configured. App is
// allocated by ConnectDB and filled in by Startup so later hooks share
// the same services.
type DBDeps struct {
	Backend       docstore.Backend
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Redis         *redis.Client

	App *Services
}

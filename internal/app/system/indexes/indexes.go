// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Spec is one desired index.
type Spec struct {
	Name   string
	Keys   bson.D
	Unique bool
}

// Plan lists the desired indexes per collection. Every query the stores and
// the live views issue against Mongo is covered here.
func Plan() map[string][]Spec {
	return map[string][]Spec{
		models.CollUsers: {
			{Name: "uniq_users_employee_id", Keys: bson.D{{Key: "employee_id", Value: 1}}, Unique: true},
			{Name: "idx_users_role", Keys: bson.D{{Key: "role", Value: 1}}},
			{Name: "idx_users_online_last_active", Keys: bson.D{{Key: "is_online", Value: 1}, {Key: "last_active", Value: 1}}},
		},
		models.CollProjects: {
			{Name: "idx_projects_assignee", Keys: bson.D{{Key: "assigned_to_employee_id", Value: 1}}},
			{Name: "idx_projects_updated_at", Keys: bson.D{{Key: "updated_at", Value: -1}}},
		},
		models.CollProjectComments: {
			{Name: "idx_comments_project_created", Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		models.CollPointRequests:        requestSpecs("point"),
		models.CollVoucherRequests:      requestSpecs("voucher"),
		models.CollMemberChangeRequests: requestSpecs("member_change"),
		models.CollVoucherPool: {
			{Name: "uniq_voucher_pool_code", Keys: bson.D{{Key: "code", Value: 1}}, Unique: true},
			{Name: "idx_voucher_pool_is_used", Keys: bson.D{{Key: "is_used", Value: 1}}},
		},
		models.CollNotifications: {
			{Name: "idx_notifications_target_read", Keys: bson.D{{Key: "target_user_id", Value: 1}, {Key: "read", Value: 1}}},
			{Name: "idx_notifications_created_at", Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		models.CollSchedules: {
			{Name: "idx_schedules_start_date", Keys: bson.D{{Key: "start_date", Value: 1}}},
		},
		models.CollLogs: {
			{Name: "idx_logs_timestamp", Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}
}

func requestSpecs(prefix string) []Spec {
	return []Spec{
		{Name: "idx_" + prefix + "_requester_created", Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Name: "idx_" + prefix + "_status", Keys: bson.D{{Key: "status", Value: 1}}},
	}
}

/*
EnsureAll is called at startup. Reconciling is idempotent: an index with
the same keys and uniqueness is reused, a mismatch is dropped and
recreated. Errors are aggregated so every problem is visible and startup
can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string
	for coll, specs := range Plan() {
		if err := ensureIndexSet(ctx, db.Collection(coll), specs, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func listExisting(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, specs []Spec, logger *zap.Logger) error {
	existing, err := listExisting(ctx, coll)
	if err != nil {
		// A collection that does not exist yet has no indexes.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, s := range specs {
		start := time.Now()
		sig := keySig(s.Keys)
		model := mongo.IndexModel{Keys: s.Keys, Options: options.Index().SetName(s.Name)}
		if s.Unique {
			model.Options.SetUnique(true)
		}

		if ex, ok := existing[sig]; ok {
			exUnique := ex.Unique != nil && *ex.Unique
			if exUnique == s.Unique && ex.Name == s.Name {
				logger.Debug("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: drop %s failed: %v", s.Name, ex.Name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			if s.Unique && wafflemongo.IsDup(err) {
				errs = append(errs, fmt.Sprintf("%s: cannot create unique index (duplicates present on %s)", s.Name, sig))
			} else {
				errs = append(errs, fmt.Sprintf("%s: %v", s.Name, err))
			}
			continue
		}
		logger.Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", s.Name),
			zap.String("keys", sig),
			zap.Bool("unique", s.Unique),
			zap.Duration("took", time.Since(start)))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

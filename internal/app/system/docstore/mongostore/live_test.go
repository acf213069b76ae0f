package mongostore

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func newLiveStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.RequireReplicaSet(t)
	return New(db.Client(), db, zap.NewNop())
}

func TestLive_BatchIsAllOrNothing(t *testing.T) {
	s := newLiveStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := s.Insert(ctx, "voucherPool", "v1", bson.M{"code": "VC-1", "used": false}); err != nil {
		t.Fatalf("seed voucher: %v", err)
	}
	if err := s.Insert(ctx, "voucherRequests", "r1", bson.M{"status": "pending"}); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	ok := []docstore.Op{
		{Kind: docstore.OpUpdate, Collection: "voucherPool", ID: "v1", Data: bson.M{"used": true}, Match: bson.M{"used": false}},
		{Kind: docstore.OpUpdate, Collection: "voucherRequests", ID: "r1", Data: bson.M{"status": "approved"}, Match: bson.M{"status": "pending"}},
	}
	if err := s.Batch(ctx, ok); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	// The voucher is used now, so the second claim must fail as a whole.
	if err := s.Insert(ctx, "voucherRequests", "r2", bson.M{"status": "pending"}); err != nil {
		t.Fatalf("seed request: %v", err)
	}
	again := []docstore.Op{
		{Kind: docstore.OpUpdate, Collection: "voucherRequests", ID: "r2", Data: bson.M{"status": "approved"}, Match: bson.M{"status": "pending"}},
		{Kind: docstore.OpUpdate, Collection: "voucherPool", ID: "v1", Data: bson.M{"used": true}, Match: bson.M{"used": false}},
	}
	err := s.Batch(ctx, again)
	var ce *docstore.ConflictError
	if !errors.As(err, &ce) || ce.ID != "v1" {
		t.Fatalf("Batch err = %v, want conflict on v1", err)
	}
	r2, err := s.Get(ctx, "voucherRequests", "r2")
	if err != nil {
		t.Fatalf("Get r2: %v", err)
	}
	if r2.Data["status"] != "pending" {
		t.Errorf("r2 status = %v, rolled-back write leaked", r2.Data["status"])
	}

	missing := []docstore.Op{{Kind: docstore.OpDelete, Collection: "voucherPool", ID: "nope"}}
	if err := s.Batch(ctx, missing); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Batch on missing doc = %v, want ErrNotFound", err)
	}
}

type batchRecorder struct {
	mu      sync.Mutex
	batches []docstore.ChangeBatch
}

func (r *batchRecorder) OnChange(b docstore.ChangeBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *batchRecorder) OnError(error) {}

func (r *batchRecorder) snapshot() []docstore.ChangeBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]docstore.ChangeBatch(nil), r.batches...)
}

func TestLive_WatchDeliversTransactionAsOneBatch(t *testing.T) {
	s := newLiveStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := s.Insert(ctx, "voucherPool", "v1", bson.M{"code": "VC-1", "used": false}); err != nil {
		t.Fatalf("seed voucher: %v", err)
	}
	if err := s.Insert(ctx, "voucherRequests", "r1", bson.M{"status": "pending"}); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	rec := &batchRecorder{}
	unsub, err := s.Watch(ctx, []string{"voucherPool", "voucherRequests"}, rec)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer unsub()

	testutil.Eventually(t, 5*time.Second, func() bool { return len(rec.snapshot()) == 1 }, "initial batch")
	initial := rec.snapshot()[0]
	if len(initial.Sets) != 2 {
		t.Fatalf("initial sets = %+v", initial.Sets)
	}

	if err := s.Batch(ctx, []docstore.Op{
		{Kind: docstore.OpUpdate, Collection: "voucherPool", ID: "v1", Data: bson.M{"used": true}},
		{Kind: docstore.OpUpdate, Collection: "voucherRequests", ID: "r1", Data: bson.M{"status": "approved"}},
	}); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if err := s.Insert(ctx, "voucherRequests", "r2", bson.M{"status": "pending"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	testutil.Eventually(t, 5*time.Second, func() bool {
		for _, b := range rec.snapshot()[1:] {
			for _, set := range b.Sets {
				for _, d := range set.Docs {
					if d.ID == "r2" {
						return true
					}
				}
			}
		}
		return false
	}, "insert after the transaction")

	// The transaction's two writes arrive together, and without r2.
	var txn *docstore.ChangeBatch
	for _, b := range rec.snapshot()[1:] {
		b := b
		for _, set := range b.Sets {
			if set.Collection == "voucherPool" {
				txn = &b
			}
		}
	}
	if txn == nil {
		t.Fatal("no batch carried the voucher update")
	}
	if len(txn.Sets) != 2 {
		t.Fatalf("transaction split across batches: %+v", txn.Sets)
	}
	for _, set := range txn.Sets {
		for _, d := range set.Docs {
			if d.ID == "r2" {
				t.Error("transaction batch includes a later write")
			}
		}
	}
}

package mongostore

import (
	"context"
	"testing"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestByID_MergesMatch(t *testing.T) {
	f := byID("p1", bson.M{"status": "pending"})
	if f["_id"] != "p1" || f["status"] != "pending" || len(f) != 2 {
		t.Errorf("byID = %v", f)
	}
}

func TestWithID_OverridesEmbeddedID(t *testing.T) {
	in := bson.M{"_id": "stale", "title": "x"}
	m := withID("fresh", in)
	if m["_id"] != "fresh" || m["title"] != "x" {
		t.Errorf("withID = %v", m)
	}
	if in["_id"] != "stale" {
		t.Error("withID mutated its input")
	}
}

func TestToDocument_IDForms(t *testing.T) {
	oid := primitive.NewObjectID()
	tests := []struct {
		name string
		raw  bson.M
		want string
	}{
		{"string", bson.M{"_id": "abc", "n": 1}, "abc"},
		{"object id", bson.M{"_id": oid}, oid.Hex()},
		{"number", bson.M{"_id": int32(7)}, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := toDocument(tt.raw)
			if d.ID != tt.want {
				t.Errorf("ID = %q, want %q", d.ID, tt.want)
			}
			if _, ok := d.Data["_id"]; ok {
				t.Error("_id leaked into Data")
			}
		})
	}
}

func TestCache_KeepsInsertionOrder(t *testing.T) {
	c := newCache()
	c.put("projects", docstore.Document{ID: "a"})
	c.put("projects", docstore.Document{ID: "b"})
	c.put("projects", docstore.Document{ID: "c"})
	c.put("projects", docstore.Document{ID: "a", Data: bson.M{"v": 2}})
	c.remove("projects", "b")
	c.remove("projects", "missing")

	docs := c.docs("projects")
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "c" {
		t.Fatalf("docs = %+v", docs)
	}
	if docs[0].Data["v"] != 2 {
		t.Error("re-put did not replace the document")
	}
	if c.has("projects", "b") {
		t.Error("removed document still cached")
	}
}

func TestPending_GroupsByCollectionInArrivalOrder(t *testing.T) {
	c := newCache()
	c.put("users", docstore.Document{ID: "u1"})
	c.put("projects", docstore.Document{ID: "p1"})

	p := newPending()
	p.add("users", docstore.Change{Doc: docstore.Document{ID: "u1"}})
	p.add("projects", docstore.Change{Doc: docstore.Document{ID: "p1"}})
	p.add("users", docstore.Change{Doc: docstore.Document{ID: "u1"}})

	b := p.batch(c)
	if len(b.Sets) != 2 || b.Sets[0].Collection != "users" || b.Sets[1].Collection != "projects" {
		t.Fatalf("sets = %+v", b.Sets)
	}
	if len(b.Sets[0].Changes) != 2 || len(b.Sets[0].Docs) != 1 {
		t.Errorf("users set = %+v", b.Sets[0])
	}
}

// burstCursor replays change events in bursts: Next starts a burst and
// TryNext walks it, reporting false at its end.
type burstCursor struct {
	bursts [][]bson.M
	burst  int
	pos    int
	cur    []byte
}

func (c *burstCursor) Next(context.Context) bool {
	if c.burst >= len(c.bursts) {
		return false
	}
	c.pos = 0
	return c.load()
}

func (c *burstCursor) TryNext(context.Context) bool {
	c.pos++
	if c.pos >= len(c.bursts[c.burst]) {
		c.burst++
		return false
	}
	return c.load()
}

func (c *burstCursor) load() bool {
	raw, err := bson.Marshal(c.bursts[c.burst][c.pos])
	if err != nil {
		panic(err)
	}
	c.cur = raw
	return true
}

func (c *burstCursor) Decode(v interface{}) error { return bson.Unmarshal(c.cur, v) }
func (c *burstCursor) Err() error                 { return nil }

func insertEvent(coll, id string, at uint32, txn *int64) bson.M {
	ev := bson.M{
		"operationType": "insert",
		"ns":            bson.M{"coll": coll},
		"documentKey":   bson.M{"_id": id},
		"fullDocument":  bson.M{"_id": id},
		"clusterTime":   primitive.Timestamp{T: at, I: 1},
	}
	if txn != nil {
		ev["txnNumber"] = *txn
		ev["lsid"] = bson.M{"id": "session-1"}
	}
	return ev
}

func TestPump_GroupsEventsByCommit(t *testing.T) {
	one, two := int64(1), int64(2)
	cs := &burstCursor{bursts: [][]bson.M{
		{
			insertEvent("users", "u1", 10, &one),
			insertEvent("projects", "p1", 10, &one),
			insertEvent("users", "u2", 11, nil),
			insertEvent("users", "u3", 12, nil),
		},
		{
			insertEvent("vouchers", "v1", 13, &two),
			insertEvent("users", "u4", 13, &two),
		},
	}}

	var batches []docstore.ChangeBatch
	var errs []error
	h := docstore.HandlerFuncs{
		Change: func(b docstore.ChangeBatch) { batches = append(batches, b) },
		Error:  func(err error) { errs = append(errs, err) },
	}
	(&Store{}).pump(context.Background(), cs, newCache(), h)

	if len(batches) != 4 {
		t.Fatalf("got %d batches, want 4: %+v", len(batches), batches)
	}

	txn := batches[0]
	if len(txn.Sets) != 2 || txn.Sets[0].Collection != "users" || txn.Sets[1].Collection != "projects" {
		t.Fatalf("transaction batch = %+v", txn.Sets)
	}
	// The users contents must not include writes committed after the
	// transaction, even though they were already read from the stream.
	if docs := txn.Sets[0].Docs; len(docs) != 1 || docs[0].ID != "u1" {
		t.Errorf("transaction users docs = %+v", docs)
	}

	if docs := batches[1].Sets[0].Docs; len(docs) != 2 || docs[1].ID != "u2" {
		t.Errorf("second batch users docs = %+v", docs)
	}
	if docs := batches[2].Sets[0].Docs; len(docs) != 3 {
		t.Errorf("third batch users docs = %+v", docs)
	}
	if last := batches[3]; len(last.Sets) != 2 || last.Sets[0].Collection != "vouchers" {
		t.Errorf("last batch = %+v", last.Sets)
	}

	// Running out of bursts reads as the stream closing.
	if len(errs) != 1 {
		t.Errorf("errors = %v, want one close error", errs)
	}
}

func TestChangeEvent_Commit(t *testing.T) {
	n := int64(7)
	txnA := changeEvent{TxnNumber: &n, LSID: bson.Raw("a"), ClusterTime: primitive.Timestamp{T: 1}}
	txnA2 := changeEvent{TxnNumber: &n, LSID: bson.Raw("a"), ClusterTime: primitive.Timestamp{T: 1}}
	txnB := changeEvent{TxnNumber: &n, LSID: bson.Raw("b"), ClusterTime: primitive.Timestamp{T: 1}}
	plain := changeEvent{ClusterTime: primitive.Timestamp{T: 1}}
	later := changeEvent{ClusterTime: primitive.Timestamp{T: 1, I: 2}}

	if txnA.commit() != txnA2.commit() {
		t.Error("events of one transaction should share a commit")
	}
	if txnA.commit() == txnB.commit() {
		t.Error("different sessions should not share a commit")
	}
	if plain.commit() == later.commit() {
		t.Error("different cluster times should not share a commit")
	}
	if plain.commit() == txnA.commit() {
		t.Error("a transaction and a plain write should not share a commit")
	}
}

// Package mongostore implements docstore.Backend on MongoDB.
//
// Live subscriptions use one database-level change stream per watch,
// filtered to the watched collections. Events are grouped by transaction
// (lsid and txnNumber) or, outside a transaction, by cluster time, and
// each group reaches the watcher as one batch. Batches run inside a session
// transaction (see txn.Run) and therefore need a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/txn"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Store is a docstore.Backend backed by one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var _ docstore.Backend = (*Store)(nil)

// New wraps an already-connected database.
func New(client *mongo.Client, db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{client: client, db: db, log: logger}
}

// Database returns the underlying database (for index management and
// health checks).
func (s *Store) Database() *mongo.Database { return s.db }

// Ping checks connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func byID(id string, match bson.M) bson.M {
	f := bson.M{"_id": id}
	for k, v := range match {
		f[k] = v
	}
	return f
}

func toDocument(m bson.M) docstore.Document {
	var id string
	switch v := m["_id"].(type) {
	case string:
		id = v
	case primitive.ObjectID:
		id = v.Hex()
	default:
		id = fmt.Sprint(v)
	}
	data := make(bson.M, len(m))
	for k, v := range m {
		if k != "_id" {
			data[k] = v
		}
	}
	return docstore.Document{ID: id, Data: data}
}

func withID(id string, data bson.M) bson.M {
	m := make(bson.M, len(data)+1)
	for k, v := range data {
		if k != "_id" {
			m[k] = v
		}
	}
	m["_id"] = id
	return m
}

/* ---------- reads ---------- */

func (s *Store) Get(ctx context.Context, coll, id string) (docstore.Document, error) {
	return s.FindOne(ctx, coll, bson.M{"_id": id})
}

func (s *Store) Find(ctx context.Context, coll string, match bson.M) ([]docstore.Document, error) {
	if match == nil {
		match = bson.M{}
	}
	cur, err := s.db.Collection(coll).Find(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find %s: %w", coll, err)
	}
	defer cur.Close(ctx)
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("mongostore: decode %s: %w", coll, err)
	}
	out := make([]docstore.Document, 0, len(raw))
	for _, m := range raw {
		out = append(out, toDocument(m))
	}
	return out, nil
}

func (s *Store) FindOne(ctx context.Context, coll string, match bson.M) (docstore.Document, error) {
	if match == nil {
		match = bson.M{}
	}
	var m bson.M
	err := s.db.Collection(coll).FindOne(ctx, match).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("mongostore: find one %s: %w", coll, err)
	}
	return toDocument(m), nil
}

func (s *Store) Count(ctx context.Context, coll string, match bson.M) (int64, error) {
	if match == nil {
		match = bson.M{}
	}
	n, err := s.db.Collection(coll).CountDocuments(ctx, match)
	if err != nil {
		return 0, fmt.Errorf("mongostore: count %s: %w", coll, err)
	}
	return n, nil
}

/* ---------- writes ---------- */

func (s *Store) Create(ctx context.Context, coll string, data bson.M) (string, error) {
	id := primitive.NewObjectID().Hex()
	if err := s.Insert(ctx, coll, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Insert(ctx context.Context, coll, id string, data bson.M) error {
	_, err := s.db.Collection(coll).InsertOne(ctx, withID(id, data))
	if wafflemongo.IsDup(err) {
		return fmt.Errorf("mongostore: %s/%s: %w", coll, id, docstore.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("mongostore: insert %s: %w", coll, err)
	}
	return nil
}

func (s *Store) Set(ctx context.Context, coll, id string, data bson.M) error {
	_, err := s.db.Collection(coll).ReplaceOne(ctx, bson.M{"_id": id}, withID(id, data), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: set %s/%s: %w", coll, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, coll, id string, fields bson.M) error {
	res, err := s.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("mongostore: update %s/%s: %w", coll, id, err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	res, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongostore: delete %s/%s: %w", coll, id, err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteWhere(ctx context.Context, coll string, match bson.M) (int64, error) {
	if match == nil {
		match = bson.M{}
	}
	res, err := s.db.Collection(coll).DeleteMany(ctx, match)
	if err != nil {
		return 0, fmt.Errorf("mongostore: delete many %s: %w", coll, err)
	}
	return res.DeletedCount, nil
}

// Batch runs ops in one transaction. A precondition that matches nothing
// aborts the transaction with *docstore.ConflictError, or ErrNotFound when
// the document is gone altogether.
func (s *Store) Batch(ctx context.Context, ops []docstore.Op) error {
	if len(ops) == 0 {
		return nil
	}
	return txn.Run(ctx, s.client, func(sc mongo.SessionContext) error {
		for _, op := range ops {
			if err := s.apply(sc, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) apply(sc mongo.SessionContext, op docstore.Op) error {
	c := s.db.Collection(op.Collection)
	switch op.Kind {
	case docstore.OpInsert:
		if _, err := c.InsertOne(sc, withID(op.ID, op.Data)); err != nil {
			if wafflemongo.IsDup(err) {
				return fmt.Errorf("mongostore: %s/%s: %w", op.Collection, op.ID, docstore.ErrDuplicate)
			}
			return err
		}
		return nil
	case docstore.OpSet:
		if op.Match == nil {
			_, err := c.ReplaceOne(sc, bson.M{"_id": op.ID}, withID(op.ID, op.Data), options.Replace().SetUpsert(true))
			return err
		}
		res, err := c.ReplaceOne(sc, byID(op.ID, op.Match), withID(op.ID, op.Data))
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return s.missOrConflict(sc, op)
		}
		return nil
	case docstore.OpUpdate:
		res, err := c.UpdateOne(sc, byID(op.ID, op.Match), bson.M{"$set": op.Data})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return s.missOrConflict(sc, op)
		}
		return nil
	case docstore.OpDelete:
		res, err := c.DeleteOne(sc, byID(op.ID, op.Match))
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return s.missOrConflict(sc, op)
		}
		return nil
	}
	return fmt.Errorf("mongostore: unknown op kind %d", op.Kind)
}

func (s *Store) missOrConflict(sc mongo.SessionContext, op docstore.Op) error {
	n, err := s.db.Collection(op.Collection).CountDocuments(sc, bson.M{"_id": op.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("mongostore: %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
	}
	return &docstore.ConflictError{Collection: op.Collection, ID: op.ID}
}

/* ---------- watch ---------- */

type changeEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey  bson.M              `bson:"documentKey"`
	FullDocument bson.M              `bson:"fullDocument"`
	ClusterTime  primitive.Timestamp `bson:"clusterTime"`
	TxnNumber    *int64              `bson:"txnNumber"`
	LSID         bson.Raw            `bson:"lsid"`
}

// commitKey identifies the write an event belongs to. Every event of one
// transaction shares lsid and txnNumber; other writes are told apart by
// cluster time.
type commitKey struct {
	lsid string
	txn  int64
	at   primitive.Timestamp
}

func (ev *changeEvent) commit() commitKey {
	if ev.TxnNumber != nil {
		return commitKey{lsid: string(ev.LSID), txn: *ev.TxnNumber}
	}
	return commitKey{at: ev.ClusterTime}
}

// changeCursor is the part of *mongo.ChangeStream the pump reads.
type changeCursor interface {
	Next(ctx context.Context) bool
	TryNext(ctx context.Context) bool
	Decode(v interface{}) error
	Err() error
}

// Watch opens the change stream before reading the initial contents so no
// write between the two is lost; a write seen twice is reported as Modified.
func (s *Store) Watch(ctx context.Context, collections []string, h docstore.Handler) (docstore.Unsubscribe, error) {
	wctx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: collections}}}}}},
	}
	cs, err := s.db.Watch(wctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mongostore: open change stream: %w", err)
	}

	cache := newCache()
	var initial docstore.ChangeBatch
	for _, name := range collections {
		docs, err := s.Find(wctx, name, nil)
		if err != nil {
			_ = cs.Close(context.Background())
			cancel()
			return nil, err
		}
		changes := make([]docstore.Change, 0, len(docs))
		for _, d := range docs {
			cache.put(name, d)
			changes = append(changes, docstore.Change{Kind: docstore.Added, Doc: d})
		}
		initial.Sets = append(initial.Sets, docstore.ChangeSet{Collection: name, Docs: cache.docs(name), Changes: changes})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cs.Close(context.Background())
		h.OnChange(initial)
		s.pump(wctx, cs, cache, h)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

// pump reads events and hands them to h grouped by commit. A group is
// flushed when an event of another commit arrives, or when the stream has
// nothing more immediately available. A commit's events become visible
// together, so an idle stream never splits one.
func (s *Store) pump(ctx context.Context, cs changeCursor, cache *cache, h docstore.Handler) {
	p := newPending()
	var cur commitKey
	flush := func() {
		if b := p.batch(cache); len(b.Sets) > 0 {
			h.OnChange(b)
		}
		p = newPending()
	}

	for {
		if !cs.Next(ctx) {
			if ctx.Err() == nil {
				err := cs.Err()
				if err == nil {
					err = errors.New("mongostore: change stream closed")
				}
				h.OnError(err)
			}
			return
		}
		for {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				h.OnError(fmt.Errorf("mongostore: decode change: %w", err))
				return
			}
			// The cache must not see the next commit before the current
			// one is flushed, or the batch's contents would run ahead.
			key := ev.commit()
			if !p.empty() && key != cur {
				flush()
			}
			cur = key
			if err := absorb(&ev, cache, p); err != nil {
				h.OnError(err)
				return
			}
			if !cs.TryNext(ctx) {
				break
			}
		}
		if err := cs.Err(); err != nil {
			if ctx.Err() == nil {
				h.OnError(err)
			}
			return
		}
		flush()
	}
}

func absorb(ev *changeEvent, c *cache, p *pending) error {
	coll := ev.NS.Coll
	switch ev.OperationType {
	case "insert", "replace", "update":
		if ev.FullDocument == nil {
			// Document was deleted before the update lookup ran; the delete
			// event that follows will remove it.
			return nil
		}
		d := toDocument(ev.FullDocument)
		kind := docstore.Modified
		if !c.has(coll, d.ID) {
			kind = docstore.Added
		}
		c.put(coll, d)
		p.add(coll, docstore.Change{Kind: kind, Doc: d})
	case "delete":
		d := toDocument(ev.DocumentKey)
		if old, ok := c.get(coll, d.ID); ok {
			d = old
		}
		c.remove(coll, d.ID)
		p.add(coll, docstore.Change{Kind: docstore.Removed, Doc: d})
	case "drop", "rename", "dropDatabase", "invalidate":
		return fmt.Errorf("mongostore: change stream %s event on %s", ev.OperationType, coll)
	}
	return nil
}

type cache struct {
	data  map[string]map[string]docstore.Document
	order map[string][]string
}

func newCache() *cache {
	return &cache{data: map[string]map[string]docstore.Document{}, order: map[string][]string{}}
}

func (c *cache) has(coll, id string) bool {
	_, ok := c.data[coll][id]
	return ok
}

func (c *cache) get(coll, id string) (docstore.Document, bool) {
	d, ok := c.data[coll][id]
	return d, ok
}

func (c *cache) put(coll string, d docstore.Document) {
	m, ok := c.data[coll]
	if !ok {
		m = map[string]docstore.Document{}
		c.data[coll] = m
	}
	if _, exists := m[d.ID]; !exists {
		c.order[coll] = append(c.order[coll], d.ID)
	}
	m[d.ID] = d
}

func (c *cache) remove(coll, id string) {
	if _, ok := c.data[coll][id]; !ok {
		return
	}
	delete(c.data[coll], id)
	ids := c.order[coll]
	for i, v := range ids {
		if v == id {
			c.order[coll] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

func (c *cache) docs(coll string) []docstore.Document {
	out := make([]docstore.Document, 0, len(c.order[coll]))
	for _, id := range c.order[coll] {
		out = append(out, c.data[coll][id])
	}
	return out
}

type pending struct {
	order   []string
	changes map[string][]docstore.Change
}

func newPending() *pending { return &pending{changes: map[string][]docstore.Change{}} }

func (p *pending) empty() bool { return len(p.order) == 0 }

func (p *pending) add(coll string, ch docstore.Change) {
	if _, ok := p.changes[coll]; !ok {
		p.order = append(p.order, coll)
	}
	p.changes[coll] = append(p.changes[coll], ch)
}

func (p *pending) batch(c *cache) docstore.ChangeBatch {
	var b docstore.ChangeBatch
	for _, coll := range p.order {
		b.Sets = append(b.Sets, docstore.ChangeSet{Collection: coll, Docs: c.docs(coll), Changes: p.changes[coll]})
	}
	return b
}

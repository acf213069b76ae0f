// Package memstore is an in-process docstore.Backend.
//
// Every write commits under a single mutex and is fanned out to watchers as
// one docstore.ChangeBatch, so a multi-document Batch is always observed
// atomically. Each watcher has its own ordered queue drained by a dedicated
// goroutine; a slow handler never blocks writers.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type collection struct {
	docs  map[string]bson.M
	order []string
}

// Store is a thread-safe in-memory document store.
type Store struct {
	mu       sync.Mutex
	colls    map[string]*collection
	watchers map[*watcher]struct{}

	// failNext, when set, makes the next write fail with this error.
	failNext error
}

var _ docstore.Backend = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		colls:    make(map[string]*collection),
		watchers: make(map[*watcher]struct{}),
	}
}

// FailNextWrite makes the next write operation return err without
// committing. Used by tests to simulate backend outages.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Ping always succeeds while ctx is live.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) coll(name string) *collection {
	c, ok := s.colls[name]
	if !ok {
		c = &collection{docs: make(map[string]bson.M)}
		s.colls[name] = c
	}
	return c
}

/* ---------- reads ---------- */

func (s *Store) Get(ctx context.Context, coll, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.coll(coll).docs[id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Data: clone(data)}, nil
}

func (s *Store) Find(ctx context.Context, coll string, match bson.M) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(coll)
	out := make([]docstore.Document, 0, len(c.order))
	for _, id := range c.order {
		if matches(c.docs[id], id, match) {
			out = append(out, docstore.Document{ID: id, Data: clone(c.docs[id])})
		}
	}
	return out, nil
}

func (s *Store) FindOne(ctx context.Context, coll string, match bson.M) (docstore.Document, error) {
	docs, err := s.Find(ctx, coll, match)
	if err != nil {
		return docstore.Document{}, err
	}
	if len(docs) == 0 {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docs[0], nil
}

func (s *Store) Count(ctx context.Context, coll string, match bson.M) (int64, error) {
	docs, err := s.Find(ctx, coll, match)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

/* ---------- writes ---------- */

func (s *Store) Create(ctx context.Context, coll string, data bson.M) (string, error) {
	id := uuid.NewString()
	if err := s.Insert(ctx, coll, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Insert(ctx context.Context, coll, id string, data bson.M) error {
	return s.Batch(ctx, []docstore.Op{{Kind: docstore.OpInsert, Collection: coll, ID: id, Data: data}})
}

func (s *Store) Set(ctx context.Context, coll, id string, data bson.M) error {
	return s.Batch(ctx, []docstore.Op{{Kind: docstore.OpSet, Collection: coll, ID: id, Data: data}})
}

func (s *Store) Update(ctx context.Context, coll, id string, fields bson.M) error {
	return s.Batch(ctx, []docstore.Op{{Kind: docstore.OpUpdate, Collection: coll, ID: id, Data: fields}})
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	return s.Batch(ctx, []docstore.Op{{Kind: docstore.OpDelete, Collection: coll, ID: id}})
}

func (s *Store) DeleteWhere(ctx context.Context, coll string, match bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}
	c := s.coll(coll)
	var ops []docstore.Op
	for _, id := range c.order {
		if matches(c.docs[id], id, match) {
			ops = append(ops, docstore.Op{Kind: docstore.OpDelete, Collection: coll, ID: id})
		}
	}
	if len(ops) == 0 {
		return 0, nil
	}
	s.commit(ops)
	return int64(len(ops)), nil
}

// Batch validates every operation against the current state and, only if
// all hold, applies them and notifies watchers once.
func (s *Store) Batch(ctx context.Context, ops []docstore.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if err := s.check(ops); err != nil {
		return err
	}
	s.commit(ops)
	return nil
}

// check runs against a staged view so that ops later in the batch see the
// effect of earlier ones.
func (s *Store) check(ops []docstore.Op) error {
	type key struct{ coll, id string }
	staged := make(map[key]bson.M)
	lookup := func(coll, id string) (bson.M, bool) {
		if d, ok := staged[key{coll, id}]; ok {
			return d, d != nil
		}
		d, ok := s.coll(coll).docs[id]
		return d, ok
	}

	for _, op := range ops {
		if op.ID == "" {
			return fmt.Errorf("memstore: %s: empty document id", op.Collection)
		}
		cur, exists := lookup(op.Collection, op.ID)
		if op.Match != nil && (!exists || !matches(cur, op.ID, op.Match)) {
			if !exists && op.Kind != docstore.OpInsert {
				return fmt.Errorf("memstore: %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
			}
			return &docstore.ConflictError{Collection: op.Collection, ID: op.ID}
		}
		k := key{op.Collection, op.ID}
		switch op.Kind {
		case docstore.OpInsert:
			if exists {
				return fmt.Errorf("memstore: %s/%s: %w", op.Collection, op.ID, docstore.ErrDuplicate)
			}
			staged[k] = op.Data
		case docstore.OpSet:
			staged[k] = op.Data
		case docstore.OpUpdate:
			if !exists {
				return fmt.Errorf("memstore: %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
			}
			merged := clone(cur)
			for f, v := range op.Data {
				merged[f] = v
			}
			staged[k] = merged
		case docstore.OpDelete:
			if !exists {
				return fmt.Errorf("memstore: %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
			}
			staged[k] = nil
		default:
			return fmt.Errorf("memstore: unknown op kind %d", op.Kind)
		}
	}
	return nil
}

// commit applies already-validated ops and enqueues the resulting batch to
// every watcher. Caller holds s.mu.
func (s *Store) commit(ops []docstore.Op) {
	touched := make(map[string][]docstore.Change)
	var touchedOrder []string

	for _, op := range ops {
		c := s.coll(op.Collection)
		cur, exists := c.docs[op.ID]
		var ch docstore.Change
		switch op.Kind {
		case docstore.OpInsert, docstore.OpSet:
			c.docs[op.ID] = clone(op.Data)
			if !exists {
				c.order = append(c.order, op.ID)
				ch = docstore.Change{Kind: docstore.Added}
			} else {
				ch = docstore.Change{Kind: docstore.Modified}
			}
		case docstore.OpUpdate:
			merged := clone(cur)
			for f, v := range clone(op.Data) {
				merged[f] = v
			}
			c.docs[op.ID] = merged
			ch = docstore.Change{Kind: docstore.Modified}
		case docstore.OpDelete:
			delete(c.docs, op.ID)
			c.order = removeID(c.order, op.ID)
			ch = docstore.Change{Kind: docstore.Removed, Doc: docstore.Document{ID: op.ID, Data: clone(cur)}}
		}
		if ch.Kind != docstore.Removed {
			ch.Doc = docstore.Document{ID: op.ID, Data: clone(c.docs[op.ID])}
		}
		if _, seen := touched[op.Collection]; !seen {
			touchedOrder = append(touchedOrder, op.Collection)
		}
		touched[op.Collection] = append(touched[op.Collection], ch)
	}

	for w := range s.watchers {
		var batch docstore.ChangeBatch
		for _, name := range touchedOrder {
			if !w.colls[name] {
				continue
			}
			batch.Sets = append(batch.Sets, docstore.ChangeSet{
				Collection: name,
				Docs:       s.snapshot(name),
				Changes:    touched[name],
			})
		}
		if len(batch.Sets) > 0 {
			w.enqueue(event{batch: batch})
		}
	}
}

// snapshot returns copies of every document in coll. Caller holds s.mu.
func (s *Store) snapshot(coll string) []docstore.Document {
	c := s.coll(coll)
	out := make([]docstore.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, docstore.Document{ID: id, Data: clone(c.docs[id])})
	}
	return out
}

/* ---------- watch ---------- */

type watcher struct {
	colls   map[string]bool
	h       docstore.Handler
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []event
	stopped bool
	done    chan struct{}
}

// event is a batch or, when err is set, a subscription failure.
type event struct {
	batch docstore.ChangeBatch
	err   error
}

func (w *watcher) enqueue(e event) {
	w.mu.Lock()
	if !w.stopped {
		w.queue = append(w.queue, e)
		w.cond.Signal()
	}
	w.mu.Unlock()
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.mu.Unlock()
			return
		}
		e := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
		if e.err != nil {
			w.h.OnError(e.err)
			continue
		}
		w.h.OnChange(e.batch)
	}
}

// Watch subscribes h to the named collections. The first delivered batch
// holds the current contents of every collection.
func (s *Store) Watch(ctx context.Context, collections []string, h docstore.Handler) (docstore.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := &watcher{
		colls: make(map[string]bool, len(collections)),
		h:     h,
		done:  make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	s.mu.Lock()
	var initial docstore.ChangeBatch
	for _, name := range collections {
		if w.colls[name] {
			continue
		}
		w.colls[name] = true
		docs := s.snapshot(name)
		changes := make([]docstore.Change, 0, len(docs))
		for _, d := range docs {
			changes = append(changes, docstore.Change{Kind: docstore.Added, Doc: d})
		}
		initial.Sets = append(initial.Sets, docstore.ChangeSet{Collection: name, Docs: docs, Changes: changes})
	}
	w.queue = append(w.queue, event{batch: initial})
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go w.run()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
			w.mu.Lock()
			w.stopped = true
			w.queue = nil
			w.cond.Signal()
			w.mu.Unlock()
			<-w.done
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-w.done:
		}
	}()
	return stop, nil
}

// BreakWatches delivers err to every live subscription, as a dropped
// connection would. Test hook.
func (s *Store) BreakWatches(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		w.enqueue(event{err: err})
	}
}

// Watchers reports the number of live subscriptions.
func (s *Store) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

/* ---------- helpers ---------- */

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// clone deep-copies a document through a BSON round trip, which also
// normalizes values to the types a real store would hand back.
func clone(m bson.M) bson.M {
	if m == nil {
		return bson.M{}
	}
	raw, err := bson.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("memstore: unencodable document: %v", err))
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("memstore: undecodable document: %v", err))
	}
	return out
}

func matches(doc bson.M, id string, match bson.M) bool {
	if len(match) == 0 {
		return true
	}
	norm := clone(match)
	for k, want := range norm {
		var got interface{}
		if k == "_id" {
			got = id
		} else {
			got = doc[k]
		}
		if !equal(got, want) {
			return false
		}
	}
	return true
}

func equal(a, b interface{}) bool {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	if at, ok := a.(primitive.DateTime); ok {
		if bt, ok := b.(primitive.DateTime); ok {
			return at.Time().Equal(bt.Time())
		}
		if bt, ok := b.(time.Time); ok {
			return at.Time().Equal(bt)
		}
	}
	return reflect.DeepEqual(a, b)
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return float64(n), true
	}
	return 0, false
}

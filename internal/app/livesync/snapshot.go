package livesync

import (
	"context"
	"fmt"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
)

// Snapshot is an immutable view of every synchronized collection. A new
// Snapshot replaces the old one on each change; slices are never modified
// after publication.
type Snapshot struct {
	Version     uint64
	Collections map[string][]docstore.Document
}

var emptySnapshot = &Snapshot{Collections: map[string][]docstore.Document{}}

// Get returns the documents of a logical collection, or nil.
func (s *Snapshot) Get(name string) []docstore.Document {
	if s == nil {
		return nil
	}
	return s.Collections[name]
}

// with returns a copy of s with the given collections replaced.
func (s *Snapshot) with(version uint64, changed map[string][]docstore.Document) *Snapshot {
	next := &Snapshot{Version: version, Collections: make(map[string][]docstore.Document, len(s.Collections)+len(changed))}
	for k, v := range s.Collections {
		next.Collections[k] = v
	}
	for k, v := range changed {
		next.Collections[k] = v
	}
	return next
}

// Items decodes a logical collection of snap into T.
func Items[T any](snap *Snapshot, name string) ([]T, error) {
	out, err := docstore.DecodeAll[T](snap.Get(name))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

// Load computes a one-shot Snapshot for v without subscribing.
func Load(ctx context.Context, b docstore.Backend, v Viewer, policies []Policy) (*Snapshot, error) {
	if policies == nil {
		policies = DefaultPolicies()
	}
	ps := allowed(policies, v)
	raw := make(map[string][]docstore.Document)
	for _, c := range collections(ps) {
		docs, err := b.Find(ctx, c, nil)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", c, err)
		}
		raw[c] = docs
	}
	snap := &Snapshot{Version: 1, Collections: make(map[string][]docstore.Document, len(ps))}
	for _, p := range ps {
		snap.Collections[p.Name] = p.project(v, raw[p.Collection])
	}
	return snap, nil
}

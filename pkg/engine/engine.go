// Package engine implements the top-level façade that every protocol
// adapter talks to: collections, documents, KV, batch/transact, vector
// search, and columnar tables, wired over pkg/lsm, pkg/columnar,
// pkg/shard, and pkg/admission. Grounded on the teacher's top-level
// database façade (dd0wney-graphdb's pkg/graph orchestration of storage +
// indexing) generalized from graph operations to document/KV/columnar
// operations per this module's domain.
package engine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lumadb/luma/pkg/admission"
	"github.com/lumadb/luma/pkg/columnar"
	"github.com/lumadb/luma/pkg/lsm"
	"github.com/lumadb/luma/pkg/lumaerr"
	"github.com/lumadb/luma/pkg/shard"
)

const (
	collMetaPrefix = "\x00coll\x00"
	docKeyPrefix   = "\x00doc\x00"
	kvKeyPrefix    = "\x00kv\x00"
)

// Trigger is user code invoked around a document mutation.
type Trigger func(ctx context.Context, collection string, id string, doc []byte) error

// Options configures an Engine.
type Options struct {
	LSM       lsm.Options
	NumShards uint32
}

// Engine is the façade over one storage shard's worth of LSM + admission
// control; it does not place records through pkg/tier. A deployment runs one Engine per shard
// (spec's shard-per-core model); routing across shards is the caller's
// responsibility via pkg/shard.Engine.
type Engine struct {
	store *lsm.Engine
	adm   *admission.Controller
	shard *shard.Engine

	mu          sync.RWMutex
	collections map[string]*collectionMeta
	vectors     map[string]*vectorCollection
	tables      map[string]*columnar.Table

	beforeInsert, afterInsert []Trigger
	beforeUpdate, afterUpdate []Trigger
	beforeDelete, afterDelete []Trigger
}

type collectionMeta struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Open initializes the façade's storage engine and loads existing
// collection metadata.
func Open(opts Options) (*Engine, error) {
	store, err := lsm.Open(opts.LSM)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store:       store,
		adm:         admission.NewController(),
		shard:       shard.New(shard.Config{NumShards: opts.NumShards}),
		collections: make(map[string]*collectionMeta),
		vectors:     make(map[string]*vectorCollection),
		tables:      make(map[string]*columnar.Table),
	}
	if err := e.loadCollections(); err != nil {
		store.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadCollections() error {
	entries, err := e.store.Scan([]byte(collMetaPrefix), []byte(collMetaPrefix+"\xff"))
	if err != nil {
		return err
	}
	for _, kv := range entries {
		var m collectionMeta
		if err := json.Unmarshal(kv[1], &m); err != nil {
			continue
		}
		mm := m
		e.collections[m.Name] = &mm
	}
	return nil
}

func (e *Engine) persistCollection(m *collectionMeta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return lumaerr.Wrap("engine.persistCollection", lumaerr.Internal, err)
	}
	return e.store.Put([]byte(collMetaPrefix+m.Name), data)
}

// RegisterTrigger attaches fn to run before or after the named lifecycle
// event ("insert", "update", "delete"), before or after the mutation.
func (e *Engine) RegisterTrigger(when, event string, fn Trigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case when == "before" && event == "insert":
		e.beforeInsert = append(e.beforeInsert, fn)
	case when == "after" && event == "insert":
		e.afterInsert = append(e.afterInsert, fn)
	case when == "before" && event == "update":
		e.beforeUpdate = append(e.beforeUpdate, fn)
	case when == "after" && event == "update":
		e.afterUpdate = append(e.afterUpdate, fn)
	case when == "before" && event == "delete":
		e.beforeDelete = append(e.beforeDelete, fn)
	case when == "after" && event == "delete":
		e.afterDelete = append(e.afterDelete, fn)
	}
}

// CreateCollection registers a new, empty collection.
func (e *Engine) CreateCollection(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collections[name]; ok {
		return lumaerr.New("engine.CreateCollection", lumaerr.AlreadyExists)
	}
	m := &collectionMeta{Name: name}
	e.collections[name] = m
	return e.persistCollection(m)
}

// DropCollection deletes a collection's metadata and every document in it.
func (e *Engine) DropCollection(name string) error {
	e.mu.Lock()
	if _, ok := e.collections[name]; !ok {
		e.mu.Unlock()
		return lumaerr.New("engine.DropCollection", lumaerr.NotFound)
	}
	delete(e.collections, name)
	e.mu.Unlock()

	prefix := docKey(name, "")
	docs, err := e.store.Scan([]byte(prefix), []byte(prefix+"\xff"))
	if err != nil {
		return err
	}
	for _, kv := range docs {
		if err := e.store.Delete(kv[0]); err != nil {
			return err
		}
	}
	return e.store.Delete([]byte(collMetaPrefix + name))
}

// ListCollections returns every known collection name, sorted.
func (e *Engine) ListCollections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.collections))
	for name := range e.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DescribeCollection returns a collection's metadata.
func (e *Engine) DescribeCollection(name string) (Collection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.collections[name]
	if !ok {
		return Collection{}, lumaerr.New("engine.DescribeCollection", lumaerr.NotFound)
	}
	return Collection{Name: m.Name, Count: m.Count}, nil
}

// Collection is the describe() result shape.
type Collection struct {
	Name  string
	Count int64
}

// Count returns a collection's current document count.
func (e *Engine) Count(name string) (int64, error) {
	c, err := e.DescribeCollection(name)
	if err != nil {
		return 0, err
	}
	return c.Count, nil
}

func docKey(collection, id string) string {
	return docKeyPrefix + collection + "\x00" + id
}

func kvKey(table, key string) string {
	return kvKeyPrefix + table + "\x00" + key
}

// acquire blocks on the Normal SLA tier's admission semaphore for
// operations that carry a context, and releases ctx's deadline/cancel as
// the controller's own timeout. Document/KV operations all share one
// tier for now; a future protocol adapter wanting Critical/Background
// treatment can call e.adm directly with its own tier.
func (e *Engine) acquire(ctx context.Context) (*admission.Guard, error) {
	return e.adm.Acquire(ctx, admission.Normal, 0)
}

// tryAcquire is the non-blocking counterpart for operations with no
// context parameter to carry cancellation.
func (e *Engine) tryAcquire() (*admission.Guard, error) {
	return e.adm.TryAcquire(admission.Normal)
}

func runTriggers(ctx context.Context, triggers []Trigger, collection, id string, doc []byte) error {
	for _, t := range triggers {
		if err := t(ctx, collection, id, doc); err != nil {
			return err
		}
	}
	return nil
}

// Insert assigns a new document id (uuid v4), runs before/after-insert
// triggers, and persists doc under the collection.
func (e *Engine) Insert(ctx context.Context, collection string, doc []byte) (string, error) {
	guard, err := e.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer guard.Release()

	e.mu.RLock()
	m, ok := e.collections[collection]
	e.mu.RUnlock()
	if !ok {
		return "", lumaerr.New("engine.Insert", lumaerr.NotFound)
	}

	id := uuid.NewString()
	e.mu.RLock()
	before := e.beforeInsert
	after := e.afterInsert
	e.mu.RUnlock()

	if err := runTriggers(ctx, before, collection, id, doc); err != nil {
		return "", err
	}
	if err := e.store.Put([]byte(docKey(collection, id)), doc); err != nil {
		return "", err
	}

	e.mu.Lock()
	m.Count++
	persistErr := e.persistCollection(m)
	e.mu.Unlock()
	if persistErr != nil {
		return "", persistErr
	}

	if err := runTriggers(ctx, after, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns a document by id, or ok=false if absent.
func (e *Engine) Get(collection, id string) ([]byte, bool, error) {
	guard, err := e.tryAcquire()
	if err != nil {
		return nil, false, err
	}
	defer guard.Release()
	return e.store.Get([]byte(docKey(collection, id)))
}

// Update replaces an existing document's bytes, returning false if it does
// not exist.
func (e *Engine) Update(ctx context.Context, collection, id string, doc []byte) (bool, error) {
	guard, err := e.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer guard.Release()

	_, exists, err := e.store.Get([]byte(docKey(collection, id)))
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	e.mu.RLock()
	before, after := e.beforeUpdate, e.afterUpdate
	e.mu.RUnlock()

	if err := runTriggers(ctx, before, collection, id, doc); err != nil {
		return false, err
	}
	if err := e.store.Put([]byte(docKey(collection, id)), doc); err != nil {
		return false, err
	}
	if err := runTriggers(ctx, after, collection, id, doc); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a document, returning false if it did not exist.
func (e *Engine) Delete(ctx context.Context, collection, id string) (bool, error) {
	guard, err := e.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer guard.Release()

	_, exists, err := e.store.Get([]byte(docKey(collection, id)))
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	e.mu.RLock()
	before, after := e.beforeDelete, e.afterDelete
	m := e.collections[collection]
	e.mu.RUnlock()

	if err := runTriggers(ctx, before, collection, id, nil); err != nil {
		return false, err
	}
	if err := e.store.Delete([]byte(docKey(collection, id))); err != nil {
		return false, err
	}
	if m != nil {
		e.mu.Lock()
		if m.Count > 0 {
			m.Count--
		}
		_ = e.persistCollection(m)
		e.mu.Unlock()
	}
	return true, runTriggers(ctx, after, collection, id, nil)
}

// DocEntry is one (id, doc) pair returned by Scan.
type DocEntry struct {
	ID  string
	Doc []byte
}

// Scan returns up to limit documents in collection whose id has the given
// prefix, in id order. limit <= 0 means unbounded.
func (e *Engine) Scan(collection, prefix string, limit int) ([]DocEntry, error) {
	start := docKey(collection, prefix)
	end := docKey(collection, prefix) + "\xff"
	kvs, err := e.store.Scan([]byte(start), []byte(end))
	if err != nil {
		return nil, err
	}
	base := docKey(collection, "")
	out := make([]DocEntry, 0, len(kvs))
	for _, kv := range kvs {
		id := strings.TrimPrefix(string(kv[0]), base)
		out = append(out, DocEntry{ID: id, Doc: kv[1]})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// KVGet reads a value from a flat key-value table.
func (e *Engine) KVGet(table, key string) ([]byte, bool, error) {
	guard, err := e.tryAcquire()
	if err != nil {
		return nil, false, err
	}
	defer guard.Release()
	return e.store.Get([]byte(kvKey(table, key)))
}

// KVPut writes a value into a flat key-value table.
func (e *Engine) KVPut(table, key string, value []byte) error {
	guard, err := e.tryAcquire()
	if err != nil {
		return err
	}
	defer guard.Release()
	return e.store.Put([]byte(kvKey(table, key)), value)
}

// KVDelete removes a key from a flat key-value table.
func (e *Engine) KVDelete(table, key string) error {
	guard, err := e.tryAcquire()
	if err != nil {
		return err
	}
	defer guard.Release()
	return e.store.Delete([]byte(kvKey(table, key)))
}

// KVFilter is a predicate evaluated against a raw KV value during
// KVQuery; returning false excludes the entry.
type KVFilter func(key string, value []byte) bool

// KVQuery scans every key in table and returns the ones filter accepts.
func (e *Engine) KVQuery(table string, filter KVFilter) ([]DocEntry, error) {
	prefix := kvKeyPrefix + table + "\x00"
	kvs, err := e.store.Scan([]byte(prefix), []byte(prefix+"\xff"))
	if err != nil {
		return nil, err
	}
	var out []DocEntry
	for _, kv := range kvs {
		key := strings.TrimPrefix(string(kv[0]), prefix)
		if filter == nil || filter(key, kv[1]) {
			out = append(out, DocEntry{ID: key, Doc: kv[1]})
		}
	}
	return out, nil
}

// Close releases the underlying storage engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

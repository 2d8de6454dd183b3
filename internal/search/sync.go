package search

import (
	"context"
	"log"
	"reflect"
	"sync"

	"gorm.io/gorm"
)

// SyncPlugin keeps the index in line with committed writes of Document models.
type SyncPlugin struct {
	index *Index
}

// NewSyncPlugin returns a gorm plugin that indexes committed writes.
func NewSyncPlugin(index *Index) *SyncPlugin {
	return &SyncPlugin{index: index}
}

// Name implements gorm.Plugin.
func (p *SyncPlugin) Name() string {
	return "search:sync"
}

// Initialize registers the after-commit callbacks.
func (p *SyncPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().After("gorm:commit_or_rollback_transaction").Register("search:after_create", p.afterSave); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:commit_or_rollback_transaction").Register("search:after_update", p.afterSave); err != nil {
		return err
	}
	return cb.Delete().After("gorm:commit_or_rollback_transaction").Register("search:after_delete", p.afterDelete)
}

func (p *SyncPlugin) afterSave(db *gorm.DB) {
	p.record(db, false)
}

func (p *SyncPlugin) afterDelete(db *gorm.DB) {
	p.record(db, true)
}

func (p *SyncPlugin) record(db *gorm.DB, remove bool) {
	if db.Error != nil || db.Statement == nil {
		return
	}
	docs := documents(db.Statement.ReflectValue)
	if len(docs) == 0 {
		return
	}

	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if changes := changesFrom(ctx); changes != nil {
		for _, doc := range docs {
			changes.add(change{index: p.index, doc: doc, remove: remove})
		}
		return
	}

	for _, doc := range docs {
		(change{index: p.index, doc: doc, remove: remove}).apply(ctx)
	}
}

// documents extracts the Document values held by a statement's reflect value.
func documents(rv reflect.Value) []Document {
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		var docs []Document
		for i := 0; i < rv.Len(); i++ {
			docs = append(docs, documents(rv.Index(i))...)
		}
		return docs
	case reflect.Struct:
		if !rv.CanInterface() {
			return nil
		}
		if doc, ok := rv.Interface().(Document); ok && doc.DocumentID() != 0 {
			return []Document{doc}
		}
	}
	return nil
}

type change struct {
	index  *Index
	doc    Document
	remove bool
}

func (c change) apply(ctx context.Context) {
	var err error
	if c.remove {
		err = c.index.Remove(ctx, c.doc)
	} else {
		err = c.index.Add(ctx, c.doc)
	}
	if err != nil {
		log.Printf("[SEARCH] Failed to sync %s/%d: %v", c.doc.IndexName(), c.doc.DocumentID(), err)
	}
}

type changesKey struct{}

// Changes collects index updates made inside a transaction so they can be
// applied once it commits.
type Changes struct {
	mu      sync.Mutex
	pending []change
}

// Collect returns a context that defers index updates into the returned
// Changes. When ctx already collects changes the outer collector is kept and
// nil is returned.
func Collect(ctx context.Context) (context.Context, *Changes) {
	if changesFrom(ctx) != nil {
		return ctx, nil
	}
	changes := &Changes{}
	return context.WithValue(ctx, changesKey{}, changes), changes
}

func changesFrom(ctx context.Context) *Changes {
	changes, _ := ctx.Value(changesKey{}).(*Changes)
	return changes
}

func (c *Changes) add(ch change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, ch)
}

// Len returns the number of queued updates.
func (c *Changes) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Commit applies the queued updates in order.
func (c *Changes) Commit(ctx context.Context) {
	if c == nil {
		return
	}
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	ctx = context.WithValue(ctx, changesKey{}, (*Changes)(nil))
	for _, ch := range pending {
		ch.apply(ctx)
	}
}

// Discard drops the queued updates after a rollback.
func (c *Changes) Discard() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}

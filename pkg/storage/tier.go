package storage

import (
	"context"
	"errors"

	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

// Tier adapts a Store namespace to the asynchronous tier.Local contract.
// Each call runs on its own goroutine and reports through done.
type Tier struct {
	store    Store
	database string
}

// NewTier binds a store namespace
func NewTier(store Store, database string) *Tier {
	return &Tier{store: store, database: database}
}

var _ tier.Local = (*Tier)(nil)

func (t *Tier) Put(ctx context.Context, key string, entry types.Fields, done func(tier.LocalResult)) {
	entry = entry.Clone()
	go func() {
		timer := metrics.NewTimer()
		err := ctxErr(ctx)
		if err == nil {
			err = t.store.Put(t.database, key, entry)
		}
		timer.ObserveDurationVec(metrics.LocalRequestDuration, "put")
		t.report(err)
		done(tier.LocalResult{Key: key, Fields: entry, Err: err})
	}()
}

func (t *Tier) Get(ctx context.Context, key string, done func(tier.LocalResult)) {
	go func() {
		timer := metrics.NewTimer()
		var entry types.Fields
		err := ctxErr(ctx)
		if err == nil {
			entry, err = t.store.Get(t.database, key)
		}
		timer.ObserveDurationVec(metrics.LocalRequestDuration, "get")
		if !errors.Is(err, ErrNotFound) {
			t.report(err)
		}
		done(tier.LocalResult{Key: key, Fields: entry, Err: err})
	}()
}

func (t *Tier) Remove(ctx context.Context, key string, done func(tier.LocalResult)) {
	go func() {
		timer := metrics.NewTimer()
		var removed types.Fields
		err := ctxErr(ctx)
		if err == nil {
			removed, err = t.store.Delete(t.database, key)
		}
		timer.ObserveDurationVec(metrics.LocalRequestDuration, "remove")
		t.report(err)
		done(tier.LocalResult{Key: key, Fields: removed, Err: err})
	}()
}

func (t *Tier) All(ctx context.Context, done func(tier.LocalEntries)) {
	go func() {
		timer := metrics.NewTimer()
		var entries map[string]types.Fields
		err := ctxErr(ctx)
		if err == nil {
			entries, err = t.store.List(t.database)
		}
		timer.ObserveDurationVec(metrics.LocalRequestDuration, "all")
		t.report(err)
		done(tier.LocalEntries{Entries: entries, Err: err})
	}()
}

func (t *Tier) report(err error) {
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentLocal, false, err.Error())
		return
	}
	metrics.UpdateComponent(metrics.ComponentLocal, true, "")
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

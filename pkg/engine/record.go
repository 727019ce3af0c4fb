package engine

import (
	"sync"

	"github.com/cuemby/tiersync/pkg/types"
)

// Record is one keyed document reconciled across the tiers. Callers read
// and edit field values; the bookkeeping attributes are maintained by the
// engine and exposed read-only.
type Record struct {
	db  *Database
	key string

	mu               sync.RWMutex
	fields           types.Fields
	status           types.Status
	saved            types.Fields
	local            types.Fields
	pendingDiff      types.Fields
	pendingBroadcast types.Fields
	tombstoned       bool
	head             *operation
}

func newRecord(db *Database, key string, fields types.Fields) *Record {
	return &Record{
		db:     db,
		key:    key,
		fields: fields.Without(),
		status: types.StatusSynced,
	}
}

func (r *Record) Key() string {
	return r.key
}

// Fields returns a copy of the current field values
func (r *Record) Fields() types.Fields {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fields.Clone()
}

// Field returns a single field value
func (r *Record) Field(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.fields[name]
	return v, ok
}

// Set changes a field value. The change is persisted by the next Save.
// Reserved names are ignored.
func (r *Record) Set(name string, value interface{}) {
	if types.IsReserved(name) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[name] = value
}

// Update sets every non-reserved entry of values
func (r *Record) Update(values types.Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = r.fields.Merge(values.Without())
}

// Unset deletes a field
func (r *Record) Unset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fields, name)
}

func (r *Record) Status() types.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Saved returns the last remotely acknowledged snapshot, nil if the record
// was never created remotely.
func (r *Record) Saved() types.Fields {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saved.Clone()
}

// LocalSnapshot returns the mirror of the local tier entry
func (r *Record) LocalSnapshot() types.Fields {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.local.Clone()
}

func (r *Record) PendingDiff() types.Fields {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingDiff.Clone()
}

func (r *Record) PendingBroadcast() types.Fields {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingBroadcast.Clone()
}

func (r *Record) Tombstoned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tombstoned
}

// Busy reports whether an operation is executing on the record
func (r *Record) Busy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.head != nil
}

// Dirty reports whether the fields differ from the saved snapshot
func (r *Record) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fields.Diff(r.saved)) > 0
}

func (r *Record) getHead() *operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.head
}

func (r *Record) setHead(op *operation) {
	r.mu.Lock()
	r.head = op
	r.mu.Unlock()
}

func (r *Record) setStatus(s types.Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// snapshotLocal rebuilds the local snapshot from the current fields with
// the saved snapshot nested under its reserved key.
func (r *Record) snapshotLocal() types.Fields {
	r.mu.Lock()
	defer r.mu.Unlock()
	local := r.fields.Without()
	if r.saved != nil {
		local[types.SavedKey] = r.saved.Clone()
	}
	r.local = local
	return local.Clone()
}

// applyRemote merges remote-sourced data into both the fields and the saved
// snapshot so it never shows up as a local change.
func (r *Record) applyRemote(data types.Fields) {
	data = data.Without()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = r.fields.Merge(data)
	r.saved = r.saved.Merge(data)
}

// clearPending drops the in-flight bookkeeping
func (r *Record) clearPending() {
	r.mu.Lock()
	r.pendingDiff = nil
	r.pendingBroadcast = nil
	r.mu.Unlock()
}

func (r *Record) everSaved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saved != nil
}

func (r *Record) tombstone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tombstoned {
		return false
	}
	r.tombstoned = true
	return true
}

// applyLocal merges a local tier entry into the record, restoring the saved
// snapshot if the record has none yet.
func (r *Record) applyLocal(entry types.Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = r.fields.Merge(entry.Without())
	if r.saved == nil {
		if saved, ok := types.AsFields(entry[types.SavedKey]); ok {
			r.saved = saved.Clone()
		}
	}
	r.local = entry.Clone()
}

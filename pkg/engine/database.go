package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/connectivity"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/log"
	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

// Validator rejects field values before a save is queued
type Validator func(types.Fields) error

// Database coordinates the operation chains of every record of one type.
// All record state changes run on a per-database executor; the only state
// shared across records is the in-flight counter.
type Database struct {
	name      string
	tiers     tier.Set
	monitor   *connectivity.Monitor
	keyFn     types.KeyFunc
	cache     types.CachePolicy
	validator Validator
	broker    *events.Broker
	tracer    func(string)
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	exec   *executor
	closed atomic.Bool

	mu       sync.RWMutex
	records  map[string]*Record
	reserved map[string]struct{}

	inflight atomic.Int64

	nextWatch atomic.Uint64

	// connectivity probes running off the executor
	checks sync.WaitGroup

	// executor-owned
	quiescent  map[uint64]func()
	suspended  map[*operation]*connectivity.Subscription
	cancelLive func()
}

// Option configures a Database
type Option func(*Database)

// WithKey sets how record keys are derived. Default SimpleKey("id").
func WithKey(fn types.KeyFunc) Option {
	return func(db *Database) {
		db.keyFn = fn
	}
}

// WithCachePolicy sets how much of the database the local tier keeps
func WithCachePolicy(p types.CachePolicy) Option {
	return func(db *Database) {
		db.cache = p
	}
}

func WithValidator(v Validator) Option {
	return func(db *Database) {
		db.validator = v
	}
}

// WithBroker publishes engine signals on b
func WithBroker(b *events.Broker) Option {
	return func(db *Database) {
		db.broker = b
	}
}

// WithTracer receives one line per chain transition, in executor order
func WithTracer(fn func(string)) Option {
	return func(db *Database) {
		db.tracer = fn
	}
}

// WithContext sets the parent context passed to tier calls
func WithContext(ctx context.Context) Option {
	return func(db *Database) {
		db.ctx = ctx
	}
}

// NewDatabase creates the coordinator for one record type. monitor may be
// nil, in which case remote calls that report no network are terminal.
func NewDatabase(name string, tiers tier.Set, monitor *connectivity.Monitor, opts ...Option) *Database {
	db := &Database{
		name:      name,
		tiers:     tiers,
		monitor:   monitor,
		keyFn:     types.SimpleKey("id"),
		cache:     types.CacheAll,
		ctx:       context.Background(),
		exec:      newExecutor(log.WithDatabase(name)),
		records:   make(map[string]*Record),
		reserved:  make(map[string]struct{}),
		quiescent: make(map[uint64]func()),
		suspended: make(map[*operation]*connectivity.Subscription),
		logger:    log.WithDatabase(name),
	}
	for _, opt := range opts {
		opt(db)
	}
	db.ctx, db.cancel = context.WithCancel(db.ctx)

	if tiers.Local == nil {
		db.cache = types.CacheNone
	}
	if tiers.Live != nil {
		db.cancelLive = tiers.Live.Subscribe(db.receiveLive)
	}
	metrics.OperationsInFlight.WithLabelValues(name).Set(0)
	return db
}

func (db *Database) Name() string {
	return db.name
}

func (db *Database) CachePolicy() types.CachePolicy {
	return db.cache
}

// Create builds a new active record and reserves its key. Nothing is
// persisted until Save.
func (db *Database) Create(fields types.Fields) (*Record, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	fields = fields.Without()
	key, err := db.keyFn(fields)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.reserved[key]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrKeyReserved, db.name, key)
	}
	rec := newRecord(db, key, fields)
	db.reserved[key] = struct{}{}
	db.records[key] = rec
	return rec, nil
}

// Get returns the active record for key
func (db *Database) Get(key string) (*Record, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.records[key]
	return rec, ok
}

// Records returns the active records ordered by key
func (db *Database) Records() []*Record {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*Record, 0, len(db.records))
	for _, rec := range db.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Save validates rec and starts its save pipeline
func (db *Database) Save(rec *Record, mask cascade.Mask) error {
	if err := db.check(rec); err != nil {
		return err
	}
	if rec.Tombstoned() {
		return ErrTombstoned
	}
	if db.validator != nil {
		if err := db.validator(rec.Fields()); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return db.submit(func() {
		db.addOperation(rec, SaveLocal, mask)
	})
}

// Remove decides the removal of rec and starts its remove pipeline. A
// record already tombstoned is left alone.
func (db *Database) Remove(rec *Record, mask cascade.Mask) error {
	if err := db.check(rec); err != nil {
		return err
	}
	return db.submit(func() {
		if !rec.tombstone() {
			return
		}
		db.addOperation(rec, RemoveLocal, mask)
	})
}

// Fetch refreshes rec from the local then the remote tier
func (db *Database) Fetch(rec *Record, mask cascade.Mask) error {
	if err := db.check(rec); err != nil {
		return err
	}
	if rec.Tombstoned() {
		return ErrTombstoned
	}
	return db.submit(func() {
		db.addOperation(rec, GetLocal, mask)
	})
}

// AddOperation attaches any stage to rec's chain. It bypasses validation
// and tombstone checks; stages still honor the tombstone themselves.
func (db *Database) AddOperation(rec *Record, stage Stage, mask cascade.Mask) error {
	if err := db.check(rec); err != nil {
		return err
	}
	return db.submit(func() {
		db.addOperation(rec, stage, mask)
	})
}

func (db *Database) check(rec *Record) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if rec == nil || rec.db != db {
		return ErrForeignRecord
	}
	return nil
}

func (db *Database) submit(fn func()) error {
	if !db.exec.submit(fn) {
		return ErrClosed
	}
	return nil
}

// InFlight returns the number of executing or suspended operations
func (db *Database) InFlight() int {
	return int(db.inflight.Load())
}

// Idle reports whether no operation is in flight and no work is queued
func (db *Database) Idle() bool {
	return db.inflight.Load() == 0 && db.exec.pending() == 0
}

// OnQuiescent calls fn, on the executor, every time the in-flight counter
// returns to zero. The returned function removes the watcher.
func (db *Database) OnQuiescent(fn func()) (cancel func()) {
	id := db.nextWatch.Add(1)
	db.submit(func() {
		db.quiescent[id] = fn
	})
	return func() {
		db.submit(func() {
			delete(db.quiescent, id)
		})
	}
}

// WaitIdle blocks until the in-flight counter is zero. Work submitted
// before the call is attached first, so a Save followed by WaitIdle waits
// for that save's pipeline. Suspended offline operations count as in
// flight.
func (db *Database) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(done) }) }

	id := db.nextWatch.Add(1)
	err := db.submit(func() {
		if db.inflight.Load() == 0 {
			signal()
			return
		}
		db.quiescent[id] = func() {
			delete(db.quiescent, id)
			signal()
		}
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		db.submit(func() { delete(db.quiescent, id) })
		return ctx.Err()
	}
}

// Close stops intake, cancels suspended remote operations and refuses new
// work. Tier calls already issued complete into the void.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if db.cancelLive != nil {
		db.cancelLive()
	}
	db.exec.submit(func() {
		for op, sub := range db.suspended {
			sub.Cancel()
			delete(db.suspended, op)
		}
		db.exec.close()
	})
	db.cancel()
	db.logger.Debug().Msg("Database closed")
	return nil
}

// StatusCounts counts active records by status
func (db *Database) StatusCounts() map[types.Status]int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	counts := make(map[types.Status]int)
	for _, rec := range db.records {
		counts[rec.Status()]++
	}
	return counts
}

func (db *Database) started() {
	n := db.inflight.Add(1)
	metrics.OperationsInFlight.WithLabelValues(db.name).Set(float64(n))
}

func (db *Database) finished() {
	n := db.inflight.Add(-1)
	if n < 0 {
		db.logger.Error().Int64("inflight", n).Msg("In-flight counter went negative")
		db.inflight.Store(0)
		n = 0
	}
	metrics.OperationsInFlight.WithLabelValues(db.name).Set(float64(n))
	if n != 0 {
		return
	}

	db.trace(nil, "quiescent")
	db.emit(events.EventDatabaseQuiescent, "", "", nil)
	watchers := make([]func(), 0, len(db.quiescent))
	for _, fn := range db.quiescent {
		watchers = append(watchers, fn)
	}
	for _, fn := range watchers {
		fn()
	}
}

// release drops the record from the active set and frees its key
func (db *Database) release(rec *Record) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.records[rec.key] == rec {
		delete(db.records, rec.key)
		delete(db.reserved, rec.key)
	}
}

// adopt registers a record built outside Create (load, live intake)
func (db *Database) adopt(rec *Record) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.reserved[rec.key]; ok {
		return false
	}
	db.reserved[rec.key] = struct{}{}
	db.records[rec.key] = rec
	return true
}

func (db *Database) emit(t events.EventType, key, message string, data types.Fields) {
	if db.broker == nil {
		return
	}
	db.broker.Publish(&events.Event{
		ID:        ulid.Make().String(),
		Type:      t,
		Timestamp: time.Now(),
		Database:  db.name,
		Key:       key,
		Message:   message,
		Data:      data.Clone(),
	})
}

func (db *Database) trace(op *operation, event string) {
	if db.tracer == nil {
		return
	}
	if op == nil {
		db.tracer(event)
		return
	}
	db.tracer(fmt.Sprintf("%s %s %s", op.rec.key, op.stage, event))
}

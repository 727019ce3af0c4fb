package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/tiersync/pkg/connectivity"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/health"
	"github.com/cuemby/tiersync/pkg/storage"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

// callLog records tier calls in the order the engine makes them
type callLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *callLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func (l *callLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = nil
}

// fakeLocal is an in-memory local tier. Calls complete inline unless hold
// is set, in which case they wait for release.
type fakeLocal struct {
	log *callLog

	mu      sync.Mutex
	entries map[string]types.Fields
	putErr  error
	hold    bool
	held    []func()
}

func newFakeLocal(log *callLog) *fakeLocal {
	return &fakeLocal{log: log, entries: make(map[string]types.Fields)}
}

func (f *fakeLocal) complete(fn func()) {
	f.mu.Lock()
	if f.hold {
		f.held = append(f.held, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn()
}

// release completes every held call in order and stops holding
func (f *fakeLocal) release() {
	f.mu.Lock()
	held := f.held
	f.held = nil
	f.hold = false
	f.mu.Unlock()
	for _, fn := range held {
		fn()
	}
}

func (f *fakeLocal) setHold(hold bool) {
	f.mu.Lock()
	f.hold = hold
	f.mu.Unlock()
}

func (f *fakeLocal) entry(key string) (types.Fields, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	return e.Clone(), ok
}

func (f *fakeLocal) seed(key string, entry types.Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = entry.Clone()
}

func (f *fakeLocal) Put(ctx context.Context, key string, entry types.Fields, done func(tier.LocalResult)) {
	f.log.add("local.put %s %s", key, formatFields(entry))
	entry = entry.Clone()
	f.complete(func() {
		f.mu.Lock()
		err := f.putErr
		if err == nil {
			f.entries[key] = entry
		}
		f.mu.Unlock()
		done(tier.LocalResult{Key: key, Fields: entry, Err: err})
	})
}

func (f *fakeLocal) Get(ctx context.Context, key string, done func(tier.LocalResult)) {
	f.log.add("local.get %s", key)
	f.complete(func() {
		entry, ok := f.entry(key)
		if !ok {
			done(tier.LocalResult{Key: key, Err: storage.ErrNotFound})
			return
		}
		done(tier.LocalResult{Key: key, Fields: entry})
	})
}

func (f *fakeLocal) Remove(ctx context.Context, key string, done func(tier.LocalResult)) {
	f.log.add("local.remove %s", key)
	f.complete(func() {
		f.mu.Lock()
		removed := f.entries[key]
		delete(f.entries, key)
		f.mu.Unlock()
		done(tier.LocalResult{Key: key, Fields: removed})
	})
}

func (f *fakeLocal) All(ctx context.Context, done func(tier.LocalEntries)) {
	f.log.add("local.all")
	f.mu.Lock()
	entries := make(map[string]types.Fields, len(f.entries))
	for k, v := range f.entries {
		entries[k] = v.Clone()
	}
	f.mu.Unlock()
	done(tier.LocalEntries{Entries: entries})
}

// remoteCall is one outstanding remote request, resolved by the test
type remoteCall struct {
	Method string
	Key    string
	Diff   types.Fields
	done   func(tier.RemoteResult)
}

func (c *remoteCall) respond(status int, data types.Fields) {
	var err error
	if status < 200 || status >= 300 {
		err = fmt.Errorf("status %d", status)
	}
	c.done(tier.RemoteResult{Status: status, Data: data, Err: err})
}

// fakeRemote holds every call until the test responds to it, or answers
// immediately when auto is set.
type fakeRemote struct {
	log *callLog

	mu      sync.Mutex
	calls   []*remoteCall
	pending []*remoteCall
	auto    func(c *remoteCall) (int, types.Fields)
}

func newFakeRemote(log *callLog) *fakeRemote {
	return &fakeRemote{log: log}
}

func (f *fakeRemote) record(method, key string, diff types.Fields, done func(tier.RemoteResult)) {
	if diff != nil {
		f.log.add("remote.%s %s %s", method, key, formatFields(diff))
	} else {
		f.log.add("remote.%s %s", method, key)
	}
	c := &remoteCall{Method: method, Key: key, Diff: diff.Clone(), done: done}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	auto := f.auto
	if auto == nil {
		f.pending = append(f.pending, c)
	}
	f.mu.Unlock()

	if auto != nil {
		status, data := auto(c)
		c.respond(status, data)
	}
}

// take pops the oldest unanswered call
func (f *fakeRemote) take(t *testing.T) *remoteCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.pending, "no outstanding remote call")
	c := f.pending[0]
	f.pending = f.pending[1:]
	return c
}

func (f *fakeRemote) outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeRemote) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeRemote) Create(ctx context.Context, key string, diff types.Fields, done func(tier.RemoteResult)) {
	f.record("create", key, diff, done)
}

func (f *fakeRemote) Update(ctx context.Context, key string, diff types.Fields, done func(tier.RemoteResult)) {
	f.record("update", key, diff, done)
}

func (f *fakeRemote) Remove(ctx context.Context, key string, done func(tier.RemoteResult)) {
	f.record("remove", key, nil, done)
}

func (f *fakeRemote) Get(ctx context.Context, key string, done func(tier.RemoteResult)) {
	f.record("get", key, nil, done)
}

type fakeLive struct {
	log *callLog

	mu        sync.Mutex
	published []tier.LiveMessage
	subs      map[int]func(tier.LiveMessage)
	nextID    int
}

func newFakeLive(log *callLog) *fakeLive {
	return &fakeLive{log: log, subs: make(map[int]func(tier.LiveMessage))}
}

func (f *fakeLive) Publish(msg tier.LiveMessage) {
	f.log.add("live.%s %s %s", msg.Op, msg.Key, formatFields(msg.Data))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
}

func (f *fakeLive) Subscribe(fn func(tier.LiveMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// deliver hands msg to every subscriber as if another client sent it
func (f *fakeLive) deliver(msg tier.LiveMessage) {
	f.mu.Lock()
	subs := make([]func(tier.LiveMessage), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

func (f *fakeLive) messages() []tier.LiveMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tier.LiveMessage(nil), f.published...)
}

type harness struct {
	t       *testing.T
	db      *Database
	log     *callLog
	trace   *callLog
	local   *fakeLocal
	remote  *fakeRemote
	live    *fakeLive
	probe   *health.StaticChecker
	monitor *connectivity.Monitor
	events  events.Subscriber
}

var harnessSeq int

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newHarnessWithChecker(t, nil, opts...)
}

// newHarnessWithChecker samples probe instead of the switchable static checker
func newHarnessWithChecker(t *testing.T, probe health.Checker, opts ...Option) *harness {
	t.Helper()
	harnessSeq++

	log := &callLog{}
	trace := &callLog{}
	h := &harness{
		t:      t,
		log:    log,
		trace:  trace,
		local:  newFakeLocal(log),
		remote: newFakeRemote(log),
		live:   newFakeLive(log),
		probe:  health.NewStaticChecker(true),
	}

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	h.events = broker.Subscribe()

	if probe == nil {
		probe = h.probe
	}
	h.monitor = connectivity.NewMonitor(context.Background(), probe)

	base := []Option{
		WithBroker(broker),
		WithTracer(func(line string) { trace.add("%s", line) }),
	}
	h.db = NewDatabase(
		fmt.Sprintf("%s-%d", t.Name(), harnessSeq),
		tier.Set{Local: h.local, Remote: h.remote, Live: h.live},
		h.monitor,
		append(base, opts...)...,
	)
	t.Cleanup(func() { h.db.Close() })
	return h
}

func (h *harness) create(fields types.Fields) *Record {
	h.t.Helper()
	rec, err := h.db.Create(fields)
	require.NoError(h.t, err)
	return rec
}

// saved creates a record and drives it through a successful first save
func (h *harness) saved(fields types.Fields) *Record {
	h.t.Helper()
	rec := h.create(fields)
	require.NoError(h.t, h.db.Save(rec, allMask))
	h.remote.take(h.t).respond(http.StatusCreated, nil)
	require.Equal(h.t, types.StatusSynced, rec.Status())
	require.Zero(h.t, h.db.InFlight())
	h.log.Reset()
	h.trace.Reset()
	return rec
}

// goOffline makes the next probe report the remote unreachable
func (h *harness) goOffline() {
	h.probe.Set(false)
}

// noNetwork answers the oldest remote call with status 0 and waits for
// the connectivity probe it triggers to report back to the executor
func (h *harness) noNetwork() {
	h.t.Helper()
	h.remote.take(h.t).respond(0, nil)
	h.db.checks.Wait()
}

// goOnline flips the probe and samples it, firing online subscribers
func (h *harness) goOnline() {
	h.probe.Set(true)
	h.monitor.CheckStatus(context.Background())
}

// expectEvent waits for the next event of type et for this database
func (h *harness) expectEvent(et events.EventType) *events.Event {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == et && ev.Database == h.db.Name() {
				return ev
			}
		case <-deadline:
			h.t.Fatalf("no %s event", et)
			return nil
		}
	}
}

// assertQuiet checks the in-flight counter agrees with the records' chains
func (h *harness) assertQuiet() {
	h.t.Helper()
	require.Zero(h.t, h.db.InFlight())
	for _, rec := range h.db.Records() {
		require.False(h.t, rec.Busy(), "record %s still has an operation", rec.Key())
	}
}

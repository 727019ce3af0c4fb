// Package tier defines the contracts between the sync engine and the three
// storage tiers it reconciles: the local durable cache, the authoritative
// remote service and the live broadcast channel.
//
// Every call is asynchronous. An adapter reports the outcome exactly once by
// invoking the supplied done function with a tagged result, from any
// goroutine. Failures are values, never panics.
package tier

import (
	"context"

	"github.com/cuemby/tiersync/pkg/types"
)

// Remote status codes with engine-level meaning
const (
	StatusNoNetwork = 0
	StatusNotFound  = 404
	StatusConflict  = 409
	StatusGone      = 410
)

// LocalResult is the outcome of a local tier call
type LocalResult struct {
	Key string
	// Fields is the stored entry for Get, the written entry for Put and the
	// removed value for Remove.
	Fields types.Fields
	Err    error
}

// OK reports whether the call succeeded
func (r LocalResult) OK() bool {
	return r.Err == nil
}

// LocalEntries is the outcome of listing a local namespace
type LocalEntries struct {
	Entries map[string]types.Fields
	Err     error
}

// Local is the local durable key/value cache for one database
type Local interface {
	Put(ctx context.Context, key string, entry types.Fields, done func(LocalResult))
	Get(ctx context.Context, key string, done func(LocalResult))
	Remove(ctx context.Context, key string, done func(LocalResult))
	All(ctx context.Context, done func(LocalEntries))
}

// RemoteResult is the outcome of a remote tier call. Data carries the
// response body, which is authoritative on a conflict.
type RemoteResult struct {
	Status int
	Data   types.Fields
	Err    error
}

// OK reports a 2xx response
func (r RemoteResult) OK() bool {
	return r.Err == nil && r.Status >= 200 && r.Status < 300
}

// NoNetwork reports that the remote service was unreachable
func (r RemoteResult) NoNetwork() bool {
	return r.Status == StatusNoNetwork
}

// Gone reports that the remote copy no longer exists
func (r RemoteResult) Gone() bool {
	return r.Status == StatusNotFound || r.Status == StatusGone
}

// Conflict reports a version conflict whose body wins
func (r RemoteResult) Conflict() bool {
	return r.Status == StatusConflict
}

// Remote is the authoritative remote service for one database
type Remote interface {
	Create(ctx context.Context, key string, diff types.Fields, done func(RemoteResult))
	Update(ctx context.Context, key string, diff types.Fields, done func(RemoteResult))
	Remove(ctx context.Context, key string, done func(RemoteResult))
	Get(ctx context.Context, key string, done func(RemoteResult))
}

// LiveOp is the kind of change announced on the live channel
type LiveOp string

const (
	LiveSave   LiveOp = "save"
	LiveRemove LiveOp = "remove"
)

// LiveMessage is one broadcast announcement
type LiveMessage struct {
	Op       LiveOp       `json:"op"`
	Database string       `json:"database"`
	Key      string       `json:"key"`
	Data     types.Fields `json:"data,omitempty"`
}

// Live is the broadcast channel shared with other clients. Publish is fire
// and forget.
type Live interface {
	Publish(msg LiveMessage)
	// Subscribe registers fn for messages published by other clients and
	// returns a function that cancels the subscription.
	Subscribe(fn func(LiveMessage)) (cancel func())
}

// Set bundles the adapters of one database. Nil members disable that tier.
type Set struct {
	Local  Local
	Remote Remote
	Live   Live
}

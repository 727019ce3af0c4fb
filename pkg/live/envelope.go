// Package live implements the live broadcast tier.
//
// Messages travel inside an Envelope that names the publishing origin so a
// client can drop its own echoes. Loopback connects in-process endpoints;
// Hub and Client relay envelopes over WebSocket.
package live

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cuemby/tiersync/pkg/tier"
)

// Envelope wraps one live message on the wire
type Envelope struct {
	ID      string           `json:"id"`
	Origin  string           `json:"origin"`
	Sent    time.Time        `json:"sent"`
	Message tier.LiveMessage `json:"message"`
}

// NewEnvelope stamps msg with a fresh ID
func NewEnvelope(origin string, msg tier.LiveMessage) Envelope {
	return Envelope{
		ID:      ulid.Make().String(),
		Origin:  origin,
		Sent:    time.Now().UTC(),
		Message: msg,
	}
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if e.ID == "" || e.Origin == "" {
		return Envelope{}, fmt.Errorf("envelope missing id or origin")
	}
	return e, nil
}

// subscribers is a cancelable callback set
type subscribers struct {
	mu     sync.RWMutex
	nextID uint64
	fns    map[uint64]func(tier.LiveMessage)
}

func (s *subscribers) add(fn func(tier.LiveMessage)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[uint64]func(tier.LiveMessage))
	}
	s.nextID++
	id := s.nextID
	s.fns[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) deliver(msg tier.LiveMessage) {
	s.mu.RLock()
	fns := make([]func(tier.LiveMessage), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (s *subscribers) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fns)
}

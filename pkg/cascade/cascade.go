package cascade

import (
	"fmt"
	"strings"
)

// Mask selects which tiers an operation may touch
type Mask uint8

const (
	// Local allows persisting to the local durable cache
	Local Mask = 1 << iota
	// Remote allows persisting to the authoritative remote service
	Remote
	// Live allows broadcasting over the live channel
	Live
)

const (
	None        Mask = 0
	LocalRemote      = Local | Remote
	LocalLive        = Local | Live
	RemoteLive       = Remote | Live
	All              = Local | Remote | Live
)

// CanCascade reports whether every bit of required is set in mask
func CanCascade(mask, required Mask) bool {
	return mask&required == required
}

// Has is the method form of CanCascade
func (m Mask) Has(required Mask) bool {
	return CanCascade(m, required)
}

func (m Mask) String() string {
	switch m {
	case None:
		return "none"
	case All:
		return "all"
	}

	var parts []string
	if m.Has(Local) {
		parts = append(parts, "local")
	}
	if m.Has(Remote) {
		parts = append(parts, "remote")
	}
	if m.Has(Live) {
		parts = append(parts, "live")
	}
	return strings.Join(parts, "+")
}

// Parse reads a mask written as "all", "none" or bit names joined by '+' or ','
func Parse(s string) (Mask, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "all":
		return All, nil
	case "none":
		return None, nil
	}

	var m Mask
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' }) {
		switch strings.TrimSpace(part) {
		case "local":
			m |= Local
		case "remote":
			m |= Remote
		case "live":
			m |= Live
		default:
			return None, fmt.Errorf("unknown cascade bit %q", part)
		}
	}
	return m, nil
}

package engine

import (
	"fmt"
	"strings"
)

// Stage names one step of a record's operation pipeline
type Stage int

const (
	SaveLocal Stage = iota + 1
	SaveRemote
	SaveNow
	RemoveCache
	RemoveLocal
	RemoveRemote
	RemoveNow
	GetLocal
	GetRemote
)

var stageNames = map[Stage]string{
	SaveLocal:    "save_local",
	SaveRemote:   "save_remote",
	SaveNow:      "save_now",
	RemoveCache:  "remove_cache",
	RemoveLocal:  "remove_local",
	RemoveRemote: "remove_remote",
	RemoveNow:    "remove_now",
	GetLocal:     "get_local",
	GetRemote:    "get_remote",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Interrupts reports whether queuing the stage replaces any not yet started
// successor instead of appending after it.
func (s Stage) Interrupts() bool {
	switch s {
	case RemoveLocal, RemoveRemote, RemoveNow:
		return true
	}
	return false
}

// ParseStage resolves a stage by name
func ParseStage(name string) (Stage, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

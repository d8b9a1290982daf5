package history

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skyarena/server/internal/combat"
	"github.com/skyarena/server/internal/world"
)

// ErrTurnRecorded is returned when a turn number is written twice.
var ErrTurnRecorded = errors.New("turn already recorded")

// Snapshot is the arena state right after a turn resolved. Characters carry
// the actions as submitted for that turn.
type Snapshot struct {
	Turn       int                   `json:"turn"`
	ResolvedAt time.Time             `json:"resolved_at"`
	Characters []world.CharacterView `json:"characters"`
	Events     []combat.Event        `json:"events"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Characters = append([]world.CharacterView(nil), s.Characters...)
	out.Events = append([]combat.Event(nil), s.Events...)
	return out
}

// History is the append-only, turn-indexed log of snapshots.
type History struct {
	mu    sync.RWMutex
	turns map[int]Snapshot
	last  int // highest recorded turn, -1 when empty
}

func New() *History {
	return &History{turns: make(map[int]Snapshot), last: -1}
}

// Record stores a copy of s. Entries are never overwritten.
func (h *History) Record(s Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.turns[s.Turn]; ok {
		return fmt.Errorf("turn %d: %w", s.Turn, ErrTurnRecorded)
	}
	h.turns[s.Turn] = s.clone()
	if s.Turn > h.last {
		h.last = s.Turn
	}
	return nil
}

// Get returns a copy of the snapshot for turn, or world.ErrNotFound.
func (h *History) Get(turn int) (Snapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.turns[turn]
	if !ok {
		return Snapshot{}, fmt.Errorf("turn %d: %w", turn, world.ErrNotFound)
	}
	return s.clone(), nil
}

// Latest returns the most recent snapshot.
func (h *History) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last < 0 {
		return Snapshot{}, false
	}
	return h.turns[h.last].clone(), true
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

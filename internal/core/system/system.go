package system

import (
	"time"

	"github.com/skyarena/server/internal/combat"
	"github.com/skyarena/server/internal/world"
)

// Phase defines execution ordering within a single turn.
type Phase int

const (
	PhaseInput      Phase = iota // 0: reserved, intents arrive through the engine API
	PhasePreUpdate               // 1: housekeeping before resolution
	PhaseUpdate                  // 2: combat resolution
	PhasePostUpdate              // 3: relocation leases
	PhaseOutput                  // 4: queue events for subscribers
	PhasePersist                 // 5: history snapshot
	PhaseCleanup                 // 6: reset intents
)

// Turn is the state shared by all systems while one turn is processed.
// Systems run under the engine lock; they must not block.
type Turn struct {
	ID      int
	Now     time.Time
	Arena   *world.Arena
	Rand    combat.Rand
	Outcome combat.Outcome
}

// System is the interface every turn pipeline stage implements.
type System interface {
	Phase() Phase
	Update(t *Turn)
}

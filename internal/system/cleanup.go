package system

import (
	coresys "github.com/skyarena/server/internal/core/system"
	"github.com/skyarena/server/internal/world"
)

// IntentSystem clears every character's action at turn end (Phase 6).
// Targets are kept so agents can keep hitting the same foe.
type IntentSystem struct{}

func NewIntentSystem() *IntentSystem {
	return &IntentSystem{}
}

func (s *IntentSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *IntentSystem) Update(t *coresys.Turn) {
	for _, c := range t.Arena.Characters() {
		c.SetAction(world.ActionNone)
	}
}

package system

import (
	"github.com/skyarena/server/internal/combat"
	"github.com/skyarena/server/internal/core/event"
	coresys "github.com/skyarena/server/internal/core/system"
)

// EventSystem queues the turn result on the bus (Phase 4). Subscribers run
// after the engine releases the arena lock.
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *EventSystem) Update(t *coresys.Turn) {
	event.Emit(s.bus, event.TurnResolved{
		Turn:       t.ID,
		ResolvedAt: t.Now,
		Events:     append([]combat.Event(nil), t.Outcome.Events...),
		Alive:      t.Arena.ActiveCount(),
	})
}

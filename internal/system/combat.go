package system

import (
	"github.com/skyarena/server/internal/combat"
	coresys "github.com/skyarena/server/internal/core/system"
	"go.uber.org/zap"
)

// CombatSystem resolves every submitted action of the turn (Phase 2).
// The engine only ticks the runner once every eligible character has acted.
type CombatSystem struct {
	log *zap.Logger
}

func NewCombatSystem(log *zap.Logger) *CombatSystem {
	return &CombatSystem{log: log}
}

func (s *CombatSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *CombatSystem) Update(t *coresys.Turn) {
	t.Outcome = combat.Resolve(t.ID, t.Arena, t.Rand)

	for _, ev := range t.Outcome.Events {
		if ev.Kind == combat.EventDeath {
			s.log.Info("character died", zap.Int("turn", t.ID), zap.String("cid", ev.Actor))
		}
	}
	s.log.Debug("turn resolved",
		zap.Int("turn", t.ID),
		zap.Int("events", len(t.Outcome.Events)),
		zap.Int("deaths", len(t.Outcome.Deaths)),
		zap.Int("flyers", len(t.Outcome.Flyers)))
}

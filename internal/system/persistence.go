package system

import (
	coresys "github.com/skyarena/server/internal/core/system"
	"github.com/skyarena/server/internal/history"
	"go.uber.org/zap"
)

// HistorySystem writes the post-resolution arena into the turn log (Phase 5).
// It runs before intents are reset so the snapshot keeps the submitted actions.
type HistorySystem struct {
	history *history.History
	log     *zap.Logger
}

func NewHistorySystem(h *history.History, log *zap.Logger) *HistorySystem {
	return &HistorySystem{history: h, log: log}
}

func (s *HistorySystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *HistorySystem) Update(t *coresys.Turn) {
	err := s.history.Record(history.Snapshot{
		Turn:       t.ID,
		ResolvedAt: t.Now,
		Characters: t.Arena.Views(),
		Events:     t.Outcome.Events,
	})
	if err != nil {
		// Turn ids only grow, so this means two runners share one history.
		s.log.Error("history write failed", zap.Int("turn", t.ID), zap.Error(err))
	}
}

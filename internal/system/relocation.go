package system

import (
	"github.com/skyarena/server/internal/core/event"
	coresys "github.com/skyarena/server/internal/core/system"
	"github.com/skyarena/server/internal/relocation"
	"go.uber.org/zap"
)

// RelocationSystem issues a lease for every character whose FLY resolved
// this turn and takes it out of combat until the lease is released (Phase 3).
// With a nil signer relocation is disabled and FLY only skips the turn.
type RelocationSystem struct {
	signer *relocation.Signer
	ledger *relocation.Ledger
	bus    *event.Bus
	log    *zap.Logger
}

func NewRelocationSystem(signer *relocation.Signer, ledger *relocation.Ledger, bus *event.Bus, log *zap.Logger) *RelocationSystem {
	return &RelocationSystem{signer: signer, ledger: ledger, bus: bus, log: log}
}

func (s *RelocationSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *RelocationSystem) Update(t *coresys.Turn) {
	if s.signer == nil {
		return
	}
	for _, id := range t.Outcome.Flyers {
		c, ok := t.Arena.Get(id)
		if !ok {
			continue
		}
		lease, err := s.signer.Issue(id, t.Now)
		if err != nil {
			s.log.Error("lease issue failed", zap.String("cid", id), zap.Error(err))
			continue
		}
		c.InFlight = true
		s.ledger.Put(lease)
		event.Emit(s.bus, event.LeaseIssued{
			Turn:        t.ID,
			CharacterID: id,
			LeaseID:     lease.ID,
			ExpiresAt:   lease.ExpiresAt,
		})
		s.log.Info("relocation lease issued",
			zap.Int("turn", t.ID),
			zap.String("cid", id),
			zap.String("lease", lease.ID),
			zap.Time("expires", lease.ExpiresAt))
	}
}

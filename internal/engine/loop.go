package engine

import (
	"context"
	"time"

	"github.com/skyarena/server/internal/core/event"
	coresys "github.com/skyarena/server/internal/core/system"
	"go.uber.org/zap"
)

// State returns the loop's lifecycle state.
func (e *Engine) State() RunState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// IsRunning reports whether the turn loop is active.
func (e *Engine) IsRunning() bool {
	return e.State() == StateRunning
}

// Done is closed when the turn loop exits, whether by Stop or on its own.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Start launches the turn loop in the background.
func (e *Engine) Start() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	switch e.state {
	case StateRunning:
		return ErrAlreadyRunning
	case StateStopped:
		return ErrEngineStopped
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.state = StateRunning
	go e.loop(ctx)
	e.log.Info("turn loop started",
		zap.Int("min_players", e.opts.MinPlayers),
		zap.Duration("poll", e.opts.PollInterval))
	return nil
}

// Stop ends the loop between turns and waits for it to exit. STOPPED is terminal.
func (e *Engine) Stop() error {
	e.stateMu.Lock()
	if e.state != StateRunning {
		e.stateMu.Unlock()
		return ErrNotRunning
	}
	e.state = StateStopped
	e.cancel()
	e.stateMu.Unlock()

	<-e.done
	e.log.Info("turn loop stopped", zap.Int("turn", e.CurrentTurn()))
	return nil
}

// Advance runs one poll of the loop on the caller's goroutine: reclaim
// expired leases and resolve a turn if everyone is ready. It reports whether
// a turn resolved. Only valid on an idle engine: a running loop owns the
// turns, and a stopped engine processes none.
func (e *Engine) Advance() (bool, error) {
	switch e.State() {
	case StateRunning:
		return false, ErrAlreadyRunning
	case StateStopped:
		return false, ErrEngineStopped
	}
	resolved, _ := e.step()
	e.flush()
	return resolved, nil
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	defer e.flush()

	if !e.waitUntil(ctx, e.opts.StartPollInterval, e.IsReadyToStart) {
		return
	}
	e.log.Info("arena ready, turns begin", zap.Int("turn", e.CurrentTurn()))

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		resolved, alive := e.step()
		e.flush()
		if resolved && alive == 0 {
			e.finish("no living characters")
			return
		}
	}
}

// waitUntil polls cond at interval until it holds or ctx is cancelled.
func (e *Engine) waitUntil(ctx context.Context, interval time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			e.flush()
			if cond() {
				return true
			}
		}
	}
}

// step is one poll under the arena lock. The runner is only ticked when
// every eligible character has an action.
func (e *Engine) step() (resolved bool, alive int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stepping = true
	defer func() { e.stepping = false }()

	now := e.opts.Now()
	e.reclaimLeases(now)

	if !e.arena.AllSubmittedAction() {
		return false, e.arena.ActiveCount()
	}
	e.runner.Tick(&coresys.Turn{
		ID:    e.turnID,
		Now:   now,
		Arena: e.arena,
		Rand:  e.opts.Rand,
	})
	e.turnID++
	return true, e.arena.ActiveCount()
}

// reclaimLeases returns characters whose lease ran out to combat on this
// node and drops arrivals that were never settled. The two sides use the same
// lease, so a character is never active on both nodes. Caller holds mu.
func (e *Engine) reclaimLeases(now time.Time) {
	for _, lease := range e.ledger.Expired(now) {
		e.ledger.Delete(lease.CharacterID)
		if c, ok := e.arena.Get(lease.CharacterID); ok {
			c.InFlight = false
		}
		event.Emit(e.bus, event.LeaseExpired{CharacterID: lease.CharacterID, LeaseID: lease.ID})
		e.log.Info("relocation lease expired, character reclaimed",
			zap.String("cid", lease.CharacterID),
			zap.String("lease", lease.ID))
	}
	for id, a := range e.arrivals {
		if a.settled {
			if !now.Before(a.expires) {
				delete(e.arrivals, id)
			}
			continue
		}
		if now.Before(a.deadline) {
			continue
		}
		delete(e.arrivals, id)
		if c, ok := e.arena.Get(a.characterID); ok && c.InFlight {
			e.log.Warn("unsettled arrival dropped",
				zap.String("cid", a.characterID),
				zap.String("lease", id))
			e.removeLocked(a.characterID)
		}
	}
}

// finish moves a running loop to STOPPED on its own.
func (e *Engine) finish(reason string) {
	e.stateMu.Lock()
	if e.state == StateRunning {
		e.state = StateStopped
		e.cancel()
	}
	e.stateMu.Unlock()

	turn := e.CurrentTurn()
	event.Emit(e.bus, event.EngineStopped{Turn: turn, Reason: reason})
	e.log.Info("turn loop finished", zap.Int("turn", turn), zap.String("reason", reason))
}

// flush delivers queued events. Called only from the goroutine driving turns.
func (e *Engine) flush() {
	if !e.bus.Pending() {
		return
	}
	e.bus.SwapBuffers()
	e.bus.DispatchAll()
}

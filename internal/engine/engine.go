package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/skyarena/server/internal/combat"
	"github.com/skyarena/server/internal/core/event"
	coresys "github.com/skyarena/server/internal/core/system"
	"github.com/skyarena/server/internal/history"
	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/system"
	"github.com/skyarena/server/internal/world"
	"go.uber.org/zap"
)

// RunState is the lifecycle of the turn loop.
type RunState int

const (
	StateIdle    RunState = iota // no loop started yet
	StateRunning                 // loop advancing turns
	StateStopped                 // terminal
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RunState) UnmarshalText(b []byte) error {
	for _, st := range []RunState{StateIdle, StateRunning, StateStopped} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", b)
}

// Options configures one engine node.
type Options struct {
	Node              string
	Rules             world.Rules
	MinPlayers        int
	PollInterval      time.Duration
	StartPollInterval time.Duration
	Seed              int64

	// Signer issues and verifies relocation leases. Nil disables relocation.
	Signer *relocation.Signer

	// Rand and Now override the seeded source and wall clock (tests).
	Rand combat.Rand
	Now  func() time.Time
}

func (o *Options) setDefaults() {
	if o.Node == "" {
		o.Node = "arena"
	}
	if o.Rules == (world.Rules{}) {
		o.Rules = world.DefaultRules()
	}
	if o.MinPlayers < 1 {
		o.MinPlayers = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.StartPollInterval <= 0 {
		o.StartPollInterval = time.Second
	}
	if o.Rand == nil {
		o.Rand = combat.NewRand(o.Seed)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine owns one arena and drives its turns. All arena access goes through
// mu; history, bus and run state have their own locks.
type Engine struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	arena    *world.Arena
	turnID   int
	runner   *coresys.Runner
	ledger   *relocation.Ledger
	arrivals map[string]*arrival // consumed lease id
	stepping bool                // inside step, a flush follows

	history *history.History
	bus     *event.Bus

	stateMu sync.Mutex
	state   RunState
	cancel  func()
	done    chan struct{}
}

// New builds an idle engine.
func New(opts Options, log *zap.Logger) *Engine {
	opts.setDefaults()
	e := &Engine{
		opts:     opts,
		log:      log.With(zap.String("node", opts.Node)),
		arena:    world.NewArena(),
		runner:   coresys.NewRunner(),
		ledger:   relocation.NewLedger(),
		arrivals: make(map[string]*arrival),
		history:  history.New(),
		bus:      event.NewBus(),
		done:     make(chan struct{}),
	}
	e.runner.Register(system.NewCombatSystem(e.log))
	e.runner.Register(system.NewRelocationSystem(opts.Signer, e.ledger, e.bus, e.log))
	e.runner.Register(system.NewEventSystem(e.bus))
	e.runner.Register(system.NewHistorySystem(e.history, e.log))
	e.runner.Register(system.NewIntentSystem())
	return e
}

// Node returns the node name.
func (e *Engine) Node() string { return e.opts.Node }

// Rules returns the stat rules joins are validated against.
func (e *Engine) Rules() world.Rules { return e.opts.Rules }

// Bus exposes the event bus for subscribers. Handlers run on the loop
// goroutine outside the arena lock.
func (e *Engine) Bus() *event.Bus { return e.bus }

// AddCharacter validates and registers a new character.
func (e *Engine) AddCharacter(spec world.CharacterSpec) (string, error) {
	c, err := world.NewCharacter(spec, e.opts.Rules)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.arena.Add(c); err != nil {
		return "", err
	}
	queue(e, event.CharacterJoined{Turn: e.turnID, CharacterID: c.ID, TeamID: c.TeamID})
	e.log.Info("character joined",
		zap.String("cid", c.ID),
		zap.String("team", c.TeamID),
		zap.Int("life", c.Life))
	return c.ID, nil
}

// arrival tracks a relocated character admitted under a lease. Until the
// source releases it and the mover settles it here, the character stays in
// flight on this node; an unsettled arrival is dropped at its deadline.
type arrival struct {
	characterID string
	expires     time.Time // lease expiry, replay protection ends here
	deadline    time.Time // settle window end
	settled     bool
}

// Arrive admits a character relocating from another node. The join is
// idempotent: an id already present yields world.ErrDuplicateID and callers
// must treat it as "already relocated". The character is pending until Settle.
func (e *Engine) Arrive(spec world.CharacterSpec, lease relocation.Lease) (string, error) {
	if e.opts.Signer == nil {
		return "", fmt.Errorf("%w: relocation disabled on %s", relocation.ErrInvalidLease, e.opts.Node)
	}
	c, err := world.NewCharacter(spec, e.opts.Rules)
	if err != nil {
		return "", err
	}
	if world.NormalizeID(lease.CharacterID) != c.ID {
		return "", fmt.Errorf("%w: lease for %q presented by %q", relocation.ErrInvalidLease, lease.CharacterID, c.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.arena.Get(c.ID); ok {
		return "", fmt.Errorf("arrive %s: %w", c.ID, world.ErrDuplicateID)
	}
	now := e.opts.Now()
	if err := e.opts.Signer.Verify(lease, now); err != nil {
		return "", err
	}
	if _, used := e.arrivals[lease.ID]; used {
		return "", fmt.Errorf("%w: lease %s already used", relocation.ErrInvalidLease, lease.ID)
	}
	c.InFlight = true
	if err := e.arena.Add(c); err != nil {
		return "", err
	}
	e.arrivals[lease.ID] = &arrival{
		characterID: c.ID,
		expires:     lease.ExpiresAt,
		deadline:    lease.ExpiresAt.Add(lease.ExpiresAt.Sub(lease.IssuedAt)),
	}
	queue(e, event.CharacterJoined{Turn: e.turnID, CharacterID: c.ID, TeamID: c.TeamID, Relocated: true})
	e.log.Info("character arrived",
		zap.String("cid", c.ID),
		zap.String("from", lease.Source),
		zap.String("lease", lease.ID),
		zap.Int("life", c.Life))
	return c.ID, nil
}

// Settle activates a pending arrival once the source has released the
// character. Settling twice is a no-op.
func (e *Engine) Settle(id, leaseID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.arrivals[leaseID]
	if !ok || a.characterID != world.NormalizeID(id) {
		if _, present := e.arena.Get(id); !present {
			return fmt.Errorf("settle %s: %w", id, world.ErrNotFound)
		}
		return fmt.Errorf("%w: no arrival of %q under lease %s", relocation.ErrInvalidLease, id, leaseID)
	}
	c, ok := e.arena.Get(a.characterID)
	if !ok {
		return fmt.Errorf("settle %s: %w", id, world.ErrNotFound)
	}
	if a.settled {
		return nil
	}
	a.settled = true
	c.InFlight = false
	e.log.Info("arrival settled", zap.String("cid", c.ID), zap.String("lease", leaseID))
	return nil
}

// Release removes a departing character from the source. It only succeeds
// while the lease the mover holds is still outstanding: once the lease ran
// out the source has reclaimed the character and the destination copy will
// be dropped.
func (e *Engine) Release(id, leaseID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.arena.Get(id)
	if !ok {
		return fmt.Errorf("release %s: %w", id, world.ErrNotFound)
	}
	lease, ok := e.ledger.Get(c.ID)
	switch {
	case !ok:
		return fmt.Errorf("release %s: no outstanding lease: %w", id, relocation.ErrLeaseExpired)
	case lease.ID != leaseID:
		return fmt.Errorf("%w: %s is not the outstanding lease of %q", relocation.ErrInvalidLease, leaseID, id)
	case lease.Expired(e.opts.Now()):
		return fmt.Errorf("release %s: %w", id, relocation.ErrLeaseExpired)
	}
	return e.removeLocked(c.ID)
}

// RemoveCharacter takes a character out of the arena. A second call yields
// world.ErrNotFound.
func (e *Engine) RemoveCharacter(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(id)
}

// removeLocked drops a character. Caller holds mu.
func (e *Engine) removeLocked(id string) error {
	c, err := e.arena.Remove(id)
	if err != nil {
		return err
	}
	e.ledger.Delete(c.ID)
	queue(e, event.CharacterLeft{Turn: e.turnID, CharacterID: c.ID})
	e.log.Info("character left", zap.String("cid", c.ID), zap.Bool("in_flight", c.InFlight))
	return nil
}

// queue puts an event on the bus when a flush will follow: inside a step, or
// while the loop runs. Anything else would sit in the back buffer for good.
// Caller holds mu.
func queue[T any](e *Engine, ev T) {
	if e.stepping || e.IsRunning() {
		event.Emit(e.bus, ev)
	}
}

// GetCharacter returns a copy of a character's state, dead ones included.
func (e *Engine) GetCharacter(id string) (world.CharacterView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.arena.Get(id)
	if !ok {
		return world.CharacterView{}, fmt.Errorf("get %s: %w", id, world.ErrNotFound)
	}
	return c.View(), nil
}

// ListCharacterIDs returns every id on this node in join order.
func (e *Engine) ListCharacterIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arena.IDs()
}

// ValidTargets returns the ids id may target this turn.
func (e *Engine) ValidTargets(id string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arena.ValidTargets(world.NormalizeID(id))
}

// SetTarget stores a target id. The target is not checked here: it is
// re-resolved when the turn closes.
func (e *Engine) SetTarget(id, targetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.intentTarget(id)
	if err != nil {
		return err
	}
	c.SetTarget(targetID)
	return nil
}

// SetAction overwrites a character's pending action.
func (e *Engine) SetAction(id string, a world.Action) error {
	if a < world.ActionNone || a > world.ActionFly {
		return fmt.Errorf("%w: %d", world.ErrInvalidAction, int(a))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.intentTarget(id)
	if err != nil {
		return err
	}
	c.SetAction(a)
	return nil
}

// intentTarget looks up a character that may receive intents. Caller holds mu.
func (e *Engine) intentTarget(id string) (*world.Character, error) {
	c, ok := e.arena.Get(id)
	if !ok {
		return nil, fmt.Errorf("intent %s: %w", id, world.ErrNotFound)
	}
	if c.InFlight {
		return nil, fmt.Errorf("intent %s: %w", id, ErrCharacterInFlight)
	}
	return c, nil
}

// Departure returns the character and its outstanding lease after FLY resolved.
func (e *Engine) Departure(id string) (relocation.Departure, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.arena.Get(id)
	if !ok {
		return relocation.Departure{}, fmt.Errorf("departure %s: %w", id, world.ErrNotFound)
	}
	lease, ok := e.ledger.Get(c.ID)
	if !ok {
		return relocation.Departure{}, fmt.Errorf("departure %s: %w", id, ErrNoDeparture)
	}
	return relocation.Departure{Character: c.View(), Lease: lease}, nil
}

// IsReady reports whether every eligible character has submitted an action.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arena.AllSubmittedAction()
}

// IsReadyToStart reports whether enough living characters joined.
func (e *Engine) IsReadyToStart() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arena.ActiveCount() >= e.opts.MinPlayers
}

// CurrentTurn returns the number of the next turn to resolve.
func (e *Engine) CurrentTurn() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnID
}

// History returns the snapshot written when turn resolved.
func (e *Engine) History(turn int) (history.Snapshot, error) {
	return e.history.Get(turn)
}

// LatestSnapshot returns the most recent history entry.
func (e *Engine) LatestSnapshot() (history.Snapshot, bool) {
	return e.history.Latest()
}

// Status is a point-in-time summary for collaborators.
type Status struct {
	Node       string   `json:"node"`
	State      RunState `json:"state"`
	Turn       int      `json:"turn"`
	Characters int      `json:"characters"`
	Alive      int      `json:"alive"`
	InFlight   int      `json:"in_flight"`
	Ready      bool     `json:"ready"`
}

func (e *Engine) Status() Status {
	state := e.State()
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Node:       e.opts.Node,
		State:      state,
		Turn:       e.turnID,
		Characters: e.arena.Len(),
		Alive:      e.arena.ActiveCount(),
		InFlight:   e.ledger.Len(),
		Ready:      e.arena.AllSubmittedAction(),
	}
}

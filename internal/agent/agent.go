// Package agent drives roster characters against arena nodes: it asks a Lua
// strategy for each turn's intent and carries out FLY relocations.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/skyarena/server/internal/client"
	"github.com/skyarena/server/internal/data"
	"github.com/skyarena/server/internal/engine"
	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/scripting"
	"github.com/skyarena/server/internal/world"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cluster is the set of node clients shared by every agent.
type Cluster struct {
	roster *data.RosterTable
	nodes  map[string]*client.Client
}

// NewCluster builds one client per roster node.
func NewCluster(roster *data.RosterTable, httpClient *http.Client) *Cluster {
	c := &Cluster{roster: roster, nodes: make(map[string]*client.Client, len(roster.Nodes))}
	for _, n := range roster.Nodes {
		c.nodes[n.Name] = client.New(n.Name, n.URL, httpClient)
	}
	return c
}

// Node returns the client for name, or nil.
func (c *Cluster) Node(name string) *client.Client { return c.nodes[name] }

// Agent plays one character.
type Agent struct {
	entry     data.CharacterEntry
	cluster   *Cluster
	strategy  *scripting.Engine
	relocator *relocation.Relocator
	log       *zap.Logger

	node        string // node currently holding the character
	destination string // pending FLY target
	leaseID     string // lease of a move released on the source but not settled
}

func New(entry data.CharacterEntry, cluster *Cluster, strategy *scripting.Engine, relocator *relocation.Relocator, log *zap.Logger) *Agent {
	return &Agent{
		entry:     entry,
		cluster:   cluster,
		strategy:  strategy,
		relocator: relocator,
		log:       log.With(zap.String("cid", entry.ID)),
		node:      entry.Home,
	}
}

// Node returns the node the agent believes holds its character.
func (a *Agent) Node() string { return a.node }

// Join creates the character on its home node. An existing character with the
// same id is adopted.
func (a *Agent) Join(ctx context.Context) error {
	_, err := a.cluster.Node(a.node).Join(ctx, a.entry.Spec())
	switch {
	case err == nil:
		a.log.Info("character joined", zap.String("node", a.node))
	case errors.Is(err, world.ErrDuplicateID):
		a.log.Info("character already present, adopting", zap.String("node", a.node))
	default:
		return fmt.Errorf("join %s on %s: %w", a.entry.ID, a.node, err)
	}
	return nil
}

// Run joins and then plays every interval until the character dies, leaves
// the cluster or ctx ends.
func (a *Agent) Run(ctx context.Context, interval time.Duration) error {
	if err := a.Join(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		alive, err := a.Play(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.log.Warn("turn failed", zap.String("node", a.node), zap.Error(err))
			continue
		}
		if !alive {
			return nil
		}
	}
}

// Play performs one agent step. It reports false once the character is dead
// or gone from its node.
func (a *Agent) Play(ctx context.Context) (bool, error) {
	node := a.cluster.Node(a.node)
	self, err := node.Character(ctx, a.entry.ID)
	if errors.Is(err, world.ErrNotFound) {
		if a.leaseID != "" {
			return a.finishMove(ctx)
		}
		a.log.Info("character no longer on node", zap.String("node", a.node))
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if !self.Alive {
		a.log.Info("character died", zap.String("node", a.node))
		return false, nil
	}
	if self.InFlight {
		return true, a.relocate(ctx)
	}
	a.destination, a.leaseID = "", ""
	if self.Action != world.ActionNone {
		return true, nil // waiting for the turn to close
	}

	sctx, err := a.strategyContext(ctx, node, self)
	if err != nil {
		return true, err
	}
	d := a.strategy.Decide(a.entry.Strategy, sctx)

	if d.Action == world.ActionHit {
		if err := node.SetTarget(ctx, a.entry.ID, d.Target); err != nil {
			return true, fmt.Errorf("set target: %w", err)
		}
	}
	if err := node.SetAction(ctx, a.entry.ID, d.Action); err != nil {
		return true, fmt.Errorf("set action: %w", err)
	}
	if d.Action == world.ActionFly {
		a.destination = d.Destination
	}
	a.log.Debug("intent submitted",
		zap.Stringer("action", d.Action),
		zap.String("target", d.Target),
		zap.String("destination", d.Destination))
	return true, nil
}

func (a *Agent) strategyContext(ctx context.Context, node *client.Client, self world.CharacterView) (scripting.StrategyContext, error) {
	ids, err := node.Targets(ctx, a.entry.ID)
	if err != nil {
		return scripting.StrategyContext{}, fmt.Errorf("list targets: %w", err)
	}
	sctx := scripting.StrategyContext{Self: self, Nodes: a.cluster.roster.NodeNames(a.node)}
	for _, id := range ids {
		v, err := node.Character(ctx, id)
		if errors.Is(err, world.ErrNotFound) {
			continue // left between the two calls
		}
		if err != nil {
			return scripting.StrategyContext{}, fmt.Errorf("fetch %s: %w", id, err)
		}
		if v.TeamID == self.TeamID {
			sctx.Allies = append(sctx.Allies, v)
		} else {
			sctx.Foes = append(sctx.Foes, v)
		}
	}
	return sctx, nil
}

// relocate moves an in-flight character to its pending destination.
func (a *Agent) relocate(ctx context.Context) error {
	if a.destination == "" {
		// Restarted agent: no remembered destination.
		others := a.cluster.roster.NodeNames(a.node)
		if len(others) == 0 {
			return nil
		}
		a.destination = others[0]
	}
	src, dst := a.cluster.Node(a.node), a.cluster.Node(a.destination)
	if dst == nil {
		return fmt.Errorf("unknown destination %q", a.destination)
	}

	res, err := a.relocator.Move(ctx, a.entry.ID, src, dst)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoDeparture),
			errors.Is(err, relocation.ErrLeaseExpired),
			errors.Is(err, relocation.ErrInvalidLease):
			// The source kept or reclaimed the character; the destination
			// drops its frozen copy. Fight on where we are.
			a.destination = ""
			return nil
		case res.LeaseID != "":
			// Settle may still be missing; finishMove picks it up once the
			// source no longer holds the character.
			a.leaseID = res.LeaseID
		}
		return fmt.Errorf("relocate to %s: %w", a.destination, err)
	}
	a.log.Info("character relocated",
		zap.String("from", a.node),
		zap.String("to", a.destination),
		zap.String("lease", res.LeaseID))
	a.node, a.destination, a.leaseID = a.destination, "", ""
	return nil
}

// finishMove settles an arrival whose release already went through.
func (a *Agent) finishMove(ctx context.Context) (bool, error) {
	dst := a.cluster.Node(a.destination)
	if dst == nil {
		return false, nil
	}
	if err := a.relocator.Settle(ctx, a.entry.ID, a.leaseID, dst); err != nil {
		if errors.Is(err, world.ErrNotFound) || errors.Is(err, relocation.ErrInvalidLease) {
			a.log.Warn("relocated character lost", zap.String("to", a.destination), zap.Error(err))
			return false, nil
		}
		return true, err
	}
	a.log.Info("character relocated",
		zap.String("from", a.node),
		zap.String("to", a.destination),
		zap.String("lease", a.leaseID))
	a.node, a.destination, a.leaseID = a.destination, "", ""
	return true, nil
}

// RunRoster plays every roster character concurrently until all of them are
// done or ctx ends.
func RunRoster(ctx context.Context, roster *data.RosterTable, cluster *Cluster, strategy *scripting.Engine, relocator *relocation.Relocator, log *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, entry := range roster.Characters {
		a := New(entry, cluster, strategy, relocator, log)
		g.Go(func() error {
			return a.Run(ctx, roster.Interval)
		})
	}
	return g.Wait()
}

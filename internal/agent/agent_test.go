package agent

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skyarena/server/internal/api"
	"github.com/skyarena/server/internal/data"
	"github.com/skyarena/server/internal/engine"
	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/scripting"
	"github.com/skyarena/server/internal/world"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	north, south *engine.Engine
	roster       *data.RosterTable
	cluster      *Cluster
	strategy     *scripting.Engine
	relocator    *relocation.Relocator
}

func serve(t *testing.T, name string) (*engine.Engine, string) {
	t.Helper()
	signer, err := relocation.NewSigner(name, "cluster-secret", time.Minute)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	e := engine.New(engine.Options{Node: name, Seed: 3, Signer: signer}, zap.NewNop())
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(e, nil, zap.NewNop())))
	t.Cleanup(srv.Close)
	return e, srv.URL
}

// newHarness serves two nodes and loads a roster whose characters are given
// as YAML flow mappings.
func newHarness(t *testing.T, characters ...string) *harness {
	t.Helper()
	h := &harness{}
	var northURL, southURL string
	h.north, northURL = serve(t, "north")
	h.south, southURL = serve(t, "south")

	dir := t.TempDir()
	body := fmt.Sprintf("interval: 10ms\nnodes:\n  - {name: north, url: %q}\n  - {name: south, url: %q}\ncharacters:\n", northURL, southURL)
	for _, c := range characters {
		body += "  - " + c + "\n"
	}
	path := filepath.Join(dir, "roster.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	roster, err := data.LoadRoster(path)
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	h.roster = roster

	scripts := filepath.Join(dir, "scripts")
	os.Mkdir(scripts, 0o755)
	os.WriteFile(filepath.Join(scripts, "flyer.lua"), []byte(`
strategies.flyer = function(ctx)
  if #ctx.nodes > 0 then return { action = "FLY", destination = ctx.nodes[1] } end
  return { action = "BLOCK" }
end`), 0o644)
	h.strategy, err = scripting.NewEngine(scripts, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("strategy engine: %v", err)
	}
	t.Cleanup(h.strategy.Close)
	h.cluster = NewCluster(roster, nil)
	h.relocator = relocation.NewRelocator(zap.NewNop(), time.Millisecond, 3)
	return h
}

func (h *harness) agents(t *testing.T) []*Agent {
	t.Helper()
	var out []*Agent
	for _, entry := range h.roster.Characters {
		a := New(entry, h.cluster, h.strategy, h.relocator, zap.NewNop())
		if err := a.Join(context.Background()); err != nil {
			t.Fatalf("join %s: %v", entry.ID, err)
		}
		out = append(out, a)
	}
	return out
}

func play(t *testing.T, agents ...*Agent) {
	t.Helper()
	for _, a := range agents {
		if _, err := a.Play(context.Background()); err != nil {
			t.Fatalf("play %s: %v", a.entry.ID, err)
		}
	}
}

func TestAgentsFight(t *testing.T) {
	h := newHarness(t,
		"{cid: a, teamid: x, life: 8, strength: 6, home: north, strategy: berserk}",
		"{cid: b, teamid: y, life: 8, strength: 6, home: north, strategy: berserk}")
	agents := h.agents(t)

	play(t, agents...)
	if !h.north.IsReady() {
		t.Fatalf("agents did not submit intents")
	}
	a, _ := h.north.GetCharacter("a")
	if a.Action != world.ActionHit || a.Target != "b" {
		t.Fatalf("a intent = %+v", a)
	}
	if resolved, _ := h.north.Advance(); !resolved {
		t.Fatalf("turn did not resolve")
	}

	// A second play before the next turn resolves only resubmits once.
	play(t, agents...)
	play(t, agents...)
	if resolved, _ := h.north.Advance(); !resolved {
		t.Fatalf("second turn did not resolve")
	}
	b, _ := h.north.GetCharacter("b")
	if b.Life != 0 || b.Alive {
		t.Fatalf("b after two hits = %+v", b)
	}
}

func TestAgentStopsWhenDead(t *testing.T) {
	h := newHarness(t, "{cid: a, teamid: x, life: 2, home: north, strategy: turtle}")
	agents := h.agents(t)
	h.north.AddCharacter(world.CharacterSpec{ID: "killer", TeamID: "y", Life: 5, Strength: 9})
	h.north.SetAction("killer", world.ActionHit)
	h.north.SetTarget("killer", "a")
	play(t, agents...)
	h.north.Advance()

	alive, err := agents[0].Play(context.Background())
	if err != nil || alive {
		t.Fatalf("play after death = %v, %v", alive, err)
	}
}

func TestAgentAdoptsExistingCharacter(t *testing.T) {
	h := newHarness(t, "{cid: a, teamid: x, life: 2, home: south}")
	h.south.AddCharacter(world.CharacterSpec{ID: "a", TeamID: "x", Life: 2})
	agents := h.agents(t)
	if agents[0].Node() != "south" {
		t.Fatalf("node = %s", agents[0].Node())
	}
}

func TestAgentFliesToOtherNode(t *testing.T) {
	h := newHarness(t,
		"{cid: hero, teamid: x, life: 6, strength: 4, home: north, strategy: flyer}",
		"{cid: foe, teamid: y, life: 8, strength: 6, home: north, strategy: turtle}")
	agents := h.agents(t)
	hero := agents[0]

	play(t, agents...)
	if resolved, _ := h.north.Advance(); !resolved {
		t.Fatalf("turn did not resolve")
	}
	v, _ := h.north.GetCharacter("hero")
	if !v.InFlight {
		t.Fatalf("hero not in flight: %+v", v)
	}

	play(t, hero)
	if hero.Node() != "south" {
		t.Fatalf("hero node = %s", hero.Node())
	}
	if _, err := h.north.GetCharacter("hero"); err == nil {
		t.Fatalf("hero still on north")
	}
	moved, err := h.south.GetCharacter("hero")
	if err != nil || moved.Life != 6 {
		t.Fatalf("hero on south = %+v, %v", moved, err)
	}
}

func TestAgentFinishesInterruptedMove(t *testing.T) {
	h := newHarness(t,
		"{cid: hero, teamid: x, life: 6, strength: 4, home: north, strategy: flyer}",
		"{cid: foe, teamid: y, life: 8, strength: 6, home: north, strategy: turtle}")
	agents := h.agents(t)
	hero := agents[0]
	play(t, agents...)
	if resolved, _ := h.north.Advance(); !resolved {
		t.Fatalf("turn did not resolve")
	}

	// An earlier move released the source but never settled the arrival.
	dep, err := h.north.Departure("hero")
	if err != nil {
		t.Fatalf("departure: %v", err)
	}
	if _, err := h.south.Arrive(dep.Character.Spec(), dep.Lease); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	if err := h.north.Release("hero", dep.Lease.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	hero.destination, hero.leaseID = "south", dep.Lease.ID

	alive, err := hero.Play(context.Background())
	if err != nil || !alive {
		t.Fatalf("play = %v, %v", alive, err)
	}
	if hero.Node() != "south" {
		t.Fatalf("hero node = %s", hero.Node())
	}
	v, err := h.south.GetCharacter("hero")
	if err != nil || v.InFlight {
		t.Fatalf("hero on south = %+v, %v", v, err)
	}
}

func TestRunRosterEndsWhenAllDone(t *testing.T) {
	h := newHarness(t,
		"{cid: a, teamid: x, life: 3, strength: 9, home: north, strategy: berserk}",
		"{cid: b, teamid: y, life: 3, strength: 9, home: north, strategy: berserk}")
	// Both join before turns start so each sees the other on its first play.
	h.agents(t)
	if err := h.north.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- RunRoster(ctx, h.roster, h.cluster, h.strategy, h.relocator, zap.NewNop()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run roster: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("agents did not finish")
	}
	select {
	case <-h.north.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not stop after everyone died")
	}
}

package scripting

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/skyarena/server/internal/world"
	"go.uber.org/zap"
)

func newEngine(t *testing.T, scripts map[string]string) *Engine {
	t.Helper()
	dir := t.TempDir()
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	e, err := NewEngine(dir, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func view(id, team string, life, armor int) world.CharacterView {
	return world.CharacterView{ID: id, TeamID: team, Life: life, Armor: armor, Alive: true}
}

func TestDefaultStrategyFocusesWeakest(t *testing.T) {
	e := newEngine(t, nil)
	d := e.Decide("default", StrategyContext{
		Self: view("me", "x", 8, 0),
		Foes: []world.CharacterView{view("b", "y", 6, 0), view("a", "y", 3, 0), view("c", "y", 3, 0)},
	})
	if d.Action != world.ActionHit || d.Target != "a" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestDefaultStrategyFliesWhenHurt(t *testing.T) {
	e := newEngine(t, nil)
	d := e.Decide("default", StrategyContext{
		Self:  view("me", "x", 1, 0),
		Foes:  []world.CharacterView{view("b", "y", 6, 0)},
		Nodes: []string{"south"},
	})
	if d.Action != world.ActionFly || d.Destination != "south" {
		t.Fatalf("decision = %+v", d)
	}

	// Nowhere to go: keep fighting.
	d = e.Decide("default", StrategyContext{Self: view("me", "x", 1, 0), Foes: []world.CharacterView{view("b", "y", 6, 0)}})
	if d.Action != world.ActionHit {
		t.Fatalf("decision without nodes = %+v", d)
	}
}

func TestNoFoesBlocks(t *testing.T) {
	e := newEngine(t, nil)
	for _, name := range []string{"default", "berserk", "turtle"} {
		if d := e.Decide(name, StrategyContext{Self: view("me", "x", 5, 0)}); d.Action != world.ActionBlock {
			t.Fatalf("%s with no foes = %+v", name, d)
		}
	}
}

func TestScriptDirectoryAddsStrategies(t *testing.T) {
	e := newEngine(t, map[string]string{
		"sniper.lua": `
strategies.sniper = function(ctx)
  local best = nil
  for _, f in ipairs(ctx.foes) do
    if best == nil or f.armor < best.armor then best = f end
  end
  return { action = "hit", target = best.cid }
end`,
		"notes.txt": "not lua",
	})
	d := e.Decide("sniper", StrategyContext{
		Self: view("me", "x", 8, 0),
		Foes: []world.CharacterView{view("tank", "y", 2, 9), view("glass", "y", 9, 1)},
	})
	if d.Action != world.ActionHit || d.Target != "glass" {
		t.Fatalf("decision = %+v", d)
	}
	names := e.Strategies()
	sort.Strings(names)
	if strings.Join(names, ",") != "berserk,default,sniper,turtle" {
		t.Fatalf("strategies = %v", names)
	}
}

func TestUnknownStrategyUsesDefault(t *testing.T) {
	e := newEngine(t, nil)
	d := e.Decide("nope", StrategyContext{
		Self: view("me", "x", 8, 0),
		Foes: []world.CharacterView{view("b", "y", 6, 0), view("a", "y", 3, 0)},
	})
	if d.Target != "a" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestBadDecisionsFallBack(t *testing.T) {
	e := newEngine(t, map[string]string{
		"bad.lua": `
strategies.boom = function(ctx) error("kaboom") end
strategies.number = function(ctx) return 7 end
strategies.self = function(ctx) return { action = "HIT", target = ctx.self.cid } end
strategies.nowhere = function(ctx) return { action = "FLY", destination = "moon" } end
strategies.dance = function(ctx) return { action = "DANCE" } end
strategies.idle = function(ctx) return { action = "NONE" } end`,
	})
	ctx := StrategyContext{
		Self:  view("me", "x", 8, 0),
		Foes:  []world.CharacterView{view("b", "y", 6, 0)},
		Nodes: []string{"south"},
	}
	for _, name := range []string{"boom", "number", "self", "nowhere", "dance", "idle"} {
		d := e.Decide(name, ctx)
		if d.Action != world.ActionHit || d.Target != "b" {
			t.Fatalf("%s fallback = %+v", name, d)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "broken.lua"), []byte("strategies.x = function("), 0o644)
	if _, err := NewEngine(dir, 1, zap.NewNop()); err == nil {
		t.Fatalf("syntax error accepted")
	}
	e, err := NewEngine(filepath.Join(dir, "missing"), 1, zap.NewNop())
	if err != nil {
		t.Fatalf("missing dir: %v", err)
	}
	e.Close()
}

func TestShippedScriptsLoad(t *testing.T) {
	e, err := NewEngine(filepath.Join("..", "..", "scripts", "strategy"), 1, zap.NewNop())
	if err != nil {
		t.Fatalf("load shipped scripts: %v", err)
	}
	defer e.Close()
	d := e.Decide("sniper", StrategyContext{
		Self: view("me", "x", 8, 0),
		Foes: []world.CharacterView{view("tank", "y", 2, 9), view("glass", "y", 9, 1)},
	})
	if d.Target != "glass" {
		t.Fatalf("decision = %+v", d)
	}
}

package scripting

import (
	_ "embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/skyarena/server/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

//go:embed default.lua
var defaultStrategies string

// Engine wraps a single gopher-lua VM holding the agent strategies. Lua
// states are not goroutine safe, so every call holds mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	rng *rand.Rand
	log *zap.Logger
}

// NewEngine creates a Lua engine with the built-in strategies, then loads
// every .lua file in scriptsDir. An empty or missing directory is fine.
func NewEngine(scriptsDir string, seed int64, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, rng: rand.New(rand.NewSource(seed)), log: log}

	if err := vm.DoString(fmt.Sprintf("math.randomseed(%d)", seed)); err != nil {
		vm.Close()
		return nil, fmt.Errorf("seed lua: %w", err)
	}
	if err := vm.DoString(defaultStrategies); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load built-in strategies: %w", err)
	}
	if scriptsDir != "" {
		if err := e.loadDir(scriptsDir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load strategy scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// StrategyContext is what a strategy sees before choosing an action.
type StrategyContext struct {
	Self   world.CharacterView
	Foes   []world.CharacterView // valid targets on another team
	Allies []world.CharacterView // valid targets on the same team
	Nodes  []string              // other nodes a FLY may head to
}

// Decision is a strategy's choice for one turn.
type Decision struct {
	Action      world.Action
	Target      string // HIT only
	Destination string // FLY only
}

// Strategies lists the names registered in the strategies table.
func (e *Engine) Strategies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	tbl, ok := e.vm.GetGlobal("strategies").(*lua.LTable)
	if !ok {
		return nil
	}
	var names []string
	tbl.ForEach(func(k, v lua.LValue) {
		if _, ok := v.(*lua.LFunction); ok {
			names = append(names, lua.LVAsString(k))
		}
	})
	return names
}

// Decide runs strategies[name](ctx), or strategies.default when name is not
// registered. A failing or nonsensical strategy falls back to hitting a
// random foe.
func (e *Engine) Decide(name string, ctx StrategyContext) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.lookup(name)
	if fn == lua.LNil {
		e.log.Error("lua strategy not found", zap.String("strategy", name))
		return e.fallback(ctx)
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.contextTable(ctx)); err != nil {
		e.log.Error("lua strategy error", zap.String("strategy", name), zap.Error(err))
		return e.fallback(ctx)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua strategy returned non-table", zap.String("strategy", name))
		return e.fallback(ctx)
	}
	d, err := e.decision(rt, ctx)
	if err != nil {
		e.log.Warn("lua strategy decision rejected", zap.String("strategy", name), zap.Error(err))
		return e.fallback(ctx)
	}
	return d
}

func (e *Engine) lookup(name string) lua.LValue {
	tbl, ok := e.vm.GetGlobal("strategies").(*lua.LTable)
	if !ok {
		return lua.LNil
	}
	if fn := tbl.RawGetString(name); fn.Type() == lua.LTFunction {
		return fn
	}
	if fn := tbl.RawGetString("default"); fn.Type() == lua.LTFunction {
		return fn
	}
	return lua.LNil
}

func (e *Engine) contextTable(ctx StrategyContext) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("self", e.characterTable(ctx.Self))

	foes := e.vm.NewTable()
	for i, v := range ctx.Foes {
		foes.RawSetInt(i+1, e.characterTable(v))
	}
	t.RawSetString("foes", foes)

	allies := e.vm.NewTable()
	for i, v := range ctx.Allies {
		allies.RawSetInt(i+1, e.characterTable(v))
	}
	t.RawSetString("allies", allies)

	nodes := e.vm.NewTable()
	for i, n := range ctx.Nodes {
		nodes.RawSetInt(i+1, lua.LString(n))
	}
	t.RawSetString("nodes", nodes)
	return t
}

func (e *Engine) characterTable(v world.CharacterView) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("cid", lua.LString(v.ID))
	t.RawSetString("teamid", lua.LString(v.TeamID))
	t.RawSetString("life", lua.LNumber(v.Life))
	t.RawSetString("strength", lua.LNumber(v.Strength))
	t.RawSetString("armor", lua.LNumber(v.Armor))
	t.RawSetString("speed", lua.LNumber(v.Speed))
	return t
}

// decision validates a Lua result against the context it was computed for.
func (e *Engine) decision(rt *lua.LTable, ctx StrategyContext) (Decision, error) {
	action, err := world.ParseAction(lStr(rt, "action"))
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Action: action}
	switch action {
	case world.ActionNone:
		return Decision{}, fmt.Errorf("strategy chose no action")
	case world.ActionHit:
		d.Target = lStr(rt, "target")
		if !containsView(ctx.Foes, d.Target) && !containsView(ctx.Allies, d.Target) {
			return Decision{}, fmt.Errorf("target %q is not a valid target", d.Target)
		}
	case world.ActionFly:
		d.Destination = lStr(rt, "destination")
		if !containsString(ctx.Nodes, d.Destination) {
			return Decision{}, fmt.Errorf("destination %q is not a known node", d.Destination)
		}
	}
	return d, nil
}

func (e *Engine) fallback(ctx StrategyContext) Decision {
	if len(ctx.Foes) == 0 {
		return Decision{Action: world.ActionBlock}
	}
	return Decision{Action: world.ActionHit, Target: ctx.Foes[e.rng.Intn(len(ctx.Foes))].ID}
}

func containsView(list []world.CharacterView, id string) bool {
	for _, v := range list {
		if v.ID == id {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

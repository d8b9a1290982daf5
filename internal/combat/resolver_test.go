package combat

import (
	"reflect"
	"testing"

	"github.com/skyarena/server/internal/world"
)

// fixedRand returns the same roll every time.
type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func addChar(t *testing.T, a *world.Arena, spec world.CharacterSpec) *world.Character {
	t.Helper()
	c, err := world.NewCharacter(spec, world.DefaultRules())
	if err != nil {
		t.Fatalf("new character: %v", err)
	}
	if err := a.Add(c); err != nil {
		t.Fatalf("add: %v", err)
	}
	return c
}

func TestResolveDamageTable(t *testing.T) {
	tests := []struct {
		name         string
		strength     int
		targetArmor  int
		targetAction world.Action
		roll         float64
		wantDamage   int
		wantKind     EventKind
	}{
		{"armor floors at zero", 5, 9, world.ActionNone, 0.99, 0, EventHit},
		{"block halves rounding down", 7, 0, world.ActionBlock, 0.99, 3, EventBlocked},
		{"block then armor", 5, 2, world.ActionBlock, 0.99, 0, EventBlocked},
		{"unmitigated", 6, 1, world.ActionNone, 0.99, 5, EventHit},
		{"target hitting back takes full", 6, 1, world.ActionHit, 0.99, 5, EventHit},
		{"dodge succeeds", 6, 0, world.ActionDodge, 0.0, 0, EventEvaded},
		{"dodge fails", 6, 0, world.ActionDodge, 0.99, 6, EventHit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := world.NewArena()
			att := addChar(t, a, world.CharacterSpec{ID: "a", TeamID: "x", Life: 5, Strength: tt.strength, Speed: 2})
			tgt := addChar(t, a, world.CharacterSpec{ID: "b", TeamID: "y", Life: 8, Armor: tt.targetArmor, Speed: 2})
			att.SetAction(world.ActionHit)
			att.SetTarget("b")
			tgt.SetAction(tt.targetAction)

			out := Resolve(0, a, fixedRand(tt.roll))
			ev := out.Events[0]
			if ev.Actor != "a" || ev.Kind != tt.wantKind || ev.Damage != tt.wantDamage {
				t.Fatalf("event = %+v, want kind %s damage %d", ev, tt.wantKind, tt.wantDamage)
			}
			if tgt.Life != 8-tt.wantDamage {
				t.Fatalf("target life = %d, want %d", tgt.Life, 8-tt.wantDamage)
			}
		})
	}
}

func TestResolveMutualKillUsesPreTurnState(t *testing.T) {
	a := world.NewArena()
	x := addChar(t, a, world.CharacterSpec{ID: "a", TeamID: "x", Life: 3, Strength: 5})
	y := addChar(t, a, world.CharacterSpec{ID: "b", TeamID: "y", Life: 3, Strength: 5})
	x.SetAction(world.ActionHit)
	x.SetTarget("b")
	y.SetAction(world.ActionHit)
	y.SetTarget("a")

	out := Resolve(4, a, fixedRand(0.5))
	if x.Alive || y.Alive {
		t.Fatalf("both should die: a=%v b=%v", x.Alive, y.Alive)
	}
	if !reflect.DeepEqual(out.Deaths, []string{"a", "b"}) {
		t.Fatalf("deaths = %v", out.Deaths)
	}
	if a.ActiveCount() != 0 {
		t.Fatalf("active count = %d", a.ActiveCount())
	}
	for _, ev := range out.Events {
		if ev.Turn != 4 {
			t.Fatalf("event turn = %d", ev.Turn)
		}
	}
}

func TestResolveDepartedTargetIsNoop(t *testing.T) {
	a := world.NewArena()
	x := addChar(t, a, world.CharacterSpec{ID: "a", TeamID: "x", Life: 5, Strength: 5})
	addChar(t, a, world.CharacterSpec{ID: "b", TeamID: "y", Life: 5})
	x.SetAction(world.ActionHit)
	x.SetTarget("ghost")

	out := Resolve(0, a, fixedRand(0))
	if len(out.Events) != 1 || out.Events[0].Kind != EventNoop || out.Events[0].Target != "ghost" {
		t.Fatalf("events = %+v", out.Events)
	}
}

func TestResolveFlyIsExcluded(t *testing.T) {
	a := world.NewArena()
	x := addChar(t, a, world.CharacterSpec{ID: "a", TeamID: "x", Life: 5, Strength: 5})
	y := addChar(t, a, world.CharacterSpec{ID: "b", TeamID: "y", Life: 5, Strength: 5})
	x.SetAction(world.ActionFly)
	x.SetTarget("b")
	y.SetAction(world.ActionHit)
	y.SetTarget("a")

	out := Resolve(0, a, fixedRand(0))
	if x.Life != 5 || y.Life != 5 {
		t.Fatalf("no damage expected, a=%d b=%d", x.Life, y.Life)
	}
	if !reflect.DeepEqual(out.Flyers, []string{"a"}) {
		t.Fatalf("flyers = %v", out.Flyers)
	}
}

func TestResolveSelfTargetDamagesSelf(t *testing.T) {
	a := world.NewArena()
	x := addChar(t, a, world.CharacterSpec{ID: "a", TeamID: "x", Life: 5, Strength: 4, Armor: 1})
	x.SetAction(world.ActionHit)
	x.SetTarget("a")
	Resolve(0, a, fixedRand(0))
	if x.Life != 2 {
		t.Fatalf("life = %d, want 2", x.Life)
	}
}

func TestResolveDeterministicWithSeed(t *testing.T) {
	build := func() *world.Arena {
		a := world.NewArena()
		ids := []string{"a", "b", "c", "d"}
		for i, id := range ids {
			c := addChar(t, a, world.CharacterSpec{ID: id, TeamID: id, Life: 9, Strength: 5, Armor: 1, Speed: 1 + i})
			c.SetAction(world.ActionHit)
			if i%2 == 1 {
				c.SetAction(world.ActionDodge)
			}
			c.SetTarget(ids[(i+1)%len(ids)])
		}
		return a
	}
	a1, a2 := build(), build()
	out1 := Resolve(0, a1, NewRand(42))
	out2 := Resolve(0, a2, NewRand(42))
	if !reflect.DeepEqual(out1, out2) {
		t.Fatalf("outcomes differ:\n%+v\n%+v", out1, out2)
	}
	if !reflect.DeepEqual(a1.Views(), a2.Views()) {
		t.Fatalf("arena states differ")
	}
}

func TestResolveDeadCharactersDoNotAct(t *testing.T) {
	a := world.NewArena()
	dead := addChar(t, a, world.CharacterSpec{ID: "a", TeamID: "x", Life: 0, Strength: 9})
	y := addChar(t, a, world.CharacterSpec{ID: "b", TeamID: "y", Life: 5})
	dead.SetAction(world.ActionHit)
	dead.SetTarget("b")
	out := Resolve(0, a, fixedRand(0))
	if y.Life != 5 || len(out.Events) != 0 {
		t.Fatalf("dead attacker acted: life=%d events=%+v", y.Life, out.Events)
	}
}

func TestDodgeChance(t *testing.T) {
	if DodgeChance(0, 0) != 0 {
		t.Fatalf("zero speeds must never dodge")
	}
	if got := DodgeChance(3, 1); got != 0.75 {
		t.Fatalf("DodgeChance(3,1) = %v", got)
	}
}
